package models

import "time"

// GroupBuy 拼团表
type GroupBuy struct {
	ID             uint       `gorm:"primarykey" json:"id"`                           // 主键
	ProductID      uint       `gorm:"index;not null" json:"product_id"`               // 商品ID
	InitiatorID    uint       `gorm:"index;not null" json:"initiator_id"`             // 发起人
	RequiredPeople int        `gorm:"not null" json:"required_people"`                // 成团人数
	CurrentPeople  int        `gorm:"not null;default:0" json:"current_people"`       // 当前人数
	GroupPrice     Money      `gorm:"type:decimal(20,2);not null" json:"group_price"` // 拼团价
	Status         string     `gorm:"index;not null" json:"status"`                   // 状态
	ExpiresAt      time.Time  `gorm:"index;not null" json:"expires_at"`               // 过期时间
	CompletedAt    *time.Time `gorm:"index" json:"completed_at,omitempty"`            // 成团时间
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`                        // 创建时间
	UpdatedAt      time.Time  `gorm:"index" json:"updated_at"`                        // 更新时间

	Participants []GroupBuyParticipant `gorm:"foreignKey:GroupBuyID" json:"participants,omitempty"` // 参团成员
}

// TableName 指定表名
func (GroupBuy) TableName() string {
	return "group_buys"
}

// GroupBuyParticipant 参团成员，(group_buy_id, user_id) 唯一
type GroupBuyParticipant struct {
	ID         uint      `gorm:"primarykey" json:"id"`                                                // 主键
	GroupBuyID uint      `gorm:"not null;uniqueIndex:idx_group_buy_participant" json:"group_buy_id"`  // 拼团ID
	UserID     uint      `gorm:"not null;uniqueIndex:idx_group_buy_participant;index" json:"user_id"` // 用户ID
	CreatedAt  time.Time `gorm:"index" json:"created_at"`                                             // 参团时间
}

// TableName 指定表名
func (GroupBuyParticipant) TableName() string {
	return "group_buy_participants"
}
