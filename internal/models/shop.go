package models

import (
	"time"

	"gorm.io/gorm"
)

// Shop 店铺表
type Shop struct {
	ID          uint           `gorm:"primarykey" json:"id"`                                      // 主键
	OwnerID     uint           `gorm:"index;not null" json:"owner_id"`                            // 店主用户ID
	Name        string         `gorm:"type:varchar(200);not null" json:"name"`                    // 店铺名称
	SalesCount  int64          `gorm:"not null;default:0" json:"sales_count"`                     // 累计售出件数
	SalesAmount Money          `gorm:"type:decimal(20,2);not null;default:0" json:"sales_amount"` // 累计成交金额
	IsActive    bool           `gorm:"not null;default:false" json:"is_active"`                   // 是否营业
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                                   // 创建时间
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`                                   // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                                            // 软删除时间
}

// TableName 指定表名
func (Shop) TableName() string {
	return "shops"
}
