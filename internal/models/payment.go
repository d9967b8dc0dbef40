package models

import "time"

// Payment 支付记录，provider + provider_id 唯一
type Payment struct {
	ID               uint       `gorm:"primarykey" json:"id"`                                                               // 主键
	OrderID          uint       `gorm:"index;not null" json:"order_id"`                                                     // 订单ID
	Provider         string     `gorm:"type:varchar(32);not null;uniqueIndex:idx_payment_provider_ref" json:"provider"`     // 支付提供方
	ProviderID       string     `gorm:"type:varchar(128);not null;uniqueIndex:idx_payment_provider_ref" json:"provider_id"` // 外部交易号
	Amount           Money      `gorm:"type:decimal(20,2);not null" json:"amount"`                                          // 支付金额
	Status           string     `gorm:"index;not null" json:"status"`                                                       // 支付状态
	ProviderResponse JSON       `gorm:"type:json" json:"provider_response"`                                                 // 回调原文（只追加）
	PaidAt           *time.Time `gorm:"index" json:"paid_at,omitempty"`                                                     // 支付完成时间
	RefundedAt       *time.Time `gorm:"index" json:"refunded_at,omitempty"`                                                 // 退款时间
	CallbackAt       *time.Time `gorm:"index" json:"callback_at,omitempty"`                                                 // 最近回调时间
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`                                                            // 创建时间
	UpdatedAt        time.Time  `gorm:"index" json:"updated_at"`                                                            // 更新时间
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}
