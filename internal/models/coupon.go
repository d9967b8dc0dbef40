package models

import (
	"time"

	"gorm.io/gorm"
)

// Coupon 优惠券表
type Coupon struct {
	ID          uint           `gorm:"primarykey" json:"id"`                                      // 主键
	Code        string         `gorm:"uniqueIndex;not null" json:"code"`                          // 优惠码
	Type        string         `gorm:"not null" json:"type"`                                      // 类型 percentage/flat
	Value       Money          `gorm:"type:decimal(20,2);not null" json:"value"`                  // 面值或百分比
	MinPurchase Money          `gorm:"type:decimal(20,2);not null;default:0" json:"min_purchase"` // 最低消费
	MaxDiscount *Money         `gorm:"type:decimal(20,2)" json:"max_discount,omitempty"`          // 最高优惠
	ExpiresAt   time.Time      `gorm:"index;not null" json:"expires_at"`                          // 过期时间
	UsageLimit  int            `gorm:"not null;default:0" json:"usage_limit"`                     // 总使用次数上限（0 不限）
	UsedCount   int            `gorm:"not null;default:0" json:"used_count"`                      // 已使用次数
	IsActive    bool           `gorm:"index;not null;default:false" json:"is_active"`             // 是否启用
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                                   // 创建时间
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`                                   // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                                            // 软删除时间
}

// TableName 指定表名
func (Coupon) TableName() string {
	return "coupons"
}

// UserCoupon 用户领取的优惠券，每行最多核销一次
type UserCoupon struct {
	ID        uint       `gorm:"primarykey" json:"id"`                        // 主键
	UserID    uint       `gorm:"index;not null" json:"user_id"`               // 用户ID
	CouponID  uint       `gorm:"index;not null" json:"coupon_id"`             // 优惠券ID
	IsUsed    bool       `gorm:"index;not null;default:false" json:"is_used"` // 是否已使用
	UsedAt    *time.Time `gorm:"index" json:"used_at,omitempty"`              // 使用时间
	OrderID   *uint      `gorm:"index" json:"order_id,omitempty"`             // 核销订单ID
	CreatedAt time.Time  `gorm:"index" json:"created_at"`                     // 领取时间
	UpdatedAt time.Time  `gorm:"index" json:"updated_at"`                     // 更新时间

	Coupon *Coupon `gorm:"foreignKey:CouponID" json:"coupon,omitempty"` // 优惠券
}

// TableName 指定表名
func (UserCoupon) TableName() string {
	return "user_coupons"
}
