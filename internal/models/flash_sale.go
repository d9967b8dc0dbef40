package models

import "time"

// FlashSale 秒杀活动表，库存独立于商品库存
type FlashSale struct {
	ID            uint      `gorm:"primarykey" json:"id"`                              // 主键
	ProductID     uint      `gorm:"index;not null" json:"product_id"`                  // 商品ID
	SalePrice     Money     `gorm:"type:decimal(20,2);not null" json:"sale_price"`     // 秒杀价
	OriginalPrice Money     `gorm:"type:decimal(20,2);not null" json:"original_price"` // 原价
	Stock         int       `gorm:"not null;default:0" json:"stock"`                   // 剩余库存
	SoldCount     int       `gorm:"not null;default:0" json:"sold_count"`              // 已售数量
	StartsAt      time.Time `gorm:"index;not null" json:"starts_at"`                   // 开始时间
	EndsAt        time.Time `gorm:"index;not null" json:"ends_at"`                     // 结束时间
	IsActive      bool      `gorm:"index;not null;default:false" json:"is_active"`     // 是否启用
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                           // 创建时间
	UpdatedAt     time.Time `gorm:"index" json:"updated_at"`                           // 更新时间

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"` // 商品
}

// TableName 指定表名
func (FlashSale) TableName() string {
	return "flash_sales"
}
