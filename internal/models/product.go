package models

import (
	"time"

	"gorm.io/gorm"
)

// Product 商品表
type Product struct {
	ID                uint           `gorm:"primarykey" json:"id"`                                 // 主键
	ShopID            uint           `gorm:"index;not null" json:"shop_id"`                        // 所属店铺
	Title             string         `gorm:"type:varchar(255);not null" json:"title"`              // 商品名称
	Price             Money          `gorm:"type:decimal(20,2);not null" json:"price"`             // 标价
	OriginalPrice     *Money         `gorm:"type:decimal(20,2)" json:"original_price,omitempty"`   // 划线价
	Stock             int            `gorm:"not null;default:0" json:"stock"`                      // 库存
	SoldCount         int            `gorm:"not null;default:0" json:"sold_count"`                 // 已售数量
	IsActive          bool           `gorm:"index;not null;default:false" json:"is_active"`        // 是否上架
	IsFlashSale       bool           `gorm:"not null;default:false" json:"is_flash_sale"`          // 是否秒杀中
	FlashSalePrice    *Money         `gorm:"type:decimal(20,2)" json:"flash_sale_price,omitempty"` // 秒杀价
	FlashSaleEndsAt   *time.Time     `gorm:"index" json:"flash_sale_ends_at,omitempty"`            // 秒杀结束时间
	IsGroupBuy        bool           `gorm:"not null;default:false" json:"is_group_buy"`           // 是否支持拼团
	GroupBuyPrice     *Money         `gorm:"type:decimal(20,2)" json:"group_buy_price,omitempty"`  // 拼团价
	GroupBuyMinPeople *int           `json:"group_buy_min_people,omitempty"`                       // 成团人数
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`                              // 创建时间
	UpdatedAt         time.Time      `gorm:"index" json:"updated_at"`                              // 更新时间
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`                                       // 软删除时间

	Shop *Shop `gorm:"foreignKey:ShopID" json:"shop,omitempty"` // 店铺
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}
