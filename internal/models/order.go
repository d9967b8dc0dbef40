package models

import "time"

// Order 订单表，每个订单只属于一个店铺
type Order struct {
	ID                uint       `gorm:"primarykey" json:"id"`                                            // 主键
	OrderNo           string     `gorm:"uniqueIndex;not null" json:"order_no"`                            // 订单编号
	CheckoutNo        string     `gorm:"index;not null" json:"checkout_no"`                               // 结算批次号（同一购物车拆出的订单共享）
	UserID            uint       `gorm:"index;not null" json:"user_id"`                                   // 买家ID
	ShopID            uint       `gorm:"index;not null" json:"shop_id"`                                   // 店铺ID
	Status            string     `gorm:"index;not null" json:"status"`                                    // 订单状态
	ItemsAmount       Money      `gorm:"type:decimal(20,2);not null;default:0" json:"items_amount"`       // 商品金额（成交单价合计）
	PromotionDiscount Money      `gorm:"type:decimal(20,2);not null;default:0" json:"promotion_discount"` // 划线价优惠
	CouponDiscount    Money      `gorm:"type:decimal(20,2);not null;default:0" json:"coupon_discount"`    // 优惠券分摊金额
	DiscountAmount    Money      `gorm:"type:decimal(20,2);not null;default:0" json:"discount_amount"`    // 优惠合计
	ShippingFee       Money      `gorm:"type:decimal(20,2);not null;default:0" json:"shipping_fee"`       // 运费分摊
	TotalAmount       Money      `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"`       // 应付金额
	CouponID          *uint      `gorm:"index" json:"coupon_id,omitempty"`                                // 优惠券ID
	PaymentID         *uint      `gorm:"index" json:"payment_id,omitempty"`                               // 支付记录ID
	GroupBuyID        *uint      `gorm:"index" json:"group_buy_id,omitempty"`                             // 拼团ID
	FlashSaleID       *uint      `gorm:"index" json:"flash_sale_id,omitempty"`                            // 秒杀活动ID
	ShippingAddress   string     `gorm:"type:text;not null" json:"shipping_address"`                      // 收货地址
	PaidAt            *time.Time `gorm:"index" json:"paid_at,omitempty"`                                  // 支付时间
	CancelledAt       *time.Time `gorm:"index" json:"cancelled_at,omitempty"`                             // 取消时间
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`                                         // 创建时间
	UpdatedAt         time.Time  `gorm:"index" json:"updated_at"`                                         // 更新时间

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"` // 订单项
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// OrderItem 订单项，成交单价在下单时冻结
type OrderItem struct {
	ID            uint      `gorm:"primarykey" json:"id"`                               // 主键
	OrderID       uint      `gorm:"index;not null" json:"order_id"`                     // 订单ID
	ProductID     uint      `gorm:"index;not null" json:"product_id"`                   // 商品ID
	ShopID        uint      `gorm:"index;not null" json:"shop_id"`                      // 店铺ID
	Title         string    `gorm:"type:varchar(255);not null" json:"title"`            // 商品名称快照
	Quantity      int       `gorm:"not null" json:"quantity"`                           // 数量
	Price         Money     `gorm:"type:decimal(20,2);not null" json:"price"`           // 成交单价
	OriginalPrice *Money    `gorm:"type:decimal(20,2)" json:"original_price,omitempty"` // 划线价快照
	PriceSource   string    `gorm:"type:varchar(20);not null" json:"price_source"`      // 价格来源 list/flash_sale/group_buy
	SelectedColor string    `gorm:"type:varchar(64)" json:"selected_color,omitempty"`   // 所选颜色
	SelectedSize  string    `gorm:"type:varchar(64)" json:"selected_size,omitempty"`    // 所选尺码
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                            // 创建时间
	UpdatedAt     time.Time `gorm:"index" json:"updated_at"`                            // 更新时间
}

// TableName 指定表名
func (OrderItem) TableName() string {
	return "order_items"
}
