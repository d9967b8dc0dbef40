package constants

// 订单状态常量
const (
	OrderStatusPending         = "pending"
	OrderStatusPaid            = "paid"
	OrderStatusAwaitingPayment = "awaiting_payment"
	OrderStatusShipped         = "shipped"
	OrderStatusDelivered       = "delivered"
	OrderStatusCancelled       = "cancelled"
	OrderStatusRefunded        = "refunded"
	OrderStatusPaymentFailed   = "payment_failed"
)

// 支付状态常量
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
)

// 支付提供方常量
const (
	PaymentProviderMbank  = "mbank"
	PaymentProviderElsom  = "elsom"
	PaymentProviderOdengi = "odengi"
)

// 优惠券类型常量
const (
	CouponTypePercentage = "percentage"
	CouponTypeFlat       = "flat"
)

// 拼团状态常量
const (
	GroupBuyStatusActive    = "active"
	GroupBuyStatusCompleted = "completed"
	GroupBuyStatusExpired   = "expired"
	GroupBuyStatusCancelled = "cancelled"
)

// 价格来源
const (
	PriceSourceList      = "list"
	PriceSourceFlashSale = "flash_sale"
	PriceSourceGroupBuy  = "group_buy"
)

// 订单操作角色
const (
	ActorRoleBuyer  = "buyer"
	ActorRoleSeller = "seller"
	ActorRoleSystem = "system"
)

// 默认值
const (
	DefaultGroupBuyMinPeople     = 2
	DefaultGroupBuyDurationHours = 24
	DefaultShippingFee           = "150"
	DefaultFreeShippingThreshold = "2000"
)

// 队列与任务类型
const (
	QueueDefault           = "default"
	QueueCritical          = "critical"
	TaskOrderTimeoutCancel = "order:timeout_cancel"
	TaskOrderStatusChanged = "order:status_changed"
	TaskGroupBuyExpire     = "group_buy:expire"
)
