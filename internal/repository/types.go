package repository

// OrderListFilter 查询订单列表的过滤条件
type OrderListFilter struct {
	Page       int
	PageSize   int
	UserID     uint
	ShopID     uint
	Status     string
	CheckoutNo string
	Keyword    string
}

// GroupBuyListFilter 查询拼团列表的过滤条件
type GroupBuyListFilter struct {
	ProductID uint
	Status    string
	Limit     int
}
