package repository

import (
	"errors"
	"strings"

	"github.com/bazaar-next/internal/models"

	"gorm.io/gorm"
)

// OrderRepository 订单数据访问接口
type OrderRepository interface {
	Create(order *models.Order) error
	GetByID(id uint) (*models.Order, error)
	GetByIDAndUser(id uint, userID uint) (*models.Order, error)
	ListByCheckoutNo(checkoutNo string) ([]models.Order, error)
	List(filter OrderListFilter) ([]models.Order, int64, error)
	UpdateStatusIfCurrent(id uint, from, to string, updates map[string]interface{}) (int64, error)
	SetPaymentID(id uint, paymentID uint) error
	WithTx(tx *gorm.DB) *GormOrderRepository
}

// GormOrderRepository GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOrderRepository) WithTx(tx *gorm.DB) *GormOrderRepository {
	if tx == nil {
		return r
	}
	return &GormOrderRepository{db: tx}
}

// Create 创建订单（连同订单项）
func (r *GormOrderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

// GetByID 获取订单详情
func (r *GormOrderRepository) GetByID(id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.Preload("Items").First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByIDAndUser 获取买家自己的订单
func (r *GormOrderRepository) GetByIDAndUser(id uint, userID uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.Preload("Items").Where("id = ? AND user_id = ?", id, userID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// ListByCheckoutNo 获取同一结算批次下的订单
func (r *GormOrderRepository) ListByCheckoutNo(checkoutNo string) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.Preload("Items").Where("checkout_no = ?", checkoutNo).Order("id asc").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// List 订单列表
func (r *GormOrderRepository) List(filter OrderListFilter) ([]models.Order, int64, error) {
	query := r.db.Model(&models.Order{})
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.ShopID != 0 {
		query = query.Where("shop_id = ?", filter.ShopID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if checkoutNo := strings.TrimSpace(filter.CheckoutNo); checkoutNo != "" {
		query = query.Where("checkout_no = ?", checkoutNo)
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		condition, argCount := buildLikeCondition(r.db, []string{"order_no", "checkout_no"})
		like := containsPattern(keyword)
		itemCondition, itemArgs := buildLikeCondition(r.db, []string{"order_items.title"})
		args := append(repeatLikeArgs(like, argCount), repeatLikeArgs(like, itemArgs)...)
		query = query.Where(
			"(("+condition+") OR id IN (SELECT order_id FROM order_items WHERE "+itemCondition+"))",
			args...,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var orders []models.Order
	if err := query.Preload("Items").Order("id desc").Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateStatusIfCurrent 状态条件更新：仅当当前状态等于 from 时写入 to
func (r *GormOrderRepository) UpdateStatusIfCurrent(id uint, from, to string, updates map[string]interface{}) (int64, error) {
	if id == 0 || from == "" || to == "" {
		return 0, errors.New("invalid order status update params")
	}
	values := map[string]interface{}{"status": to}
	for key, value := range updates {
		values[key] = value
	}
	result := r.db.Model(&models.Order{}).Where("id = ? AND status = ?", id, from).Updates(values)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// SetPaymentID 关联支付记录
func (r *GormOrderRepository) SetPaymentID(id uint, paymentID uint) error {
	return r.db.Model(&models.Order{}).Where("id = ?", id).Update("payment_id", paymentID).Error
}
