package repository

import (
	"errors"
	"strings"

	"github.com/bazaar-next/internal/models"

	"gorm.io/gorm"
)

// PaymentRepository 支付数据访问接口
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetByProviderRef(provider, providerID string) (*models.Payment, error)
	ListByOrderID(orderID uint) ([]models.Payment, error)
	UpdateIfStatus(id uint, status string, updates map[string]interface{}) (int64, error)
	WithTx(tx *gorm.DB) *GormPaymentRepository
}

// GormPaymentRepository GORM 实现
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付仓库
func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentRepository) WithTx(tx *gorm.DB) *GormPaymentRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentRepository{db: tx}
}

// Create 创建支付记录
func (r *GormPaymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

// GetByID 根据 ID 获取支付记录
func (r *GormPaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.First(&payment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetByProviderRef 按提供方与外部交易号获取支付记录
func (r *GormPaymentRepository) GetByProviderRef(provider, providerID string) (*models.Payment, error) {
	provider = strings.TrimSpace(provider)
	providerID = strings.TrimSpace(providerID)
	if provider == "" || providerID == "" {
		return nil, nil
	}
	var payment models.Payment
	if err := r.db.Where("provider = ? AND provider_id = ?", provider, providerID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// ListByOrderID 获取订单的支付记录
func (r *GormPaymentRepository) ListByOrderID(orderID uint) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.Where("order_id = ?", orderID).Order("id desc").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// UpdateIfStatus 以当前状态为条件更新支付记录，返回受影响行数
func (r *GormPaymentRepository) UpdateIfStatus(id uint, status string, updates map[string]interface{}) (int64, error) {
	if id == 0 || status == "" || len(updates) == 0 {
		return 0, errors.New("invalid payment update params")
	}
	result := r.db.Model(&models.Payment{}).Where("id = ? AND status = ?", id, status).Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
