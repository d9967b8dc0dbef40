package repository

import (
	"errors"

	"github.com/bazaar-next/internal/models"

	"gorm.io/gorm"
)

// FlashSaleRepository 秒杀活动数据访问接口
type FlashSaleRepository interface {
	Create(sale *models.FlashSale) error
	GetByID(id uint) (*models.FlashSale, error)
	CompareAndDecrementStock(id uint, expectedStock, quantity int) (int64, error)
	RestoreStock(id uint, quantity int) (int64, error)
	WithTx(tx *gorm.DB) *GormFlashSaleRepository
}

// GormFlashSaleRepository GORM 实现
type GormFlashSaleRepository struct {
	db *gorm.DB
}

// NewFlashSaleRepository 创建秒杀活动仓库
func NewFlashSaleRepository(db *gorm.DB) *GormFlashSaleRepository {
	return &GormFlashSaleRepository{db: db}
}

// WithTx 绑定事务
func (r *GormFlashSaleRepository) WithTx(tx *gorm.DB) *GormFlashSaleRepository {
	if tx == nil {
		return r
	}
	return &GormFlashSaleRepository{db: tx}
}

// Create 创建秒杀活动
func (r *GormFlashSaleRepository) Create(sale *models.FlashSale) error {
	return r.db.Create(sale).Error
}

// GetByID 获取秒杀活动（含商品）
func (r *GormFlashSaleRepository) GetByID(id uint) (*models.FlashSale, error) {
	var sale models.FlashSale
	if err := r.db.Preload("Product").First(&sale, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sale, nil
}

// CompareAndDecrementStock 库存 CAS 扣减：仅当库存仍等于读取值时生效
func (r *GormFlashSaleRepository) CompareAndDecrementStock(id uint, expectedStock, quantity int) (int64, error) {
	if id == 0 || quantity <= 0 || quantity > expectedStock {
		return 0, errors.New("invalid flash sale decrement params")
	}
	result := r.db.Model(&models.FlashSale{}).
		Where("id = ? AND stock = ?", id, expectedStock).
		Updates(map[string]interface{}{
			"stock":      expectedStock - quantity,
			"sold_count": gorm.Expr("sold_count + ?", quantity),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// RestoreStock 回补秒杀库存
func (r *GormFlashSaleRepository) RestoreStock(id uint, quantity int) (int64, error) {
	if id == 0 || quantity <= 0 {
		return 0, errors.New("invalid flash sale restore params")
	}
	result := r.db.Model(&models.FlashSale{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock + ?", quantity),
			"sold_count": gorm.Expr("CASE WHEN sold_count >= ? THEN sold_count - ? ELSE 0 END", quantity, quantity),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
