package repository

import (
	"errors"

	"github.com/bazaar-next/internal/models"

	"gorm.io/gorm"
)

// ShopRepository 店铺数据访问接口
type ShopRepository interface {
	Create(shop *models.Shop) error
	GetByID(id uint) (*models.Shop, error)
	IncrementSales(shopID uint, count int, amount models.Money) (int64, error)
	WithTx(tx *gorm.DB) *GormShopRepository
}

// GormShopRepository GORM 实现
type GormShopRepository struct {
	db *gorm.DB
}

// NewShopRepository 创建店铺仓库
func NewShopRepository(db *gorm.DB) *GormShopRepository {
	return &GormShopRepository{db: db}
}

// WithTx 绑定事务
func (r *GormShopRepository) WithTx(tx *gorm.DB) *GormShopRepository {
	if tx == nil {
		return r
	}
	return &GormShopRepository{db: tx}
}

// Create 创建店铺
func (r *GormShopRepository) Create(shop *models.Shop) error {
	return r.db.Create(shop).Error
}

// GetByID 获取店铺
func (r *GormShopRepository) GetByID(id uint) (*models.Shop, error) {
	var shop models.Shop
	if err := r.db.First(&shop, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &shop, nil
}

// IncrementSales 累加店铺销量与成交额
func (r *GormShopRepository) IncrementSales(shopID uint, count int, amount models.Money) (int64, error) {
	if shopID == 0 || count < 0 {
		return 0, errors.New("invalid shop sales params")
	}
	result := r.db.Model(&models.Shop{}).
		Where("id = ?", shopID).
		Updates(map[string]interface{}{
			"sales_count":  gorm.Expr("sales_count + ?", count),
			"sales_amount": gorm.Expr("sales_amount + ?", amount.String()),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
