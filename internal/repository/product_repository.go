package repository

import (
	"errors"

	"github.com/bazaar-next/internal/models"

	"gorm.io/gorm"
)

// ProductRepository 商品数据访问接口
type ProductRepository interface {
	Create(product *models.Product) error
	GetByID(id uint) (*models.Product, error)
	GetByIDs(ids []uint) ([]models.Product, error)
	CompareAndConsumeStock(productID uint, expectedStock, decrement, soldIncrement int) (int64, error)
	RestoreStock(productID uint, quantity int) (int64, error)
	IncrementSoldCount(productID uint, quantity int) (int64, error)
	DecrementSoldCount(productID uint, quantity int) (int64, error)
	WithTx(tx *gorm.DB) *GormProductRepository
}

// GormProductRepository GORM 实现
type GormProductRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓库
func NewProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// WithTx 绑定事务
func (r *GormProductRepository) WithTx(tx *gorm.DB) *GormProductRepository {
	if tx == nil {
		return r
	}
	return &GormProductRepository{db: tx}
}

// Create 创建商品
func (r *GormProductRepository) Create(product *models.Product) error {
	return r.db.Create(product).Error
}

// GetByID 根据 ID 获取商品，不存在返回 nil
func (r *GormProductRepository) GetByID(id uint) (*models.Product, error) {
	var product models.Product
	if err := r.db.First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// GetByIDs 批量获取商品
func (r *GormProductRepository) GetByIDs(ids []uint) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var products []models.Product
	if err := r.db.Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// CompareAndConsumeStock 以读到的库存为条件扣减库存并累加销量，返回受影响行数
func (r *GormProductRepository) CompareAndConsumeStock(productID uint, expectedStock, decrement, soldIncrement int) (int64, error) {
	if productID == 0 || decrement < 0 || soldIncrement < 0 || decrement > expectedStock {
		return 0, errors.New("invalid stock consume params")
	}
	result := r.db.Model(&models.Product{}).
		Where("id = ? AND stock = ?", productID, expectedStock).
		Updates(map[string]interface{}{
			"stock":      expectedStock - decrement,
			"sold_count": gorm.Expr("sold_count + ?", soldIncrement),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// RestoreStock 回补库存，销量扣减到 0 为止
func (r *GormProductRepository) RestoreStock(productID uint, quantity int) (int64, error) {
	if productID == 0 || quantity <= 0 {
		return 0, errors.New("invalid stock restore params")
	}
	result := r.db.Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock + ?", quantity),
			"sold_count": gorm.Expr("CASE WHEN sold_count >= ? THEN sold_count - ? ELSE 0 END", quantity, quantity),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// IncrementSoldCount 仅累加销量（秒杀订单库存已在活动池扣减）
func (r *GormProductRepository) IncrementSoldCount(productID uint, quantity int) (int64, error) {
	if productID == 0 || quantity <= 0 {
		return 0, errors.New("invalid sold count params")
	}
	result := r.db.Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("sold_count", gorm.Expr("sold_count + ?", quantity))
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// DecrementSoldCount 仅回退销量，扣减到 0 为止
func (r *GormProductRepository) DecrementSoldCount(productID uint, quantity int) (int64, error) {
	if productID == 0 || quantity <= 0 {
		return 0, errors.New("invalid sold count params")
	}
	result := r.db.Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("sold_count", gorm.Expr("CASE WHEN sold_count >= ? THEN sold_count - ? ELSE 0 END", quantity, quantity))
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
