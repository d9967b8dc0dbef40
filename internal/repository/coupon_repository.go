package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/bazaar-next/internal/models"

	"gorm.io/gorm"
)

// CouponRepository 优惠券数据访问接口
type CouponRepository interface {
	Create(coupon *models.Coupon) error
	GetByID(id uint) (*models.Coupon, error)
	GetByCode(code string) (*models.Coupon, error)
	IncrementUsedCount(id uint, delta int) error
	CreateUserCoupon(userCoupon *models.UserCoupon) error
	FindUnusedUserCoupon(userID, couponID uint) (*models.UserCoupon, error)
	MarkUserCouponUsed(id uint, orderID uint, usedAt time.Time) (int64, error)
	WithTx(tx *gorm.DB) *GormCouponRepository
}

// GormCouponRepository GORM 实现
type GormCouponRepository struct {
	db *gorm.DB
}

// NewCouponRepository 创建优惠券仓库
func NewCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCouponRepository) WithTx(tx *gorm.DB) *GormCouponRepository {
	if tx == nil {
		return r
	}
	return &GormCouponRepository{db: tx}
}

// Create 创建优惠券
func (r *GormCouponRepository) Create(coupon *models.Coupon) error {
	return r.db.Create(coupon).Error
}

// GetByID 获取优惠券
func (r *GormCouponRepository) GetByID(id uint) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.First(&coupon, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}

// GetByCode 根据优惠码获取
func (r *GormCouponRepository) GetByCode(code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.Where("code = ?", strings.TrimSpace(code)).First(&coupon).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}

// IncrementUsedCount 增加使用次数
func (r *GormCouponRepository) IncrementUsedCount(id uint, delta int) error {
	return r.db.Model(&models.Coupon{}).Where("id = ?", id).
		UpdateColumn("used_count", gorm.Expr("used_count + ?", delta)).Error
}

// CreateUserCoupon 发放优惠券给用户
func (r *GormCouponRepository) CreateUserCoupon(userCoupon *models.UserCoupon) error {
	return r.db.Create(userCoupon).Error
}

// FindUnusedUserCoupon 查找用户未使用的券
func (r *GormCouponRepository) FindUnusedUserCoupon(userID, couponID uint) (*models.UserCoupon, error) {
	var userCoupon models.UserCoupon
	err := r.db.Where("user_id = ? AND coupon_id = ? AND is_used = ?", userID, couponID, false).
		Order("id asc").
		First(&userCoupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &userCoupon, nil
}

// MarkUserCouponUsed 核销用户券，仅对未使用的行生效
func (r *GormCouponRepository) MarkUserCouponUsed(id uint, orderID uint, usedAt time.Time) (int64, error) {
	if id == 0 {
		return 0, errors.New("invalid user coupon id")
	}
	updates := map[string]interface{}{
		"is_used": true,
		"used_at": usedAt,
	}
	if orderID != 0 {
		updates["order_id"] = orderID
	}
	result := r.db.Model(&models.UserCoupon{}).Where("id = ? AND is_used = ?", id, false).Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
