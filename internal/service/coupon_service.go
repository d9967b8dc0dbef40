package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/models"
	"github.com/bazaar-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CouponService 优惠券服务
type CouponService struct {
	couponRepo repository.CouponRepository
}

// NewCouponService 创建优惠券服务
func NewCouponService(couponRepo repository.CouponRepository) *CouponService {
	return &CouponService{couponRepo: couponRepo}
}

// CouponQuote 优惠券试算结果
type CouponQuote struct {
	Coupon     *models.Coupon     `json:"coupon"`
	UserCoupon *models.UserCoupon `json:"-"`
	Discount   decimal.Decimal    `json:"discount"`
}

// ApplyCoupon 校验优惠券并计算折扣，不产生任何写入
func (s *CouponService) ApplyCoupon(code string, cartTotal decimal.Decimal, userID uint) (*CouponQuote, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return nil, ErrCouponNotFound
	}
	coupon, err := s.couponRepo.GetByCode(trimmed)
	if err != nil {
		return nil, err
	}
	if coupon == nil || !coupon.IsActive || !coupon.ExpiresAt.After(time.Now()) {
		return nil, ErrCouponNotFound
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return nil, ErrCouponUsageLimit
	}
	if cartTotal.LessThan(coupon.MinPurchase.Decimal) {
		return nil, ErrCouponBelowMinPurchase
	}
	userCoupon, err := s.couponRepo.FindUnusedUserCoupon(userID, coupon.ID)
	if err != nil {
		return nil, err
	}
	if userCoupon == nil {
		return nil, ErrCouponNotOwned
	}

	discount, err := calculateCouponDiscount(coupon, cartTotal)
	if err != nil {
		return nil, err
	}
	return &CouponQuote{Coupon: coupon, UserCoupon: userCoupon, Discount: discount}, nil
}

// CreateCoupon 校验并创建优惠券，优惠码已存在时返回 ErrCouponExists
func (s *CouponService) CreateCoupon(coupon *models.Coupon) error {
	if err := validateCoupon(coupon); err != nil {
		return err
	}
	existing, err := s.couponRepo.GetByCode(coupon.Code)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrCouponExists
	}
	return s.couponRepo.Create(coupon)
}

// GrantCoupon 发放优惠券，用户已持有未使用的同一张券时直接返回
func (s *CouponService) GrantCoupon(userID, couponID uint) (*models.UserCoupon, error) {
	if userID == 0 || couponID == 0 {
		return nil, ErrInvalidInput
	}
	coupon, err := s.couponRepo.GetByID(couponID)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}
	owned, err := s.couponRepo.FindUnusedUserCoupon(userID, couponID)
	if err != nil {
		return nil, err
	}
	if owned != nil {
		return owned, nil
	}
	userCoupon := &models.UserCoupon{UserID: userID, CouponID: couponID}
	if err := s.couponRepo.CreateUserCoupon(userCoupon); err != nil {
		return nil, err
	}
	return userCoupon, nil
}

func validateCoupon(coupon *models.Coupon) error {
	if coupon == nil {
		return ErrInvalidInput
	}
	coupon.Code = strings.TrimSpace(coupon.Code)
	coupon.Type = strings.ToLower(strings.TrimSpace(coupon.Type))
	if coupon.Code == "" {
		return fmt.Errorf("%w: coupon code is required", ErrInvalidInput)
	}
	if !coupon.Value.Decimal.IsPositive() {
		return fmt.Errorf("%w: coupon value must be positive", ErrInvalidInput)
	}
	switch coupon.Type {
	case constants.CouponTypePercentage:
		if coupon.Value.Decimal.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: percentage must not exceed 100", ErrInvalidInput)
		}
	case constants.CouponTypeFlat:
	default:
		return fmt.Errorf("%w: unsupported coupon type %q", ErrInvalidInput, coupon.Type)
	}
	// 未设置表示不封顶，0 或负数不是合法上限
	if coupon.MaxDiscount != nil && !coupon.MaxDiscount.Decimal.IsPositive() {
		return fmt.Errorf("%w: max_discount must be positive", ErrInvalidInput)
	}
	if coupon.MinPurchase.Decimal.IsNegative() {
		return fmt.Errorf("%w: min_purchase must not be negative", ErrInvalidInput)
	}
	if coupon.UsageLimit < 0 {
		return fmt.Errorf("%w: usage_limit must not be negative", ErrInvalidInput)
	}
	return nil
}

// MarkUsed 核销用户券；已被核销时返回 ErrCouponNotOwned
func (s *CouponService) MarkUsed(userCouponID, couponID, orderID uint) error {
	if userCouponID == 0 || couponID == 0 {
		return ErrInvalidInput
	}
	return models.DB.Transaction(func(tx *gorm.DB) error {
		repo := s.couponRepo.WithTx(tx)
		affected, err := repo.MarkUserCouponUsed(userCouponID, orderID, time.Now().UTC())
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrCouponNotOwned
		}
		return repo.IncrementUsedCount(couponID, 1)
	})
}

func calculateCouponDiscount(coupon *models.Coupon, cartTotal decimal.Decimal) (decimal.Decimal, error) {
	if coupon.Value.Decimal.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, errors.New("coupon value must be positive")
	}
	var discount decimal.Decimal
	switch strings.ToLower(strings.TrimSpace(coupon.Type)) {
	case constants.CouponTypePercentage:
		discount = cartTotal.Mul(coupon.Value.Decimal).Div(decimal.NewFromInt(100))
		if coupon.MaxDiscount != nil && coupon.MaxDiscount.Decimal.IsPositive() && discount.GreaterThan(coupon.MaxDiscount.Decimal) {
			discount = coupon.MaxDiscount.Decimal
		}
	case constants.CouponTypeFlat:
		discount = coupon.Value.Decimal
	default:
		return decimal.Zero, errors.New("unsupported coupon type")
	}
	if discount.GreaterThan(cartTotal) {
		discount = cartTotal
	}
	return discount.Round(2), nil
}
