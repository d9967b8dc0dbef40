package service

import (
	"errors"
	"testing"
	"time"

	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/models"

	"github.com/shopspring/decimal"
)

func seedCoupon(t *testing.T, env *serviceTestEnv, code, couponType, value string, mutate func(c *models.Coupon)) *models.Coupon {
	t.Helper()
	coupon := &models.Coupon{
		Code:        code,
		Type:        couponType,
		Value:       models.MustMoney(value),
		MinPurchase: models.NewMoneyFromInt(0),
		ExpiresAt:   time.Now().Add(24 * time.Hour),
		IsActive:    true,
	}
	if mutate != nil {
		mutate(coupon)
	}
	if err := env.couponRepo.Create(coupon); err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}
	return coupon
}

func grantCoupon(t *testing.T, env *serviceTestEnv, userID, couponID uint) *models.UserCoupon {
	t.Helper()
	userCoupon := &models.UserCoupon{UserID: userID, CouponID: couponID}
	if err := env.couponRepo.CreateUserCoupon(userCoupon); err != nil {
		t.Fatalf("create user coupon failed: %v", err)
	}
	return userCoupon
}

func TestApplyCouponRejections(t *testing.T) {
	env := setupServiceTest(t)
	expired := seedCoupon(t, env, "OLD", constants.CouponTypeFlat, "10", func(c *models.Coupon) {
		c.ExpiresAt = time.Now().Add(-time.Hour)
	})
	exhausted := seedCoupon(t, env, "GONE", constants.CouponTypeFlat, "10", func(c *models.Coupon) {
		c.UsageLimit = 2
		c.UsedCount = 2
	})
	minimum := seedCoupon(t, env, "BIG", constants.CouponTypeFlat, "10", func(c *models.Coupon) {
		c.MinPurchase = models.MustMoney("500")
	})
	seedCoupon(t, env, "NOTMINE", constants.CouponTypeFlat, "10", nil)
	grantCoupon(t, env, 1, expired.ID)
	grantCoupon(t, env, 1, exhausted.ID)
	grantCoupon(t, env, 1, minimum.ID)

	cases := []struct {
		name string
		code string
		want error
	}{
		{name: "empty", code: "  ", want: ErrCouponNotFound},
		{name: "unknown", code: "NOPE", want: ErrCouponNotFound},
		{name: "expired", code: "OLD", want: ErrCouponNotFound},
		{name: "usage limit", code: "GONE", want: ErrCouponUsageLimit},
		{name: "below minimum", code: "BIG", want: ErrCouponBelowMinPurchase},
		{name: "not owned", code: "NOTMINE", want: ErrCouponNotOwned},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.coupons.ApplyCoupon(tc.code, decimal.NewFromInt(100), 1)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyCouponDiscounts(t *testing.T) {
	env := setupServiceTest(t)
	percent := seedCoupon(t, env, "PCT20", constants.CouponTypePercentage, "20", func(c *models.Coupon) {
		c.MaxDiscount = models.MoneyPtr(models.MustMoney("30"))
	})
	flat := seedCoupon(t, env, "FLAT500", constants.CouponTypeFlat, "500", nil)
	grantCoupon(t, env, 7, percent.ID)
	grantCoupon(t, env, 7, flat.ID)

	quote, err := env.coupons.ApplyCoupon("PCT20", decimal.NewFromInt(100), 7)
	if err != nil {
		t.Fatalf("apply percentage failed: %v", err)
	}
	if !quote.Discount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected discount 20, got %s", quote.Discount)
	}

	quote, err = env.coupons.ApplyCoupon("PCT20", decimal.NewFromInt(1000), 7)
	if err != nil {
		t.Fatalf("apply capped percentage failed: %v", err)
	}
	if !quote.Discount.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected capped discount 30, got %s", quote.Discount)
	}

	quote, err = env.coupons.ApplyCoupon("FLAT500", decimal.NewFromInt(120), 7)
	if err != nil {
		t.Fatalf("apply flat failed: %v", err)
	}
	if !quote.Discount.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("flat discount must not exceed cart total, got %s", quote.Discount)
	}
}

func TestCouponMarkUsedOnlyOnce(t *testing.T) {
	env := setupServiceTest(t)
	coupon := seedCoupon(t, env, "ONCE", constants.CouponTypeFlat, "10", nil)
	userCoupon := grantCoupon(t, env, 3, coupon.ID)

	if err := env.coupons.MarkUsed(userCoupon.ID, coupon.ID, 11); err != nil {
		t.Fatalf("first mark used failed: %v", err)
	}
	if err := env.coupons.MarkUsed(userCoupon.ID, coupon.ID, 12); !errors.Is(err, ErrCouponNotOwned) {
		t.Fatalf("expected ErrCouponNotOwned on reuse, got %v", err)
	}
	if _, err := env.coupons.ApplyCoupon("ONCE", decimal.NewFromInt(100), 3); !errors.Is(err, ErrCouponNotOwned) {
		t.Fatalf("used coupon must not apply again, got %v", err)
	}

	reloaded, err := env.couponRepo.GetByID(coupon.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("reload coupon failed: %v", err)
	}
	if reloaded.UsedCount != 1 {
		t.Fatalf("expected used_count 1, got %d", reloaded.UsedCount)
	}
}

func TestCreateCouponValidation(t *testing.T) {
	env := setupServiceTest(t)
	valid := func() *models.Coupon {
		return &models.Coupon{
			Code:      " SPRING ",
			Type:      "Percentage",
			Value:     models.MustMoney("15"),
			ExpiresAt: time.Now().Add(24 * time.Hour),
			IsActive:  true,
		}
	}
	cases := []struct {
		name   string
		mutate func(c *models.Coupon)
	}{
		{name: "zero max discount", mutate: func(c *models.Coupon) { c.MaxDiscount = models.MoneyPtr(models.MustMoney("0")) }},
		{name: "negative max discount", mutate: func(c *models.Coupon) { c.MaxDiscount = models.MoneyPtr(models.MustMoney("-5")) }},
		{name: "empty code", mutate: func(c *models.Coupon) { c.Code = "  " }},
		{name: "zero value", mutate: func(c *models.Coupon) { c.Value = models.MustMoney("0") }},
		{name: "percentage over 100", mutate: func(c *models.Coupon) { c.Value = models.MustMoney("120") }},
		{name: "unknown type", mutate: func(c *models.Coupon) { c.Type = "bogo" }},
		{name: "negative usage limit", mutate: func(c *models.Coupon) { c.UsageLimit = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			coupon := valid()
			tc.mutate(coupon)
			if err := env.coupons.CreateCoupon(coupon); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}

	coupon := valid()
	coupon.MaxDiscount = models.MoneyPtr(models.MustMoney("25"))
	if err := env.coupons.CreateCoupon(coupon); err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}
	if coupon.ID == 0 || coupon.Code != "SPRING" || coupon.Type != constants.CouponTypePercentage {
		t.Fatalf("coupon must be normalized and stored: %+v", coupon)
	}
	if err := env.coupons.CreateCoupon(valid()); !errors.Is(err, ErrCouponExists) {
		t.Fatalf("expected duplicate code rejection, got %v", err)
	}
}

func TestGrantCouponIsIdempotentUntilUsed(t *testing.T) {
	env := setupServiceTest(t)
	coupon := seedCoupon(t, env, "GIFT", constants.CouponTypeFlat, "10", nil)

	first, err := env.coupons.GrantCoupon(5, coupon.ID)
	if err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	again, err := env.coupons.GrantCoupon(5, coupon.ID)
	if err != nil || again.ID != first.ID {
		t.Fatalf("repeat grant must return the unused coupon %d, got %+v %v", first.ID, again, err)
	}
	if err := env.coupons.MarkUsed(first.ID, coupon.ID, 40); err != nil {
		t.Fatalf("mark used failed: %v", err)
	}
	fresh, err := env.coupons.GrantCoupon(5, coupon.ID)
	if err != nil || fresh.ID == first.ID {
		t.Fatalf("grant after use must issue a new coupon, got %+v %v", fresh, err)
	}
	if _, err := env.coupons.GrantCoupon(5, 9999); !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("expected coupon not found, got %v", err)
	}
}
