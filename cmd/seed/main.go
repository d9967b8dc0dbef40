package main

import (
	"flag"
	"time"

	"github.com/bazaar-next/internal/app"
	"github.com/bazaar-next/internal/config"
	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/logger"
	"github.com/bazaar-next/internal/models"
	"github.com/bazaar-next/internal/repository"
	"github.com/bazaar-next/internal/service"

	"gorm.io/gorm"
)

func main() {
	var ownerID, buyerID uint
	flag.UintVar(&ownerID, "owner", 1, "店主用户ID")
	flag.UintVar(&buyerID, "buyer", 2, "示例买家用户ID，同时为其签发开发令牌")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	log := logger.S()

	if err := app.InitDatabase(cfg); err != nil {
		log.Fatalw("seed_database_init_failed", "error", err)
	}

	now := time.Now()
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		shop := models.Shop{OwnerID: ownerID, Name: "Osh Bazaar", IsActive: true}
		if err := tx.Where(models.Shop{OwnerID: ownerID, Name: shop.Name}).FirstOrCreate(&shop).Error; err != nil {
			return err
		}

		flashEnds := now.Add(24 * time.Hour)
		minPeople := 3
		products := []models.Product{
			{
				ShopID: shop.ID, Title: "Chapan Jacket", Price: models.MustMoney("120.00"),
				Stock: 50, IsActive: true,
			},
			{
				ShopID: shop.ID, Title: "Kalpak Hat", Price: models.MustMoney("40.00"),
				Stock: 100, IsActive: true,
				IsFlashSale: true, FlashSalePrice: models.MoneyPtr(models.MustMoney("25.00")), FlashSaleEndsAt: &flashEnds,
			},
			{
				ShopID: shop.ID, Title: "Felt Carpet", Price: models.MustMoney("300.00"),
				Stock: 20, IsActive: true,
				IsGroupBuy: true, GroupBuyPrice: models.MoneyPtr(models.MustMoney("240.00")), GroupBuyMinPeople: &minPeople,
			},
		}
		for i := range products {
			if err := tx.Where(models.Product{ShopID: shop.ID, Title: products[i].Title}).
				Attrs(products[i]).FirstOrCreate(&products[i]).Error; err != nil {
				return err
			}
			log.Infow("seed_product", "id", products[i].ID, "title", products[i].Title)
		}

		sale := models.FlashSale{
			ProductID:     products[1].ID,
			SalePrice:     models.MustMoney("25.00"),
			OriginalPrice: models.MustMoney("40.00"),
			Stock:         30,
			StartsAt:      now,
			EndsAt:        flashEnds,
			IsActive:      true,
		}
		if err := tx.Where(models.FlashSale{ProductID: sale.ProductID}).Attrs(sale).FirstOrCreate(&sale).Error; err != nil {
			return err
		}
		log.Infow("seed_flash_sale", "id", sale.ID, "product_id", sale.ProductID)

		coupons := []models.Coupon{
			{
				Code: "WELCOME10", Type: constants.CouponTypePercentage, Value: models.MustMoney("10"),
				MaxDiscount: models.MoneyPtr(models.MustMoney("50.00")), ExpiresAt: now.AddDate(0, 1, 0), IsActive: true,
			},
			{
				Code: "MINUS20", Type: constants.CouponTypeFlat, Value: models.MustMoney("20.00"),
				MinPurchase: models.MustMoney("100.00"), ExpiresAt: now.AddDate(0, 1, 0), UsageLimit: 100, IsActive: true,
			},
		}
		couponRepo := repository.NewCouponRepository(tx)
		couponService := service.NewCouponService(couponRepo)
		for i := range coupons {
			coupon := &coupons[i]
			existing, err := couponRepo.GetByCode(coupon.Code)
			if err != nil {
				return err
			}
			if existing != nil {
				coupon = existing
			} else if err := couponService.CreateCoupon(coupon); err != nil {
				return err
			}
			owned, err := couponService.GrantCoupon(buyerID, coupon.ID)
			if err != nil {
				return err
			}
			log.Infow("seed_coupon", "code", coupon.Code, "user_id", buyerID, "user_coupon_id", owned.ID)
		}
		return nil
	})
	if err != nil {
		log.Fatalw("seed_failed", "error", err)
	}

	token, expiresAt, err := service.IssueUserToken(cfg.UserJWT, buyerID)
	if err != nil {
		log.Warnw("seed_token_issue_failed", "error", err)
		return
	}
	log.Infow("seed_done", "buyer_id", buyerID, "token", token, "expires_at", expiresAt)
}
