package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/models"

	"gorm.io/gorm"
)

// GroupBuyRepository 拼团数据访问接口
type GroupBuyRepository interface {
	Create(groupBuy *models.GroupBuy) error
	GetByID(id uint) (*models.GroupBuy, error)
	List(filter GroupBuyListFilter) ([]models.GroupBuy, error)
	HasActiveParticipation(userID, productID uint, now time.Time) (bool, error)
	ParticipantExists(groupBuyID, userID uint) (bool, error)
	AddParticipant(participant *models.GroupBuyParticipant) error
	IncrementPeople(id uint, now time.Time) (int64, error)
	ListExpiredActive(now time.Time, limit int) ([]models.GroupBuy, error)
	MarkExpired(id uint, now time.Time) (int64, error)
	WithTx(tx *gorm.DB) *GormGroupBuyRepository
}

// GormGroupBuyRepository GORM 实现
type GormGroupBuyRepository struct {
	db *gorm.DB
}

// NewGroupBuyRepository 创建拼团仓库
func NewGroupBuyRepository(db *gorm.DB) *GormGroupBuyRepository {
	return &GormGroupBuyRepository{db: db}
}

// WithTx 绑定事务
func (r *GormGroupBuyRepository) WithTx(tx *gorm.DB) *GormGroupBuyRepository {
	if tx == nil {
		return r
	}
	return &GormGroupBuyRepository{db: tx}
}

// Create 创建拼团
func (r *GormGroupBuyRepository) Create(groupBuy *models.GroupBuy) error {
	return r.db.Create(groupBuy).Error
}

// GetByID 获取拼团
func (r *GormGroupBuyRepository) GetByID(id uint) (*models.GroupBuy, error) {
	var groupBuy models.GroupBuy
	if err := r.db.Preload("Participants").First(&groupBuy, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &groupBuy, nil
}

// List 拼团列表
func (r *GormGroupBuyRepository) List(filter GroupBuyListFilter) ([]models.GroupBuy, error) {
	query := r.db.Model(&models.GroupBuy{})
	if filter.ProductID != 0 {
		query = query.Where("product_id = ?", filter.ProductID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var groupBuys []models.GroupBuy
	if err := query.Order("id desc").Find(&groupBuys).Error; err != nil {
		return nil, err
	}
	return groupBuys, nil
}

// HasActiveParticipation 用户是否已在该商品的进行中拼团内
func (r *GormGroupBuyRepository) HasActiveParticipation(userID, productID uint, now time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&models.GroupBuyParticipant{}).
		Joins("JOIN group_buys ON group_buys.id = group_buy_participants.group_buy_id").
		Where("group_buy_participants.user_id = ? AND group_buys.product_id = ? AND group_buys.status = ? AND group_buys.expires_at > ?",
			userID, productID, constants.GroupBuyStatusActive, now).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ParticipantExists 判断是否已参团
func (r *GormGroupBuyRepository) ParticipantExists(groupBuyID, userID uint) (bool, error) {
	var count int64
	if err := r.db.Model(&models.GroupBuyParticipant{}).
		Where("group_buy_id = ? AND user_id = ?", groupBuyID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddParticipant 新增参团成员
func (r *GormGroupBuyRepository) AddParticipant(participant *models.GroupBuyParticipant) error {
	return r.db.Create(participant).Error
}

// IncrementPeople 人数条件自增，满员时同一语句内置为已成团
func (r *GormGroupBuyRepository) IncrementPeople(id uint, now time.Time) (int64, error) {
	if id == 0 {
		return 0, errors.New("invalid group buy id")
	}
	filled := "current_people + 1 >= required_people"
	result := r.db.Model(&models.GroupBuy{}).
		Where("id = ? AND status = ? AND current_people < required_people AND expires_at > ?", id, constants.GroupBuyStatusActive, now).
		Updates(map[string]interface{}{
			"current_people": gorm.Expr("current_people + 1"),
			"status":         gorm.Expr("CASE WHEN "+filled+" THEN ? ELSE status END", constants.GroupBuyStatusCompleted),
			"completed_at":   gorm.Expr("CASE WHEN "+filled+" THEN ? ELSE completed_at END", now),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListExpiredActive 获取已过期但仍处于进行中的拼团
func (r *GormGroupBuyRepository) ListExpiredActive(now time.Time, limit int) ([]models.GroupBuy, error) {
	query := r.db.Where("status = ? AND expires_at <= ?", constants.GroupBuyStatusActive, now).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var groupBuys []models.GroupBuy
	if err := query.Find(&groupBuys).Error; err != nil {
		return nil, err
	}
	return groupBuys, nil
}

// MarkExpired 将进行中的拼团置为过期
func (r *GormGroupBuyRepository) MarkExpired(id uint, now time.Time) (int64, error) {
	result := r.db.Model(&models.GroupBuy{}).
		Where("id = ? AND status = ? AND expires_at <= ?", id, constants.GroupBuyStatusActive, now).
		Update("status", constants.GroupBuyStatusExpired)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
