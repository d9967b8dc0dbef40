package service

import (
	"context"
	"time"

	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/logger"
	"github.com/bazaar-next/internal/metrics"
	"github.com/bazaar-next/internal/models"
	"github.com/bazaar-next/internal/queue"
	"github.com/bazaar-next/internal/repository"

	"gorm.io/gorm"
)

const groupBuySweepBatch = 100

// GroupBuyService 拼团服务
type GroupBuyService struct {
	groupBuyRepo     repository.GroupBuyRepository
	productRepo      repository.ProductRepository
	queueClient      *queue.Client
	metrics          *metrics.Metrics
	duration         time.Duration
	defaultMinPeople int
}

// NewGroupBuyService 创建拼团服务
func NewGroupBuyService(groupBuyRepo repository.GroupBuyRepository, productRepo repository.ProductRepository, queueClient *queue.Client, m *metrics.Metrics, durationHours, defaultMinPeople int) *GroupBuyService {
	if durationHours <= 0 {
		durationHours = constants.DefaultGroupBuyDurationHours
	}
	if defaultMinPeople <= 0 {
		defaultMinPeople = constants.DefaultGroupBuyMinPeople
	}
	return &GroupBuyService{
		groupBuyRepo:     groupBuyRepo,
		productRepo:      productRepo,
		queueClient:      queueClient,
		metrics:          m,
		duration:         time.Duration(durationHours) * time.Hour,
		defaultMinPeople: defaultMinPeople,
	}
}

// Start 发起拼团，发起人自动成为第一位成员
func (s *GroupBuyService) Start(ctx context.Context, productID, userID uint) (*models.GroupBuy, error) {
	if productID == 0 || userID == 0 {
		return nil, ErrInvalidInput
	}
	product, err := s.productRepo.GetByID(productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	if !product.IsGroupBuy || !product.IsActive {
		s.metrics.GroupBuyEvent("start", "not_allowed")
		return nil, ErrGroupBuyNotAllowed
	}
	now := time.Now().UTC()
	active, err := s.groupBuyRepo.HasActiveParticipation(userID, productID, now)
	if err != nil {
		return nil, err
	}
	if active {
		s.metrics.GroupBuyEvent("start", "already_active")
		return nil, ErrGroupBuyAlreadyActive
	}

	required := s.defaultMinPeople
	if product.GroupBuyMinPeople != nil && *product.GroupBuyMinPeople > 0 {
		required = *product.GroupBuyMinPeople
	}
	price := product.Price
	if product.GroupBuyPrice != nil {
		price = *product.GroupBuyPrice
	}
	groupBuy := &models.GroupBuy{
		ProductID:      productID,
		InitiatorID:    userID,
		RequiredPeople: required,
		CurrentPeople:  1,
		GroupPrice:     price,
		Status:         constants.GroupBuyStatusActive,
		ExpiresAt:      now.Add(s.duration),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if required <= 1 {
		groupBuy.Status = constants.GroupBuyStatusCompleted
		groupBuy.CompletedAt = &now
	}
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		repo := s.groupBuyRepo.WithTx(tx)
		if err := repo.Create(groupBuy); err != nil {
			return err
		}
		participant := models.GroupBuyParticipant{GroupBuyID: groupBuy.ID, UserID: userID, CreatedAt: now}
		if err := repo.AddParticipant(&participant); err != nil {
			return err
		}
		groupBuy.Participants = []models.GroupBuyParticipant{participant}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.GroupBuyEvent("start", "success")

	if groupBuy.Status == constants.GroupBuyStatusActive && s.queueClient.Enabled() {
		if err := s.queueClient.EnqueueGroupBuyExpire(queue.GroupBuyExpirePayload{GroupBuyID: groupBuy.ID}, groupBuy.ExpiresAt); err != nil {
			logger.FromContext(ctx).Warnw("group_buy_expire_enqueue_failed", "group_buy_id", groupBuy.ID, "error", err)
		}
	}
	return groupBuy, nil
}

// Join 参团；人数自增与成团判定在同一条条件更新内完成
func (s *GroupBuyService) Join(ctx context.Context, groupBuyID, userID uint) (*models.GroupBuy, error) {
	if groupBuyID == 0 || userID == 0 {
		return nil, ErrInvalidInput
	}
	groupBuy, err := s.groupBuyRepo.GetByID(groupBuyID)
	if err != nil {
		return nil, err
	}
	if groupBuy == nil {
		return nil, ErrGroupBuyNotFound
	}
	now := time.Now().UTC()
	if err := checkJoinable(groupBuy, userID, now); err != nil {
		s.metrics.GroupBuyEvent("join", joinResultLabel(err))
		return nil, err
	}

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		repo := s.groupBuyRepo.WithTx(tx)
		affected, err := repo.IncrementPeople(groupBuyID, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrConflict
		}
		return repo.AddParticipant(&models.GroupBuyParticipant{GroupBuyID: groupBuyID, UserID: userID, CreatedAt: now})
	})
	if err != nil {
		err = s.explainJoinFailure(groupBuyID, userID, now, err)
		s.metrics.GroupBuyEvent("join", joinResultLabel(err))
		return nil, err
	}

	updated, err := s.groupBuyRepo.GetByID(groupBuyID)
	if err != nil {
		return nil, err
	}
	if updated.Status == constants.GroupBuyStatusCompleted {
		s.metrics.GroupBuyEvent("complete", "success")
		logger.FromContext(ctx).Infow("group_buy_completed",
			"group_buy_id", updated.ID,
			"product_id", updated.ProductID,
			"participants", updated.CurrentPeople,
		)
	}
	s.metrics.GroupBuyEvent("join", "success")
	return updated, nil
}

// checkJoinable 按 不可参团 -> 已过期 -> 已参团 -> 已满 的顺序校验
func checkJoinable(groupBuy *models.GroupBuy, userID uint, now time.Time) error {
	if groupBuy.Status == constants.GroupBuyStatusExpired || groupBuy.Status == constants.GroupBuyStatusCancelled {
		return ErrGroupBuyNotActive
	}
	if groupBuy.ExpiresAt.Before(now) {
		return ErrGroupBuyExpired
	}
	for _, participant := range groupBuy.Participants {
		if participant.UserID == userID {
			return ErrGroupBuyAlreadyJoined
		}
	}
	if groupBuy.Status == constants.GroupBuyStatusCompleted || groupBuy.CurrentPeople >= groupBuy.RequiredPeople {
		return ErrGroupBuyFull
	}
	if groupBuy.Status != constants.GroupBuyStatusActive {
		return ErrGroupBuyNotActive
	}
	return nil
}

// explainJoinFailure 条件更新失败或唯一索引冲突后，重新读取以给出准确原因
func (s *GroupBuyService) explainJoinFailure(groupBuyID, userID uint, now time.Time, cause error) error {
	exists, err := s.groupBuyRepo.ParticipantExists(groupBuyID, userID)
	if err == nil && exists {
		return ErrGroupBuyAlreadyJoined
	}
	latest, err := s.groupBuyRepo.GetByID(groupBuyID)
	if err != nil || latest == nil {
		return cause
	}
	if joinErr := checkJoinable(latest, userID, now); joinErr != nil {
		return joinErr
	}
	return cause
}

func joinResultLabel(err error) string {
	switch err {
	case nil:
		return "success"
	case ErrGroupBuyNotActive:
		return "not_active"
	case ErrGroupBuyExpired:
		return "expired"
	case ErrGroupBuyAlreadyJoined:
		return "already_joined"
	case ErrGroupBuyFull:
		return "full"
	case ErrConflict:
		return "conflict"
	}
	return "error"
}

// ExpireDue 将到期仍未成团的拼团批量置为过期，返回处理数量
func (s *GroupBuyService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	expired := 0
	for {
		due, err := s.groupBuyRepo.ListExpiredActive(now, groupBuySweepBatch)
		if err != nil {
			return expired, err
		}
		if len(due) == 0 {
			return expired, nil
		}
		progressed := false
		for _, groupBuy := range due {
			affected, err := s.groupBuyRepo.MarkExpired(groupBuy.ID, now)
			if err != nil {
				return expired, err
			}
			if affected > 0 {
				expired++
				progressed = true
				s.metrics.GroupBuyEvent("expire", "success")
				logger.FromContext(ctx).Infow("group_buy_expired",
					"group_buy_id", groupBuy.ID,
					"participants", groupBuy.CurrentPeople,
					"required", groupBuy.RequiredPeople,
				)
			}
		}
		if !progressed || len(due) < groupBuySweepBatch {
			return expired, nil
		}
	}
}

// ExpireOne 处理单个拼团到期任务，未到期或已结束时不做任何事
func (s *GroupBuyService) ExpireOne(ctx context.Context, groupBuyID uint, now time.Time) (bool, error) {
	if groupBuyID == 0 {
		return false, ErrInvalidInput
	}
	affected, err := s.groupBuyRepo.MarkExpired(groupBuyID, now.UTC())
	if err != nil {
		return false, err
	}
	if affected > 0 {
		s.metrics.GroupBuyEvent("expire", "success")
		logger.FromContext(ctx).Infow("group_buy_expired", "group_buy_id", groupBuyID)
	}
	return affected > 0, nil
}

// GetGroupBuy 获取拼团详情
func (s *GroupBuyService) GetGroupBuy(groupBuyID uint) (*models.GroupBuy, error) {
	groupBuy, err := s.groupBuyRepo.GetByID(groupBuyID)
	if err != nil {
		return nil, err
	}
	if groupBuy == nil {
		return nil, ErrGroupBuyNotFound
	}
	return groupBuy, nil
}
