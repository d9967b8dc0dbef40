package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/models"
	"github.com/bazaar-next/internal/repository"
)

func seedGroupBuyProduct(t *testing.T, env *serviceTestEnv, minPeople int) *models.Product {
	t.Helper()
	shop := env.seedShop(t, 500)
	return env.seedProduct(t, shop.ID, "1000", 50, func(p *models.Product) {
		p.IsGroupBuy = true
		p.GroupBuyPrice = models.MoneyPtr(models.MustMoney("800"))
		p.GroupBuyMinPeople = &minPeople
	})
}

func TestGroupBuyStart(t *testing.T) {
	env := setupServiceTest(t)
	product := seedGroupBuyProduct(t, env, 3)
	plain := env.seedProduct(t, product.ShopID, "100", 5, nil)

	groupBuy, err := env.groupBuys.Start(context.Background(), product.ID, 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if groupBuy.Status != constants.GroupBuyStatusActive || groupBuy.CurrentPeople != 1 || groupBuy.RequiredPeople != 3 {
		t.Fatalf("unexpected group buy: %+v", groupBuy)
	}
	if groupBuy.GroupPrice.String() != "800.00" {
		t.Fatalf("expected group price 800, got %s", groupBuy.GroupPrice)
	}
	if !groupBuy.ExpiresAt.After(time.Now().Add(23 * time.Hour)) {
		t.Fatalf("expected default 24h window, got %s", groupBuy.ExpiresAt)
	}

	if _, err := env.groupBuys.Start(context.Background(), product.ID, 1); !errors.Is(err, ErrGroupBuyAlreadyActive) {
		t.Fatalf("expected already active, got %v", err)
	}
	if _, err := env.groupBuys.Start(context.Background(), plain.ID, 1); !errors.Is(err, ErrGroupBuyNotAllowed) {
		t.Fatalf("expected not allowed, got %v", err)
	}
	if _, err := env.groupBuys.Start(context.Background(), 9999, 1); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
}

func TestGroupBuyStartSinglePersonCompletesImmediately(t *testing.T) {
	env := setupServiceTest(t)
	product := seedGroupBuyProduct(t, env, 1)

	groupBuy, err := env.groupBuys.Start(context.Background(), product.ID, 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if groupBuy.Status != constants.GroupBuyStatusCompleted || groupBuy.CompletedAt == nil {
		t.Fatalf("expected completed group buy, got %s", groupBuy.Status)
	}
}

func TestGroupBuyJoinUntilFull(t *testing.T) {
	env := setupServiceTest(t)
	product := seedGroupBuyProduct(t, env, 3)
	groupBuy, err := env.groupBuys.Start(context.Background(), product.ID, 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	joined, err := env.groupBuys.Join(context.Background(), groupBuy.ID, 2)
	if err != nil {
		t.Fatalf("second join failed: %v", err)
	}
	if joined.CurrentPeople != 2 || joined.Status != constants.GroupBuyStatusActive {
		t.Fatalf("expected 2 active, got %d %s", joined.CurrentPeople, joined.Status)
	}
	if _, err := env.groupBuys.Join(context.Background(), groupBuy.ID, 2); !errors.Is(err, ErrGroupBuyAlreadyJoined) {
		t.Fatalf("expected already joined, got %v", err)
	}

	joined, err = env.groupBuys.Join(context.Background(), groupBuy.ID, 3)
	if err != nil {
		t.Fatalf("third join failed: %v", err)
	}
	if joined.CurrentPeople != 3 || joined.Status != constants.GroupBuyStatusCompleted || joined.CompletedAt == nil {
		t.Fatalf("expected completed with 3, got %d %s", joined.CurrentPeople, joined.Status)
	}
	if len(joined.Participants) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(joined.Participants))
	}

	if _, err := env.groupBuys.Join(context.Background(), groupBuy.ID, 4); !errors.Is(err, ErrGroupBuyFull) {
		t.Fatalf("expected full, got %v", err)
	}
	if _, err := env.groupBuys.Join(context.Background(), groupBuy.ID, 1); !errors.Is(err, ErrGroupBuyAlreadyJoined) {
		t.Fatalf("initiator should be reported as already joined, got %v", err)
	}
}

func TestGroupBuyJoinExpiredAndInactive(t *testing.T) {
	env := setupServiceTest(t)
	product := seedGroupBuyProduct(t, env, 3)
	now := time.Now().UTC()
	lapsed := &models.GroupBuy{
		ProductID:      product.ID,
		InitiatorID:    1,
		RequiredPeople: 3,
		CurrentPeople:  1,
		GroupPrice:     models.MustMoney("800"),
		Status:         constants.GroupBuyStatusActive,
		ExpiresAt:      now.Add(-time.Minute),
	}
	cancelled := &models.GroupBuy{
		ProductID:      product.ID,
		InitiatorID:    1,
		RequiredPeople: 3,
		CurrentPeople:  1,
		GroupPrice:     models.MustMoney("800"),
		Status:         constants.GroupBuyStatusCancelled,
		ExpiresAt:      now.Add(time.Hour),
	}
	for _, gb := range []*models.GroupBuy{lapsed, cancelled} {
		if err := env.groupBuyRepo.Create(gb); err != nil {
			t.Fatalf("create group buy failed: %v", err)
		}
	}

	if _, err := env.groupBuys.Join(context.Background(), lapsed.ID, 2); !errors.Is(err, ErrGroupBuyExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if _, err := env.groupBuys.Join(context.Background(), cancelled.ID, 2); !errors.Is(err, ErrGroupBuyNotActive) {
		t.Fatalf("expected not active, got %v", err)
	}
	if _, err := env.groupBuys.Join(context.Background(), 9999, 2); !errors.Is(err, ErrGroupBuyNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// staleGroupBuyRepository 首次读取返回少一人的旧快照
type staleGroupBuyRepository struct {
	*repository.GormGroupBuyRepository
	served bool
}

func (r *staleGroupBuyRepository) GetByID(id uint) (*models.GroupBuy, error) {
	groupBuy, err := r.GormGroupBuyRepository.GetByID(id)
	if err != nil || groupBuy == nil || r.served {
		return groupBuy, err
	}
	r.served = true
	snapshot := *groupBuy
	snapshot.CurrentPeople--
	snapshot.Status = constants.GroupBuyStatusActive
	snapshot.CompletedAt = nil
	return &snapshot, nil
}

func TestGroupBuyJoinLosesRaceReportsFull(t *testing.T) {
	env := setupServiceTest(t)
	product := seedGroupBuyProduct(t, env, 2)
	groupBuy, err := env.groupBuys.Start(context.Background(), product.ID, 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := env.groupBuys.Join(context.Background(), groupBuy.ID, 2); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	stale := &staleGroupBuyRepository{GormGroupBuyRepository: env.groupBuyRepo}
	svc := NewGroupBuyService(stale, env.productRepo, nil, env.metrics, 24, 2)
	if _, err := svc.Join(context.Background(), groupBuy.ID, 3); !errors.Is(err, ErrGroupBuyFull) {
		t.Fatalf("expected full after losing the race, got %v", err)
	}
	latest, err := env.groupBuys.GetGroupBuy(groupBuy.ID)
	if err != nil {
		t.Fatalf("get group buy failed: %v", err)
	}
	if latest.CurrentPeople != 2 || len(latest.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d/%d", latest.CurrentPeople, len(latest.Participants))
	}
}

func TestGroupBuyExpireDue(t *testing.T) {
	env := setupServiceTest(t)
	product := seedGroupBuyProduct(t, env, 3)
	open, err := env.groupBuys.Start(context.Background(), product.ID, 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	done := seedGroupBuyProduct(t, env, 1)
	completed, err := env.groupBuys.Start(context.Background(), done.ID, 1)
	if err != nil {
		t.Fatalf("start completed failed: %v", err)
	}

	count, err := env.groupBuys.ExpireDue(context.Background(), time.Now())
	if err != nil || count != 0 {
		t.Fatalf("nothing should expire yet, got %d %v", count, err)
	}

	later := time.Now().Add(25 * time.Hour)
	count, err = env.groupBuys.ExpireDue(context.Background(), later)
	if err != nil {
		t.Fatalf("expire due failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expired, got %d", count)
	}
	reloaded, _ := env.groupBuys.GetGroupBuy(open.ID)
	if reloaded.Status != constants.GroupBuyStatusExpired {
		t.Fatalf("expected expired, got %s", reloaded.Status)
	}
	reloaded, _ = env.groupBuys.GetGroupBuy(completed.ID)
	if reloaded.Status != constants.GroupBuyStatusCompleted {
		t.Fatalf("completed group buy must not expire, got %s", reloaded.Status)
	}

	expired, err := env.groupBuys.ExpireOne(context.Background(), open.ID, later)
	if err != nil || expired {
		t.Fatalf("second expiry must be a no-op, got %v %v", expired, err)
	}
}
