package worker

import (
	"context"
	"errors"
	"time"

	"github.com/bazaar-next/internal/config"
	"github.com/bazaar-next/internal/logger"
	"github.com/bazaar-next/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	defaultSweepInterval = time.Minute
	groupBuySweepJob     = "group_buy:sweep"
)

// Service 异步队列服务
type Service struct {
	name          string
	server        *asynq.Server
	mux           *asynq.ServeMux
	consumer      *Consumer
	sweepInterval time.Duration
}

// NewService 创建异步队列服务
func NewService(cfg *config.Config, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Queue.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(&cfg.Queue)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:          "worker",
		server:        server,
		mux:           mux,
		consumer:      consumer,
		sweepInterval: sweepInterval(cfg.GroupBuy),
	}, nil
}

func sweepInterval(cfg config.GroupBuyConfig) time.Duration {
	if cfg.SweepIntervalSeconds <= 0 {
		return defaultSweepInterval
	}
	return time.Duration(cfg.SweepIntervalSeconds) * time.Second
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	if s.consumer != nil && s.consumer.GroupBuyService != nil {
		go s.runGroupBuySweepLoop(ctx)
	}
	// 信号由 app.Runner 统一处理，这里只等待停机
	<-ctx.Done()
	return nil
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.server.Shutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runGroupBuySweepLoop 兜底清理到期拼团，覆盖延迟任务丢失的情况
func (s *Service) runGroupBuySweepLoop(ctx context.Context) {
	if s == nil || s.consumer == nil {
		return
	}
	s.consumer.sweepGroupBuys(ctx)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.consumer.sweepGroupBuys(ctx)
		}
	}
}

// sweepGroupBuys 执行一轮到期拼团清理
func (c *Consumer) sweepGroupBuys(ctx context.Context) int {
	if c == nil || c.Container == nil || c.GroupBuyService == nil {
		return 0
	}
	start := time.Now()
	expired, err := c.GroupBuyService.ExpireDue(ctx, c.now())
	c.Metrics.ObserveJob(groupBuySweepJob, time.Since(start), err)
	if err != nil {
		logger.Warnw("worker_group_buy_sweep_failed", "error", err)
		return expired
	}
	if expired > 0 {
		logger.Infow("worker_group_buy_sweep_expired", "count", expired)
	}
	return expired
}
