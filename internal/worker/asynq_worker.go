package worker

import (
	"context"
	"errors"
	"time"

	"github.com/bazaar-next/internal/logger"
	"github.com/bazaar-next/internal/provider"
	"github.com/bazaar-next/internal/queue"
	"github.com/bazaar-next/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
	now func() time.Time
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
		now:       time.Now,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOrderTimeoutCancel, c.observe(queue.TaskOrderTimeoutCancel, c.handleOrderTimeoutCancel))
	mux.HandleFunc(queue.TaskGroupBuyExpire, c.observe(queue.TaskGroupBuyExpire, c.handleGroupBuyExpire))
	mux.HandleFunc(queue.TaskOrderStatusChanged, c.observe(queue.TaskOrderStatusChanged, c.handleOrderStatusChanged))
}

// observe 记录任务耗时与结果
func (c *Consumer) observe(job string, handler func(context.Context, *asynq.Task) error) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		start := time.Now()
		err := handler(ctx, task)
		if c != nil && c.Container != nil {
			c.Metrics.ObserveJob(job, time.Since(start), err)
		}
		return err
	}
}

func (c *Consumer) handleOrderTimeoutCancel(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_timeout_cancel_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderTimeoutCancelPayload
	if err := queue.DecodePayload(task, &payload); err != nil {
		logger.Warnw("worker_order_timeout_cancel_unmarshal_failed", "error", err)
		return errors.Join(err, asynq.SkipRetry)
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_order_timeout_cancel_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.OrderStatusService == nil {
		logger.Warnw("worker_order_timeout_cancel_skip_service_nil", "order_id", payload.OrderID)
		return nil
	}
	cancelled, err := c.OrderStatusService.CancelExpiredOrder(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			logger.Debugw("worker_order_timeout_cancel_skip_order_not_found", "order_id", payload.OrderID)
			return nil
		}
		logger.Warnw("worker_order_timeout_cancel_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	if cancelled {
		logger.Infow("worker_order_timeout_cancelled", "order_id", payload.OrderID)
	}
	return nil
}

func (c *Consumer) handleGroupBuyExpire(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_group_buy_expire_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.GroupBuyExpirePayload
	if err := queue.DecodePayload(task, &payload); err != nil {
		logger.Warnw("worker_group_buy_expire_unmarshal_failed", "error", err)
		return errors.Join(err, asynq.SkipRetry)
	}
	if payload.GroupBuyID == 0 || c.GroupBuyService == nil {
		logger.Debugw("worker_group_buy_expire_skip", "group_buy_id", payload.GroupBuyID)
		return nil
	}
	expired, err := c.GroupBuyService.ExpireOne(ctx, payload.GroupBuyID, c.now())
	if err != nil {
		logger.Warnw("worker_group_buy_expire_failed", "group_buy_id", payload.GroupBuyID, "error", err)
		return err
	}
	if expired {
		logger.Infow("worker_group_buy_expired", "group_buy_id", payload.GroupBuyID)
	}
	return nil
}

// handleOrderStatusChanged 状态通知目前只落日志，供下游订阅方接入
func (c *Consumer) handleOrderStatusChanged(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.OrderStatusChangedPayload
	if err := queue.DecodePayload(task, &payload); err != nil {
		logger.Warnw("worker_order_status_changed_unmarshal_failed", "error", err)
		return errors.Join(err, asynq.SkipRetry)
	}
	logger.Infow("worker_order_status_changed",
		"order_id", payload.OrderID,
		"order_no", payload.OrderNo,
		"user_id", payload.UserID,
		"shop_id", payload.ShopID,
		"from", payload.FromStatus,
		"to", payload.ToStatus,
	)
	return nil
}
