package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bazaar-next/internal/config"
	"github.com/bazaar-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 高优先级队列
	CriticalQueue = constants.QueueCritical
)

// Client 队列客户端封装，未启用时所有投递均为空操作
type Client struct {
	client       *asynq.Client
	enabled      bool
	defaultQueue string
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false, defaultQueue: DefaultQueue}, nil
	}
	return &Client{
		client:       asynq.NewClient(buildRedisOpt(cfg)),
		enabled:      true,
		defaultQueue: DefaultQueue,
	}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueOrderTimeoutCancel 推送订单超时取消任务
func (c *Client) EnqueueOrderTimeoutCancel(payload OrderTimeoutCancelPayload, delay time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	if delay < 0 {
		delay = 0
	}
	task, err := NewOrderTimeoutCancelTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.Enqueue(task,
		asynq.Queue(CriticalQueue),
		asynq.ProcessIn(delay),
		asynq.TaskID(fmt.Sprintf("%s:%d", TaskOrderTimeoutCancel, payload.OrderID)),
	)
	return ignoreDuplicate(err)
}

// EnqueueOrderStatusChanged 推送订单状态通知任务
func (c *Client) EnqueueOrderStatusChanged(payload OrderStatusChangedPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewOrderStatusChangedTask(payload)
	if err != nil {
		return err
	}
	options := append([]asynq.Option{asynq.Queue(c.defaultQueue), asynq.MaxRetry(5)}, opts...)
	_, err = c.client.Enqueue(task, options...)
	return err
}

// EnqueueGroupBuyExpire 在拼团到期时刻推送到期任务
func (c *Client) EnqueueGroupBuyExpire(payload GroupBuyExpirePayload, at time.Time) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewGroupBuyExpireTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.Enqueue(task,
		asynq.Queue(c.defaultQueue),
		asynq.ProcessAt(at),
		asynq.TaskID(fmt.Sprintf("%s:%d", TaskGroupBuyExpire, payload.GroupBuyID)),
	)
	return ignoreDuplicate(err)
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 10
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{CriticalQueue: 2, DefaultQueue: 1}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func ignoreDuplicate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
