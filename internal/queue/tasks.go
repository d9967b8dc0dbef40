package queue

import (
	"encoding/json"
	"fmt"

	"github.com/bazaar-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskOrderTimeoutCancel 待支付订单超时取消
	TaskOrderTimeoutCancel = constants.TaskOrderTimeoutCancel
	// TaskOrderStatusChanged 订单状态变更通知
	TaskOrderStatusChanged = constants.TaskOrderStatusChanged
	// TaskGroupBuyExpire 拼团到期处理
	TaskGroupBuyExpire = constants.TaskGroupBuyExpire
)

// OrderTimeoutCancelPayload 超时取消任务载荷
type OrderTimeoutCancelPayload struct {
	OrderID uint `json:"order_id"`
}

// OrderStatusChangedPayload 订单状态变更通知载荷
type OrderStatusChangedPayload struct {
	OrderID    uint   `json:"order_id"`
	OrderNo    string `json:"order_no"`
	UserID     uint   `json:"user_id"`
	ShopID     uint   `json:"shop_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
}

// GroupBuyExpirePayload 拼团到期任务载荷
type GroupBuyExpirePayload struct {
	GroupBuyID uint `json:"group_buy_id"`
}

// NewOrderTimeoutCancelTask 创建超时取消任务
func NewOrderTimeoutCancelTask(payload OrderTimeoutCancelPayload) (*asynq.Task, error) {
	return newJSONTask(TaskOrderTimeoutCancel, payload)
}

// NewOrderStatusChangedTask 创建订单状态通知任务
func NewOrderStatusChangedTask(payload OrderStatusChangedPayload) (*asynq.Task, error) {
	return newJSONTask(TaskOrderStatusChanged, payload)
}

// NewGroupBuyExpireTask 创建拼团到期任务
func NewGroupBuyExpireTask(payload GroupBuyExpirePayload) (*asynq.Task, error) {
	return newJSONTask(TaskGroupBuyExpire, payload)
}

// DecodePayload 解析任务载荷
func DecodePayload(task *asynq.Task, target interface{}) error {
	if task == nil {
		return fmt.Errorf("task is nil")
	}
	if err := json.Unmarshal(task.Payload(), target); err != nil {
		return fmt.Errorf("decode %s payload: %w", task.Type(), err)
	}
	return nil
}

func newJSONTask(taskType string, payload interface{}) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body), nil
}
