// Package payment 定义支付回调的统一事件模型，各提供方在子包内实现验签与状态归一
package payment

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/bazaar-next/internal/constants"
)

var (
	ErrSignatureInvalid = errors.New("payment webhook signature invalid")
	ErrPayloadInvalid   = errors.New("payment webhook payload invalid")
	ErrProviderUnknown  = errors.New("payment provider not supported")
)

// Outcome 归一化后的支付状态与订单目标状态
type Outcome struct {
	PaymentStatus string `json:"payment_status"`
	OrderStatus   string `json:"order_status"`
}

// Completed 支付成功
func Completed() Outcome {
	return Outcome{PaymentStatus: constants.PaymentStatusCompleted, OrderStatus: constants.OrderStatusPaid}
}

// Failed 支付失败、取消或过期
func Failed() Outcome {
	return Outcome{PaymentStatus: constants.PaymentStatusFailed, OrderStatus: constants.OrderStatusPaymentFailed}
}

// InProgress 支付处理中
func InProgress() Outcome {
	return Outcome{PaymentStatus: constants.PaymentStatusProcessing, OrderStatus: constants.OrderStatusAwaitingPayment}
}

// Unrecognized 未识别的状态
func Unrecognized() Outcome {
	return Outcome{PaymentStatus: constants.PaymentStatusPending, OrderStatus: constants.OrderStatusAwaitingPayment}
}

// Event 提供方回调事件
type Event interface {
	Provider() string
	ProviderID() string
	RawStatus() string
	Outcome() Outcome
	Payload() map[string]interface{}
}

// Adapter 验签并解析某个提供方的回调
type Adapter interface {
	Name() string
	Parse(headers http.Header, body []byte) (Event, error)
}

// Registry 按名称索引的提供方集合
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry 创建提供方注册表，nil 项忽略
func NewRegistry(adapters ...Adapter) *Registry {
	registry := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		registry.adapters[strings.ToLower(adapter.Name())] = adapter
	}
	return registry
}

// Get 获取提供方
func (r *Registry) Get(name string) (Adapter, error) {
	if r == nil {
		return nil, ErrProviderUnknown
	}
	adapter, ok := r.adapters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnknown, name)
	}
	return adapter, nil
}

// Names 已注册的提供方名称（有序）
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
