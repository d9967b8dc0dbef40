package odengi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/payment"
)

// SecretHeader 回调共享密钥头
const SecretHeader = "X-Odengi-Secret"

// Config O!Dengi 配置
type Config struct {
	Secret string
}

// Data 回调数据体
type Data struct {
	Status string      `json:"status"`
	Amount json.Number `json:"amount"`
}

// Event O!Dengi 回调事件
type Event struct {
	InvoiceID string                 `json:"invoice_id"`
	Data      Data                   `json:"data"`
	Raw       map[string]interface{} `json:"-"`
}

// Provider 提供方名称
func (e *Event) Provider() string { return constants.PaymentProviderOdengi }

// ProviderID 外部交易号
func (e *Event) ProviderID() string { return e.InvoiceID }

// RawStatus 原始状态
func (e *Event) RawStatus() string { return e.Data.Status }

// Outcome 归一化结果
func (e *Event) Outcome() payment.Outcome { return Normalize(e.Data.Status) }

// Payload 原始报文
func (e *Event) Payload() map[string]interface{} { return e.Raw }

// Normalize O!Dengi 状态映射（小写）
func Normalize(status string) payment.Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "paid":
		return payment.Completed()
	case "failed", "canceled", "cancelled", "expired":
		return payment.Failed()
	case "pending", "processing":
		return payment.InProgress()
	}
	return payment.Unrecognized()
}

// Adapter O!Dengi 回调适配器
type Adapter struct {
	cfg Config
}

// New 创建适配器
func New(cfg Config) *Adapter {
	cfg.Secret = strings.TrimSpace(cfg.Secret)
	return &Adapter{cfg: cfg}
}

// Name 提供方名称
func (a *Adapter) Name() string { return constants.PaymentProviderOdengi }

// Parse 校验共享密钥后解析回调
func (a *Adapter) Parse(headers http.Header, body []byte) (payment.Event, error) {
	provided := strings.TrimSpace(headers.Get(SecretHeader))
	if a.cfg.Secret == "" || provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(a.cfg.Secret)) != 1 {
		return nil, payment.ErrSignatureInvalid
	}
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrPayloadInvalid, err)
	}
	event.InvoiceID = strings.TrimSpace(event.InvoiceID)
	if event.InvoiceID == "" {
		return nil, fmt.Errorf("%w: invoice_id is required", payment.ErrPayloadInvalid)
	}
	if err := json.Unmarshal(body, &event.Raw); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrPayloadInvalid, err)
	}
	return &event, nil
}
