package mbank

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/payment"
)

// SignatureHeader 回调签名头，值为 body 的 HMAC-SHA256 十六进制
const SignatureHeader = "X-Mbank-Signature"

// Config Mbank 配置
type Config struct {
	Secret string
}

// Event Mbank 回调事件
type Event struct {
	TransactionID string                 `json:"transaction_id"`
	Status        string                 `json:"status"`
	Amount        json.Number            `json:"amount"`
	Raw           map[string]interface{} `json:"-"`
}

// Provider 提供方名称
func (e *Event) Provider() string { return constants.PaymentProviderMbank }

// ProviderID 外部交易号
func (e *Event) ProviderID() string { return e.TransactionID }

// RawStatus 原始状态
func (e *Event) RawStatus() string { return e.Status }

// Outcome 归一化结果
func (e *Event) Outcome() payment.Outcome { return Normalize(e.Status) }

// Payload 原始报文
func (e *Event) Payload() map[string]interface{} { return e.Raw }

// Normalize Mbank 状态映射
func Normalize(status string) payment.Outcome {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SUCCESS":
		return payment.Completed()
	case "FAILED", "CANCELLED", "EXPIRED":
		return payment.Failed()
	case "PENDING", "PROCESSING":
		return payment.InProgress()
	}
	return payment.Unrecognized()
}

// Adapter Mbank 回调适配器
type Adapter struct {
	cfg Config
}

// New 创建适配器
func New(cfg Config) *Adapter {
	cfg.Secret = strings.TrimSpace(cfg.Secret)
	return &Adapter{cfg: cfg}
}

// Name 提供方名称
func (a *Adapter) Name() string { return constants.PaymentProviderMbank }

// Parse 验签后解析回调
func (a *Adapter) Parse(headers http.Header, body []byte) (payment.Event, error) {
	if err := a.verify(headers.Get(SignatureHeader), body); err != nil {
		return nil, err
	}
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrPayloadInvalid, err)
	}
	event.TransactionID = strings.TrimSpace(event.TransactionID)
	if event.TransactionID == "" {
		return nil, fmt.Errorf("%w: transaction_id is required", payment.ErrPayloadInvalid)
	}
	if err := json.Unmarshal(body, &event.Raw); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrPayloadInvalid, err)
	}
	return &event, nil
}

func (a *Adapter) verify(signature string, body []byte) error {
	signature = strings.TrimSpace(signature)
	if a.cfg.Secret == "" || signature == "" {
		return payment.ErrSignatureInvalid
	}
	expected, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return payment.ErrSignatureInvalid
	}
	if !hmac.Equal(expected, Sign(a.cfg.Secret, body)) {
		return payment.ErrSignatureInvalid
	}
	return nil
}

// Sign 计算报文签名
func Sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
