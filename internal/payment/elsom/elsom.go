package elsom

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/payment"
)

// Config Elsom 配置
type Config struct {
	Secret string
}

// Event Elsom 回调事件，签名字段 Sign = md5(PartnerTrnID + Status + secret)
type Event struct {
	PartnerTrnID string                 `json:"PartnerTrnID"`
	Status       string                 `json:"Status"`
	Amount       json.Number            `json:"Amount"`
	Sign         string                 `json:"Sign"`
	Raw          map[string]interface{} `json:"-"`
}

// Provider 提供方名称
func (e *Event) Provider() string { return constants.PaymentProviderElsom }

// ProviderID 外部交易号
func (e *Event) ProviderID() string { return e.PartnerTrnID }

// RawStatus 原始状态
func (e *Event) RawStatus() string { return e.Status }

// Outcome 归一化结果
func (e *Event) Outcome() payment.Outcome { return Normalize(e.Status) }

// Payload 原始报文
func (e *Event) Payload() map[string]interface{} { return e.Raw }

// Normalize Elsom 状态映射
func Normalize(status string) payment.Outcome {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PAID":
		return payment.Completed()
	case "CANCELLED", "EXPIRED", "FAILED":
		return payment.Failed()
	case "PROCESSING", "PENDING":
		return payment.InProgress()
	}
	return payment.Unrecognized()
}

// Adapter Elsom 回调适配器
type Adapter struct {
	cfg Config
}

// New 创建适配器
func New(cfg Config) *Adapter {
	cfg.Secret = strings.TrimSpace(cfg.Secret)
	return &Adapter{cfg: cfg}
}

// Name 提供方名称
func (a *Adapter) Name() string { return constants.PaymentProviderElsom }

// Parse 解析回调并校验报文内签名
func (a *Adapter) Parse(_ http.Header, body []byte) (payment.Event, error) {
	if a.cfg.Secret == "" {
		return nil, payment.ErrSignatureInvalid
	}
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrPayloadInvalid, err)
	}
	if strings.TrimSpace(event.Sign) == "" {
		return nil, payment.ErrSignatureInvalid
	}
	expected := Sign(event.PartnerTrnID, event.Status, a.cfg.Secret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(event.Sign)))) != 1 {
		return nil, payment.ErrSignatureInvalid
	}
	event.PartnerTrnID = strings.TrimSpace(event.PartnerTrnID)
	if event.PartnerTrnID == "" {
		return nil, fmt.Errorf("%w: PartnerTrnID is required", payment.ErrPayloadInvalid)
	}
	if err := json.Unmarshal(body, &event.Raw); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrPayloadInvalid, err)
	}
	delete(event.Raw, "Sign")
	return &event, nil
}

// Sign 计算签名
func Sign(partnerTrnID, status, secret string) string {
	sum := md5.Sum([]byte(partnerTrnID + status + secret))
	return hex.EncodeToString(sum[:])
}
