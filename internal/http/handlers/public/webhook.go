package public

import (
	"errors"
	"io"
	"net/http"

	"github.com/bazaar-next/internal/http/response"
	"github.com/bazaar-next/internal/payment"
	"github.com/bazaar-next/internal/service"

	"github.com/gin-gonic/gin"
)

const maxWebhookBodyBytes = 1 << 20

// PaymentWebhook 支付提供方回调
func (h *Handler) PaymentWebhook(c *gin.Context) {
	log := requestLog(c)
	provider := c.Param("provider")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		log.Warnw("payment_webhook_body_read_failed", "provider", provider, "error", err)
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	log.Infow("payment_webhook_received",
		"provider", provider,
		"client_ip", c.ClientIP(),
		"body_size", len(body),
	)

	result, err := h.PaymentService.Reconcile(c.Request.Context(), service.WebhookInput{
		Provider: provider,
		Headers:  c.Request.Header,
		Body:     body,
	})
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrSignatureInvalid):
			log.Warnw("payment_webhook_signature_invalid", "provider", provider)
			response.AbortWithHTTPStatus(c, http.StatusUnauthorized, response.CodeUnauthorized, "signature invalid")
		case errors.Is(err, service.ErrPaymentNotFound):
			// 未知支付单无法重试成功，直接确认收到
			log.Warnw("payment_webhook_payment_not_found", "provider", provider, "error", err)
			response.Success(c, gin.H{"accepted": true, "updated": false})
		default:
			respondWithMappedError(c, err, paymentWebhookErrorRules, response.CodeInternal, "webhook handling failed")
		}
		return
	}

	response.Success(c, gin.H{
		"accepted":       true,
		"updated":        !result.Duplicate,
		"payment_id":     result.PaymentID,
		"order_id":       result.OrderID,
		"payment_status": result.PaymentStatus,
		"order_status":   result.OrderStatus,
		"duplicate":      result.Duplicate,
	})
}
