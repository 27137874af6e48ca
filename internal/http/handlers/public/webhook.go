package public

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/constants"
	"github.com/garagebot/affiliate-ledger/internal/http/response"
	"github.com/garagebot/affiliate-ledger/internal/i18n"
	"github.com/garagebot/affiliate-ledger/internal/metrics"
	"github.com/garagebot/affiliate-ledger/internal/service"
	"github.com/garagebot/affiliate-ledger/internal/upstream"
	"github.com/garagebot/affiliate-ledger/internal/upstream/stripe"

	"github.com/gin-gonic/gin"
)

const (
	webhookBodyLimit        = 1 << 20
	webhookLogValueLimit    = 512
	defaultWebhookTolerance = 300 * time.Second
)

// AffiliateWebhook GarageBot 主站推广事件回调
func (h *Handler) AffiliateWebhook(c *gin.Context) {
	log := requestLog(c)
	body, ok := readWebhookBody(c)
	if !ok {
		return
	}
	signature := strings.TrimSpace(c.GetHeader(upstream.CoreSignatureHeader))
	log.Infow("affiliate_webhook_received",
		"client_ip", c.ClientIP(),
		"body_size", len(body),
		"signature", truncateWebhookLogValue(signature),
	)
	event, err := upstream.ParseCoreEvent(h.Config.Webhook.Secret, signature, body, h.webhookTolerance(), time.Now())
	if err != nil {
		h.rejectWebhook(c, constants.UpstreamSourceCore, err)
		return
	}
	h.dispatchEvent(c, *event)
}

// StripeWebhook Stripe 订阅与一次性支付事件回调
func (h *Handler) StripeWebhook(c *gin.Context) {
	log := requestLog(c)
	body, ok := readWebhookBody(c)
	if !ok {
		return
	}
	log.Infow("stripe_webhook_received",
		"client_ip", c.ClientIP(),
		"body_size", len(body),
		"stripe_signature", truncateWebhookLogValue(strings.TrimSpace(c.GetHeader(stripe.SignatureHeader))),
	)
	headers := make(map[string]string)
	for key, values := range c.Request.Header {
		if len(values) == 0 {
			continue
		}
		headers[key] = values[0]
	}
	event, err := stripe.ParseWebhook(stripe.Config{
		WebhookSecret: h.Config.Webhook.StripeSecret,
		Tolerance:     h.webhookTolerance(),
	}, headers, body, time.Now())
	if errors.Is(err, stripe.ErrEventUnsupported) {
		// 与推广无关的事件直接确认，避免 Stripe 反复重投
		log.Debugw("stripe_webhook_event_skipped", "error", err)
		metrics.RecordWebhookEvent(constants.UpstreamSourceStripe, "unsupported", constants.EventOutcomeIgnored)
		response.Success(c, gin.H{"accepted": false})
		return
	}
	if err != nil {
		h.rejectWebhook(c, constants.UpstreamSourceStripe, err)
		return
	}
	h.dispatchEvent(c, *event)
}

// dispatchEvent 队列可用时入队，否则同步入账；两条路径都依赖事件回执幂等
func (h *Handler) dispatchEvent(c *gin.Context, event upstream.Event) {
	log := requestLog(c)
	locale := i18n.ResolveLocale(c)
	if h.QueueClient.Enabled() {
		duplicate, err := h.QueueClient.EnqueueAffiliateEvent(event)
		if err == nil {
			log.Infow("affiliate_webhook_enqueued", "event_key", event.Key(), "event_type", event.Type, "duplicate", duplicate)
			key := "message.event_accepted"
			if duplicate {
				key = "message.event_duplicate"
			}
			response.SuccessWithMsg(c, i18n.T(locale, key), gin.H{
				"event_key": event.Key(),
				"queued":    true,
				"duplicate": duplicate,
			})
			return
		}
		log.Warnw("affiliate_webhook_enqueue_failed_process_inline", "event_key", event.Key(), "error", err)
	}

	result, err := h.AffiliateEarningService.HandleEvent(c.Request.Context(), event)
	if err != nil {
		if errors.Is(err, service.ErrEventInvalid) {
			log.Warnw("affiliate_webhook_event_invalid", "event_key", event.Key(), "error", err)
			response.ErrorWithStatus(c, http.StatusBadRequest, response.CodeBadRequest, i18n.T(locale, "error.webhook_payload_invalid"))
			return
		}
		log.Errorw("affiliate_webhook_process_failed", "event_key", event.Key(), "event_type", event.Type, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, response.CodeInternal, i18n.T(locale, "error.internal"))
		return
	}
	key := "message.event_accepted"
	if result.Outcome == constants.EventOutcomeDuplicate {
		key = "message.event_duplicate"
	}
	response.SuccessWithMsg(c, i18n.T(locale, key), gin.H{
		"event_key": result.EventKey,
		"queued":    false,
		"outcome":   result.Outcome,
		"detail":    result.Detail,
	})
}

func (h *Handler) rejectWebhook(c *gin.Context, source string, err error) {
	locale := i18n.ResolveLocale(c)
	requestLog(c).Warnw("webhook_rejected", "source", source, "error", err)
	if errors.Is(err, upstream.ErrSignatureInvalid) {
		metrics.RecordWebhookEvent(source, "unknown", "signature_invalid")
		response.ErrorWithStatus(c, http.StatusUnauthorized, response.CodeUnauthorized, i18n.T(locale, "error.webhook_signature_invalid"))
		return
	}
	metrics.RecordWebhookEvent(source, "unknown", "payload_invalid")
	response.ErrorWithStatus(c, http.StatusBadRequest, response.CodeBadRequest, i18n.T(locale, "error.webhook_payload_invalid"))
}

func (h *Handler) webhookTolerance() time.Duration {
	if h.Config.Webhook.ToleranceSeconds > 0 {
		return time.Duration(h.Config.Webhook.ToleranceSeconds) * time.Second
	}
	return defaultWebhookTolerance
}

func readWebhookBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit+1))
	if err != nil || len(body) == 0 || len(body) > webhookBodyLimit {
		requestLog(c).Warnw("webhook_body_read_failed", "body_size", len(body), "error", err)
		response.ErrorWithStatus(c, http.StatusBadRequest, response.CodeBadRequest, i18n.T(i18n.ResolveLocale(c), "error.bad_request"))
		return nil, false
	}
	return body, true
}

func truncateWebhookLogValue(raw string) string {
	if len(raw) <= webhookLogValueLimit {
		return raw
	}
	return raw[:webhookLogValueLimit] + "...(truncated)"
}
