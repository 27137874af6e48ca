package stripe

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/constants"
	"github.com/garagebot/affiliate-ledger/internal/upstream"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// SignatureHeader Stripe 签名头
const SignatureHeader = "Stripe-Signature"

const defaultWebhookTolerance = 300 * time.Second

// ErrEventUnsupported 与推广无关的 Stripe 事件，应答成功但不处理
var ErrEventUnsupported = errors.New("stripe event unsupported")

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "MGA": {},
	"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// Config Stripe webhook 配置
type Config struct {
	WebhookSecret string
	Tolerance     time.Duration
}

// ParseWebhook 校验 Stripe 签名并映射为推广事件
func ParseWebhook(cfg Config, headers map[string]string, body []byte, now time.Time) (*upstream.Event, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: body is empty", upstream.ErrPayloadInvalid)
	}
	if now.IsZero() {
		now = time.Now()
	}
	tolerance := cfg.Tolerance
	if tolerance == 0 {
		tolerance = defaultWebhookTolerance
	}
	if err := upstream.VerifySignature(cfg.WebhookSecret, getHeaderValue(headers, SignatureHeader), body, tolerance, now); err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: decode body failed", upstream.ErrPayloadInvalid)
	}
	root := gjson.ParseBytes(body)
	eventType := readString(root, "type")
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing event type", upstream.ErrPayloadInvalid)
	}
	object := root.Get("data.object")
	if !object.IsObject() {
		return nil, fmt.Errorf("%w: missing event object", upstream.ErrPayloadInvalid)
	}

	event := &upstream.Event{
		Source:     constants.UpstreamSourceStripe,
		ID:         readString(root, "id"),
		OccurredAt: now,
	}
	if created := root.Get("created").Int(); created > 0 {
		event.OccurredAt = time.Unix(created, 0).UTC()
	}
	if err := fillEvent(event, eventType, object); err != nil {
		return nil, err
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}

func fillEvent(event *upstream.Event, eventType string, object gjson.Result) error {
	userID, err := parseUserID(object)
	if err != nil {
		return err
	}
	event.ReferredUserID = userID

	switch eventType {
	case "checkout.session.completed":
		mode := readString(object, "mode")
		switch mode {
		case "subscription":
			event.Type = constants.UpstreamEventSubscriptionStarted
			return nil
		case "payment":
			return fillCheckoutPayment(event, object)
		default:
			return fmt.Errorf("%w: checkout mode %s", ErrEventUnsupported, mode)
		}
	case "customer.subscription.created", "customer.subscription.updated":
		status := readString(object, "status")
		if status != "active" && status != "trialing" {
			return fmt.Errorf("%w: subscription status %s", ErrEventUnsupported, status)
		}
		if eventType == "customer.subscription.created" {
			event.Type = constants.UpstreamEventSubscriptionStarted
			return nil
		}
		periodStart := object.Get("current_period_start").Int()
		if periodStart <= 0 {
			return fmt.Errorf("%w: missing current_period_start", upstream.ErrPayloadInvalid)
		}
		anchor := object.Get("start_date").Int()
		if anchor <= 0 {
			anchor = object.Get("billing_cycle_anchor").Int()
		}
		if anchor <= 0 {
			return fmt.Errorf("%w: missing start_date", upstream.ErrPayloadInvalid)
		}
		// 首个计费周期内的更新（如 incomplete 转 active）视为开通，不产生续费奖励
		if periodStart <= anchor {
			event.Type = constants.UpstreamEventSubscriptionStarted
			return nil
		}
		event.Type = constants.UpstreamEventSubscriptionRenewed
		event.BillingPeriod = time.Unix(periodStart, 0).UTC().Format("2006-01-02")
		return nil
	case "customer.subscription.deleted":
		event.Type = constants.UpstreamEventSubscriptionCanceled
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrEventUnsupported, eventType)
	}
}

// fillCheckoutPayment 一次性付款，只有已支付才计入消费
func fillCheckoutPayment(event *upstream.Event, object gjson.Result) error {
	if status := readString(object, "payment_status"); status != "" && status != "paid" {
		return fmt.Errorf("%w: checkout payment_status %s", ErrEventUnsupported, status)
	}
	amount, err := decimal.NewFromString(fromMinorAmount(object.Get("amount_total").Int(), readString(object, "currency")))
	if err != nil {
		return fmt.Errorf("%w: invalid amount_total", upstream.ErrPayloadInvalid)
	}
	event.Type = constants.UpstreamEventPurchaseCompleted
	event.PurchaseAmount = amount
	// 未携带主站佣金时按零佣金入账，只累计消费
	event.UpstreamCommission = decimal.Zero
	if raw := readString(object, "metadata.upstreamCommission"); raw != "" {
		commission, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("%w: invalid upstreamCommission", upstream.ErrPayloadInvalid)
		}
		event.UpstreamCommission = commission
	}
	return nil
}

func parseUserID(object gjson.Result) (uint, error) {
	raw := readString(object, "metadata.userId")
	if raw == "" {
		return 0, fmt.Errorf("%w: metadata.userId missing", ErrEventUnsupported)
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("%w: invalid metadata.userId", upstream.ErrPayloadInvalid)
	}
	return uint(parsed), nil
}

func fromMinorAmount(minor int64, currency string) string {
	scale := currencyScale(currency)
	return decimal.NewFromInt(minor).Shift(int32(-scale)).StringFixed(int32(scale))
}

func currencyScale(currency string) int {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return 0
	}
	return 2
}

func getHeaderValue(headers map[string]string, key string) string {
	for h, value := range headers {
		if strings.EqualFold(strings.TrimSpace(h), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// readString 读取字符串或数字字段，其他类型视为缺失
func readString(raw gjson.Result, path string) string {
	value := raw.Get(path)
	switch value.Type {
	case gjson.String, gjson.Number:
		return strings.TrimSpace(value.String())
	default:
		return ""
	}
}
