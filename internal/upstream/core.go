package upstream

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/constants"

	"github.com/shopspring/decimal"
)

// CoreSignatureHeader GarageBot 主站事件签名头
const CoreSignatureHeader = "X-GarageBot-Signature"

type coreEnvelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       coreEventFields `json:"data"`
}

type coreEventFields struct {
	AffiliateCode      string           `json:"affiliate_code"`
	ReferredUserID     uint             `json:"referred_user_id"`
	ReferredUsername   string           `json:"referred_username"`
	PurchaseAmount     decimal.Decimal  `json:"purchase_amount"`
	UpstreamCommission *decimal.Decimal `json:"upstream_commission"`
	BillingPeriod      string           `json:"billing_period"`
}

// ParseCoreEvent 校验签名并解析主站事件
func ParseCoreEvent(secret, signatureHeader string, body []byte, tolerance time.Duration, now time.Time) (*Event, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: body is empty", ErrPayloadInvalid)
	}
	if err := VerifySignature(secret, signatureHeader, body, tolerance, now); err != nil {
		return nil, err
	}

	var envelope coreEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decode body failed", ErrPayloadInvalid)
	}
	event := &Event{
		Source:           constants.UpstreamSourceCore,
		ID:               strings.TrimSpace(envelope.ID),
		Type:             strings.TrimSpace(envelope.Type),
		OccurredAt:       envelope.OccurredAt,
		AffiliateCode:    strings.ToUpper(strings.TrimSpace(envelope.Data.AffiliateCode)),
		ReferredUserID:   envelope.Data.ReferredUserID,
		ReferredUsername: strings.TrimSpace(envelope.Data.ReferredUsername),
		PurchaseAmount:   envelope.Data.PurchaseAmount,
		BillingPeriod:    strings.TrimSpace(envelope.Data.BillingPeriod),
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	// 佣金基数只认主站佣金，缺失时不能退回消费金额
	if event.Type == constants.UpstreamEventPurchaseCompleted && envelope.Data.UpstreamCommission == nil {
		return nil, fmt.Errorf("%w: upstream_commission is required", ErrPayloadInvalid)
	}
	if envelope.Data.UpstreamCommission != nil {
		event.UpstreamCommission = *envelope.Data.UpstreamCommission
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}
