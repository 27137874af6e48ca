package upstream

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/constants"

	"github.com/shopspring/decimal"
)

var (
	ErrSignatureInvalid = errors.New("upstream signature invalid")
	ErrPayloadInvalid   = errors.New("upstream payload invalid")
)

// Event 归一化后的上游业务事件
type Event struct {
	Source             string          `json:"source"`
	ID                 string          `json:"id"`
	Type               string          `json:"type"`
	OccurredAt         time.Time       `json:"occurred_at"`
	AffiliateCode      string          `json:"affiliate_code,omitempty"`
	ReferredUserID     uint            `json:"referred_user_id"`
	ReferredUsername   string          `json:"referred_username,omitempty"`
	PurchaseAmount     decimal.Decimal `json:"purchase_amount"`
	UpstreamCommission decimal.Decimal `json:"upstream_commission"`
	BillingPeriod      string          `json:"billing_period,omitempty"`
}

// Key 事件去重键（来源:事件ID）
func (e Event) Key() string {
	return strings.TrimSpace(e.Source) + ":" + strings.TrimSpace(e.ID)
}

// Validate 校验事件必填字段
func (e Event) Validate() error {
	if strings.TrimSpace(e.Source) == "" || strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: source and id are required", ErrPayloadInvalid)
	}
	if e.ReferredUserID == 0 {
		return fmt.Errorf("%w: referred_user_id is required", ErrPayloadInvalid)
	}
	switch e.Type {
	case constants.UpstreamEventReferralCreated:
		if strings.TrimSpace(e.AffiliateCode) == "" {
			return fmt.Errorf("%w: affiliate_code is required", ErrPayloadInvalid)
		}
	case constants.UpstreamEventPurchaseCompleted:
		if !e.PurchaseAmount.IsPositive() {
			return fmt.Errorf("%w: purchase_amount must be positive", ErrPayloadInvalid)
		}
		if e.UpstreamCommission.IsNegative() {
			return fmt.Errorf("%w: upstream_commission must not be negative", ErrPayloadInvalid)
		}
	case constants.UpstreamEventSubscriptionRenewed:
		if strings.TrimSpace(e.BillingPeriod) == "" {
			return fmt.Errorf("%w: billing_period is required", ErrPayloadInvalid)
		}
	case constants.UpstreamEventSubscriptionStarted, constants.UpstreamEventSubscriptionCanceled:
	default:
		return fmt.Errorf("%w: unsupported event type %q", ErrPayloadInvalid, e.Type)
	}
	return nil
}
