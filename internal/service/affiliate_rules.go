package service

import (
	"fmt"
	"strings"

	"github.com/garagebot/affiliate-ledger/internal/config"
	"github.com/garagebot/affiliate-ledger/internal/constants"

	"github.com/shopspring/decimal"
)

// AffiliateRules 推广计佣规则（纯计算，无状态）
type AffiliateRules struct {
	QualificationThreshold decimal.Decimal
	PayoutThreshold        decimal.Decimal
	CommissionRatePercent  decimal.Decimal
	ProBonusAmount         decimal.Decimal
	ProRecurringAmount     decimal.Decimal
	CrossingPurchasePolicy string
	ReferredRevenueMode    string
}

var hundred = decimal.NewFromInt(100)

// DefaultAffiliateRules 默认规则
func DefaultAffiliateRules() AffiliateRules {
	return AffiliateRules{
		QualificationThreshold: decimal.RequireFromString(constants.QualificationThresholdUSD),
		PayoutThreshold:        decimal.RequireFromString(constants.PayoutThresholdUSD),
		CommissionRatePercent:  decimal.RequireFromString(constants.CommissionRatePercent),
		ProBonusAmount:         decimal.RequireFromString(constants.ProBonusUSD),
		ProRecurringAmount:     decimal.RequireFromString(constants.ProRecurringUSD),
		CrossingPurchasePolicy: constants.CrossingPurchaseInclude,
		ReferredRevenueMode:    constants.ReferredRevenueModeAll,
	}
}

// NewAffiliateRules 从配置构建规则，空值沿用默认
func NewAffiliateRules(cfg config.AffiliateConfig) (AffiliateRules, error) {
	rules := DefaultAffiliateRules()
	fields := []struct {
		name   string
		raw    string
		target *decimal.Decimal
	}{
		{"qualification_threshold", cfg.QualificationThreshold, &rules.QualificationThreshold},
		{"payout_threshold", cfg.PayoutThreshold, &rules.PayoutThreshold},
		{"commission_rate_percent", cfg.CommissionRatePercent, &rules.CommissionRatePercent},
		{"pro_bonus_amount", cfg.ProBonusAmount, &rules.ProBonusAmount},
		{"pro_recurring_amount", cfg.ProRecurringAmount, &rules.ProRecurringAmount},
	}
	for _, field := range fields {
		raw := strings.TrimSpace(field.raw)
		if raw == "" {
			continue
		}
		parsed, err := decimal.NewFromString(raw)
		if err != nil || parsed.IsNegative() {
			return AffiliateRules{}, fmt.Errorf("invalid affiliate.%s: %q", field.name, field.raw)
		}
		*field.target = parsed
	}
	if rules.CommissionRatePercent.GreaterThan(hundred) {
		return AffiliateRules{}, fmt.Errorf("invalid affiliate.commission_rate_percent: %s", rules.CommissionRatePercent)
	}
	if policy := strings.ToLower(strings.TrimSpace(cfg.CrossingPurchasePolicy)); policy != "" {
		rules.CrossingPurchasePolicy = policy
	}
	if mode := strings.ToLower(strings.TrimSpace(cfg.ReferredRevenueMode)); mode != "" {
		rules.ReferredRevenueMode = mode
	}
	if err := cfg.Validate(); err != nil {
		return AffiliateRules{}, err
	}
	return rules, nil
}

// IsQualified 累计消费达到门槛即达标
func (r AffiliateRules) IsQualified(totalPurchases decimal.Decimal) bool {
	return totalPurchases.GreaterThanOrEqual(r.QualificationThreshold)
}

// CanRequestPayout 可提现余额达到门槛
func (r AffiliateRules) CanRequestPayout(available decimal.Decimal) bool {
	return available.GreaterThanOrEqual(r.PayoutThreshold)
}

// PurchaseCommission 计算单笔消费佣金
// before/after 为该笔消费前后的累计消费额
func (r AffiliateRules) PurchaseCommission(before, after, upstreamCommission decimal.Decimal) decimal.Decimal {
	if !r.IsQualified(after) || !upstreamCommission.IsPositive() {
		return decimal.Zero
	}
	full := upstreamCommission.Mul(r.CommissionRatePercent).Div(hundred)
	if r.IsQualified(before) {
		return full.Round(2)
	}
	switch r.CrossingPurchasePolicy {
	case constants.CrossingPurchaseExclude:
		return decimal.Zero
	case constants.CrossingPurchaseProrate:
		span := after.Sub(before)
		if !span.IsPositive() {
			return decimal.Zero
		}
		return full.Mul(after.Sub(r.QualificationThreshold)).Div(span).Round(2)
	default:
		return full.Round(2)
	}
}

// ReferredRevenueDelta 单笔消费对推荐营收的增量
func (r AffiliateRules) ReferredRevenueDelta(before, after, purchaseAmount decimal.Decimal) decimal.Decimal {
	if r.ReferredRevenueMode != constants.ReferredRevenueModeQualified {
		return purchaseAmount.Round(2)
	}
	if !r.IsQualified(after) {
		return decimal.Zero
	}
	if r.IsQualified(before) {
		return purchaseAmount.Round(2)
	}
	return after.Round(2)
}

// ReplayReferredRevenue 由推荐累计消费重算推荐营收
func (r AffiliateRules) ReplayReferredRevenue(totals []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, total := range totals {
		if r.ReferredRevenueMode == constants.ReferredRevenueModeQualified && !r.IsQualified(total) {
			continue
		}
		sum = sum.Add(total)
	}
	return sum.Round(2)
}
