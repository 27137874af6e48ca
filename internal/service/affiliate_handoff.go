package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/cache"
	"github.com/garagebot/affiliate-ledger/internal/constants"
	"github.com/garagebot/affiliate-ledger/internal/logger"
	"github.com/garagebot/affiliate-ledger/internal/models"
)

// TrustLayerEnvelope 生态身份交接信封（字段命名遵循对端 schema）
type TrustLayerEnvelope struct {
	Handoff     TrustLayerHandoff `json:"handoff"`
	Explanation string            `json:"explanation"`
}

// TrustLayerHandoff 交接主体
type TrustLayerHandoff struct {
	Schema       string                 `json:"schema"`
	Source       string                 `json:"source"`
	Affiliate    TrustLayerAffiliate    `json:"affiliate"`
	Verification TrustLayerVerification `json:"verification"`
}

// TrustLayerAffiliate 推广者公开摘要，不含收款信息与提现记录
type TrustLayerAffiliate struct {
	Code               string       `json:"code"`
	Status             string       `json:"status"`
	TotalEarnings      models.Money `json:"totalEarnings"`
	TotalReferrals     int64        `json:"totalReferrals"`
	QualifiedReferrals int64        `json:"qualifiedReferrals"`
}

// TrustLayerVerification 验证状态
type TrustLayerVerification struct {
	Verified   bool   `json:"verified"`
	VerifiedAt string `json:"verifiedAt"`
	Ecosystem  string `json:"ecosystem"`
}

// BuildTrustLayerHandoff 生成推广者生态交接投影
func (s *AffiliateService) BuildTrustLayerHandoff(ctx context.Context, rawCode string) (*TrustLayerEnvelope, error) {
	code := strings.ToUpper(strings.TrimSpace(rawCode))
	if code == "" {
		return nil, ErrUnknownAffiliateCode
	}
	var cached TrustLayerEnvelope
	if hit, err := cache.GetTrustLayer(ctx, code, &cached); err != nil {
		logger.Warnw("affiliate_handoff_cache_read_failed", "code", code, "error", err)
	} else if hit {
		return &cached, nil
	}

	account, err := s.repo.GetAccountByCode(code)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrUnknownAffiliateCode
	}
	total, err := s.repo.CountReferralsByAccount(account.ID, nil)
	if err != nil {
		return nil, err
	}
	threshold := s.rules.QualificationThreshold
	qualified, err := s.repo.CountReferralsByAccount(account.ID, &threshold)
	if err != nil {
		return nil, err
	}

	verified := account.Status == constants.AffiliateAccountStatusActive
	envelope := &TrustLayerEnvelope{
		Handoff: TrustLayerHandoff{
			Schema: s.trustLayer.Schema,
			Source: s.trustLayer.Source,
			Affiliate: TrustLayerAffiliate{
				Code:               account.AffiliateCode,
				Status:             account.Status,
				TotalEarnings:      account.TotalEarnings,
				TotalReferrals:     total,
				QualifiedReferrals: qualified,
			},
			Verification: TrustLayerVerification{
				Verified:   verified,
				VerifiedAt: time.Now().UTC().Format(time.RFC3339),
				Ecosystem:  s.trustLayer.Ecosystem,
			},
		},
		Explanation: fmt.Sprintf(
			"Affiliate %s is %s in the %s program with %d referrals (%d qualified at $%s or more in purchases).",
			account.AffiliateCode, account.Status, s.trustLayer.Source, total, qualified, threshold.StringFixed(2),
		),
	}
	if s.handoffTTL > 0 {
		if err := cache.SetTrustLayer(ctx, code, envelope, s.handoffTTL); err != nil {
			logger.Warnw("affiliate_handoff_cache_write_failed", "code", code, "error", err)
		}
	}
	return envelope, nil
}
