package service

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/cache"
	"github.com/garagebot/affiliate-ledger/internal/config"
	"github.com/garagebot/affiliate-ledger/internal/constants"
	"github.com/garagebot/affiliate-ledger/internal/logger"
	"github.com/garagebot/affiliate-ledger/internal/models"
	"github.com/garagebot/affiliate-ledger/internal/repository"

	"gorm.io/gorm"
)

const (
	affiliateCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	affiliateCodeMaxRetry = 8
	dashboardHistoryLimit = 100
)

// AffiliateService 推广账户与推荐关系服务
type AffiliateService struct {
	repo         repository.AffiliateRepository
	ledger       *AffiliateLedgerService
	rules        AffiliateRules
	shareBaseURL string
	trustLayer   config.TrustLayerConfig
	handoffTTL   time.Duration
}

// NewAffiliateService 创建推广服务
func NewAffiliateService(repo repository.AffiliateRepository, ledger *AffiliateLedgerService, rules AffiliateRules, cfg config.AffiliateConfig) *AffiliateService {
	return &AffiliateService{
		repo:         repo,
		ledger:       ledger,
		rules:        rules,
		shareBaseURL: cfg.ShareBaseURL,
		trustLayer:   cfg.TrustLayer,
		handoffTTL:   time.Duration(cfg.HandoffCacheSeconds) * time.Second,
	}
}

// AffiliateReferralView 推荐关系展示（达标状态实时计算）
type AffiliateReferralView struct {
	ID               uint         `json:"id"`
	ReferredUserID   uint         `json:"referred_user_id"`
	ReferredUsername string       `json:"referred_username"`
	ReferredAt       time.Time    `json:"referred_at"`
	TotalPurchases   models.Money `json:"total_purchases"`
	CommissionEarned models.Money `json:"commission_earned"`
	Qualified        bool         `json:"qualified"`
	IsProMember      bool         `json:"is_pro_member"`
	ProSince         *time.Time   `json:"pro_since,omitempty"`
}

// AffiliateDashboard 推广用户中心数据
type AffiliateDashboard struct {
	Account                *models.AffiliateAccount  `json:"account"`
	ShareURL               string                    `json:"share_url"`
	Balance                LedgerBalance             `json:"balance"`
	TotalReferrals         int64                     `json:"total_referrals"`
	QualifiedReferrals     int64                     `json:"qualified_referrals"`
	QualificationThreshold models.Money              `json:"qualification_threshold"`
	PayoutThreshold        models.Money              `json:"payout_threshold"`
	CanRequestPayout       bool                      `json:"can_request_payout"`
	Referrals              []AffiliateReferralView   `json:"referrals"`
	Earnings               []models.AffiliateEarning `json:"earnings"`
	Payouts                []models.AffiliatePayout  `json:"payouts"`
}

// Enroll 用户报名推广计划
func (s *AffiliateService) Enroll(ctx context.Context, userID uint, username, paypalEmail string) (*models.AffiliateAccount, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	email, err := normalizePayoutEmail(paypalEmail, true)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.GetAccountByUserID(userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEnrollment
	}

	for i := 0; i < affiliateCodeMaxRetry; i++ {
		code, err := generateAffiliateCode()
		if err != nil {
			return nil, err
		}
		account := &models.AffiliateAccount{
			UserID:        userID,
			Username:      strings.TrimSpace(username),
			AffiliateCode: code,
			PaypalEmail:   email,
			Status:        constants.AffiliateAccountStatusActive,
		}
		if err := s.repo.CreateAccount(account); err != nil {
			if !repository.IsUniqueViolation(err) {
				return nil, err
			}
			// 区分用户重复报名与推广码碰撞
			raced, lookupErr := s.repo.GetAccountByUserID(userID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if raced != nil {
				return nil, ErrDuplicateEnrollment
			}
			continue
		}
		logger.Infow("affiliate_enrolled", "user_id", userID, "account_id", account.ID, "code", account.AffiliateCode)
		return account, nil
	}
	return nil, ErrAffiliateCodeExhausted
}

// UpdatePayoutDestination 更新 PayPal 收款邮箱（已申请的提现保留申请时快照）
func (s *AffiliateService) UpdatePayoutDestination(ctx context.Context, userID uint, paypalEmail string) (*models.AffiliateAccount, error) {
	email, err := normalizePayoutEmail(paypalEmail, false)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.GetAccountByUserID(userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAffiliateNotEnrolled
	}
	if err := s.repo.UpdateAccountFields(account.ID, map[string]interface{}{"paypal_email": email}); err != nil {
		return nil, err
	}
	account.PaypalEmail = email
	return account, nil
}

// RecordReferral 记录推荐关系，被推荐用户先到先得
func (s *AffiliateService) RecordReferral(ctx context.Context, code string, referredUserID uint, referredUsername string) (*models.AffiliateReferral, error) {
	var referral *models.AffiliateReferral
	var account *models.AffiliateAccount
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		var err error
		account, referral, err = s.recordReferralTx(tx, code, referredUserID, referredUsername, time.Now())
		return err
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrDuplicateReferral
		}
		return nil, err
	}
	s.invalidateHandoff(ctx, account.AffiliateCode)
	return referral, nil
}

func (s *AffiliateService) recordReferralTx(tx *gorm.DB, rawCode string, referredUserID uint, referredUsername string, referredAt time.Time) (*models.AffiliateAccount, *models.AffiliateReferral, error) {
	if referredUserID == 0 {
		return nil, nil, ErrEventInvalid
	}
	repo := s.repo.WithTx(tx)
	account, err := repo.GetAccountByCode(rawCode)
	if err != nil {
		return nil, nil, err
	}
	if account == nil || account.Status != constants.AffiliateAccountStatusActive {
		return nil, nil, ErrUnknownAffiliateCode
	}
	if account.UserID == referredUserID {
		return nil, nil, ErrSelfReferral
	}
	existing, err := repo.GetReferralByReferredUser(referredUserID)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, ErrDuplicateReferral
	}
	if referredAt.IsZero() {
		referredAt = time.Now()
	}
	referral := &models.AffiliateReferral{
		AffiliateAccountID: account.ID,
		ReferredUserID:     referredUserID,
		ReferredUsername:   strings.TrimSpace(referredUsername),
		ReferredAt:         referredAt,
	}
	if err := repo.CreateReferral(referral); err != nil {
		return nil, nil, err
	}
	logger.Infow("affiliate_referral_recorded",
		"account_id", account.ID,
		"referral_id", referral.ID,
		"referred_user_id", referredUserID,
	)
	return account, referral, nil
}

// GetDashboard 获取当前用户推广中心数据
func (s *AffiliateService) GetDashboard(ctx context.Context, userID uint) (*AffiliateDashboard, error) {
	account, err := s.repo.GetAccountByUserID(userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAffiliateNotEnrolled
	}
	return s.buildDashboard(ctx, account)
}

// GetAccountDetail 管理端查看推广账户详情
func (s *AffiliateService) GetAccountDetail(ctx context.Context, accountID uint) (*AffiliateDashboard, error) {
	account, err := s.repo.GetAccountByID(accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAffiliateNotEnrolled
	}
	return s.buildDashboard(ctx, account)
}

func (s *AffiliateService) buildDashboard(ctx context.Context, account *models.AffiliateAccount) (*AffiliateDashboard, error) {
	balance, err := s.ledger.GetBalance(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	referrals, err := s.repo.ListReferralsByAccount(account.ID)
	if err != nil {
		return nil, err
	}
	views := make([]AffiliateReferralView, 0, len(referrals))
	qualified := int64(0)
	for _, referral := range referrals {
		view := AffiliateReferralView{
			ID:               referral.ID,
			ReferredUserID:   referral.ReferredUserID,
			ReferredUsername: referral.ReferredUsername,
			ReferredAt:       referral.ReferredAt,
			TotalPurchases:   referral.TotalPurchases,
			CommissionEarned: referral.CommissionEarned,
			Qualified:        s.rules.IsQualified(referral.TotalPurchases.Decimal),
			IsProMember:      referral.IsProMember,
			ProSince:         referral.ProSince,
		}
		if view.Qualified {
			qualified++
		}
		views = append(views, view)
	}
	earnings, _, err := s.repo.ListEarnings(repository.AffiliateEarningListFilter{
		Page:               1,
		PageSize:           dashboardHistoryLimit,
		AffiliateAccountID: account.ID,
	})
	if err != nil {
		return nil, err
	}
	payouts, _, err := s.repo.ListPayouts(repository.AffiliatePayoutListFilter{
		Page:               1,
		PageSize:           dashboardHistoryLimit,
		AffiliateAccountID: account.ID,
	})
	if err != nil {
		return nil, err
	}
	hasOpenPayout := false
	for _, payout := range payouts {
		if payout.OpenAccountID != nil {
			hasOpenPayout = true
			break
		}
	}

	return &AffiliateDashboard{
		Account:                account,
		ShareURL:               s.ShareURL(account.AffiliateCode),
		Balance:                balance,
		TotalReferrals:         int64(len(referrals)),
		QualifiedReferrals:     qualified,
		QualificationThreshold: models.NewMoneyFromDecimal(s.rules.QualificationThreshold),
		PayoutThreshold:        models.NewMoneyFromDecimal(s.rules.PayoutThreshold),
		CanRequestPayout: account.Status == constants.AffiliateAccountStatusActive &&
			!account.PayoutsHalted &&
			strings.TrimSpace(account.PaypalEmail) != "" &&
			!hasOpenPayout &&
			s.rules.CanRequestPayout(account.AvailableBalance.Decimal),
		Referrals: views,
		Earnings:  earnings,
		Payouts:   payouts,
	}, nil
}

// ShareURL 生成推广分享链接
func (s *AffiliateService) ShareURL(code string) string {
	base := strings.TrimSpace(s.shareBaseURL)
	if base == "" {
		base = "https://garagebot.io/"
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return base + "?ref=" + url.QueryEscape(code)
	}
	query := parsed.Query()
	query.Set("ref", code)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// UpdateStatus 管理端启用/暂停推广账户
func (s *AffiliateService) UpdateStatus(ctx context.Context, adminID, accountID uint, rawStatus string) (*models.AffiliateAccount, error) {
	status := strings.ToLower(strings.TrimSpace(rawStatus))
	if status != constants.AffiliateAccountStatusActive && status != constants.AffiliateAccountStatusSuspended {
		return nil, ErrAffiliateStatusInvalid
	}
	account, err := s.repo.GetAccountByID(accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAffiliateNotEnrolled
	}
	if account.Status == status {
		return account, nil
	}
	if err := s.repo.UpdateAccountFields(account.ID, map[string]interface{}{"status": status}); err != nil {
		return nil, err
	}
	account.Status = status
	s.invalidateHandoff(ctx, account.AffiliateCode)
	logger.Infow("affiliate_status_updated", "account_id", account.ID, "status", status, "admin_id", adminID)
	return account, nil
}

// ListAccounts 管理端查询推广账户
func (s *AffiliateService) ListAccounts(ctx context.Context, filter repository.AffiliateAccountListFilter) ([]models.AffiliateAccount, int64, error) {
	return s.repo.ListAccounts(filter)
}

func (s *AffiliateService) invalidateHandoff(ctx context.Context, codes ...string) {
	if err := cache.InvalidateTrustLayer(ctx, codes...); err != nil {
		logger.Warnw("affiliate_handoff_cache_invalidate_failed", "codes", codes, "error", err)
	}
}

func normalizePayoutEmail(raw string, allowEmpty bool) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		if allowEmpty {
			return "", nil
		}
		return "", ErrInvalidEmail
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(email), nil
}

func generateAffiliateCode() (string, error) {
	var builder strings.Builder
	builder.Grow(len(constants.AffiliateCodePrefix) + constants.AffiliateCodeBodyLength)
	builder.WriteString(constants.AffiliateCodePrefix)
	max := big.NewInt(int64(len(affiliateCodeAlphabet)))
	for i := 0; i < constants.AffiliateCodeBodyLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		builder.WriteByte(affiliateCodeAlphabet[n.Int64()])
	}
	return builder.String(), nil
}

func isIgnorableEventError(err error) bool {
	return errors.Is(err, ErrUnknownAffiliateCode) ||
		errors.Is(err, ErrDuplicateReferral) ||
		errors.Is(err, ErrSelfReferral)
}
