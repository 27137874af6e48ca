package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/constants"
	"github.com/garagebot/affiliate-ledger/internal/logger"
	"github.com/garagebot/affiliate-ledger/internal/metrics"
	"github.com/garagebot/affiliate-ledger/internal/models"
	"github.com/garagebot/affiliate-ledger/internal/repository"
	"github.com/garagebot/affiliate-ledger/internal/upstream"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	errEventReplayed = errors.New("event already processed")
	errNoReferral    = errors.New("no referral for user")
)

// AffiliateEarningService 上游事件入账服务
type AffiliateEarningService struct {
	repo     repository.AffiliateRepository
	rules    AffiliateRules
	ledger   *AffiliateLedgerService
	registry *AffiliateService
}

// NewAffiliateEarningService 创建入账服务
func NewAffiliateEarningService(repo repository.AffiliateRepository, rules AffiliateRules, ledger *AffiliateLedgerService, registry *AffiliateService) *AffiliateEarningService {
	return &AffiliateEarningService{
		repo:     repo,
		rules:    rules,
		ledger:   ledger,
		registry: registry,
	}
}

// PurchaseEvent 被推荐用户消费事件
type PurchaseEvent struct {
	EventKey           string
	ReferredUserID     uint
	PurchaseAmount     decimal.Decimal
	UpstreamCommission decimal.Decimal
	OccurredAt         time.Time
}

// ProEvent 被推荐用户订阅事件
type ProEvent struct {
	EventKey       string
	ReferredUserID uint
	BillingPeriod  string
	OccurredAt     time.Time
}

// EventResult 事件处理结果
type EventResult struct {
	EventKey string                    `json:"event_key"`
	Outcome  string                    `json:"outcome"`
	Detail   string                    `json:"detail"`
	Earnings []models.AffiliateEarning `json:"earnings"`
}

type eventEffect struct {
	outcome  string
	detail   string
	codes    []string
	earnings []models.AffiliateEarning
}

// HandleEvent 处理上游事件，按事件键幂等
func (s *AffiliateEarningService) HandleEvent(ctx context.Context, event upstream.Event) (*EventResult, error) {
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEventInvalid, err)
	}
	return s.process(ctx, event.Key(), event)
}

// RecordPurchase 记录被推荐用户消费并计算佣金
func (s *AffiliateEarningService) RecordPurchase(ctx context.Context, in PurchaseEvent) (*EventResult, error) {
	return s.processDirect(ctx, in.EventKey, upstream.Event{
		Type:               constants.UpstreamEventPurchaseCompleted,
		OccurredAt:         in.OccurredAt,
		ReferredUserID:     in.ReferredUserID,
		PurchaseAmount:     in.PurchaseAmount,
		UpstreamCommission: in.UpstreamCommission,
	})
}

// MarkProMember 标记被推荐用户成为 Pro 会员并发放一次性奖励
func (s *AffiliateEarningService) MarkProMember(ctx context.Context, in ProEvent) (*EventResult, error) {
	return s.processDirect(ctx, in.EventKey, upstream.Event{
		Type:           constants.UpstreamEventSubscriptionStarted,
		OccurredAt:     in.OccurredAt,
		ReferredUserID: in.ReferredUserID,
	})
}

// CreditProRecurring 按计费周期发放 Pro 续费奖励
func (s *AffiliateEarningService) CreditProRecurring(ctx context.Context, in ProEvent) (*EventResult, error) {
	return s.processDirect(ctx, in.EventKey, upstream.Event{
		Type:           constants.UpstreamEventSubscriptionRenewed,
		OccurredAt:     in.OccurredAt,
		ReferredUserID: in.ReferredUserID,
		BillingPeriod:  in.BillingPeriod,
	})
}

// EndProMembership 被推荐用户取消订阅，无资金影响
func (s *AffiliateEarningService) EndProMembership(ctx context.Context, in ProEvent) (*EventResult, error) {
	return s.processDirect(ctx, in.EventKey, upstream.Event{
		Type:           constants.UpstreamEventSubscriptionCanceled,
		OccurredAt:     in.OccurredAt,
		ReferredUserID: in.ReferredUserID,
	})
}

func (s *AffiliateEarningService) processDirect(ctx context.Context, eventKey string, event upstream.Event) (*EventResult, error) {
	eventKey = strings.TrimSpace(eventKey)
	if eventKey == "" {
		return nil, fmt.Errorf("%w: event key is required", ErrEventInvalid)
	}
	event.Source = constants.UpstreamSourceCore
	event.ID = eventKey
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEventInvalid, err)
	}
	return s.process(ctx, eventKey, event)
}

func (s *AffiliateEarningService) process(ctx context.Context, eventKey string, event upstream.Event) (*EventResult, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	var effect *eventEffect
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		receipt, err := repo.GetReceiptByEventKey(eventKey)
		if err != nil {
			return err
		}
		if receipt != nil {
			return errEventReplayed
		}
		effect, err = s.apply(tx, eventKey, event)
		if err != nil {
			return err
		}
		if err := repo.CreateReceipt(&models.AffiliateEventReceipt{
			EventKey:  eventKey,
			EventType: event.Type,
			Outcome:   effect.outcome,
			Detail:    truncateReason(effect.detail),
		}); err != nil {
			if repository.IsUniqueViolation(err) {
				return errEventReplayed
			}
			return err
		}
		return nil
	})
	if errors.Is(err, errEventReplayed) {
		logger.Debugw("affiliate_event_duplicate", "event_key", eventKey, "event_type", event.Type)
		metrics.RecordWebhookEvent(event.Source, event.Type, constants.EventOutcomeDuplicate)
		return &EventResult{EventKey: eventKey, Outcome: constants.EventOutcomeDuplicate, Earnings: []models.AffiliateEarning{}}, nil
	}
	if err != nil {
		return nil, err
	}

	s.registry.invalidateHandoff(ctx, effect.codes...)
	for _, earning := range effect.earnings {
		metrics.RecordEarning(earning.EarningType, earning.Amount.InexactFloat64())
	}
	metrics.RecordWebhookEvent(event.Source, event.Type, effect.outcome)
	logger.Infow("affiliate_event_processed",
		"event_key", eventKey,
		"event_type", event.Type,
		"outcome", effect.outcome,
		"detail", effect.detail,
		"earnings", len(effect.earnings),
	)
	earnings := effect.earnings
	if earnings == nil {
		earnings = []models.AffiliateEarning{}
	}
	return &EventResult{
		EventKey: eventKey,
		Outcome:  effect.outcome,
		Detail:   effect.detail,
		Earnings: earnings,
	}, nil
}

func (s *AffiliateEarningService) apply(tx *gorm.DB, eventKey string, event upstream.Event) (*eventEffect, error) {
	var effect *eventEffect
	var err error
	switch event.Type {
	case constants.UpstreamEventReferralCreated:
		var account *models.AffiliateAccount
		account, _, err = s.registry.recordReferralTx(tx, event.AffiliateCode, event.ReferredUserID, event.ReferredUsername, event.OccurredAt)
		if err == nil {
			effect = &eventEffect{outcome: constants.EventOutcomeApplied, detail: "referral recorded", codes: []string{account.AffiliateCode}}
		}
	case constants.UpstreamEventPurchaseCompleted:
		effect, err = s.recordPurchaseTx(tx, eventKey, event)
	case constants.UpstreamEventSubscriptionStarted:
		effect, err = s.markProTx(tx, eventKey, event)
	case constants.UpstreamEventSubscriptionRenewed:
		effect, err = s.creditRecurringTx(tx, eventKey, event)
	case constants.UpstreamEventSubscriptionCanceled:
		effect, err = s.endProTx(tx, event)
	default:
		return nil, fmt.Errorf("%w: unsupported event type %q", ErrEventInvalid, event.Type)
	}
	if err != nil {
		if isIgnorableEventError(err) || errors.Is(err, errNoReferral) {
			return &eventEffect{outcome: constants.EventOutcomeIgnored, detail: err.Error()}, nil
		}
		return nil, err
	}
	return effect, nil
}

// lockReferral 按账户→推荐关系的固定顺序加锁
func (s *AffiliateEarningService) lockReferral(repo repository.AffiliateRepository, referredUserID uint) (*models.AffiliateAccount, *models.AffiliateReferral, error) {
	unlocked, err := repo.GetReferralByReferredUser(referredUserID)
	if err != nil {
		return nil, nil, err
	}
	if unlocked == nil {
		return nil, nil, errNoReferral
	}
	account, err := repo.GetAccountByIDForUpdate(unlocked.AffiliateAccountID)
	if err != nil {
		return nil, nil, err
	}
	if account == nil {
		return nil, nil, ErrAffiliateNotEnrolled
	}
	referral, err := repo.GetReferralByIDForUpdate(unlocked.ID)
	if err != nil {
		return nil, nil, err
	}
	if referral == nil {
		return nil, nil, errNoReferral
	}
	return account, referral, nil
}

func (s *AffiliateEarningService) recordPurchaseTx(tx *gorm.DB, eventKey string, event upstream.Event) (*eventEffect, error) {
	repo := s.repo.WithTx(tx)
	account, referral, err := s.lockReferral(repo, event.ReferredUserID)
	if err != nil {
		return nil, err
	}

	amount := event.PurchaseAmount.Round(2)
	before := referral.TotalPurchases.Decimal
	after := before.Add(amount)
	referral.TotalPurchases = models.NewMoneyFromDecimal(after)
	if err := repo.UpdateReferralFields(referral.ID, map[string]interface{}{
		"total_purchases": referral.TotalPurchases,
	}); err != nil {
		return nil, err
	}
	if err := s.ledger.ApplyReferredRevenue(tx, account, s.rules.ReferredRevenueDelta(before, after, amount)); err != nil {
		return nil, err
	}

	effect := &eventEffect{
		outcome: constants.EventOutcomeApplied,
		detail:  fmt.Sprintf("purchase %s recorded", amount.StringFixed(2)),
		codes:   []string{account.AffiliateCode},
	}
	commission := s.rules.PurchaseCommission(before, after, event.UpstreamCommission)
	if !commission.IsPositive() {
		return effect, nil
	}
	earning, err := s.credit(tx, account, referral, &models.AffiliateEarning{
		EarningType:    constants.AffiliateEarningTypePurchaseCommission,
		Amount:         models.NewMoneyFromDecimal(commission),
		SourceAmount:   models.NewMoneyFromDecimal(event.UpstreamCommission),
		Description:    fmt.Sprintf("%s%% commission on %s", s.rules.CommissionRatePercent.String(), event.UpstreamCommission.StringFixed(2)),
		IdempotencyKey: constants.IdempotencyPrefixPurchase + ":" + eventKey,
		SourceEventID:  eventKey,
	})
	if err != nil {
		return nil, err
	}
	if earning != nil {
		effect.earnings = append(effect.earnings, *earning)
	}
	return effect, nil
}

func (s *AffiliateEarningService) markProTx(tx *gorm.DB, eventKey string, event upstream.Event) (*eventEffect, error) {
	repo := s.repo.WithTx(tx)
	account, referral, err := s.lockReferral(repo, event.ReferredUserID)
	if err != nil {
		return nil, err
	}
	effect := &eventEffect{outcome: constants.EventOutcomeApplied, codes: []string{account.AffiliateCode}}
	if err := s.convertToPro(tx, account, referral, eventKey, event.OccurredAt, effect); err != nil {
		return nil, err
	}
	return effect, nil
}

func (s *AffiliateEarningService) creditRecurringTx(tx *gorm.DB, eventKey string, event upstream.Event) (*eventEffect, error) {
	repo := s.repo.WithTx(tx)
	account, referral, err := s.lockReferral(repo, event.ReferredUserID)
	if err != nil {
		return nil, err
	}
	effect := &eventEffect{outcome: constants.EventOutcomeApplied, codes: []string{account.AffiliateCode}}
	if !referral.IsProMember {
		if err := s.convertToPro(tx, account, referral, eventKey, event.OccurredAt, effect); err != nil {
			return nil, err
		}
	}
	period := strings.TrimSpace(event.BillingPeriod)
	earning, err := s.credit(tx, account, referral, &models.AffiliateEarning{
		EarningType:    constants.AffiliateEarningTypeProRecurring,
		Amount:         models.NewMoneyFromDecimal(s.rules.ProRecurringAmount),
		Description:    "pro renewal " + period,
		IdempotencyKey: fmt.Sprintf("%s:%d:%s", constants.IdempotencyPrefixProRecurring, referral.ID, period),
		SourceEventID:  eventKey,
	})
	if err != nil {
		return nil, err
	}
	if earning != nil {
		effect.earnings = append(effect.earnings, *earning)
		effect.detail = strings.TrimSpace(effect.detail + " recurring credited for " + period)
	} else {
		effect.detail = strings.TrimSpace(effect.detail + " recurring already credited for " + period)
	}
	return effect, nil
}

func (s *AffiliateEarningService) endProTx(tx *gorm.DB, event upstream.Event) (*eventEffect, error) {
	repo := s.repo.WithTx(tx)
	unlocked, err := repo.GetReferralByReferredUser(event.ReferredUserID)
	if err != nil {
		return nil, err
	}
	if unlocked == nil {
		return nil, errNoReferral
	}
	referral, err := repo.GetReferralByIDForUpdate(unlocked.ID)
	if err != nil {
		return nil, err
	}
	if referral == nil || !referral.IsProMember {
		return &eventEffect{outcome: constants.EventOutcomeIgnored, detail: "referral is not a pro member"}, nil
	}
	endedAt := event.OccurredAt
	if err := repo.UpdateReferralFields(referral.ID, map[string]interface{}{
		"is_pro_member": false,
		"pro_ended_at":  endedAt,
	}); err != nil {
		return nil, err
	}
	return &eventEffect{outcome: constants.EventOutcomeApplied, detail: "pro membership ended"}, nil
}

func (s *AffiliateEarningService) convertToPro(tx *gorm.DB, account *models.AffiliateAccount, referral *models.AffiliateReferral, eventKey string, at time.Time, effect *eventEffect) error {
	if !referral.IsProMember {
		since := at
		referral.IsProMember = true
		referral.ProSince = &since
		referral.ProEndedAt = nil
		if err := s.repo.WithTx(tx).UpdateReferralFields(referral.ID, map[string]interface{}{
			"is_pro_member": true,
			"pro_since":     since,
			"pro_ended_at":  nil,
		}); err != nil {
			return err
		}
	}
	earning, err := s.credit(tx, account, referral, &models.AffiliateEarning{
		EarningType:    constants.AffiliateEarningTypeProBonus,
		Amount:         models.NewMoneyFromDecimal(s.rules.ProBonusAmount),
		Description:    "pro conversion bonus",
		IdempotencyKey: fmt.Sprintf("%s:%d", constants.IdempotencyPrefixProBonus, referral.ID),
		SourceEventID:  eventKey,
	})
	if err != nil {
		return err
	}
	if earning != nil {
		effect.earnings = append(effect.earnings, *earning)
		effect.detail = "pro bonus credited"
	} else {
		effect.detail = "pro bonus already credited"
	}
	return nil
}

// credit 幂等入账，幂等键已存在时返回 nil
func (s *AffiliateEarningService) credit(tx *gorm.DB, account *models.AffiliateAccount, referral *models.AffiliateReferral, earning *models.AffiliateEarning) (*models.AffiliateEarning, error) {
	existing, err := s.repo.WithTx(tx).GetEarningByIdempotencyKey(earning.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, nil
	}
	if !earning.Amount.IsPositive() {
		return nil, nil
	}
	if err := s.ledger.ApplyEarning(tx, account, referral, earning); err != nil {
		return nil, err
	}
	return earning, nil
}

// ReverseEarning 管理端冲正一笔收益（追加负数流水）
func (s *AffiliateEarningService) ReverseEarning(ctx context.Context, adminID, earningID uint, reason string) (*models.AffiliateEarning, error) {
	original, err := s.repo.GetEarningByID(earningID)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, ErrEarningNotFound
	}
	if original.ReversalOfID != nil || !original.Amount.IsPositive() {
		return nil, ErrEarningNotReversible
	}

	reversal := &models.AffiliateEarning{
		EarningType:    original.EarningType,
		Amount:         models.NewMoneyFromDecimal(original.Amount.Neg()),
		SourceAmount:   original.SourceAmount,
		Description:    truncateReason("reversal: " + strings.TrimSpace(reason)),
		IdempotencyKey: fmt.Sprintf("%s:%d", constants.IdempotencyPrefixReversal, original.ID),
		ReversalOfID:   &original.ID,
		SourceEventID:  fmt.Sprintf("admin:%d", adminID),
	}
	var account *models.AffiliateAccount
	err = s.repo.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		account, err = repo.GetAccountByIDForUpdate(original.AffiliateAccountID)
		if err != nil {
			return err
		}
		if account == nil {
			return ErrAffiliateNotEnrolled
		}
		referral, err := repo.GetReferralByIDForUpdate(original.AffiliateReferralID)
		if err != nil {
			return err
		}
		if referral == nil {
			return ErrEarningNotFound
		}
		existing, err := repo.GetEarningByIdempotencyKey(reversal.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrEarningNotReversible
		}
		return s.ledger.ApplyEarning(tx, account, referral, reversal)
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrEarningNotReversible
		}
		return nil, err
	}
	s.registry.invalidateHandoff(ctx, account.AffiliateCode)
	metrics.RecordEarning(reversal.EarningType, reversal.Amount.InexactFloat64())
	logger.Warnw("affiliate_earning_reversed",
		"earning_id", original.ID,
		"reversal_id", reversal.ID,
		"amount", reversal.Amount.String(),
		"admin_id", adminID,
		"reason", reason,
	)
	return reversal, nil
}

// ListEarnings 查询收益流水
func (s *AffiliateEarningService) ListEarnings(ctx context.Context, filter repository.AffiliateEarningListFilter) ([]models.AffiliateEarning, int64, error) {
	return s.repo.ListEarnings(filter)
}
