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

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const reconcileBatchSize = 100

// AffiliateLedgerService 推广余额账本
// 账户资金字段只在此处、在账户行锁内写入
type AffiliateLedgerService struct {
	repo  repository.AffiliateRepository
	rules AffiliateRules
}

// NewAffiliateLedgerService 创建账本服务
func NewAffiliateLedgerService(repo repository.AffiliateRepository, rules AffiliateRules) *AffiliateLedgerService {
	return &AffiliateLedgerService{repo: repo, rules: rules}
}

// LedgerBalance 账户余额快照
type LedgerBalance struct {
	TotalEarnings    models.Money `json:"total_earnings"`
	AvailableBalance models.Money `json:"available_balance"`
	ReservedAmount   models.Money `json:"reserved_amount"`
	PaidAmount       models.Money `json:"paid_amount"`
	ReferredRevenue  models.Money `json:"referred_revenue"`
}

// ReferralMismatch 推荐维度的收益差异
type ReferralMismatch struct {
	ReferralID uint         `json:"referral_id"`
	Stored     models.Money `json:"stored"`
	Replayed   models.Money `json:"replayed"`
}

// ReconcileReport 对账结果
type ReconcileReport struct {
	AccountID          uint               `json:"account_id"`
	Stored             LedgerBalance      `json:"stored"`
	Replayed           LedgerBalance      `json:"replayed"`
	ReferralMismatches []ReferralMismatch `json:"referral_mismatches"`
	Differences        []string           `json:"differences"`
	Diverged           bool               `json:"diverged"`
	CheckedAt          time.Time          `json:"checked_at"`
}

// ReconcileSummary 批量对账汇总
type ReconcileSummary struct {
	Checked            int    `json:"checked"`
	Diverged           int    `json:"diverged"`
	Failed             int    `json:"failed"`
	DivergedAccountIDs []uint `json:"diverged_account_ids"`
}

// ApplyEarning 在事务内写入收益流水并入账
// account 与 referral 须已在当前事务内加锁读取
func (s *AffiliateLedgerService) ApplyEarning(tx *gorm.DB, account *models.AffiliateAccount, referral *models.AffiliateReferral, earning *models.AffiliateEarning) error {
	if account == nil || referral == nil || earning == nil {
		return ErrAffiliateNotEnrolled
	}
	repo := s.repo.WithTx(tx)
	earning.AffiliateAccountID = account.ID
	earning.AffiliateReferralID = referral.ID
	if err := repo.CreateEarning(earning); err != nil {
		return err
	}
	amount := earning.Amount.Decimal
	account.TotalEarnings = account.TotalEarnings.Add(amount)
	account.AvailableBalance = account.AvailableBalance.Add(amount)
	if err := repo.UpdateAccountFields(account.ID, map[string]interface{}{
		"total_earnings":    account.TotalEarnings,
		"available_balance": account.AvailableBalance,
	}); err != nil {
		return err
	}
	referral.CommissionEarned = referral.CommissionEarned.Add(amount)
	return repo.UpdateReferralFields(referral.ID, map[string]interface{}{
		"commission_earned": referral.CommissionEarned,
	})
}

// ApplyReferredRevenue 在事务内累加推荐营收
func (s *AffiliateLedgerService) ApplyReferredRevenue(tx *gorm.DB, account *models.AffiliateAccount, delta decimal.Decimal) error {
	if account == nil || delta.IsZero() {
		return nil
	}
	account.TotalReferredRevenue = account.TotalReferredRevenue.Add(delta)
	return s.repo.WithTx(tx).UpdateAccountFields(account.ID, map[string]interface{}{
		"total_referred_revenue": account.TotalReferredRevenue,
	})
}

// ReservePayout 申请提现时扣减可提现余额
func (s *AffiliateLedgerService) ReservePayout(tx *gorm.DB, account *models.AffiliateAccount, payout *models.AffiliatePayout) error {
	if account == nil || payout == nil {
		return ErrAffiliateNotEnrolled
	}
	if payout.Amount.GreaterThan(account.AvailableBalance.Decimal) {
		return ErrInsufficientBalance
	}
	account.AvailableBalance = account.AvailableBalance.Sub(payout.Amount.Decimal)
	return s.repo.WithTx(tx).UpdateAccountFields(account.ID, map[string]interface{}{
		"available_balance": account.AvailableBalance,
	})
}

// ReleasePayout 驳回提现时退回余额
func (s *AffiliateLedgerService) ReleasePayout(tx *gorm.DB, account *models.AffiliateAccount, payout *models.AffiliatePayout) error {
	if account == nil || payout == nil {
		return ErrAffiliateNotEnrolled
	}
	account.AvailableBalance = account.AvailableBalance.Add(payout.Amount.Decimal)
	return s.repo.WithTx(tx).UpdateAccountFields(account.ID, map[string]interface{}{
		"available_balance": account.AvailableBalance,
	})
}

// GetBalance 读取账户当前余额
func (s *AffiliateLedgerService) GetBalance(ctx context.Context, accountID uint) (LedgerBalance, error) {
	account, err := s.repo.GetAccountByID(accountID)
	if err != nil {
		return LedgerBalance{}, err
	}
	if account == nil {
		return LedgerBalance{}, ErrAffiliateNotEnrolled
	}
	return s.storedBalance(s.repo, account)
}

// Replay 仅根据收益与提现流水重算余额
func (s *AffiliateLedgerService) Replay(ctx context.Context, accountID uint) (LedgerBalance, error) {
	account, err := s.repo.GetAccountByID(accountID)
	if err != nil {
		return LedgerBalance{}, err
	}
	if account == nil {
		return LedgerBalance{}, ErrAffiliateNotEnrolled
	}
	return s.replay(s.repo, accountID)
}

// Reconcile 对账：比对账户存量与流水重算结果，不一致时冻结提现
func (s *AffiliateLedgerService) Reconcile(ctx context.Context, accountID uint) (*ReconcileReport, error) {
	var report *ReconcileReport
	haltedNow := false
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := repo.GetAccountByIDForUpdate(accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return ErrAffiliateNotEnrolled
		}
		report, err = s.compare(repo, account)
		if err != nil {
			return err
		}
		if !report.Diverged || account.PayoutsHalted {
			return nil
		}
		haltedNow = true
		return repo.UpdateAccountFields(account.ID, map[string]interface{}{
			"payouts_halted": true,
			"halted_reason":  truncateReason(strings.Join(report.Differences, "; ")),
			"halted_at":      report.CheckedAt,
		})
	})
	if err != nil {
		metrics.RecordReconcileRun("failed")
		return nil, err
	}
	if !report.Diverged {
		metrics.RecordReconcileRun("clean")
		return report, nil
	}

	metrics.RecordReconcileRun("diverged")
	metrics.RecordLedgerDivergence()
	logger.Errorw("affiliate_ledger_divergence",
		"account_id", accountID,
		"differences", report.Differences,
		"halted_now", haltedNow,
	)
	return report, fmt.Errorf("account %d: %w", accountID, ErrLedgerDivergence)
}

// ReconcileAll 分批对账全部账户，单个账户异常不中断
func (s *AffiliateLedgerService) ReconcileAll(ctx context.Context) (*ReconcileSummary, error) {
	summary := &ReconcileSummary{DivergedAccountIDs: make([]uint, 0)}
	afterID := uint(0)
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		ids, err := s.repo.ListAccountIDsAfter(afterID, reconcileBatchSize)
		if err != nil {
			return summary, err
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			summary.Checked++
			if _, err := s.Reconcile(ctx, id); err != nil {
				if errors.Is(err, ErrLedgerDivergence) {
					summary.Diverged++
					summary.DivergedAccountIDs = append(summary.DivergedAccountIDs, id)
					continue
				}
				summary.Failed++
				logger.Warnw("affiliate_reconcile_account_failed", "account_id", id, "error", err)
			}
		}
		afterID = ids[len(ids)-1]
		if len(ids) < reconcileBatchSize {
			break
		}
	}
	logger.Infow("affiliate_reconcile_all_finished",
		"checked", summary.Checked,
		"diverged", summary.Diverged,
		"failed", summary.Failed,
	)
	return summary, nil
}

// ResumePayouts 人工复核后恢复提现，仅在对账一致时解除冻结
func (s *AffiliateLedgerService) ResumePayouts(ctx context.Context, adminID, accountID uint) (*ReconcileReport, error) {
	var report *ReconcileReport
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := repo.GetAccountByIDForUpdate(accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return ErrAffiliateNotEnrolled
		}
		report, err = s.compare(repo, account)
		if err != nil {
			return err
		}
		if report.Diverged {
			return fmt.Errorf("account %d: %w", accountID, ErrLedgerDivergence)
		}
		if !account.PayoutsHalted {
			return nil
		}
		return repo.UpdateAccountFields(account.ID, map[string]interface{}{
			"payouts_halted": false,
			"halted_reason":  "",
			"halted_at":      nil,
		})
	})
	if err != nil {
		return report, err
	}
	logger.Infow("affiliate_payouts_resumed", "account_id", accountID, "admin_id", adminID)
	return report, nil
}

func (s *AffiliateLedgerService) storedBalance(repo repository.AffiliateRepository, account *models.AffiliateAccount) (LedgerBalance, error) {
	reserved, err := repo.SumPayoutsByAccount(account.ID, []string{
		constants.AffiliatePayoutStatusPending,
		constants.AffiliatePayoutStatusApproved,
	})
	if err != nil {
		return LedgerBalance{}, err
	}
	paid, err := repo.SumPayoutsByAccount(account.ID, []string{constants.AffiliatePayoutStatusPaid})
	if err != nil {
		return LedgerBalance{}, err
	}
	return LedgerBalance{
		TotalEarnings:    account.TotalEarnings,
		AvailableBalance: account.AvailableBalance,
		ReservedAmount:   models.NewMoneyFromDecimal(reserved),
		PaidAmount:       models.NewMoneyFromDecimal(paid),
		ReferredRevenue:  account.TotalReferredRevenue,
	}, nil
}

func (s *AffiliateLedgerService) replay(repo repository.AffiliateRepository, accountID uint) (LedgerBalance, error) {
	earned, err := repo.SumEarningsByAccount(accountID)
	if err != nil {
		return LedgerBalance{}, err
	}
	reserved, err := repo.SumPayoutsByAccount(accountID, []string{
		constants.AffiliatePayoutStatusPending,
		constants.AffiliatePayoutStatusApproved,
	})
	if err != nil {
		return LedgerBalance{}, err
	}
	paid, err := repo.SumPayoutsByAccount(accountID, []string{constants.AffiliatePayoutStatusPaid})
	if err != nil {
		return LedgerBalance{}, err
	}
	referrals, err := repo.ListReferralsByAccount(accountID)
	if err != nil {
		return LedgerBalance{}, err
	}
	totals := make([]decimal.Decimal, 0, len(referrals))
	for _, referral := range referrals {
		totals = append(totals, referral.TotalPurchases.Decimal)
	}
	return LedgerBalance{
		TotalEarnings:    models.NewMoneyFromDecimal(earned),
		AvailableBalance: models.NewMoneyFromDecimal(earned.Sub(reserved).Sub(paid)),
		ReservedAmount:   models.NewMoneyFromDecimal(reserved),
		PaidAmount:       models.NewMoneyFromDecimal(paid),
		ReferredRevenue:  models.NewMoneyFromDecimal(s.rules.ReplayReferredRevenue(totals)),
	}, nil
}

func (s *AffiliateLedgerService) compare(repo repository.AffiliateRepository, account *models.AffiliateAccount) (*ReconcileReport, error) {
	stored, err := s.storedBalance(repo, account)
	if err != nil {
		return nil, err
	}
	replayed, err := s.replay(repo, account.ID)
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{
		AccountID:          account.ID,
		Stored:             stored,
		Replayed:           replayed,
		ReferralMismatches: make([]ReferralMismatch, 0),
		Differences:        make([]string, 0),
		CheckedAt:          time.Now(),
	}
	check := func(field string, storedValue, replayedValue models.Money) {
		if !storedValue.Equal(replayedValue) {
			report.Differences = append(report.Differences,
				fmt.Sprintf("%s stored=%s replayed=%s", field, storedValue, replayedValue))
		}
	}
	check("total_earnings", stored.TotalEarnings, replayed.TotalEarnings)
	check("available_balance", stored.AvailableBalance, replayed.AvailableBalance)
	check("total_referred_revenue", stored.ReferredRevenue, replayed.ReferredRevenue)

	perReferral, err := repo.SumEarningsByReferral(account.ID)
	if err != nil {
		return nil, err
	}
	referrals, err := repo.ListReferralsByAccount(account.ID)
	if err != nil {
		return nil, err
	}
	for _, referral := range referrals {
		replayedCommission := models.NewMoneyFromDecimal(perReferral[referral.ID])
		if referral.CommissionEarned.Equal(replayedCommission) {
			continue
		}
		report.ReferralMismatches = append(report.ReferralMismatches, ReferralMismatch{
			ReferralID: referral.ID,
			Stored:     referral.CommissionEarned,
			Replayed:   replayedCommission,
		})
		report.Differences = append(report.Differences,
			fmt.Sprintf("referral %d commission_earned stored=%s replayed=%s", referral.ID, referral.CommissionEarned, replayedCommission))
	}
	report.Diverged = len(report.Differences) > 0
	return report, nil
}

func truncateReason(reason string) string {
	const maxLen = 255
	if len(reason) <= maxLen {
		return reason
	}
	return reason[:maxLen]
}
