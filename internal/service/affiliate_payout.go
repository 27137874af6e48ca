package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/constants"
	"github.com/garagebot/affiliate-ledger/internal/logger"
	"github.com/garagebot/affiliate-ledger/internal/metrics"
	"github.com/garagebot/affiliate-ledger/internal/models"
	"github.com/garagebot/affiliate-ledger/internal/repository"

	"gorm.io/gorm"
)

// AffiliatePayoutService 推广提现流程
// pending -> approved -> paid，pending -> rejected
type AffiliatePayoutService struct {
	repo   repository.AffiliateRepository
	rules  AffiliateRules
	ledger *AffiliateLedgerService
}

// NewAffiliatePayoutService 创建提现服务
func NewAffiliatePayoutService(repo repository.AffiliateRepository, rules AffiliateRules, ledger *AffiliateLedgerService) *AffiliatePayoutService {
	return &AffiliatePayoutService{repo: repo, rules: rules, ledger: ledger}
}

// RequestPayout 申请提现，金额为当前全部可提现余额，申请即扣减
func (s *AffiliatePayoutService) RequestPayout(ctx context.Context, userID uint) (*models.AffiliatePayout, error) {
	var payout *models.AffiliatePayout
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := repo.GetAccountByUserIDForUpdate(userID)
		if err != nil {
			return err
		}
		if account == nil {
			return ErrAffiliateNotEnrolled
		}
		if account.Status == constants.AffiliateAccountStatusSuspended {
			return ErrAffiliateSuspended
		}
		if account.PayoutsHalted {
			return ErrLedgerDivergence
		}
		if !s.rules.CanRequestPayout(account.AvailableBalance.Decimal) {
			return ErrInsufficientBalance
		}
		if strings.TrimSpace(account.PaypalEmail) == "" {
			return ErrMissingPayoutDestination
		}
		open, err := repo.GetOpenPayoutByAccount(account.ID)
		if err != nil {
			return err
		}
		if open != nil {
			return ErrPayoutAlreadyPending
		}

		accountID := account.ID
		payout = &models.AffiliatePayout{
			AffiliateAccountID: account.ID,
			Amount:             account.AvailableBalance,
			PaypalEmail:        account.PaypalEmail,
			Status:             constants.AffiliatePayoutStatusPending,
			OpenAccountID:      &accountID,
			RequestedAt:        time.Now(),
		}
		if err := repo.CreatePayout(payout); err != nil {
			if repository.IsUniqueViolation(err) {
				return ErrPayoutAlreadyPending
			}
			return err
		}
		return s.ledger.ReservePayout(tx, account, payout)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordPayoutTransition(constants.AffiliatePayoutStatusPending)
	logger.Infow("affiliate_payout_requested",
		"payout_id", payout.ID,
		"account_id", payout.AffiliateAccountID,
		"amount", payout.Amount.String(),
	)
	return payout, nil
}

// ApprovePayout 审核通过
func (s *AffiliatePayoutService) ApprovePayout(ctx context.Context, adminID, payoutID uint) (*models.AffiliatePayout, error) {
	return s.transition(adminID, payoutID, constants.AffiliatePayoutStatusPending, constants.AffiliatePayoutStatusApproved,
		func(tx *gorm.DB, account *models.AffiliateAccount, payout *models.AffiliatePayout, now time.Time) (map[string]interface{}, error) {
			if account.PayoutsHalted {
				return nil, ErrLedgerDivergence
			}
			payout.ApprovedAt = &now
			return map[string]interface{}{"approved_at": now}, nil
		})
}

// MarkPayoutPaid 记录线下打款完成
func (s *AffiliatePayoutService) MarkPayoutPaid(ctx context.Context, adminID, payoutID uint, externalRef string) (*models.AffiliatePayout, error) {
	ref := strings.TrimSpace(externalRef)
	return s.transition(adminID, payoutID, constants.AffiliatePayoutStatusApproved, constants.AffiliatePayoutStatusPaid,
		func(tx *gorm.DB, account *models.AffiliateAccount, payout *models.AffiliatePayout, now time.Time) (map[string]interface{}, error) {
			if account.PayoutsHalted {
				return nil, ErrLedgerDivergence
			}
			payout.PaidAt = &now
			payout.ExternalRef = ref
			payout.OpenAccountID = nil
			return map[string]interface{}{
				"paid_at":         now,
				"external_ref":    ref,
				"open_account_id": nil,
			}, nil
		})
}

// RejectPayout 驳回提现并退回余额
func (s *AffiliatePayoutService) RejectPayout(ctx context.Context, adminID, payoutID uint, reason string) (*models.AffiliatePayout, error) {
	reason = truncateReason(strings.TrimSpace(reason))
	return s.transition(adminID, payoutID, constants.AffiliatePayoutStatusPending, constants.AffiliatePayoutStatusRejected,
		func(tx *gorm.DB, account *models.AffiliateAccount, payout *models.AffiliatePayout, now time.Time) (map[string]interface{}, error) {
			if err := s.ledger.ReleasePayout(tx, account, payout); err != nil {
				return nil, err
			}
			payout.RejectedAt = &now
			payout.RejectReason = reason
			payout.OpenAccountID = nil
			return map[string]interface{}{
				"rejected_at":     now,
				"reject_reason":   reason,
				"open_account_id": nil,
			}, nil
		})
}

type payoutTransitionFunc func(tx *gorm.DB, account *models.AffiliateAccount, payout *models.AffiliatePayout, now time.Time) (map[string]interface{}, error)

func (s *AffiliatePayoutService) transition(adminID, payoutID uint, from, to string, apply payoutTransitionFunc) (*models.AffiliatePayout, error) {
	unlocked, err := s.repo.GetPayoutByID(payoutID)
	if err != nil {
		return nil, err
	}
	if unlocked == nil {
		return nil, ErrPayoutNotFound
	}

	var payout *models.AffiliatePayout
	err = s.repo.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := repo.GetAccountByIDForUpdate(unlocked.AffiliateAccountID)
		if err != nil {
			return err
		}
		if account == nil {
			return ErrAffiliateNotEnrolled
		}
		payout, err = repo.GetPayoutByIDForUpdate(payoutID)
		if err != nil {
			return err
		}
		if payout == nil {
			return ErrPayoutNotFound
		}
		if payout.Status != from {
			return fmt.Errorf("%w: %s -> %s", ErrPayoutStatusInvalid, payout.Status, to)
		}
		now := time.Now()
		updates, err := apply(tx, account, payout, now)
		if err != nil {
			return err
		}
		updates["status"] = to
		if adminID != 0 {
			updates["processed_by"] = adminID
			processedBy := adminID
			payout.ProcessedBy = &processedBy
		}
		payout.Status = to
		return repo.UpdatePayoutFields(payout.ID, updates)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordPayoutTransition(to)
	logger.Infow("affiliate_payout_transitioned",
		"payout_id", payout.ID,
		"account_id", payout.AffiliateAccountID,
		"from", from,
		"to", to,
		"admin_id", adminID,
	)
	return payout, nil
}

// ListPayouts 查询提现申请
func (s *AffiliatePayoutService) ListPayouts(ctx context.Context, filter repository.AffiliatePayoutListFilter) ([]models.AffiliatePayout, int64, error) {
	return s.repo.ListPayouts(filter)
}
