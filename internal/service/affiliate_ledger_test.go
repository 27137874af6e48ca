package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/config"
	"github.com/garagebot/affiliate-ledger/internal/constants"
	"github.com/garagebot/affiliate-ledger/internal/models"
	"github.com/garagebot/affiliate-ledger/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type affiliateTestEnv struct {
	db         *gorm.DB
	repo       *repository.GormAffiliateRepository
	rules      AffiliateRules
	ledger     *AffiliateLedgerService
	affiliates *AffiliateService
	earnings   *AffiliateEarningService
	payouts    *AffiliatePayoutService
}

func TestLedgerQualifiedPurchaseScenario(t *testing.T) {
	env := setupAffiliateTest(t)
	account := enrollTestAffiliate(t, env, 1, "owner@example.com")
	referTestUser(t, env, account.AffiliateCode, 42)

	result := recordTestPurchase(t, env, "evt-150", 42, "150.00", "30.00")
	if result.Outcome != constants.EventOutcomeApplied || len(result.Earnings) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !result.Earnings[0].Amount.Decimal.Equal(d("3.00")) {
		t.Fatalf("want commission 3.00 got %s", result.Earnings[0].Amount)
	}

	reloaded := reloadTestAccount(t, env, account.ID)
	if !reloaded.TotalEarnings.Decimal.Equal(d("3")) || !reloaded.AvailableBalance.Decimal.Equal(d("3")) {
		t.Fatalf("unexpected balances: total=%s available=%s", reloaded.TotalEarnings, reloaded.AvailableBalance)
	}
	if !reloaded.TotalReferredRevenue.Decimal.Equal(d("150")) {
		t.Fatalf("unexpected referred revenue: %s", reloaded.TotalReferredRevenue)
	}
	assertLedgerConsistent(t, env, account.ID)
}

func TestLedgerReservesOnRequestAndReleasesOnReject(t *testing.T) {
	env := setupAffiliateTest(t)
	account := enrollTestAffiliate(t, env, 1, "owner@example.com")
	referTestUser(t, env, account.AffiliateCode, 42)
	recordTestPurchase(t, env, "evt-200", 42, "200.00", "200.00")

	payout, err := env.payouts.RequestPayout(context.Background(), 1)
	if err != nil {
		t.Fatalf("request payout failed: %v", err)
	}
	if !payout.Amount.Decimal.Equal(d("20")) {
		t.Fatalf("want payout 20.00 got %s", payout.Amount)
	}
	balance, err := env.ledger.GetBalance(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if !balance.AvailableBalance.Decimal.IsZero() || !balance.ReservedAmount.Decimal.Equal(d("20")) {
		t.Fatalf("unexpected balance after request: %+v", balance)
	}
	assertLedgerConsistent(t, env, account.ID)

	if _, err := env.payouts.RejectPayout(context.Background(), 9, payout.ID, "paypal bounced"); err != nil {
		t.Fatalf("reject payout failed: %v", err)
	}
	reloaded := reloadTestAccount(t, env, account.ID)
	if !reloaded.AvailableBalance.Decimal.Equal(d("20")) {
		t.Fatalf("reject should restore 20.00, got %s", reloaded.AvailableBalance)
	}
	assertLedgerConsistent(t, env, account.ID)
}

func TestLedgerReconcileDetectsDivergenceAndHalts(t *testing.T) {
	env := setupAffiliateTest(t)
	account := enrollTestAffiliate(t, env, 1, "owner@example.com")
	referTestUser(t, env, account.AffiliateCode, 42)
	recordTestPurchase(t, env, "evt-300", 42, "300.00", "300.00")

	report, err := env.ledger.Reconcile(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("clean ledger should reconcile: %v", err)
	}
	if report.Diverged {
		t.Fatalf("clean ledger reported divergence: %+v", report)
	}

	if err := env.db.Model(&models.AffiliateAccount{}).Where("id = ?", account.ID).
		Update("available_balance", models.MustMoney("999.00")).Error; err != nil {
		t.Fatalf("tamper balance failed: %v", err)
	}
	report, err = env.ledger.Reconcile(context.Background(), account.ID)
	if !errors.Is(err, ErrLedgerDivergence) {
		t.Fatalf("want ErrLedgerDivergence got %v", err)
	}
	if report == nil || !report.Diverged || len(report.Differences) == 0 {
		t.Fatalf("expected divergence report, got %+v", report)
	}
	reloaded := reloadTestAccount(t, env, account.ID)
	if !reloaded.PayoutsHalted || reloaded.HaltedAt == nil || reloaded.HaltedReason == "" {
		t.Fatalf("account should be halted: %+v", reloaded)
	}
	if !reloaded.AvailableBalance.Decimal.Equal(d("999")) {
		t.Fatalf("reconcile must not auto-correct, got %s", reloaded.AvailableBalance)
	}

	if _, err := env.payouts.RequestPayout(context.Background(), 1); !errors.Is(err, ErrLedgerDivergence) {
		t.Fatalf("halted account payout want ErrLedgerDivergence got %v", err)
	}
	if _, err := env.ledger.ResumePayouts(context.Background(), 9, account.ID); !errors.Is(err, ErrLedgerDivergence) {
		t.Fatalf("resume on diverged ledger want ErrLedgerDivergence got %v", err)
	}

	if err := env.db.Model(&models.AffiliateAccount{}).Where("id = ?", account.ID).
		Update("available_balance", models.MustMoney("30.00")).Error; err != nil {
		t.Fatalf("repair balance failed: %v", err)
	}
	if _, err := env.ledger.ResumePayouts(context.Background(), 9, account.ID); err != nil {
		t.Fatalf("resume after repair failed: %v", err)
	}
	if reloadTestAccount(t, env, account.ID).PayoutsHalted {
		t.Fatalf("payouts should be resumed")
	}
	if _, err := env.payouts.RequestPayout(context.Background(), 1); err != nil {
		t.Fatalf("request after resume failed: %v", err)
	}
}

func TestLedgerReconcileDetectsReferralCommissionDrift(t *testing.T) {
	env := setupAffiliateTest(t)
	account := enrollTestAffiliate(t, env, 1, "owner@example.com")
	referral := referTestUser(t, env, account.AffiliateCode, 42)
	recordTestPurchase(t, env, "evt-1", 42, "150.00", "30.00")

	if err := env.db.Model(&models.AffiliateReferral{}).Where("id = ?", referral.ID).
		Update("commission_earned", models.MustMoney("4.00")).Error; err != nil {
		t.Fatalf("tamper referral failed: %v", err)
	}
	report, err := env.ledger.Reconcile(context.Background(), account.ID)
	if !errors.Is(err, ErrLedgerDivergence) {
		t.Fatalf("want ErrLedgerDivergence got %v", err)
	}
	if len(report.ReferralMismatches) != 1 || report.ReferralMismatches[0].ReferralID != referral.ID {
		t.Fatalf("unexpected referral mismatches: %+v", report.ReferralMismatches)
	}
}

func TestLedgerReconcileAllContinuesPastDivergence(t *testing.T) {
	env := setupAffiliateTest(t)
	clean := enrollTestAffiliate(t, env, 1, "a@example.com")
	broken := enrollTestAffiliate(t, env, 2, "b@example.com")
	referTestUser(t, env, clean.AffiliateCode, 41)
	referTestUser(t, env, broken.AffiliateCode, 42)
	recordTestPurchase(t, env, "evt-a", 41, "120.00", "120.00")
	recordTestPurchase(t, env, "evt-b", 42, "120.00", "120.00")

	if err := env.db.Model(&models.AffiliateAccount{}).Where("id = ?", broken.ID).
		Update("total_earnings", models.MustMoney("1.00")).Error; err != nil {
		t.Fatalf("tamper failed: %v", err)
	}
	summary, err := env.ledger.ReconcileAll(context.Background())
	if err != nil {
		t.Fatalf("reconcile all failed: %v", err)
	}
	if summary.Checked != 2 || summary.Diverged != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.DivergedAccountIDs) != 1 || summary.DivergedAccountIDs[0] != broken.ID {
		t.Fatalf("unexpected diverged ids: %+v", summary.DivergedAccountIDs)
	}
	if reloadTestAccount(t, env, clean.ID).PayoutsHalted {
		t.Fatalf("clean account must not be halted")
	}
}

func TestLedgerReconcileAllRespectsCanceledContext(t *testing.T) {
	env := setupAffiliateTest(t)
	enrollTestAffiliate(t, env, 1, "a@example.com")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := env.ledger.ReconcileAll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled got %v", err)
	}
}

func TestLedgerUnknownAccount(t *testing.T) {
	env := setupAffiliateTest(t)
	if _, err := env.ledger.GetBalance(context.Background(), 404); !errors.Is(err, ErrAffiliateNotEnrolled) {
		t.Fatalf("want ErrAffiliateNotEnrolled got %v", err)
	}
	if _, err := env.ledger.Reconcile(context.Background(), 404); !errors.Is(err, ErrAffiliateNotEnrolled) {
		t.Fatalf("want ErrAffiliateNotEnrolled got %v", err)
	}
}

func setupAffiliateTest(t *testing.T, mutate ...func(*AffiliateRules)) *affiliateTestEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:affiliate_ledger_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	rules := DefaultAffiliateRules()
	for _, fn := range mutate {
		fn(&rules)
	}
	repo := repository.NewAffiliateRepository(db)
	ledger := NewAffiliateLedgerService(repo, rules)
	affiliates := NewAffiliateService(repo, ledger, rules, config.AffiliateConfig{
		ShareBaseURL: "https://garagebot.io/",
		TrustLayer: config.TrustLayerConfig{
			Schema:    "darkwave-trust-layer-v1",
			Source:    "garagebot",
			Ecosystem: "darkwave",
		},
	})
	return &affiliateTestEnv{
		db:         db,
		repo:       repo,
		rules:      rules,
		ledger:     ledger,
		affiliates: affiliates,
		earnings:   NewAffiliateEarningService(repo, rules, ledger, affiliates),
		payouts:    NewAffiliatePayoutService(repo, rules, ledger),
	}
}

func enrollTestAffiliate(t *testing.T, env *affiliateTestEnv, userID uint, email string) *models.AffiliateAccount {
	t.Helper()
	account, err := env.affiliates.Enroll(context.Background(), userID, fmt.Sprintf("user%d", userID), email)
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	return account
}

func referTestUser(t *testing.T, env *affiliateTestEnv, code string, referredUserID uint) *models.AffiliateReferral {
	t.Helper()
	referral, err := env.affiliates.RecordReferral(context.Background(), code, referredUserID, fmt.Sprintf("buyer%d", referredUserID))
	if err != nil {
		t.Fatalf("record referral failed: %v", err)
	}
	return referral
}

func recordTestPurchase(t *testing.T, env *affiliateTestEnv, key string, userID uint, amount, commission string) *EventResult {
	t.Helper()
	result, err := env.earnings.RecordPurchase(context.Background(), PurchaseEvent{
		EventKey:           key,
		ReferredUserID:     userID,
		PurchaseAmount:     d(amount),
		UpstreamCommission: d(commission),
	})
	if err != nil {
		t.Fatalf("record purchase failed: %v", err)
	}
	return result
}

func reloadTestAccount(t *testing.T, env *affiliateTestEnv, accountID uint) *models.AffiliateAccount {
	t.Helper()
	account, err := env.repo.GetAccountByID(accountID)
	if err != nil || account == nil {
		t.Fatalf("reload account failed: %v", err)
	}
	return account
}

// assertLedgerConsistent availableBalance == Σ earnings − Σ pending/approved/paid payouts
func assertLedgerConsistent(t *testing.T, env *affiliateTestEnv, accountID uint) {
	t.Helper()
	stored, err := env.ledger.GetBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	replayed, err := env.ledger.Replay(context.Background(), accountID)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !stored.AvailableBalance.Equal(replayed.AvailableBalance) || !stored.TotalEarnings.Equal(replayed.TotalEarnings) {
		t.Fatalf("ledger inconsistent: stored=%+v replayed=%+v", stored, replayed)
	}
	if _, err := env.ledger.Reconcile(context.Background(), accountID); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
}
