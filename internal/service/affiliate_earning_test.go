package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/constants"
	"github.com/garagebot/affiliate-ledger/internal/models"
	"github.com/garagebot/affiliate-ledger/internal/repository"
	"github.com/garagebot/affiliate-ledger/internal/upstream"
)

func TestRecordPurchaseBelowThresholdEarnsNothing(t *testing.T) {
	env := setupAffiliateTest(t)
	account := enrollTestAffiliate(t, env, 1, "owner@example.com")
	referTestUser(t, env, account.AffiliateCode, 42)

	result := recordTestPurchase(t, env, "evt-1", 42, "99.99", "99.99")
	if len(result.Earnings) != 0 {
		t.Fatalf("unqualified referral should not earn, got %+v", result.Earnings)
	}
	dashboard, err := env.affiliates.GetDashboard(context.Background(), 1)
	if err != nil {
		t.Fatalf("get dashboard failed: %v", err)
	}
	if dashboard.Referrals[0].Qualified || dashboard.QualifiedReferrals != 0 {
		t.Fatalf("99.99 should not be qualified")
	}

	recordTestPurchase(t, env, "evt-2", 42, "0.01", "0.01")
	dashboard, err = env.affiliates.GetDashboard(context.Background(), 1)
	if err != nil {
		t.Fatalf("get dashboard failed: %v", err)
	}
	if !dashboard.Referrals[0].Qualified || dashboard.QualifiedReferrals != 1 {
		t.Fatalf("100.00 should be qualified")
	}
	if !dashboard.Referrals[0].TotalPurchases.Decimal.Equal(d("100")) {
		t.Fatalf("unexpected total purchases: %s", dashboard.Referrals[0].TotalPurchases)
	}

	result = recordTestPurchase(t, env, "evt-3", 42, "50.00", "20.00")
	if len(result.Earnings) != 1 || !result.Earnings[0].Amount.Decimal.Equal(d("2")) {
		t.Fatalf("qualified purchase should earn 2.00, got %+v", result.Earnings)
	}
	assertLedgerConsistent(t, env, account.ID)
}

func TestRecordPurchaseZeroCommissionCountsTowardsQualification(t *testing.T) {
	env := setupAffiliateTest(t)
	account := enrollTestAffiliate(t, env, 1, "owner@example.com")
	referTestUser(t, env, account.AffiliateCode, 42)

	result := recordTestPurchase(t, env, "evt-free", 42, "150.00", "0")
	if len(result.Earnings) != 0 {
		t.Fatalf("zero upstream commission must not earn, got %+v", result.Earnings)
	}
	referral, err := env.repo.GetReferralByReferredUser(42)
	if err != nil || referral == nil {
		t.Fatalf("load referral failed: %v", err)
	}
	if !referral.TotalPurchases.Decimal.Equal(d("150")) {
		t.Fatalf("purchase should still count, got %s", referral.TotalPurchases)
	}

	// 已达标后的佣金只按主站佣金计算，与消费金额无关
	result = recordTestPurchase(t, env, "evt-paid", 42, "500.00", "10.00")
	if len(result.Earnings) != 1 || !result.Earnings[0].Amount.Decimal.Equal(d("1")) {
		t.Fatalf("commission should be 10%% of upstream commission, got %+v", result.Earnings)
	}
	if !reloadTestAccount(t, env, account.ID).AvailableBalance.Decimal.Equal(d("1")) {
		t.Fatalf("unexpected balance after commission")
	}
	assertLedgerConsistent(t, env, account.ID)
}

func TestRecordPurchaseCrossingPolicies(t *testing.T) {
	cases := []struct {
		policy string
		want   string
	}{
		{constants.CrossingPurchaseInclude, "3.00"},
		{constants.CrossingPurchaseExclude, "0"},
		{constants.CrossingPurchaseProrate, "1.00"},
	}
	for _, tc := range cases {
		env := setupAffiliateTest(t, func(r *AffiliateRules) { r.CrossingPurchasePolicy = tc.policy })
		account := enrollTestAffiliate(t, env, 1, "owner@example.com")
		referTestUser(t, env, account.AffiliateCode, 42)
		recordTestPurchase(t, env, "evt-1", 42, "150.00", "30.00")

		reloaded := reloadTestAccount(t, env, account.ID)
		if !reloaded.TotalEarnings.Decimal.Equal(d(tc.want)) {
			t.Fatalf("%s: want %s got %s", tc.policy, tc.want, reloaded.TotalEarnings)
		}
		assertLedgerConsistent(t, env, account.ID)
	}
}

func TestRecordPurchaseReferredRevenueModes(t *testing.T) {
	cases := []struct {
		mode  string
		after []string
	}{
		{constants.ReferredRevenueModeAll, []string{"50", "120", "150"}},
		{constants.ReferredRevenueModeQualified, []string{"0", "120", "150"}},
	}
	for _, tc := range cases {
		env := setupAffiliateTest(t, func(r *AffiliateRules) { r.ReferredRevenueMode = tc.mode })
		account := enrollTestAffiliate(t, env, 1, "owner@example.com")
		referTestUser(t, env, account.AffiliateCode, 42)
		referTestUser(t, env, account.AffiliateCode, 43)

		purchases := []string{"50.00", "70.00", "30.00"}
		for i, amount := range purchases {
			recordTestPurchase(t, env, "evt-"+amount, 42, amount, amount)
			got := reloadTestAccount(t, env, account.ID).TotalReferredRevenue
			if !got.Decimal.Equal(d(tc.after[i])) {
				t.Fatalf("%s step %d: want %s got %s", tc.mode, i, tc.after[i], got)
			}
		}
		// 未达标的推荐在 qualified 口径下不计入
		recordTestPurchase(t, env, "evt-other", 43, "10.00", "10.00")
		assertLedgerConsistent(t, env, account.ID)
	}
}

func TestHandleEventIsIdempotentByEventKey(t *testing.T) {
	env := setupAffiliateTest(t)
	account := enrollTestAffiliate(t, env, 1, "owner@example.com")
	referTestUser(t, env, account.AffiliateCode, 42)

	event := upstream.Event{
		Source:             constants.UpstreamSourceStripe,
		ID:                 "evt_123",
		Type:               constants.UpstreamEventPurchaseCompleted,
		ReferredUserID:     42,
		PurchaseAmount:     d("150"),
		UpstreamCommission: d("30"),
	}
	first, err := env.earnings.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if first.Outcome != constants.EventOutcomeApplied || first.EventKey != "stripe:evt_123" {
		t.Fatalf("unexpected first result: %+v", first)
	}
	second, err := env.earnings.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if second.Outcome != constants.EventOutcomeDuplicate || len(second.Earnings) != 0 {
		t.Fatalf("redelivery should be a no-op, got %+v", second)
	}
	reloaded := reloadTestAccount(t, env, account.ID)
	if !reloaded.TotalEarnings.Decimal.Equal(d("3")) {
		t.Fatalf("duplicate delivery credited twice: %s", reloaded.TotalEarnings)
	}
	referral, err := env.repo.GetReferralByReferredUser(42)
	if err != nil {
		t.Fatalf("get referral failed: %v", err)
	}
	if !referral.TotalPurchases.Decimal.Equal(d("150")) {
		t.Fatalf("duplicate delivery counted purchase twice: %s", referral.TotalPurchases)
	}
}

func TestHandleEventIgnoredOutcomesAreRecorded(t *testing.T) {
	env := setupAffiliateTest(t)
	account := enrollTestAffiliate(t, env, 1, "owner@example.com")

	orphan, err := env.earnings.RecordPurchase(context.Background(), PurchaseEvent{
		EventKey:       "core:evt-orphan",
		ReferredUserID: 99,
		PurchaseAmount: d("500"),
	})
	if err != nil {
		t.Fatalf("orphan purchase failed: %v", err)
	}
	if orphan.Outcome != constants.EventOutcomeIgnored {
		t.Fatalf("purchase without referral should be ignored, got %+v", orphan)
	}
	receipt, err := env.repo.GetReceiptByEventKey("core:evt-orphan")
	if err != nil || receipt == nil || receipt.Outcome != constants.EventOutcomeIgnored {
		t.Fatalf("ignored receipt missing: %+v err=%v", receipt, err)
	}

	selfRef := upstream.Event{
		Source:         constants.UpstreamSourceCore,
		ID:             "evt-self",
		Type:           constants.UpstreamEventReferralCreated,
		AffiliateCode:  account.AffiliateCode,
		ReferredUserID: 1,
	}
	result, err := env.earnings.HandleEvent(context.Background(), selfRef)
	if err != nil {
		t.Fatalf("self referral event failed: %v", err)
	}
	if result.Outcome != constants.EventOutcomeIgnored {
		t.Fatalf("self referral should be ignored, got %+v", result)
	}

	unknown := selfRef
	unknown.ID = "evt-unknown"
	unknown.AffiliateCode = "GB-NOPE00"
	unknown.ReferredUserID = 5
	result, err = env.earnings.HandleEvent(context.Background(), unknown)
	if err != nil || result.Outcome != constants.EventOutcomeIgnored {
		t.Fatalf("unknown code should be ignored, got %+v err=%v", result, err)
	}

	if _, err := env.earnings.HandleEvent(context.Background(), upstream.Event{Source: "core", ID: "x", Type: "bogus", ReferredUserID: 1}); !errors.Is(err, ErrEventInvalid) {
		t.Fatalf("invalid event want ErrEventInvalid got %v", err)
	}
}

func TestReferralCreatedEventRecordsReferral(t *testing.T) {
	env := setupAffiliateTest(t)
	account := enrollTestAffiliate(t, env, 1, "owner@example.com")

	occurredAt := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	result, err := env.earnings.HandleEvent(context.Background(), upstream.Event{
		Source:           constants.UpstreamSourceCore,
		ID:               "evt-ref",
		Type:             constants.UpstreamEventReferralCreated,
		OccurredAt:       occurredAt,
		AffiliateCode:    account.AffiliateCode,
		ReferredUserID:   42,
		ReferredUsername: "wrench",
	})
	if err != nil || result.Outcome != constants.EventOutcomeApplied {
		t.Fatalf("referral event failed: %+v err=%v", result, err)
	}
	referral, err := env.repo.GetReferralByReferredUser(42)
	if err != nil || referral == nil {
		t.Fatalf("referral not stored: %v", err)
	}
	if referral.AffiliateAccountID != account.ID || referral.ReferredUsername != "wrench" || !referral.ReferredAt.Equal(occurredAt) {
		t.Fatalf("unexpected referral: %+v", referral)
	}
}

func TestMarkProMemberCreditsBonusOnce(t *testing.T) {
	env := setupAffiliateTest(t)
	account := enrollTestAffiliate(t, env, 1, "owner@example.com")
	referTestUser(t, env, account.AffiliateCode, 42)

	for _, key := range []string{"core:sub-1", "stripe:evt_sub_1"} {
		if _, err := env.earnings.MarkProMember(context.Background(), ProEvent{EventKey: key, ReferredUserID: 42}); err != nil {
			t.Fatalf("mark pro %s failed: %v", key, err)
		}
	}
	reloaded := reloadTestAccount(t, env, account.ID)
	if !reloaded.TotalEarnings.Decimal.Equal(d("5")) {
		t.Fatalf("pro bonus should be credited once, got %s", reloaded.TotalEarnings)
	}
	referral, err := env.repo.GetReferralByReferredUser(42)
	if err != nil {
		t.Fatalf("get referral failed: %v", err)
	}
	if !referral.IsProMember || referral.ProSince == nil {
		t.Fatalf("referral should be pro: %+v", referral)
	}
	assertLedgerConsistent(t, env, account.ID)
}

func TestCreditProRecurringPerBillingPeriod(t *testing.T) {
	env := setupAffiliateTest(t)
	account := enrollTestAffiliate(t, env, 1, "owner@example.com")
	referTestUser(t, env, account.AffiliateCode, 42)

	// 未先收到 started 事件时，续费同时完成 Pro 转化
	first, err := env.earnings.CreditProRecurring(context.Background(), ProEvent{EventKey: "r-1", ReferredUserID: 42, BillingPeriod: "2025-10-01"})
	if err != nil {
		t.Fatalf("first renewal failed: %v", err)
	}
	if len(first.Earnings) != 2 {
		t.Fatalf("first renewal should credit bonus and recurring, got %+v", first.Earnings)
	}
	if _, err := env.earnings.CreditProRecurring(context.Background(), ProEvent{EventKey: "r-1-retry", ReferredUserID: 42, BillingPeriod: "2025-10-01"}); err != nil {
		t.Fatalf("same period renewal failed: %v", err)
	}
	if _, err := env.earnings.CreditProRecurring(context.Background(), ProEvent{EventKey: "r-2", ReferredUserID: 42, BillingPeriod: "2025-11-01"}); err != nil {
		t.Fatalf("next period renewal failed: %v", err)
	}

	reloaded := reloadTestAccount(t, env, account.ID)
	if !reloaded.TotalEarnings.Decimal.Equal(d("9")) {
		t.Fatalf("want 5 + 2 + 2 = 9 got %s", reloaded.TotalEarnings)
	}
	_, total, err := env.repo.ListEarnings(repository.AffiliateEarningListFilter{
		AffiliateAccountID: account.ID,
		EarningType:        constants.AffiliateEarningTypeProRecurring,
	})
	if err != nil {
		t.Fatalf("list earnings failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("want 2 recurring earnings got %d", total)
	}
	assertLedgerConsistent(t, env, account.ID)
}

func TestEndProMembershipHasNoFinancialEffect(t *testing.T) {
	env := setupAffiliateTest(t)
	account := enrollTestAffiliate(t, env, 1, "owner@example.com")
	referTestUser(t, env, account.AffiliateCode, 42)
	if _, err := env.earnings.MarkProMember(context.Background(), ProEvent{EventKey: "s-1", ReferredUserID: 42}); err != nil {
		t.Fatalf("mark pro failed: %v", err)
	}
	result, err := env.earnings.EndProMembership(context.Background(), ProEvent{EventKey: "c-1", ReferredUserID: 42})
	if err != nil || result.Outcome != constants.EventOutcomeApplied {
		t.Fatalf("end pro failed: %+v err=%v", result, err)
	}
	referral, err := env.repo.GetReferralByReferredUser(42)
	if err != nil {
		t.Fatalf("get referral failed: %v", err)
	}
	if referral.IsProMember || referral.ProEndedAt == nil {
		t.Fatalf("referral should no longer be pro: %+v", referral)
	}
	if !reloadTestAccount(t, env, account.ID).TotalEarnings.Decimal.Equal(d("5")) {
		t.Fatalf("cancel must not change earnings")
	}

	// 重新订阅不会重复发放一次性奖励
	if _, err := env.earnings.MarkProMember(context.Background(), ProEvent{EventKey: "s-2", ReferredUserID: 42}); err != nil {
		t.Fatalf("re-subscribe failed: %v", err)
	}
	if !reloadTestAccount(t, env, account.ID).TotalEarnings.Decimal.Equal(d("5")) {
		t.Fatalf("re-subscribe must not pay a second bonus")
	}
}

func TestSuspendedAccountKeepsEarning(t *testing.T) {
	env := setupAffiliateTest(t)
	account := enrollTestAffiliate(t, env, 1, "owner@example.com")
	referTestUser(t, env, account.AffiliateCode, 42)
	if _, err := env.affiliates.UpdateStatus(context.Background(), 9, account.ID, constants.AffiliateAccountStatusSuspended); err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	recordTestPurchase(t, env, "evt-1", 42, "150.00", "30.00")
	if !reloadTestAccount(t, env, account.ID).TotalEarnings.Decimal.Equal(d("3")) {
		t.Fatalf("suspended account should keep accruing")
	}
}

func TestReverseEarning(t *testing.T) {
	env := setupAffiliateTest(t)
	account := enrollTestAffiliate(t, env, 1, "owner@example.com")
	referTestUser(t, env, account.AffiliateCode, 42)
	result := recordTestPurchase(t, env, "evt-1", 42, "150.00", "30.00")
	original := result.Earnings[0]

	reversal, err := env.earnings.ReverseEarning(context.Background(), 9, original.ID, "chargeback")
	if err != nil {
		t.Fatalf("reverse failed: %v", err)
	}
	if !reversal.Amount.Decimal.Equal(d("-3")) || reversal.ReversalOfID == nil || *reversal.ReversalOfID != original.ID {
		t.Fatalf("unexpected reversal: %+v", reversal)
	}
	reloaded := reloadTestAccount(t, env, account.ID)
	if !reloaded.TotalEarnings.Decimal.IsZero() || !reloaded.AvailableBalance.Decimal.IsZero() {
		t.Fatalf("reversal should net to zero: %+v", reloaded)
	}
	assertLedgerConsistent(t, env, account.ID)

	if _, err := env.earnings.ReverseEarning(context.Background(), 9, original.ID, "again"); !errors.Is(err, ErrEarningNotReversible) {
		t.Fatalf("double reversal want ErrEarningNotReversible got %v", err)
	}
	if _, err := env.earnings.ReverseEarning(context.Background(), 9, reversal.ID, "undo"); !errors.Is(err, ErrEarningNotReversible) {
		t.Fatalf("reversing a reversal want ErrEarningNotReversible got %v", err)
	}
	if _, err := env.earnings.ReverseEarning(context.Background(), 9, 404, "missing"); !errors.Is(err, ErrEarningNotFound) {
		t.Fatalf("missing earning want ErrEarningNotFound got %v", err)
	}
}

func TestEarningsAreAppendOnly(t *testing.T) {
	env := setupAffiliateTest(t)
	account := enrollTestAffiliate(t, env, 1, "owner@example.com")
	referTestUser(t, env, account.AffiliateCode, 42)
	recordTestPurchase(t, env, "evt-1", 42, "150.00", "30.00")

	duplicate := &models.AffiliateEarning{
		AffiliateAccountID:  account.ID,
		AffiliateReferralID: 1,
		EarningType:         constants.AffiliateEarningTypePurchaseCommission,
		Amount:              models.MustMoney("3.00"),
		IdempotencyKey:      "purchase:evt-1",
	}
	err := env.repo.CreateEarning(duplicate)
	if err == nil || !repository.IsUniqueViolation(err) {
		t.Fatalf("idempotency key should be unique, got %v", err)
	}
}
