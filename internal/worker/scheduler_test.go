package worker

import (
	"context"
	"testing"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/config"
	"github.com/garagebot/affiliate-ledger/internal/models"
)

func TestNewSchedulerRejectsInvalidCron(t *testing.T) {
	consumer, _ := setupConsumerTest(t)
	consumer.Config = &config.Config{Affiliate: config.AffiliateConfig{ReconcileCron: "not a cron"}}
	if _, err := NewScheduler(consumer.Container); err == nil {
		t.Fatalf("invalid cron expression should fail")
	}
	if _, err := NewScheduler(nil); err == nil {
		t.Fatalf("nil container should fail")
	}
}

func TestSchedulerReconcilesInlineWithoutQueue(t *testing.T) {
	consumer, db := setupConsumerTest(t)
	scheduler, err := NewScheduler(consumer.Container)
	if err != nil {
		t.Fatalf("new scheduler failed: %v", err)
	}
	if scheduler.schedule != defaultReconcileCron {
		t.Fatalf("unexpected default schedule %s", scheduler.schedule)
	}

	account, err := consumer.AffiliateService.Enroll(context.Background(), 7, "owner", "")
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	if err := db.Model(&models.AffiliateAccount{}).Where("id = ?", account.ID).
		Update("total_earnings", "1.00").Error; err != nil {
		t.Fatalf("tamper totals failed: %v", err)
	}

	scheduler.runReconcile()

	var reloaded models.AffiliateAccount
	if err := db.First(&reloaded, account.ID).Error; err != nil {
		t.Fatalf("reload account failed: %v", err)
	}
	if !reloaded.PayoutsHalted {
		t.Fatalf("nightly reconcile should halt diverged account")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := scheduler.Stop(ctx); err != nil {
		t.Fatalf("stop scheduler failed: %v", err)
	}
}
