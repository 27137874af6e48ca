package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/config"
	"github.com/garagebot/affiliate-ledger/internal/constants"
	"github.com/garagebot/affiliate-ledger/internal/logger"
	"github.com/garagebot/affiliate-ledger/internal/models"
	"github.com/garagebot/affiliate-ledger/internal/provider"
	"github.com/garagebot/affiliate-ledger/internal/upstream"

	"github.com/shopspring/decimal"
)

const defaultSeedPassword = "garagebot-demo-pass"

// 演示数据里主站佣金按消费额 20% 计
var demoUpstreamShare = decimal.RequireFromString("0.20")

type seedAdmin struct {
	Username string
	Role     string
}

type seedReferral struct {
	UserID    uint
	Username  string
	Purchases []string
	Pro       bool
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if cfg.Server.Mode == "release" {
		stdLog.Fatalf("seed 仅用于开发环境")
	}

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
		LogLevel:               cfg.Database.LogLevel,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}
	if err := models.InitDefaultAdmin(os.Getenv("GB_DEFAULT_ADMIN_USERNAME"), os.Getenv("GB_DEFAULT_ADMIN_PASSWORD")); err != nil {
		stdLog.Printf("Failed to init default admin: %v", err)
	}

	container, err := provider.NewContainer(cfg)
	if err != nil {
		stdLog.Fatalf("Failed to build container: %v", err)
	}
	defer container.Close()

	password := strings.TrimSpace(os.Getenv("GB_SEED_ADMIN_PASSWORD"))
	if password == "" {
		password = defaultSeedPassword
	}
	for _, item := range []seedAdmin{
		{Username: "auditor", Role: "readonly_auditor"},
		{Username: "support", Role: "support"},
		{Username: "finance", Role: "finance"},
	} {
		if err := seedAdminAccount(container, item, password); err != nil {
			stdLog.Printf("Failed to seed admin %s: %v", item.Username, err)
			continue
		}
		stdLog.Printf("Seeded admin %s with role %s", item.Username, item.Role)
	}

	ctx := context.Background()
	account, err := container.AffiliateService.Enroll(ctx, 1001, "torque_tuner", "torque@example.com")
	if err != nil {
		stdLog.Printf("Affiliate enroll skipped: %v", err)
		dashboard, dashErr := container.AffiliateService.GetDashboard(ctx, 1001)
		if dashErr != nil {
			stdLog.Fatalf("Failed to load demo affiliate: %v", dashErr)
		}
		account = dashboard.Account
	}
	stdLog.Printf("Demo affiliate code: %s (%s)", account.AffiliateCode, container.AffiliateService.ShareURL(account.AffiliateCode))

	referrals := []seedReferral{
		{UserID: 2001, Username: "piston_pete", Purchases: []string{"40.00", "75.00"}, Pro: true},
		{UserID: 2002, Username: "sparkplug_sam", Purchases: []string{"30.00"}},
		{UserID: 2003, Username: "gearhead_gia", Purchases: []string{"120.00"}},
	}
	for _, ref := range referrals {
		for _, event := range buildEvents(account.AffiliateCode, ref) {
			result, err := container.AffiliateEarningService.HandleEvent(ctx, event)
			if err != nil {
				stdLog.Printf("Event %s failed: %v", event.Key(), err)
				continue
			}
			stdLog.Printf("Event %s -> %s %s", event.Key(), result.Outcome, result.Detail)
		}
	}

	balance, err := container.AffiliateLedgerService.GetBalance(ctx, account.ID)
	if err != nil {
		stdLog.Fatalf("Failed to load balance: %v", err)
	}
	stdLog.Printf("Demo balance: total=%s available=%s", balance.TotalEarnings.StringFixed(2), balance.AvailableBalance.StringFixed(2))

	printSampleWebhook(cfg, account.AffiliateCode)
}

func seedAdminAccount(c *provider.Container, item seedAdmin, password string) error {
	existing, err := c.AdminRepo.GetByUsername(item.Username)
	if err != nil {
		return err
	}
	if existing == nil {
		hash, err := c.AuthService.HashPassword(password)
		if err != nil {
			return err
		}
		existing = &models.Admin{Username: item.Username, PasswordHash: hash}
		if err := c.AdminRepo.Create(existing); err != nil {
			return err
		}
	}
	_, err = c.AuthzService.SetAdminRoles(existing.ID, []string{item.Role})
	return err
}

// buildEvents 生成一个被推荐用户的事件序列，事件 ID 固定以便重复执行时走回执去重
func buildEvents(code string, ref seedReferral) []upstream.Event {
	now := time.Now().UTC()
	events := []upstream.Event{{
		Source:           constants.UpstreamSourceCore,
		ID:               fmt.Sprintf("seed-referral-%d", ref.UserID),
		Type:             constants.UpstreamEventReferralCreated,
		OccurredAt:       now,
		AffiliateCode:    code,
		ReferredUserID:   ref.UserID,
		ReferredUsername: ref.Username,
	}}
	for i, amount := range ref.Purchases {
		value := decimal.RequireFromString(amount)
		events = append(events, upstream.Event{
			Source:             constants.UpstreamSourceCore,
			ID:                 fmt.Sprintf("seed-purchase-%d-%d", ref.UserID, i+1),
			Type:               constants.UpstreamEventPurchaseCompleted,
			OccurredAt:         now,
			ReferredUserID:     ref.UserID,
			PurchaseAmount:     value,
			UpstreamCommission: value.Mul(demoUpstreamShare).Round(2),
		})
	}
	if ref.Pro {
		events = append(events, upstream.Event{
			Source:         constants.UpstreamSourceCore,
			ID:             fmt.Sprintf("seed-pro-%d", ref.UserID),
			Type:           constants.UpstreamEventSubscriptionStarted,
			OccurredAt:     now,
			ReferredUserID: ref.UserID,
		})
	}
	return events
}

func printSampleWebhook(cfg *config.Config, code string) {
	body, _ := json.Marshal(map[string]interface{}{
		"id":          "sample-referral-3001",
		"type":        constants.UpstreamEventReferralCreated,
		"occurred_at": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]interface{}{
			"affiliate_code":    code,
			"referred_user_id":  3001,
			"referred_username": "new_wrench",
		},
	})
	signature := upstream.SignatureHeader(cfg.Webhook.Secret, time.Now().Unix(), body)
	fmt.Printf("\ncurl -X POST http://127.0.0.1:%s/api/v1/webhooks/affiliate \\\n  -H 'Content-Type: application/json' \\\n  -H '%s: %s' \\\n  -d '%s'\n",
		cfg.Server.Port, upstream.CoreSignatureHeader, signature, string(body))
}
