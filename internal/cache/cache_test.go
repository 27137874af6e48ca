package cache

import (
	"context"
	"testing"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/config"
	"github.com/garagebot/affiliate-ledger/internal/models"
)

func TestDisabledCacheIsNoop(t *testing.T) {
	if err := InitRedis(&config.RedisConfig{Enabled: false}); err != nil {
		t.Fatalf("init disabled redis failed: %v", err)
	}
	ctx := context.Background()
	if Enabled() {
		t.Fatalf("cache should be disabled")
	}
	if err := SetTrustLayer(ctx, "GB-ABC234", map[string]string{"a": "b"}, time.Minute); err != nil {
		t.Fatalf("set on disabled cache should be noop: %v", err)
	}
	var dest map[string]string
	hit, err := GetTrustLayer(ctx, "GB-ABC234", &dest)
	if err != nil || hit {
		t.Fatalf("get on disabled cache should miss, hit=%v err=%v", hit, err)
	}
	if err := InvalidateTrustLayer(ctx, "GB-ABC234", ""); err != nil {
		t.Fatalf("invalidate on disabled cache should be noop: %v", err)
	}
}

func TestBuildKeyUsesPrefix(t *testing.T) {
	UseClient(nil, "")
	if got := BuildKey(trustLayerKey(" gb-abc234 ")); got != "gb:affiliate:trustlayer:GB-ABC234" {
		t.Fatalf("unexpected key: %s", got)
	}
	UseClient(nil, "ledger")
	t.Cleanup(func() { UseClient(nil, "") })
	if got := BuildKey(adminAuthStateKey(3)); got != "ledger:auth:admin:3" {
		t.Fatalf("unexpected admin key: %s", got)
	}
	if got := BuildKey("  "); got != "ledger" {
		t.Fatalf("blank key should return prefix, got %s", got)
	}
}

func TestBuildAdminAuthState(t *testing.T) {
	if BuildAdminAuthState(nil) != nil {
		t.Fatalf("nil admin should produce nil state")
	}
	invalid := time.Unix(1700000000, 0)
	state := BuildAdminAuthState(&models.Admin{
		ID:                 9,
		Username:           "finance",
		TokenVersion:       4,
		TokenInvalidBefore: &invalid,
	})
	if state.AdminID != 9 || state.TokenVersion != 4 || state.TokenInvalidBefore != 1700000000 {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestAdminAuthStateTracksRowVersion(t *testing.T) {
	if err := InitRedis(&config.RedisConfig{Enabled: false}); err != nil {
		t.Fatalf("init disabled redis failed: %v", err)
	}
	updated := time.Unix(1700000500, 0)
	state := BuildAdminAuthState(&models.Admin{ID: 3, Username: "ops", TokenVersion: 2, UpdatedAt: updated})
	if state.UpdatedAt != updated.Unix() {
		t.Fatalf("updated_at should follow the admin row, got %d", state.UpdatedAt)
	}
	ctx := context.Background()
	if err := SetAdminAuthState(ctx, state); err != nil {
		t.Fatalf("set on disabled cache should be noop: %v", err)
	}
	if err := DelAdminAuthState(ctx, 3); err != nil {
		t.Fatalf("del on disabled cache should be noop: %v", err)
	}
	if _, hit, err := GetAdminAuthState(ctx, 3); hit || err != nil {
		t.Fatalf("disabled cache should miss, hit=%v err=%v", hit, err)
	}
}
