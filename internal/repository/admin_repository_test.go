package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/models"

	"gorm.io/gorm"
)

func TestAdminRepositoryLookup(t *testing.T) {
	_, db := setupAffiliateRepositoryTest(t)
	repo := NewAdminRepository(db)

	admin := &models.Admin{Username: "finance", PasswordHash: "hash"}
	if err := repo.Create(admin); err != nil {
		t.Fatalf("create admin failed: %v", err)
	}
	byName, err := repo.GetByUsername("finance")
	if err != nil || byName == nil || byName.ID != admin.ID {
		t.Fatalf("get by username failed: %+v err=%v", byName, err)
	}
	missing, err := repo.GetByID(admin.ID + 100)
	if err != nil || missing != nil {
		t.Fatalf("missing admin should be nil, nil: %+v err=%v", missing, err)
	}
}

func TestAdminRotateCredentialsSurvivesStaleLogin(t *testing.T) {
	_, db := setupAffiliateRepositoryTest(t)
	repo := NewAdminRepository(db)

	admin := &models.Admin{Username: "ops", PasswordHash: "old"}
	if err := repo.Create(admin); err != nil {
		t.Fatalf("create admin failed: %v", err)
	}
	stale, err := repo.GetByID(admin.ID)
	if err != nil || stale == nil {
		t.Fatalf("load admin failed: %+v err=%v", stale, err)
	}

	invalidBefore := time.Now().Add(-time.Second)
	if err := repo.RotateCredentials(admin.ID, "new", invalidBefore); err != nil {
		t.Fatalf("rotate credentials failed: %v", err)
	}
	if err := repo.RotateCredentials(admin.ID, "newer", invalidBefore); err != nil {
		t.Fatalf("second rotate failed: %v", err)
	}
	// 持有旧快照的登录流程只能写登录时间
	if err := repo.TouchLastLogin(stale.ID, time.Now()); err != nil {
		t.Fatalf("touch last login failed: %v", err)
	}

	reloaded, err := repo.GetByID(admin.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("reload admin failed: %+v err=%v", reloaded, err)
	}
	if reloaded.PasswordHash != "newer" || reloaded.TokenVersion != 2 {
		t.Fatalf("credentials overwritten by stale login: %+v", reloaded)
	}
	if reloaded.TokenInvalidBefore == nil || reloaded.LastLoginAt == nil {
		t.Fatalf("timestamps should be set: %+v", reloaded)
	}
}

func TestAdminRotateCredentialsUnknownAdmin(t *testing.T) {
	_, db := setupAffiliateRepositoryTest(t)
	repo := NewAdminRepository(db)

	if err := repo.RotateCredentials(404, "hash", time.Now()); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("unknown admin want ErrRecordNotFound got %v", err)
	}
	if err := repo.TouchLastLogin(404, time.Now()); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("unknown admin want ErrRecordNotFound got %v", err)
	}
}
