package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/garagebot/affiliate-ledger/internal/config"
	"github.com/garagebot/affiliate-ledger/internal/models"
	"github.com/garagebot/affiliate-ledger/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthServiceTest(t *testing.T) (*AuthService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:auth_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Admin{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	cfg := &config.Config{
		JWT:     config.JWTConfig{SecretKey: "admin-secret", ExpireHours: 2},
		UserJWT: config.JWTConfig{SecretKey: "user-secret", ExpireHours: 2},
	}
	return NewAuthService(cfg, repository.NewAdminRepository(db)), db
}

func TestAdminLogin(t *testing.T) {
	svc, db := setupAuthServiceTest(t)
	hash, err := svc.HashPassword("finance-pass")
	if err != nil {
		t.Fatalf("hash password failed: %v", err)
	}
	if err := db.Create(&models.Admin{Username: "finance", PasswordHash: hash}).Error; err != nil {
		t.Fatalf("create admin failed: %v", err)
	}

	if _, _, _, err := svc.Login("finance", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password want ErrInvalidCredentials got %v", err)
	}
	if _, _, _, err := svc.Login("nobody", "finance-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown admin want ErrInvalidCredentials got %v", err)
	}

	admin, token, expiresAt, err := svc.Login("finance", "finance-pass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if admin.LastLoginAt == nil || expiresAt.Before(time.Now()) {
		t.Fatalf("unexpected login result: %+v expires=%s", admin, expiresAt)
	}
	claims, err := svc.ParseJWT(token)
	if err != nil {
		t.Fatalf("parse jwt failed: %v", err)
	}
	if claims.AdminID != admin.ID || claims.Username != "finance" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := svc.ParseUserJWT(token); err == nil {
		t.Fatalf("admin token must not validate as user token")
	}
}

func TestUserJWTRoundTrip(t *testing.T) {
	svc, _ := setupAuthServiceTest(t)
	token, _, err := svc.GenerateUserJWT(42, "wrench")
	if err != nil {
		t.Fatalf("generate user jwt failed: %v", err)
	}
	claims, err := svc.ParseUserJWT(token)
	if err != nil {
		t.Fatalf("parse user jwt failed: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "wrench" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := svc.ParseJWT(token); err == nil {
		t.Fatalf("user token must not validate as admin token")
	}
}

func TestChangePasswordBumpsTokenVersion(t *testing.T) {
	svc, db := setupAuthServiceTest(t)
	hash, err := svc.HashPassword("old-password")
	if err != nil {
		t.Fatalf("hash password failed: %v", err)
	}
	admin := models.Admin{Username: "ops", PasswordHash: hash}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("create admin failed: %v", err)
	}
	if err := svc.ChangePassword(admin.ID, "bad-old", "new-password"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("wrong old password want ErrInvalidPassword got %v", err)
	}
	if err := svc.ChangePassword(admin.ID, "old-password", "short"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("short password want ErrInvalidPassword got %v", err)
	}
	if err := svc.ChangePassword(admin.ID, "old-password", "new-password"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	var reloaded models.Admin
	if err := db.First(&reloaded, admin.ID).Error; err != nil {
		t.Fatalf("reload admin failed: %v", err)
	}
	if reloaded.TokenVersion != admin.TokenVersion+1 || reloaded.TokenInvalidBefore == nil {
		t.Fatalf("token version should bump: %+v", reloaded)
	}
}

func TestChangePasswordThenLoginKeepsNewCredentials(t *testing.T) {
	svc, db := setupAuthServiceTest(t)
	hash, err := svc.HashPassword("old-password")
	if err != nil {
		t.Fatalf("hash password failed: %v", err)
	}
	admin := models.Admin{Username: "payouts", PasswordHash: hash}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("create admin failed: %v", err)
	}
	_, oldToken, _, err := svc.Login("payouts", "old-password")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := svc.ChangePassword(admin.ID, "old-password", "new-password"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	if _, _, _, err := svc.Login("payouts", "old-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password want ErrInvalidCredentials got %v", err)
	}
	relogged, _, _, err := svc.Login("payouts", "new-password")
	if err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
	if relogged.TokenVersion != 1 || relogged.LastLoginAt == nil {
		t.Fatalf("login should not reset rotated credentials: %+v", relogged)
	}
	claims, err := svc.ParseJWT(oldToken)
	if err != nil {
		t.Fatalf("parse old token failed: %v", err)
	}
	if claims.TokenVersion == relogged.TokenVersion {
		t.Fatalf("old token version should be stale: %+v", claims)
	}
	if err := svc.ChangePassword(admin.ID+100, "new-password", "another-password"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown admin want ErrNotFound got %v", err)
	}
}
