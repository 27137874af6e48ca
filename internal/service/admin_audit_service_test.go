package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/garagebot/affiliate-ledger/internal/constants"
	"github.com/garagebot/affiliate-ledger/internal/models"
	"github.com/garagebot/affiliate-ledger/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAdminAuditTest(t *testing.T) *AdminAuditService {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.AdminAuditLog{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return NewAdminAuditService(repository.NewAdminAuditLogRepository(db))
}

func TestAdminAuditRecordAndFilter(t *testing.T) {
	svc := setupAdminAuditTest(t)
	svc.Record(AdminAuditRecordInput{
		OperatorAdminID:  1,
		OperatorUsername: "finance-1",
		Action:           constants.AuditActionPayoutReject,
		TargetType:       constants.AuditTargetAffiliatePayout,
		TargetID:         42,
		Detail:           models.JSON{"reason": "paypal bounced"},
	})
	svc.Record(AdminAuditRecordInput{
		OperatorAdminID: 1,
		Action:          constants.AuditActionPayoutApprove,
		TargetType:      constants.AuditTargetAffiliatePayout,
		TargetID:        43,
	})
	// 缺少操作人时忽略
	svc.Record(AdminAuditRecordInput{Action: constants.AuditActionPayoutPaid})

	rows, total, err := svc.List(repository.AdminAuditLogListFilter{Action: constants.AuditActionPayoutReject, Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("expected one reject log, total=%d rows=%d", total, len(rows))
	}
	if rows[0].TargetID != 42 || rows[0].DetailJSON["reason"] != "paypal bounced" {
		t.Fatalf("unexpected audit row: %+v", rows[0])
	}

	_, all, err := svc.List(repository.AdminAuditLogListFilter{})
	if err != nil {
		t.Fatalf("list all failed: %v", err)
	}
	if all != 2 {
		t.Fatalf("expected two audit rows, got %d", all)
	}
}
