package authz

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthzServiceTest(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}
	return svc
}

func mustEnforce(t *testing.T, svc *Service, adminID uint, obj, act string) bool {
	t.Helper()
	allow, err := svc.EnforceAdmin(adminID, obj, act)
	if err != nil {
		t.Fatalf("enforce %s %s failed: %v", act, obj, err)
	}
	return allow
}

func TestBuiltinRolesPresent(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	// 重复初始化不应报错
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("second bootstrap failed: %v", err)
	}
	roles, err := svc.ListRoles()
	if err != nil {
		t.Fatalf("list roles failed: %v", err)
	}
	want := map[string]bool{
		"role:readonly_auditor": true,
		"role:support":          true,
		"role:finance":          true,
	}
	for _, role := range roles {
		delete(want, role)
	}
	if len(want) != 0 {
		t.Fatalf("builtin roles missing: %v", want)
	}
}

func TestReadonlyAuditorCannotMutate(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if _, err := svc.SetAdminRoles(1, []string{"readonly_auditor"}); err != nil {
		t.Fatalf("set roles failed: %v", err)
	}
	if !mustEnforce(t, svc, 1, "/api/v1/admin/affiliates/:id", "GET") {
		t.Fatalf("auditor should read account detail")
	}
	if mustEnforce(t, svc, 1, "/api/v1/admin/affiliate-payouts/:id/approve", "POST") {
		t.Fatalf("auditor must not approve payouts")
	}
}

func TestFinanceAndSupportSplit(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if _, err := svc.SetAdminRoles(2, []string{"finance"}); err != nil {
		t.Fatalf("set finance failed: %v", err)
	}
	if _, err := svc.SetAdminRoles(3, []string{"support"}); err != nil {
		t.Fatalf("set support failed: %v", err)
	}

	if !mustEnforce(t, svc, 2, "/admin/affiliate-payouts/:id/paid", "post") {
		t.Fatalf("finance should mark payouts paid")
	}
	if !mustEnforce(t, svc, 2, "/admin/affiliate-earnings/:id/reverse", "POST") {
		t.Fatalf("finance should reverse earnings")
	}
	if mustEnforce(t, svc, 2, "/admin/affiliates/:id/status", "PATCH") {
		t.Fatalf("finance should not change account status")
	}

	if !mustEnforce(t, svc, 3, "/admin/affiliates/:id/status", "PATCH") {
		t.Fatalf("support should change account status")
	}
	if mustEnforce(t, svc, 3, "/admin/affiliates/:id/resume-payouts", "POST") {
		t.Fatalf("support should not resume payouts")
	}
	if !mustEnforce(t, svc, 3, "/admin/affiliate-payouts", "GET") {
		t.Fatalf("support inherits readonly access")
	}
}

func TestSetAdminRolesOverride(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if _, err := svc.SetAdminRoles(4, []string{"support"}); err != nil {
		t.Fatalf("set first role failed: %v", err)
	}
	assigned, err := svc.SetAdminRoles(4, []string{"finance", "role:finance"})
	if err != nil {
		t.Fatalf("set second role failed: %v", err)
	}
	if len(assigned) != 1 || assigned[0] != "role:finance" {
		t.Fatalf("assigned want [role:finance], got=%v", assigned)
	}
	roles, err := svc.GetAdminRoles(4)
	if err != nil {
		t.Fatalf("get roles failed: %v", err)
	}
	if len(roles) != 1 || roles[0] != "role:finance" {
		t.Fatalf("roles want [role:finance], got=%v", roles)
	}
	if mustEnforce(t, svc, 4, "/admin/affiliates/:id/status", "PATCH") {
		t.Fatalf("old support permission should be removed")
	}
}

func TestSetAdminRolesRejectsUnknownRole(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if _, err := svc.SetAdminRoles(5, []string{"root"}); !errors.Is(err, ErrRoleUnknown) {
		t.Fatalf("unknown role should be rejected, got %v", err)
	}
}

func TestNormalizeObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "/api/v1/admin/affiliates/:id", want: "/admin/affiliates/:id"},
		{in: "/admin/affiliates/:id", want: "/admin/affiliates/:id"},
		{in: "admin/affiliates", want: "/admin/affiliates"},
		{in: "/api/v1", want: "/"},
		{in: "", want: "/"},
	}
	for _, item := range cases {
		if got := NormalizeObject(item.in); got != item.want {
			t.Fatalf("normalize object failed, in=%q want=%q got=%q", item.in, item.want, got)
		}
	}
}
