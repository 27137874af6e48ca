package authz

import "fmt"

// RoleSeed 预置角色定义
type RoleSeed struct {
	Role     string
	Inherits []string
	Policies []Policy
}

// BuiltinRoleSeeds 预置角色矩阵
// readonly_auditor 只读（可改自己的密码）；support 负责账户状态与单户对账；finance 负责提现审核、冲正与恢复提现
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: "readonly_auditor",
			Policies: []Policy{
				{Object: "/admin/*", Action: "GET"},
				{Object: "/admin/password", Action: "PUT"},
			},
		},
		{
			Role:     "support",
			Inherits: []string{"readonly_auditor"},
			Policies: []Policy{
				{Object: "/admin/affiliates/:id/status", Action: "PATCH"},
				{Object: "/admin/affiliates/:id/reconcile", Action: "POST"},
			},
		},
		{
			Role:     "finance",
			Inherits: []string{"readonly_auditor"},
			Policies: []Policy{
				{Object: "/admin/affiliates/:id/reconcile", Action: "POST"},
				{Object: "/admin/affiliates/:id/resume-payouts", Action: "POST"},
				{Object: "/admin/affiliates/reconcile", Action: "POST"},
				{Object: "/admin/affiliate-payouts/:id/approve", Action: "POST"},
				{Object: "/admin/affiliate-payouts/:id/paid", Action: "POST"},
				{Object: "/admin/affiliate-payouts/:id/reject", Action: "POST"},
				{Object: "/admin/affiliate-earnings/:id/reverse", Action: "POST"},
			},
		},
	}
}

// BootstrapBuiltinRoles 初始化预置角色与默认策略，重复执行幂等
func (s *Service) BootstrapBuiltinRoles() error {
	if s == nil || s.enforcer == nil {
		return ErrUnavailable
	}
	for _, seed := range BuiltinRoleSeeds() {
		role, err := s.EnsureRole(seed.Role)
		if err != nil {
			return err
		}
		for _, parent := range seed.Inherits {
			parentRole, err := s.EnsureRole(parent)
			if err != nil {
				return err
			}
			if _, err := s.enforcer.AddNamedGroupingPolicy("g", role, parentRole); err != nil {
				return fmt.Errorf("link role inheritance failed: %w", err)
			}
		}
		for _, policy := range seed.Policies {
			if err := s.GrantRolePolicy(role, policy.Object, policy.Action); err != nil {
				return fmt.Errorf("add builtin policy failed: %w", err)
			}
		}
	}
	return nil
}
