package authz

import (
	"fmt"

	"github.com/bazaar-next/internal/constants"
)

// RoleSeed 预置角色定义
type RoleSeed struct {
	Role     string
	Policies []Policy
}

// BuiltinRoleSeeds 订单状态变更权限矩阵
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: constants.ActorRoleBuyer,
			Policies: []Policy{
				{Object: ObjectOrderStatus, Action: constants.OrderStatusCancelled},
				{Object: ObjectOrderStatus, Action: constants.OrderStatusDelivered},
			},
		},
		{
			Role: constants.ActorRoleSeller,
			Policies: []Policy{
				{Object: ObjectOrderStatus, Action: constants.OrderStatusCancelled},
				{Object: ObjectOrderStatus, Action: constants.OrderStatusShipped},
				{Object: ObjectOrderStatus, Action: constants.OrderStatusRefunded},
			},
		},
	}
}

// BootstrapBuiltinRoles 写入预置策略，并撤销内置角色在矩阵之外的残留策略
func (s *Service) BootstrapBuiltinRoles() error {
	if s == nil || s.enforcer == nil {
		return fmt.Errorf("authz service unavailable")
	}
	for _, seed := range BuiltinRoleSeeds() {
		wanted := make(map[Policy]bool, len(seed.Policies))
		for _, policy := range seed.Policies {
			action := NormalizeAction(policy.Action)
			if action == "" {
				return fmt.Errorf("builtin policy action is required")
			}
			if err := s.GrantRolePolicy(seed.Role, policy.Object, action); err != nil {
				return fmt.Errorf("add builtin policy failed: %w", err)
			}
			wanted[Policy{Object: policy.Object, Action: action}] = true
		}

		current, err := s.GetRolePolicies(seed.Role)
		if err != nil {
			return err
		}
		for _, policy := range current {
			if wanted[Policy{Object: policy.Object, Action: policy.Action}] {
				continue
			}
			if err := s.RevokeRolePolicy(seed.Role, policy.Object, policy.Action); err != nil {
				return fmt.Errorf("revoke stale policy failed: %w", err)
			}
		}
	}
	return nil
}
