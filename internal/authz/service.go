package authz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

const (
	casbinTableName = "casbin_rule"
	rolePrefix      = "role:"

	// ObjectOrderStatus 订单状态变更资源
	ObjectOrderStatus = "order_status"
)

const defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && (r.act == p.act || p.act == "*")
`

// Policy 权限策略
type Policy struct {
	Subject string `json:"subject"`
	Object  string `json:"object"`
	Action  string `json:"action"`
}

// Service Casbin 授权服务
// 角色按订单推导（买家/店主），策略描述各角色可以把订单改到哪些状态
type Service struct {
	enforcer *casbin.SyncedEnforcer
}

// NewService 创建授权服务
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("authz db is nil")
	}

	adapter, err := gormadapter.NewAdapterByDBUseTableName(db, "", casbinTableName)
	if err != nil {
		return nil, fmt.Errorf("create authz adapter failed: %w", err)
	}

	m, err := model.NewModelFromString(defaultModel)
	if err != nil {
		return nil, fmt.Errorf("load authz model failed: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("init authz enforcer failed: %w", err)
	}
	enforcer.EnableAutoSave(true)

	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load authz policy failed: %w", err)
	}

	return &Service{enforcer: enforcer}, nil
}

// Enforce 执行授权判断
func (s *Service) Enforce(sub, obj, act string) (bool, error) {
	if s == nil || s.enforcer == nil {
		return false, fmt.Errorf("authz service unavailable")
	}
	return s.enforcer.Enforce(strings.TrimSpace(sub), strings.TrimSpace(obj), NormalizeAction(act))
}

// CanChangeOrderStatus 任一角色被授权即放行
func (s *Service) CanChangeOrderStatus(roles []string, target string) (bool, error) {
	for _, role := range roles {
		normalized, err := NormalizeRole(role)
		if err != nil {
			return false, err
		}
		allowed, err := s.Enforce(normalized, ObjectOrderStatus, target)
		if err != nil {
			return false, err
		}
		if allowed {
			return true, nil
		}
	}
	return false, nil
}

// GrantRolePolicy 为角色授予策略
func (s *Service) GrantRolePolicy(role, object, action string) error {
	normalized, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	if s == nil || s.enforcer == nil {
		return fmt.Errorf("authz service unavailable")
	}
	action = NormalizeAction(action)
	if strings.TrimSpace(object) == "" || action == "" {
		return fmt.Errorf("policy object and action are required")
	}
	if _, err := s.enforcer.AddPolicy(normalized, strings.TrimSpace(object), action); err != nil {
		return fmt.Errorf("grant policy failed: %w", err)
	}
	return nil
}

// RevokeRolePolicy 撤销角色策略
func (s *Service) RevokeRolePolicy(role, object, action string) error {
	normalized, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	if s == nil || s.enforcer == nil {
		return fmt.Errorf("authz service unavailable")
	}
	if _, err := s.enforcer.RemovePolicy(normalized, strings.TrimSpace(object), NormalizeAction(action)); err != nil {
		return fmt.Errorf("revoke policy failed: %w", err)
	}
	return nil
}

// GetRolePolicies 获取角色策略
func (s *Service) GetRolePolicies(role string) ([]Policy, error) {
	normalized, err := NormalizeRole(role)
	if err != nil {
		return nil, err
	}
	if s == nil || s.enforcer == nil {
		return nil, fmt.Errorf("authz service unavailable")
	}
	rules, err := s.enforcer.GetFilteredPolicy(0, normalized)
	if err != nil {
		return nil, fmt.Errorf("list role policies failed: %w", err)
	}
	return convertPolicies(rules), nil
}

func convertPolicies(rules [][]string) []Policy {
	result := make([]Policy, 0, len(rules))
	for _, rule := range rules {
		if len(rule) < 3 {
			continue
		}
		result = append(result, Policy{Subject: rule[0], Object: rule[1], Action: rule[2]})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Object == result[j].Object {
			return result[i].Action < result[j].Action
		}
		return result[i].Object < result[j].Object
	})
	return result
}

// NormalizeRole 统一角色名格式（role:xxx）
func NormalizeRole(role string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(role))
	trimmed = strings.TrimPrefix(trimmed, rolePrefix)
	if trimmed == "" {
		return "", fmt.Errorf("role is required")
	}
	if strings.ContainsAny(trimmed, " \t\r\n,") {
		return "", fmt.Errorf("invalid role: %s", role)
	}
	return rolePrefix + trimmed, nil
}

// NormalizeAction 动作统一为小写状态名
func NormalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}
