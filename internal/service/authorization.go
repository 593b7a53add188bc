package service

import (
	"fmt"

	"furniture-store/internal/model"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
)

// Resource と Action は認可テーブルのキー
type (
	Resource string
	Action   string
)

const (
	ResourceOrders   Resource = "orders"
	ResourceInvoices Resource = "invoices"
	ResourceProducts Resource = "products"
	ResourceUsers    Resource = "users"
	ResourceCarts    Resource = "carts"

	ActionCreate       Action = "create"
	ActionRead         Action = "read"
	ActionList         Action = "list"
	ActionUpdate       Action = "update"
	ActionUpdateStatus Action = "update_status"
	ActionCancel       Action = "cancel"
	ActionHistory      Action = "history"
	ActionGenerate     Action = "generate"
	ActionDownload     Action = "download"
	ActionWrite        Action = "write"
	ActionManage       Action = "manage"
	ActionUse          Action = "use"
)

// scope suffixes: "any" ignores ownership, "own" requires actor == owner
const (
	scopeAny = "any"
	scopeOwn = "own"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// defaultPolicies はロールごとの権限。employee は customer の、admin は employee の権限を継承する
var defaultPolicies = [][]string{
	{"customer", "orders", "create:own"},
	{"customer", "orders", "read:own"},
	{"customer", "orders", "cancel:own"},
	{"customer", "invoices", "read:own"},
	{"customer", "users", "read:own"},
	{"customer", "users", "update:own"},
	{"customer", "carts", "use:own"},

	{"employee", "orders", "create:any"},
	{"employee", "orders", "read:any"},
	{"employee", "orders", "list:any"},
	{"employee", "orders", "update_status:any"},
	{"employee", "orders", "cancel:any"},
	{"employee", "orders", "history:any"},
	{"employee", "invoices", "generate:any"},
	{"employee", "invoices", "download:any"},
	{"employee", "products", "write:any"},

	{"admin", "invoices", "read:any"},
	{"admin", "invoices", "list:any"},
	{"admin", "users", "read:any"},
	{"admin", "users", "update:any"},
	{"admin", "users", "manage:any"},
}

var defaultRoleInheritance = [][]string{
	{"employee", "customer"},
	{"admin", "employee"},
}

// Authorizer は全ワークフロー共通の認可チェック
type Authorizer interface {
	// Authorize は actor が resource に対して action を実行できるか判定する。
	// ownerID はリソースの所有者ID（所有者のないリソースは空文字）
	Authorize(actor *model.User, resource Resource, action Action, ownerID string) error
}

// AuthorizationService はCasbinのRBACテーブルによる Authorizer 実装
type AuthorizationService struct {
	enforcer *casbin.Enforcer
}

// NewAuthorizationService は新しい認可サービスを作成
func NewAuthorizationService() (*AuthorizationService, error) {
	m, err := casbinmodel.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RBAC model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize RBAC enforcer: %w", err)
	}

	if _, err := enforcer.AddPolicies(defaultPolicies); err != nil {
		return nil, fmt.Errorf("failed to load RBAC policies: %w", err)
	}
	if _, err := enforcer.AddGroupingPolicies(defaultRoleInheritance); err != nil {
		return nil, fmt.Errorf("failed to load role inheritance: %w", err)
	}

	return &AuthorizationService{enforcer: enforcer}, nil
}

// Authorize implements Authorizer.
func (s *AuthorizationService) Authorize(actor *model.User, resource Resource, action Action, ownerID string) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	if !actor.IsActive {
		return ErrUnauthenticated
	}

	allowed, err := s.allows(actor.Role, resource, action, scopeAny)
	if err != nil {
		return err
	}
	if allowed {
		return nil
	}

	if ownerID != "" && ownerID == actor.ID {
		allowed, err = s.allows(actor.Role, resource, action, scopeOwn)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
	}

	return fmt.Errorf("%w: %s cannot %s %s", ErrUnauthorized, actor.Role, action, resource)
}

// GetRolePermissions はロールが持つ権限（継承分を含む）を返す
func (s *AuthorizationService) GetRolePermissions(role model.Role) ([][]string, error) {
	permissions, err := s.enforcer.GetImplicitPermissionsForUser(string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	return permissions, nil
}

func (s *AuthorizationService) allows(role model.Role, resource Resource, action Action, scope string) (bool, error) {
	allowed, err := s.enforcer.Enforce(string(role), string(resource), string(action)+":"+scope)
	if err != nil {
		return false, fmt.Errorf("RBAC permission check failed: %w", err)
	}
	return allowed, nil
}
