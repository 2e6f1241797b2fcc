package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
	"go.uber.org/zap"

	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
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
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && (p.act == "*" || r.act == p.act)
`

// subjectPending обозначает клиента, ожидающего одобрения учётной записи.
const subjectPending = "pending"

var rbacPolicies = [][]string{
	{subjectPending, "/api/portal/me", "GET"},
	{string(model.RoleCustomer), "/api/portal/*", "*"},
	{string(model.RoleAdmin), "/api/admin/*", "*"},
}

var rbacGroups = [][]string{
	{string(model.RoleCustomer), subjectPending},
	{string(model.RoleAdmin), string(model.RoleCustomer)},
}

// ProfileLoader загружает профиль по удостоверению пользователя.
type ProfileLoader interface {
	Me(ctx context.Context, id model.Identity) (*model.Profile, error)
}

// Authorizer загружает профиль пользователя и проверяет доступ его роли к маршруту.
type Authorizer struct {
	profiles ProfileLoader
	enforcer *casbin.Enforcer
	logger   *zap.Logger
}

// NewAuthorizer создаёт Authorizer с политикой ролей портала.
func NewAuthorizer(profiles ProfileLoader, logger *zap.Logger) (*Authorizer, error) {
	m, err := casbinmodel.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	if _, err := e.AddPolicies(rbacPolicies); err != nil {
		return nil, fmt.Errorf("add policies: %w", err)
	}
	if _, err := e.AddGroupingPolicies(rbacGroups); err != nil {
		return nil, fmt.Errorf("add role groups: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authorizer{profiles: profiles, enforcer: e, logger: logger}, nil
}

// subject возвращает субъект политики для профиля.
func subject(p *model.Profile) string {
	if p.Role == model.RoleCustomer && p.AccountStatus == model.AccountStatusPending {
		return subjectPending
	}
	return string(p.Role)
}

// Allowed сообщает, разрешён ли профилю метод method на пути path.
func (a *Authorizer) Allowed(p *model.Profile, path, method string) (bool, error) {
	return a.enforcer.Enforce(subject(p), path, method)
}

// Middleware загружает профиль текущего пользователя и пропускает запрос, если роль
// профиля допускает маршрут. Заблокированные и удалённые учётные записи получают 403.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "Please sign in to continue.")
			return
		}

		p, err := a.profiles.Me(r.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			WriteError(w, http.StatusForbidden, "profile_required", "Complete registration to use the portal.")
			return
		}
		if err != nil {
			a.logger.Error("load profile", zap.Error(err), zap.String("userID", id.UserID.String()))
			WriteError(w, http.StatusInternalServerError, "internal", "Something went wrong. Please try again.")
			return
		}
		if p.AccountStatus == model.AccountStatusSuspended || p.AccountStatus == model.AccountStatusDeleted {
			WriteError(w, http.StatusForbidden, "account_inactive", "Your account is not active. Please contact us.")
			return
		}

		allowed, err := a.Allowed(p, r.URL.Path, r.Method)
		if err != nil {
			a.logger.Error("enforce policy", zap.Error(err))
			WriteError(w, http.StatusInternalServerError, "internal", "Something went wrong. Please try again.")
			return
		}
		if !allowed {
			code, msg := "forbidden", "You do not have access to this page."
			if subject(p) == subjectPending {
				code, msg = "account_pending", "Your account is awaiting approval."
			}
			WriteError(w, http.StatusForbidden, code, msg)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithProfile(r.Context(), p)))
	})
}
