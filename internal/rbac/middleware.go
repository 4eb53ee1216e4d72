package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/operio-app/operio/internal"
	"github.com/operio-app/operio/internal/transport"
)

// Guards builds the authorization middleware used by route registration.
// Every guard answers 401 UNAUTHENTICATED when no principal was attached
// by the auth middleware, and 403 with a {required, current} detail on a
// role denial.
type Guards struct {
	*transport.BaseHandler
	engine *Engine
}

func NewGuards(engine *Engine, logger *slog.Logger) *Guards {
	return &Guards{
		BaseHandler: transport.NewBaseHandler(logger),
		engine:      engine,
	}
}

func (g *Guards) RequireMinimumRole(required Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := internal.PrincipalFromContext(r.Context())
			if !ok {
				g.WriteAppError(w, internal.ErrUnauthenticated)
				return
			}

			if !g.engine.HasMinimumRole(Role(principal.Role), required) {
				g.Logger.Warn("access denied: role below minimum",
					"user_id", principal.ID,
					"required_role", required,
					"current_role", principal.Role)
				g.WriteAppError(w, internal.NewForbiddenError(
					"Insufficient role level", internal.ErrCodeInsufficientRoleLevel,
				).WithDetails(internal.RoleDenialDetails{
					Required: string(required),
					Current:  principal.Role,
				}))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guards) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := internal.PrincipalFromContext(r.Context())
			if !ok {
				g.WriteAppError(w, internal.ErrUnauthenticated)
				return
			}

			if !g.engine.HasPermission(Role(principal.Role), permission) {
				g.Logger.Warn("access denied: permission not granted",
					"user_id", principal.ID,
					"required_permission", permission,
					"current_role", principal.Role)
				g.WriteAppError(w, internal.NewForbiddenError(
					"Insufficient permission", internal.ErrCodeInsufficientPermission,
				).WithDetails(internal.RoleDenialDetails{
					Required: permission,
					Current:  principal.Role,
				}))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoleForMethod looks up the minimum role by the request's HTTP verb,
// case-insensitively. Verbs without an entry are rejected with 405.
func (g *Guards) RequireRoleForMethod(methods map[string]Role) func(http.Handler) http.Handler {
	byVerb := make(map[string]Role, len(methods))
	for verb, role := range methods {
		byVerb[strings.ToUpper(verb)] = role
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := internal.PrincipalFromContext(r.Context())
			if !ok {
				g.WriteAppError(w, internal.ErrUnauthenticated)
				return
			}

			required, ok := byVerb[strings.ToUpper(r.Method)]
			if !ok {
				g.WriteAppError(w, internal.NewMethodNotAllowedError("Method not allowed for this resource"))
				return
			}

			if !g.engine.HasMinimumRole(Role(principal.Role), required) {
				g.Logger.Warn("access denied: role below minimum for method",
					"user_id", principal.ID,
					"method", r.Method,
					"required_role", required,
					"current_role", principal.Role)
				g.WriteAppError(w, internal.NewForbiddenError(
					"Insufficient role level", internal.ErrCodeInsufficientRoleLevel,
				).WithDetails(internal.RoleDenialDetails{
					Required: string(required),
					Current:  principal.Role,
				}))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requireScopedAccess is the shared shape of the resource guards: a
// minimum-role check that additionally marks the request own-data-only when
// the caller sits exactly at the resource's lowest operational tier. The
// marker is enforced by the downstream query layer, not here.
func (g *Guards) requireScopedAccess(baseRole Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := internal.PrincipalFromContext(r.Context())
			if !ok {
				g.WriteAppError(w, internal.ErrUnauthenticated)
				return
			}

			if !g.engine.HasMinimumRole(Role(principal.Role), baseRole) {
				g.WriteAppError(w, internal.NewForbiddenError(
					"Insufficient role level", internal.ErrCodeInsufficientRoleLevel,
				).WithDetails(internal.RoleDenialDetails{
					Required: string(baseRole),
					Current:  principal.Role,
				}))
				return
			}

			if Role(principal.Role) == baseRole {
				ctx := internal.WithDataScope(r.Context(), internal.DataScope{OwnDataOnly: true})
				r = r.WithContext(ctx)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireCRMAccess admits sales and above; sales sees only its own records.
func (g *Guards) RequireCRMAccess() func(http.Handler) http.Handler {
	return g.requireScopedAccess(RoleSales)
}

// RequireVisitsAccess admits technician and above; technicians see only
// their own visits.
func (g *Guards) RequireVisitsAccess() func(http.Handler) http.Handler {
	return g.requireScopedAccess(RoleTechnician)
}
