package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/transport"
	"github.com/frahmantamala/tenant-identity/pkg/logger"
	"github.com/go-chi/chi"
)

const OrgIDParam = "orgID"

type PermissionAuthorizer interface {
	CheckPermission(ctx context.Context, userID, orgID, permission string) (bool, error)
}

var ErrInsufficientPermission = internal.NewForbiddenError("Insufficient permissions", internal.ErrCodeInsufficientRole)

// RBACAuthorization guards routes scoped to an organisation. It runs after
// AuthMiddleware and reads the organisation from the {orgID} route param.
type RBACAuthorization struct {
	*transport.BaseHandler
	authorizer PermissionAuthorizer
	logger     *slog.Logger
}

func NewRBACAuthorization(authorizer PermissionAuthorizer, logger *slog.Logger) *RBACAuthorization {
	if logger == nil {
		logger = slog.Default()
	}
	return &RBACAuthorization{
		BaseHandler: transport.NewBaseHandler(logger),
		authorizer:  authorizer,
		logger:      logger,
	}
}

func (ra *RBACAuthorization) Check(next http.HandlerFunc, permission string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			ra.logger.Warn("authorization check failed: principal not found in context")
			ra.WriteAppError(w, internal.ErrMissingToken)
			return
		}

		orgID := chi.URLParam(r, OrgIDParam)
		hasAccess, err := ra.authorizer.CheckPermission(r.Context(), principal.UserID, orgID, permission)
		if err != nil {
			ra.logger.ErrorContext(r.Context(), "authorization check failed", "error", err, "user_id", principal.UserID, "permission", permission)
			ra.HandleServiceError(w, err, "authorization check failed")
			return
		}

		if !hasAccess {
			ra.logger.WarnContext(r.Context(), "access denied: insufficient permissions",
				"user_id", principal.UserID,
				"organization_id", orgID,
				"required_permission", permission)
			ra.WriteAppError(w, ErrInsufficientPermission)
			return
		}

		ctx := internal.ContextWithOrganizationID(r.Context(), orgID)
		ctx = logger.With(ctx, "organization_id", orgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func (ra *RBACAuthorization) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return ra.Check(next.ServeHTTP, permission)
	}
}

// RequireSuperAdmin gates platform-wide operations. It does not consult RBAC.
func (ra *RBACAuthorization) RequireSuperAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				ra.WriteAppError(w, internal.ErrMissingToken)
				return
			}

			if !principal.IsSuperAdmin {
				ra.logger.WarnContext(r.Context(), "access denied: super admin required", "user_id", principal.UserID)
				ra.WriteAppError(w, internal.ErrSuperAdminRequired)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
