package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/tenant-identity/internal/auth"
	"github.com/frahmantamala/tenant-identity/internal/ephemeral"
	"github.com/frahmantamala/tenant-identity/internal/invitation"
	"github.com/frahmantamala/tenant-identity/internal/observability"
	"github.com/frahmantamala/tenant-identity/internal/rbac"
	"github.com/frahmantamala/tenant-identity/internal/transport/middleware"
	"github.com/frahmantamala/tenant-identity/internal/transport/openapi"
	"github.com/frahmantamala/tenant-identity/internal/transport/swagger"
	"github.com/frahmantamala/tenant-identity/internal/user"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

type Handlers struct {
	Auth        *auth.Handler
	Users       *user.Handler
	RBAC        *rbac.Handler
	Invitations *invitation.Handler
	Tokens      *ephemeral.Handler
	Authz       *auth.RBACAuthorization
}

type Options struct {
	AllowedOrigins string
	// TrustProxyHeaders rewrites RemoteAddr from X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool
	Metrics           *observability.Metrics
	MetricsPath       string
	// RateLimiter guards the unauthenticated credential endpoints; nil disables it.
	RateLimiter *middleware.RateLimiter
	OpenAPI     *openapi.Document
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, h Handlers, opts Options, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	if opts.TrustProxyHeaders {
		router.Use(chiMiddleware.RealIP)
	}
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Instrument)
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, opts.Metrics.Handler())
	}

	if opts.OpenAPI != nil {
		router.Handle("/openapi.yml", opts.OpenAPI.Handler())
		router.Handle("/swagger/*", swagger.Handler("/openapi.yml"))
	}

	limited := func(next http.Handler) http.Handler { return next }
	if opts.RateLimiter != nil {
		limited = opts.RateLimiter.Middleware
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// credential endpoints, reachable without a session
		r.Group(func(pub chi.Router) {
			pub.Use(limited)

			if h.Auth != nil {
				pub.Post("/auth/register", h.Auth.Register)
				pub.Post("/auth/login", h.Auth.Login)
				pub.Post("/auth/refresh", h.Auth.RefreshToken)
			}
			if h.Tokens != nil {
				pub.Post("/auth/forgot-password", h.Tokens.ForgotPassword)
				pub.Post("/auth/reset-password", h.Tokens.ResetPassword)
				pub.Post("/auth/request-token", h.Tokens.RequestLoginCode)
				pub.Post("/auth/verify-token", h.Tokens.VerifyLoginCode)
				pub.Post("/auth/magic-link", h.Tokens.RequestMagicLink)
				pub.Post("/auth/magic-link/verify", h.Tokens.VerifyMagicLink)
			}
		})

		if h.Auth == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Post("/auth/logout", h.Auth.Logout)
			pr.Patch("/users/me/password", h.Auth.ChangePassword)
			pr.Delete("/users/me", h.Auth.Deactivate)

			if h.Users != nil {
				pr.Get("/users/me", h.Users.Me)
			}

			if h.RBAC != nil && h.Authz != nil {
				manageRoles := h.Authz.RequirePermission(rbac.PermissionManageRoles)

				pr.Post("/organizations", h.RBAC.CreateOrganization)
				pr.With(h.Authz.RequireSuperAdmin()).Post("/permissions", h.RBAC.CreatePermission)

				pr.With(manageRoles).Post("/organizations/{orgID}/roles", h.RBAC.CreateRole)
				pr.With(manageRoles).Post("/organizations/{orgID}/roles/{roleID}/users", h.RBAC.AssignRole)
				pr.With(manageRoles).Patch("/organizations/{orgID}/roles/{roleID}/deactivate", h.RBAC.DeactivateRole)
				// owner/admin gate lives in the service
				pr.Delete("/organizations/{orgID}/roles/{roleID}/users/{userID}", h.RBAC.RemoveUserFromRole)

				pr.With(h.Authz.RequirePermission(rbac.PermissionViewMembers)).Get("/organizations/{orgID}/members", h.RBAC.ListMembers)
				// owner/admin gate lives in the service
				pr.Delete("/organizations/{orgID}/members/{userID}", h.RBAC.RemoveMember)

				pr.Get("/organizations/{orgID}/permissions", h.RBAC.ListMyPermissions)
				pr.Get("/organizations/{orgID}/permissions/{name}", h.RBAC.CheckPermission)
			}

			if h.Invitations != nil {
				pr.Post("/invite/create", h.Invitations.Create)
				pr.Post("/invite/accept", h.Invitations.Accept)
				pr.Patch("/invite/deactivate", h.Invitations.Deactivate)
				if h.Authz != nil {
					pr.With(h.Authz.RequireSuperAdmin()).Delete("/invite/{id}", h.Invitations.Delete)
				}
			}
		})
	})
}
