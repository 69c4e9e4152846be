package rest

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/tenant-identity/api"
	"github.com/frahmantamala/tenant-identity/internal/auth"
	"github.com/frahmantamala/tenant-identity/internal/ephemeral"
	"github.com/frahmantamala/tenant-identity/internal/invitation"
	"github.com/frahmantamala/tenant-identity/internal/observability"
	"github.com/frahmantamala/tenant-identity/internal/rbac"
	"github.com/frahmantamala/tenant-identity/internal/transport"
	"github.com/frahmantamala/tenant-identity/internal/transport/middleware"
	"github.com/frahmantamala/tenant-identity/internal/transport/openapi"
	"github.com/frahmantamala/tenant-identity/internal/user"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Router", func() {
	var (
		router *chi.Mux
		doc    *openapi.Document
	)

	BeforeEach(func() {
		var err error
		doc, err = openapi.Load(context.Background(), api.OpenAPISpec)
		Expect(err).NotTo(HaveOccurred())

		lg := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		base := transport.NewBaseHandler(lg)

		router = chi.NewRouter()
		RegisterAllRoutes(router, nil, Handlers{
			Auth:        auth.NewHandler(base, nil),
			Users:       user.NewHandler(base, nil),
			RBAC:        rbac.NewHandler(base, nil),
			Invitations: invitation.NewHandler(base, nil),
			Tokens:      ephemeral.NewHandler(base, nil),
			Authz:       auth.NewRBACAuthorization(nil, lg),
		}, Options{
			AllowedOrigins: "*",
			Metrics:        observability.NewMetrics(),
			RateLimiter:    middleware.NewRateLimiter(0.001, 1, lg),
			OpenAPI:        doc,
		}, lg)
	})

	It("documents every API route", func() {
		missing, err := doc.Undocumented(router)
		Expect(err).NotTo(HaveOccurred())
		Expect(missing).To(BeEmpty())
	})

	It("serves the document, metrics and readiness", func() {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.yml", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("Tenant Identity API"))

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("http_requests_total"))
	})

	It("rejects protected routes without a bearer token", func() {
		for _, target := range []string{"/api/v1/users/me", "/api/v1/organizations/org-1/permissions"} {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized), target)
		}
	})

	It("rate limits the credential endpoints", func() {
		login := func() int {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString("not json"))
			req.RemoteAddr = "198.51.100.7:5000"
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			return rec.Code
		}

		Expect(login()).To(Equal(http.StatusBadRequest))
		Expect(login()).To(Equal(http.StatusTooManyRequests))
	})
})

var _ = Describe("Router behind a trusted proxy", func() {
	It("keys the limiter on the forwarded client address", func() {
		lg := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		base := transport.NewBaseHandler(lg)
		router := chi.NewRouter()
		RegisterAllRoutes(router, nil, Handlers{
			Auth: auth.NewHandler(base, nil),
		}, Options{
			TrustProxyHeaders: true,
			RateLimiter:       middleware.NewRateLimiter(0.001, 1, lg),
		}, lg)

		login := func(forwardedFor string) int {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString("not json"))
			req.RemoteAddr = "10.0.0.1:5000"
			req.Header.Set("X-Forwarded-For", forwardedFor)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			return rec.Code
		}

		Expect(login("203.0.113.1")).To(Equal(http.StatusBadRequest))
		Expect(login("203.0.113.1")).To(Equal(http.StatusTooManyRequests))
		Expect(login("203.0.113.2")).To(Equal(http.StatusBadRequest))
	})
})
