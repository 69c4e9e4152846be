package user_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/transport"
	"github.com/frahmantamala/tenant-identity/internal/user"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubUserService struct {
	users map[string]*user.User
}

func (s *stubUserService) GetByID(_ context.Context, id string) (*user.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, user.ErrUserNotFound
}

var _ = Describe("UserHandler", func() {
	var handler *user.Handler

	BeforeEach(func() {
		svc := &stubUserService{users: map[string]*user.User{
			"u-1": {ID: "u-1", Email: "alice@example.com", Name: "Alice", IsActive: true, PasswordHash: "secret-hash"},
		}}
		handler = user.NewHandler(transport.NewBaseHandler(nil), svc)
	})

	It("returns the current user without the password hash", func() {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		req = req.WithContext(internal.ContextWithUserID(req.Context(), "u-1"))
		rec := httptest.NewRecorder()

		handler.Me(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).NotTo(ContainSubstring("secret-hash"))

		var body user.UserResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Email).To(Equal("alice@example.com"))
	})

	It("returns 401 without an authenticated user", func() {
		rec := httptest.NewRecorder()
		handler.Me(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("returns 404 when the user vanished", func() {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		req = req.WithContext(internal.ContextWithUserID(req.Context(), "ghost"))
		rec := httptest.NewRecorder()

		handler.Me(rec, req)
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})
})
