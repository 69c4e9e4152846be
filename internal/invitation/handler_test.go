package invitation_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/invitation"
	"github.com/frahmantamala/tenant-identity/internal/transport"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubInvitationService struct {
	deactivatedBy string
	deleted       string
}

func (s *stubInvitationService) Create(_ context.Context, callerID string, dto invitation.CreateInvitationDTO) (*invitation.CreateInvitationResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if callerID != "admin" {
		return nil, invitation.ErrNotInviter
	}
	return &invitation.CreateInvitationResponse{InvitationLink: "https://id.example.com/api/v1/invite/accept?invitation_id=x"}, nil
}

func (s *stubInvitationService) Accept(_ context.Context, link string) (*invitation.Invitation, error) {
	switch link {
	case "expired":
		return nil, invitation.ErrInvitationExpired
	case "member":
		return nil, invitation.ErrAlreadyMember
	case "used":
		return nil, invitation.ErrInvitationNotFound
	}
	return &invitation.Invitation{ID: link}, nil
}

func (s *stubInvitationService) Deactivate(_ context.Context, link, callerID string) error {
	if link == "not-mine" {
		return invitation.ErrNotOwner
	}
	s.deactivatedBy = callerID
	return nil
}

func (s *stubInvitationService) Delete(_ context.Context, id string) error {
	s.deleted = id
	return nil
}

var _ = Describe("InvitationHandler", func() {
	var (
		svc    *stubInvitationService
		router chi.Router
	)

	BeforeEach(func() {
		svc = &stubInvitationService{}
		h := invitation.NewHandler(transport.NewBaseHandler(nil), svc)

		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if caller := r.Header.Get("X-Test-User"); caller != "" {
					r = r.WithContext(internal.ContextWithUserID(r.Context(), caller))
				}
				next.ServeHTTP(w, r)
			})
		})
		router.Post("/invite/create", h.Create)
		router.Post("/invite/accept", h.Accept)
		router.Patch("/invite/deactivate", h.Deactivate)
		router.Delete("/invite/{id}", h.Delete)
	})

	do := func(method, path, caller string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		if caller != "" {
			req.Header.Set("X-Test-User", caller)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	code := func(rec *httptest.ResponseRecorder) string {
		var resp struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		return resp.Error.Code
	}

	It("returns the invitation link", func() {
		rec := do(http.MethodPost, "/invite/create", "admin", invitation.CreateInvitationDTO{
			UserID:         "0b0f5f4e-8a4e-4f0c-9d61-2f3c2f0d6a11",
			OrganizationID: "0b0f5f4e-8a4e-4f0c-9d61-2f3c2f0d6a12",
		})
		Expect(rec.Code).To(Equal(http.StatusOK))

		var resp invitation.CreateInvitationResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.InvitationLink).To(ContainSubstring("invitation_id="))
	})

	It("refuses callers who may not invite", func() {
		body := invitation.CreateInvitationDTO{
			UserID:         "0b0f5f4e-8a4e-4f0c-9d61-2f3c2f0d6a11",
			OrganizationID: "0b0f5f4e-8a4e-4f0c-9d61-2f3c2f0d6a12",
		}
		Expect(do(http.MethodPost, "/invite/create", "bob", body).Code).To(Equal(http.StatusForbidden))
		Expect(do(http.MethodPost, "/invite/create", "", body).Code).To(Equal(http.StatusUnauthorized))
	})

	It("rejects a body with invalid ids", func() {
		rec := do(http.MethodPost, "/invite/create", "admin", invitation.CreateInvitationDTO{UserID: "x", OrganizationID: "y"})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(code(rec)).To(Equal(string(internal.ErrCodeValidationFailed)))
	})

	DescribeTable("maps accept outcomes to status codes",
		func(link string, status int) {
			rec := do(http.MethodPost, "/invite/accept", "bob", invitation.InvitationLinkDTO{InvitationLink: link})
			Expect(rec.Code).To(Equal(status))
		},
		Entry("accepted", "ok", http.StatusOK),
		Entry("expired", "expired", http.StatusBadRequest),
		Entry("already a member", "member", http.StatusConflict),
		Entry("already used", "used", http.StatusNotFound),
	)

	It("deactivates on behalf of the caller", func() {
		rec := do(http.MethodPatch, "/invite/deactivate", "bob", invitation.InvitationLinkDTO{InvitationLink: "mine"})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(svc.deactivatedBy).To(Equal("bob"))
	})

	It("forbids deactivating another user's invitation", func() {
		rec := do(http.MethodPatch, "/invite/deactivate", "bob", invitation.InvitationLinkDTO{InvitationLink: "not-mine"})
		Expect(rec.Code).To(Equal(http.StatusForbidden))
		Expect(code(rec)).To(Equal(string(internal.ErrCodeNotInvitationOwner)))
	})

	It("requires a caller to deactivate", func() {
		rec := do(http.MethodPatch, "/invite/deactivate", "", invitation.InvitationLinkDTO{InvitationLink: "mine"})
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("deletes by path id", func() {
		rec := do(http.MethodDelete, "/invite/abc", "root", nil)
		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(svc.deleted).To(Equal("abc"))
	})
})
