package invitation

import (
	"context"
	"net/http"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Create(ctx context.Context, callerID string, dto CreateInvitationDTO) (*CreateInvitationResponse, error)
	Accept(ctx context.Context, link string) (*Invitation, error)
	Deactivate(ctx context.Context, link, callerID string) error
	Delete(ctx context.Context, id string) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	callerID := internal.UserIDFromContext(r.Context())
	if callerID == "" {
		h.WriteAppError(w, internal.ErrMissingToken)
		return
	}

	var dto CreateInvitationDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	resp, err := h.Service.Create(r.Context(), callerID, dto)
	if err != nil {
		h.HandleServiceError(w, err, "failed to create invitation")
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	var dto InvitationLinkDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	if _, err := h.Service.Accept(r.Context(), dto.InvitationLink); err != nil {
		h.HandleServiceError(w, err, "failed to accept invitation")
		return
	}

	h.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:  "success",
		Message: "User added to organization successfully",
	})
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	callerID := internal.UserIDFromContext(r.Context())
	if callerID == "" {
		h.WriteAppError(w, internal.ErrMissingToken)
		return
	}

	var dto InvitationLinkDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	if err := h.Service.Deactivate(r.Context(), dto.InvitationLink, callerID); err != nil {
		h.HandleServiceError(w, err, "failed to deactivate invitation")
		return
	}

	h.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:  "success",
		Message: "Invitation link has been deactivated",
	})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.HandleServiceError(w, err, "failed to delete invitation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
