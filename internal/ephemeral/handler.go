package ephemeral

import (
	"context"
	"fmt"
	"net/http"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/auth"
	"github.com/frahmantamala/tenant-identity/internal/transport"
)

type ServiceAPI interface {
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) (auth.AuthTokens, error)
	RequestLoginCode(ctx context.Context, email string) error
	VerifyLoginCode(ctx context.Context, email, code string) (auth.AuthTokens, error)
	RequestMagicLink(ctx context.Context, email string) error
	VerifyMagicLink(ctx context.Context, token string) (auth.AuthTokens, error)
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

func (h *Handler) decodeEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	var dto EmailRequestDTO
	if !h.DecodeJSON(w, r, &dto) {
		return "", false
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err, "invalid request")
		return "", false
	}
	return dto.Email, true
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	email, ok := h.decodeEmail(w, r)
	if !ok {
		return
	}

	if err := h.Service.RequestPasswordReset(r.Context(), email); err != nil {
		h.HandleServiceError(w, err, "failed to request password reset")
		return
	}

	h.WriteJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("Password reset link sent to %s", email)})
}

// ResetPassword takes the reset token from the Authorization header.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	token := transport.BearerToken(r)
	if token == "" {
		h.WriteAppError(w, internal.ErrMissingToken)
		return
	}

	var dto ResetPasswordDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err, "invalid request")
		return
	}

	tokens, err := h.Service.ResetPassword(r.Context(), token, dto.NewPassword, dto.ConfirmPassword)
	if err != nil {
		h.HandleServiceError(w, err, "failed to reset password")
		return
	}

	h.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Handler) RequestLoginCode(w http.ResponseWriter, r *http.Request) {
	email, ok := h.decodeEmail(w, r)
	if !ok {
		return
	}

	if err := h.Service.RequestLoginCode(r.Context(), email); err != nil {
		h.HandleServiceError(w, err, "failed to request login code")
		return
	}

	h.WriteJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("Sign-in token sent to %s", email)})
}

func (h *Handler) VerifyLoginCode(w http.ResponseWriter, r *http.Request) {
	var dto VerifyCodeDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err, "invalid request")
		return
	}

	tokens, err := h.Service.VerifyLoginCode(r.Context(), dto.Email, dto.Code)
	if err != nil {
		h.HandleServiceError(w, err, "failed to verify login code")
		return
	}

	h.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Handler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	email, ok := h.decodeEmail(w, r)
	if !ok {
		return
	}

	if err := h.Service.RequestMagicLink(r.Context(), email); err != nil {
		h.HandleServiceError(w, err, "failed to request magic link")
		return
	}

	h.WriteJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("Magic link sent to %s", email)})
}

func (h *Handler) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	var dto MagicLinkVerifyDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err, "invalid request")
		return
	}

	tokens, err := h.Service.VerifyMagicLink(r.Context(), dto.Token)
	if err != nil {
		h.HandleServiceError(w, err, "failed to verify magic link")
		return
	}

	h.WriteJSON(w, http.StatusOK, tokens)
}
