package auth

import (
	"context"
	"net/http"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/transport"
	"github.com/frahmantamala/tenant-identity/internal/user"
	"github.com/frahmantamala/tenant-identity/pkg/logger"
)

type ServiceAPI interface {
	Login(ctx context.Context, dto LoginDTO) (AuthTokens, error)
	Register(ctx context.Context, dto user.RegisterDTO) (*RegisterResponse, error)
	Rotate(ctx context.Context, refreshToken string) (AuthTokens, error)
	Logout(ctx context.Context, principal *Principal, refreshToken string) error
	ResolvePrincipal(ctx context.Context, bearer string) (*Principal, error)
	ChangePassword(ctx context.Context, principal *Principal, dto user.ChangePasswordDTO) error
	Deactivate(ctx context.Context, principal *Principal, refreshToken string) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     svc,
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var dto user.RegisterDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	resp, err := h.Service.Register(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err, "failed to register user")
		return
	}

	h.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	tokens, err := h.Service.Login(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err, "failed to log in")
		return
	}

	h.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var dto RefreshTokenDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err, "invalid request")
		return
	}

	tokens, err := h.Service.Rotate(r.Context(), dto.RefreshToken)
	if err != nil {
		h.HandleServiceError(w, err, "failed to refresh token")
		return
	}

	h.WriteJSON(w, http.StatusOK, tokens)
}

// Logout must sit behind AuthMiddleware.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrMissingToken)
		return
	}

	var dto LogoutDTO
	if r.ContentLength > 0 && !h.DecodeJSON(w, r, &dto) {
		return
	}

	if err := h.Service.Logout(r.Context(), principal, dto.RefreshToken); err != nil {
		h.HandleServiceError(w, err, "failed to log out")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword ends the current session on success; the client signs in again.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrMissingToken)
		return
	}

	var dto user.ChangePasswordDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	if err := h.Service.ChangePassword(r.Context(), principal, dto); err != nil {
		h.HandleServiceError(w, err, "failed to change password")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrMissingToken)
		return
	}

	var dto LogoutDTO
	if r.ContentLength > 0 && !h.DecodeJSON(w, r, &dto) {
		return
	}

	if err := h.Service.Deactivate(r.Context(), principal, dto.RefreshToken); err != nil {
		h.HandleServiceError(w, err, "failed to deactivate account")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.WriteAppError(w, internal.ErrMissingToken)
			return
		}

		principal, err := h.Service.ResolvePrincipal(r.Context(), token)
		if err != nil {
			h.Logger.Warn("auth middleware: token rejected", "error", err)
			h.HandleServiceError(w, err, "failed to authenticate request")
			return
		}

		ctx := ContextWithPrincipal(r.Context(), principal)
		ctx = logger.With(ctx, "user_id", principal.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
