package rbac

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	CreateOrganization(ctx context.Context, creatorID string, dto CreateOrganizationDTO) (*Organization, error)
	CreatePermission(ctx context.Context, dto CreatePermissionDTO) (*Permission, error)
	CreateRole(ctx context.Context, orgID string, dto CreateRoleDTO) (*Role, error)
	AssignRole(ctx context.Context, orgID, roleID, userID string) error
	DeactivateRole(ctx context.Context, orgID, roleID string) (*Role, error)
	RemoveUserFromRole(ctx context.Context, callerID, orgID, userID, roleID string) error
	CheckPermission(ctx context.Context, userID, orgID, permission string) (bool, error)
	ListUserPermissions(ctx context.Context, userID, orgID string) ([]string, error)
	ListMembers(ctx context.Context, orgID string, page, limit int) (*MemberPage, error)
	RemoveMember(ctx context.Context, callerID, orgID, userID string) error
}

var errBadPaging = internal.NewValidationError("page and limit must be whole numbers", internal.ErrCodeValidationFailed)

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

func (h *Handler) callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := internal.UserIDFromContext(r.Context())
	if id == "" {
		h.WriteAppError(w, internal.ErrMissingToken)
		return "", false
	}
	return id, true
}

func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	var dto CreateOrganizationDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	org, err := h.Service.CreateOrganization(r.Context(), callerID, dto)
	if err != nil {
		h.HandleServiceError(w, err, "failed to create organization")
		return
	}

	h.WriteJSON(w, http.StatusCreated, org.ToResponse())
}

func (h *Handler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var dto CreatePermissionDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	p, err := h.Service.CreatePermission(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err, "failed to create permission")
		return
	}

	h.WriteJSON(w, http.StatusCreated, p.ToResponse())
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var dto CreateRoleDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	role, err := h.Service.CreateRole(r.Context(), chi.URLParam(r, "orgID"), dto)
	if err != nil {
		h.HandleServiceError(w, err, "failed to create role")
		return
	}

	h.WriteJSON(w, http.StatusCreated, role.ToResponse())
}

func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var dto AssignRoleDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err, "invalid request")
		return
	}

	err := h.Service.AssignRole(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "roleID"), dto.UserID)
	if err != nil {
		h.HandleServiceError(w, err, "failed to assign role")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveUserFromRole(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	err := h.Service.RemoveUserFromRole(r.Context(), callerID,
		chi.URLParam(r, "orgID"), chi.URLParam(r, "userID"), chi.URLParam(r, "roleID"))
	if err != nil {
		h.HandleServiceError(w, err, "failed to remove role")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeactivateRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.Service.DeactivateRole(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "roleID"))
	if err != nil {
		h.HandleServiceError(w, err, "failed to deactivate role")
		return
	}

	h.WriteJSON(w, http.StatusOK, role.ToResponse())
}

// CheckPermission answers for the caller only.
func (h *Handler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	allowed, err := h.Service.CheckPermission(r.Context(), callerID, chi.URLParam(r, "orgID"), name)
	if err != nil {
		h.HandleServiceError(w, err, "failed to check permission")
		return
	}

	h.WriteJSON(w, http.StatusOK, PermissionCheckResponse{Permission: name, Allowed: allowed})
}

func (h *Handler) ListMyPermissions(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	orgID := chi.URLParam(r, "orgID")
	perms, err := h.Service.ListUserPermissions(r.Context(), callerID, orgID)
	if err != nil {
		h.HandleServiceError(w, err, "failed to list permissions")
		return
	}

	h.WriteJSON(w, http.StatusOK, UserPermissionsResponse{OrganizationID: orgID, Permissions: perms})
}

func queryInt(r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

// ListMembers pages with ?page= and ?limit=.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	page, okPage := queryInt(r, "page")
	limit, okLimit := queryInt(r, "limit")
	if !okPage || !okLimit {
		h.WriteAppError(w, errBadPaging)
		return
	}

	result, err := h.Service.ListMembers(r.Context(), chi.URLParam(r, "orgID"), page, limit)
	if err != nil {
		h.HandleServiceError(w, err, "failed to list members")
		return
	}

	h.WriteJSON(w, http.StatusOK, result.ToResponse())
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	err := h.Service.RemoveMember(r.Context(), callerID, chi.URLParam(r, "orgID"), chi.URLParam(r, "userID"))
	if err != nil {
		h.HandleServiceError(w, err, "failed to remove member")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
