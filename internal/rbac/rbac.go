package rbac

import (
	"fmt"
	"time"

	"github.com/frahmantamala/tenant-identity/internal"
	rbacDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/rbac"
)

const (
	RoleOwner = "owner"
	RoleAdmin = "admin"

	PermissionManageRoles       = "manage_roles"
	PermissionManageInvitations = "manage_invitations"
	PermissionViewMembers       = "view_members"
)

// RoleManagerNames are the role names allowed to take roles or memberships away.
var RoleManagerNames = []string{RoleAdmin, RoleOwner}

// DefaultPermissions is the catalogue seeded on a fresh install.
var DefaultPermissions = map[string]string{
	PermissionManageRoles:       "Create, assign and deactivate roles",
	PermissionManageInvitations: "Invite users into the organization",
	PermissionViewMembers:       "List organization members",
}

const maxPersonalNameEmail = 200

// PersonalOrganizationName is "<email>'s Organisation (<first 8 of user id>)".
func PersonalOrganizationName(email, userID string) string {
	if len(email) > maxPersonalNameEmail {
		email = email[:maxPersonalNameEmail]
	}
	short := userID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s's Organisation (%s)", email, short)
}

type Organization struct {
	ID        string
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

type Permission struct {
	ID          string
	Name        string
	Description string
}

type Role struct {
	ID             string
	OrganizationID string
	Name           string
	Description    string
	IsActive       bool
	PermissionIDs  []string
	CreatedAt      time.Time
}

// GrantsNothing reports whether the role is ignored by permission checks.
func (r *Role) GrantsNothing() bool {
	return !r.IsActive
}

var (
	ErrOrgNotFound        = internal.NewNotFoundError("Organization not found", internal.ErrCodeOrgNotFound)
	ErrPermissionNotFound = internal.NewNotFoundError("One or more permissions not found", internal.ErrCodePermissionNotFound)
	ErrRoleNotFound       = internal.NewNotFoundError("Role not found", internal.ErrCodeRoleNotFound)
	ErrUserNotFound       = internal.NewNotFoundError("User not found", internal.ErrCodeUserNotFound)
	ErrUserNotInRole      = internal.NewNotFoundError("User does not hold this role", internal.ErrCodeUserNotInRole)
	ErrRoleAlreadyHeld    = internal.NewConflictError("User already holds this role", internal.ErrCodeRoleAssigned)
	ErrNameTaken          = internal.NewConflictError("Name already taken", internal.ErrCodeNameTaken)
	ErrNotRoleManager     = internal.NewForbiddenError("Only organization admins or owners can remove roles", internal.ErrCodeInsufficientRole)
	ErrNotMemberManager   = internal.NewForbiddenError("Only organization admins or owners can remove members", internal.ErrCodeInsufficientRole)
	ErrNotMember          = internal.NewNotFoundError("User is not a member of this organization", internal.ErrCodeNotMember)
	ErrRemoveSelf         = internal.NewValidationError("Use account deactivation to leave your own organization", internal.ErrCodeValidationFailed)
)

const (
	DefaultMemberPageSize = 10
	MaxMemberPageSize     = 100
)

// Member is a user as seen from inside one organization.
type Member struct {
	UserID   string
	Email    string
	Name     string
	JoinedAt time.Time
}

type MemberPage struct {
	OrganizationID string
	Members        []Member
	Total          int64
	Page           int
	Limit          int
}

func (p *MemberPage) ToResponse() MemberPageResponse {
	members := make([]MemberResponse, 0, len(p.Members))
	for _, m := range p.Members {
		members = append(members, MemberResponse{UserID: m.UserID, Email: m.Email, Name: m.Name, JoinedAt: m.JoinedAt})
	}
	return MemberPageResponse{
		OrganizationID: p.OrganizationID,
		Total:          p.Total,
		Page:           p.Page,
		Limit:          p.Limit,
		Members:        members,
	}
}

func OrganizationFromDataModel(o *rbacDatamodel.Organization) *Organization {
	return &Organization{ID: o.ID, Name: o.Name, CreatedBy: o.CreatedBy, CreatedAt: o.CreatedAt}
}

func PermissionFromDataModel(p *rbacDatamodel.Permission) *Permission {
	return &Permission{ID: p.ID, Name: p.Name, Description: p.Description}
}

func RoleFromDataModel(r *rbacDatamodel.Role, permissionIDs []string) *Role {
	return &Role{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		Name:           r.Name,
		Description:    r.Description,
		IsActive:       r.IsActive,
		PermissionIDs:  permissionIDs,
		CreatedAt:      r.CreatedAt,
	}
}

func (o *Organization) ToResponse() OrganizationResponse {
	return OrganizationResponse{ID: o.ID, Name: o.Name, CreatedBy: o.CreatedBy, CreatedAt: o.CreatedAt}
}

func (p *Permission) ToResponse() PermissionResponse {
	return PermissionResponse{ID: p.ID, Name: p.Name, Description: p.Description}
}

func (r *Role) ToResponse() RoleResponse {
	ids := r.PermissionIDs
	if ids == nil {
		ids = []string{}
	}
	return RoleResponse{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		Name:           r.Name,
		Description:    r.Description,
		IsActive:       r.IsActive,
		PermissionIDs:  ids,
	}
}
