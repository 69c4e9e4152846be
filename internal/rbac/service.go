package rbac

import (
	"context"
	"log/slog"
	"strings"

	"github.com/frahmantamala/tenant-identity/internal"
	rbacDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/rbac"
	"github.com/frahmantamala/tenant-identity/internal/core/events"
)

type RepositoryAPI interface {
	// CreateOrganization inserts the organization, makes ownerID a member and
	// gives them an owner role linked to every known permission.
	CreateOrganization(ctx context.Context, org *rbacDatamodel.Organization, ownerID string) error
	GetOrganization(ctx context.Context, id string) (*rbacDatamodel.Organization, error)
	UserExists(ctx context.Context, userID string) (bool, error)

	CreatePermission(ctx context.Context, p *rbacDatamodel.Permission) error
	GetPermissionsByIDs(ctx context.Context, ids []string) ([]*rbacDatamodel.Permission, error)

	CreateRole(ctx context.Context, role *rbacDatamodel.Role, permissionIDs []string) error
	GetRole(ctx context.Context, orgID, roleID string) (*rbacDatamodel.Role, error)
	GetRolePermissionIDs(ctx context.Context, roleID string) ([]string, error)
	SetRoleActive(ctx context.Context, roleID string, active bool) error

	AssignRole(ctx context.Context, userID, roleID, orgID string) error
	HasUserRole(ctx context.Context, userID, roleID string) (bool, error)
	RemoveUserRole(ctx context.Context, userID, roleID string) error
	HasActiveRoleNamed(ctx context.Context, userID, orgID string, names []string) (bool, error)

	HasPermission(ctx context.Context, userID, orgID, permission string) (bool, error)
	ListUserPermissions(ctx context.Context, userID, orgID string) ([]string, error)
	IsMember(ctx context.Context, userID, orgID string) (bool, error)
	// ListMembers pages through members that still have a live account,
	// oldest membership first.
	ListMembers(ctx context.Context, orgID string, limit, offset int) ([]*rbacDatamodel.MemberRecord, int64, error)
	// RemoveMember drops the membership and every role the user holds in
	// orgID. It returns ErrNotMember when there was no membership.
	RemoveMember(ctx context.Context, orgID, userID string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type Service struct {
	repo      RepositoryAPI
	publisher EventPublisher
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// WithPublisher announces membership removals on p.
func (s *Service) WithPublisher(p EventPublisher) *Service {
	s.publisher = p
	return s
}

func wrapRepoErr(err error, msg string) error {
	if appErr, ok := internal.IsAppError(err); ok {
		return appErr
	}
	return internal.NewInternalError(msg, err)
}

func (s *Service) CreateOrganization(ctx context.Context, creatorID string, dto CreateOrganizationDTO) (*Organization, error) {
	dto.Name = strings.TrimSpace(dto.Name)
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	org := &rbacDatamodel.Organization{Name: dto.Name, CreatedBy: creatorID}
	if err := s.repo.CreateOrganization(ctx, org, creatorID); err != nil {
		s.logger.Error("failed to create organization", "name", dto.Name, "error", err)
		return nil, wrapRepoErr(err, "failed to create organization")
	}

	s.logger.Info("organization created", "organization_id", org.ID, "created_by", creatorID)
	return OrganizationFromDataModel(org), nil
}

// ProvisionPersonalOrganization gives a new user an organization of their own.
// The name carries the user id, so nobody can claim it ahead of the user.
func (s *Service) ProvisionPersonalOrganization(ctx context.Context, userID, email string) error {
	org := &rbacDatamodel.Organization{Name: PersonalOrganizationName(email, userID), CreatedBy: userID}
	if err := s.repo.CreateOrganization(ctx, org, userID); err != nil {
		s.logger.Error("failed to provision personal organization", "user_id", userID, "error", err)
		return wrapRepoErr(err, "failed to provision personal organization")
	}

	s.logger.Info("personal organization created", "organization_id", org.ID, "user_id", userID)
	return nil
}

func (s *Service) GetOrganization(ctx context.Context, orgID string) (*Organization, error) {
	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, wrapRepoErr(err, "failed to load organization")
	}
	if org == nil {
		return nil, ErrOrgNotFound
	}
	return OrganizationFromDataModel(org), nil
}

func (s *Service) OrganizationExists(ctx context.Context, orgID string) (bool, error) {
	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return false, wrapRepoErr(err, "failed to load organization")
	}
	return org != nil, nil
}

func (s *Service) CreatePermission(ctx context.Context, dto CreatePermissionDTO) (*Permission, error) {
	dto.Name = strings.TrimSpace(dto.Name)
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	p := &rbacDatamodel.Permission{Name: dto.Name, Description: dto.Description}
	if err := s.repo.CreatePermission(ctx, p); err != nil {
		return nil, wrapRepoErr(err, "failed to create permission")
	}

	s.logger.Info("permission created", "permission", p.Name)
	return PermissionFromDataModel(p), nil
}

// CreateRole rejects the whole request if any permission id does not resolve.
func (s *Service) CreateRole(ctx context.Context, orgID string, dto CreateRoleDTO) (*Role, error) {
	dto.Name = strings.TrimSpace(dto.Name)
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}

	permissionIDs := dedupe(dto.PermissionIDs)
	if len(permissionIDs) > 0 {
		found, err := s.repo.GetPermissionsByIDs(ctx, permissionIDs)
		if err != nil {
			return nil, wrapRepoErr(err, "failed to load permissions")
		}
		if len(found) != len(permissionIDs) {
			return nil, ErrPermissionNotFound
		}
	}

	role := &rbacDatamodel.Role{
		OrganizationID: orgID,
		Name:           dto.Name,
		Description:    dto.Description,
		IsActive:       true,
	}
	if err := s.repo.CreateRole(ctx, role, permissionIDs); err != nil {
		return nil, wrapRepoErr(err, "failed to create role")
	}

	s.logger.Info("role created", "organization_id", orgID, "role_id", role.ID, "permissions", len(permissionIDs))
	return RoleFromDataModel(role, permissionIDs), nil
}

func (s *Service) getRole(ctx context.Context, orgID, roleID string) (*rbacDatamodel.Role, error) {
	role, err := s.repo.GetRole(ctx, orgID, roleID)
	if err != nil {
		return nil, wrapRepoErr(err, "failed to load role")
	}
	if role == nil {
		return nil, ErrRoleNotFound
	}
	return role, nil
}

func (s *Service) AssignRole(ctx context.Context, orgID, roleID, userID string) error {
	if _, err := s.getRole(ctx, orgID, roleID); err != nil {
		return err
	}

	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return wrapRepoErr(err, "failed to load user")
	}
	if !exists {
		return ErrUserNotFound
	}

	if err := s.repo.AssignRole(ctx, userID, roleID, orgID); err != nil {
		return wrapRepoErr(err, "failed to assign role")
	}

	s.logger.Info("role assigned", "organization_id", orgID, "role_id", roleID, "user_id", userID)
	return nil
}

// DeactivateRole keeps the role and its links but stops it granting anything.
func (s *Service) DeactivateRole(ctx context.Context, orgID, roleID string) (*Role, error) {
	role, err := s.getRole(ctx, orgID, roleID)
	if err != nil {
		return nil, err
	}

	if role.IsActive {
		if err := s.repo.SetRoleActive(ctx, roleID, false); err != nil {
			return nil, wrapRepoErr(err, "failed to deactivate role")
		}
		role.IsActive = false
	}

	permissionIDs, err := s.repo.GetRolePermissionIDs(ctx, roleID)
	if err != nil {
		return nil, wrapRepoErr(err, "failed to load role permissions")
	}

	s.logger.Info("role deactivated", "organization_id", orgID, "role_id", roleID)
	return RoleFromDataModel(role, permissionIDs), nil
}

// RemoveUserFromRole requires the caller to hold an active admin or owner
// role in the same organization.
func (s *Service) RemoveUserFromRole(ctx context.Context, callerID, orgID, userID, roleID string) error {
	allowed, err := s.repo.HasActiveRoleNamed(ctx, callerID, orgID, RoleManagerNames)
	if err != nil {
		return wrapRepoErr(err, "failed to check caller role")
	}
	if !allowed {
		return ErrNotRoleManager
	}

	if _, err := s.getRole(ctx, orgID, roleID); err != nil {
		return err
	}

	held, err := s.repo.HasUserRole(ctx, userID, roleID)
	if err != nil {
		return wrapRepoErr(err, "failed to load user role")
	}
	if !held {
		return ErrUserNotInRole
	}

	if err := s.repo.RemoveUserRole(ctx, userID, roleID); err != nil {
		return wrapRepoErr(err, "failed to remove role")
	}

	s.logger.Info("role removed", "organization_id", orgID, "role_id", roleID, "user_id", userID, "removed_by", callerID)
	return nil
}

// CheckPermission is true only through an active role of orgID that is
// linked to the named permission. There is no admin bypass.
func (s *Service) CheckPermission(ctx context.Context, userID, orgID, permission string) (bool, error) {
	if userID == "" || orgID == "" || permission == "" {
		return false, nil
	}
	ok, err := s.repo.HasPermission(ctx, userID, orgID, permission)
	if err != nil {
		return false, wrapRepoErr(err, "failed to check permission")
	}
	return ok, nil
}

func (s *Service) ListUserPermissions(ctx context.Context, userID, orgID string) ([]string, error) {
	perms, err := s.repo.ListUserPermissions(ctx, userID, orgID)
	if err != nil {
		return nil, wrapRepoErr(err, "failed to list permissions")
	}
	if perms == nil {
		perms = []string{}
	}
	return perms, nil
}

func (s *Service) IsMember(ctx context.Context, userID, orgID string) (bool, error) {
	ok, err := s.repo.IsMember(ctx, userID, orgID)
	if err != nil {
		return false, wrapRepoErr(err, "failed to check membership")
	}
	return ok, nil
}

// ListMembers returns one page of orgID's members. page starts at 1; limit
// falls back to DefaultMemberPageSize and is capped at MaxMemberPageSize.
func (s *Service) ListMembers(ctx context.Context, orgID string, page, limit int) (*MemberPage, error) {
	if _, err := s.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultMemberPageSize
	}
	if limit > MaxMemberPageSize {
		limit = MaxMemberPageSize
	}

	rows, total, err := s.repo.ListMembers(ctx, orgID, limit, (page-1)*limit)
	if err != nil {
		return nil, wrapRepoErr(err, "failed to list members")
	}

	members := make([]Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, Member{UserID: row.UserID, Email: row.Email, Name: row.Name, JoinedAt: row.JoinedAt})
	}
	return &MemberPage{OrganizationID: orgID, Members: members, Total: total, Page: page, Limit: limit}, nil
}

// RemoveMember takes userID out of orgID along with every role they hold
// there. Only an admin or owner of orgID may do it, and not to themselves.
func (s *Service) RemoveMember(ctx context.Context, callerID, orgID, userID string) error {
	allowed, err := s.repo.HasActiveRoleNamed(ctx, callerID, orgID, RoleManagerNames)
	if err != nil {
		return wrapRepoErr(err, "failed to check caller role")
	}
	if !allowed {
		return ErrNotMemberManager
	}
	if callerID == userID {
		return ErrRemoveSelf
	}

	if err := s.repo.RemoveMember(ctx, orgID, userID); err != nil {
		return wrapRepoErr(err, "failed to remove member")
	}

	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, events.NewMemberRemovedEvent(orgID, userID, callerID))
	}
	s.logger.Info("member removed", "organization_id", orgID, "user_id", userID, "removed_by", callerID)
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
