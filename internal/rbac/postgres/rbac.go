package postgres

import (
	"context"
	"time"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/core/common/dberr"
	"github.com/frahmantamala/tenant-identity/internal/core/common/dbtx"
	rbacDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/rbac"
	userDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/user"
	"github.com/frahmantamala/tenant-identity/internal/rbac"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RBACRepository struct {
	db           *gorm.DB
	queryTimeout time.Duration
}

func NewRBACRepository(db *gorm.DB, queryTimeout time.Duration) rbac.RepositoryAPI {
	return &RBACRepository{db: db, queryTimeout: queryTimeout}
}

func (r *RBACRepository) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := internal.WithTimeout(ctx, r.queryTimeout)
	return dbtx.From(ctx, r.db), cancel
}

func (r *RBACRepository) CreateOrganization(ctx context.Context, org *rbacDatamodel.Organization, ownerID string) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(org).Error; err != nil {
			if dberr.IsUniqueViolation(err) {
				return rbac.ErrNameTaken.WithMessage("Organization name already taken")
			}
			return err
		}
		if ownerID == "" {
			return nil
		}

		if err := tx.Create(&rbacDatamodel.OrganizationMember{OrganizationID: org.ID, UserID: ownerID}).Error; err != nil {
			return err
		}

		owner := &rbacDatamodel.Role{
			OrganizationID: org.ID,
			Name:           rbac.RoleOwner,
			Description:    "Organization owner",
			IsActive:       true,
		}
		if err := tx.Create(owner).Error; err != nil {
			return err
		}

		var permissionIDs []string
		if err := tx.Model(&rbacDatamodel.Permission{}).Pluck("id", &permissionIDs).Error; err != nil {
			return err
		}
		if err := createRolePermissions(tx, owner.ID, permissionIDs); err != nil {
			return err
		}

		return tx.Create(&rbacDatamodel.UserRole{UserID: ownerID, RoleID: owner.ID, OrganizationID: org.ID}).Error
	})
}

func createRolePermissions(tx *gorm.DB, roleID string, permissionIDs []string) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	links := make([]rbacDatamodel.RolePermission, 0, len(permissionIDs))
	for _, pid := range permissionIDs {
		links = append(links, rbacDatamodel.RolePermission{RoleID: roleID, PermissionID: pid})
	}
	return tx.Create(&links).Error
}

func (r *RBACRepository) GetOrganization(ctx context.Context, id string) (*rbacDatamodel.Organization, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var org rbacDatamodel.Organization
	if err := db.Where("id = ?", id).First(&org).Error; err != nil {
		if dberr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *RBACRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var count int64
	err := db.Model(&userDatamodel.User{}).
		Where("id = ? AND is_deleted = ?", userID, false).
		Count(&count).Error
	return count > 0, err
}

func (r *RBACRepository) CreatePermission(ctx context.Context, p *rbacDatamodel.Permission) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	if err := db.Create(p).Error; err != nil {
		if dberr.IsUniqueViolation(err) {
			return rbac.ErrNameTaken.WithMessage("Permission already exists")
		}
		return err
	}
	return nil
}

func (r *RBACRepository) GetPermissionsByIDs(ctx context.Context, ids []string) ([]*rbacDatamodel.Permission, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var perms []*rbacDatamodel.Permission
	err := db.Where("id IN ?", ids).Find(&perms).Error
	return perms, err
}

func (r *RBACRepository) CreateRole(ctx context.Context, role *rbacDatamodel.Role, permissionIDs []string) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(role).Error; err != nil {
			if dberr.IsUniqueViolation(err) {
				return rbac.ErrNameTaken.WithMessage("Role name already used in this organization")
			}
			return err
		}
		return createRolePermissions(tx, role.ID, permissionIDs)
	})
}

func (r *RBACRepository) GetRole(ctx context.Context, orgID, roleID string) (*rbacDatamodel.Role, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var role rbacDatamodel.Role
	if err := db.Where("id = ? AND organization_id = ?", roleID, orgID).First(&role).Error; err != nil {
		if dberr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

func (r *RBACRepository) GetRolePermissionIDs(ctx context.Context, roleID string) ([]string, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var ids []string
	err := db.Model(&rbacDatamodel.RolePermission{}).Where("role_id = ?", roleID).Pluck("permission_id", &ids).Error
	return ids, err
}

func (r *RBACRepository) SetRoleActive(ctx context.Context, roleID string, active bool) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	return db.Model(&rbacDatamodel.Role{}).Where("id = ?", roleID).Update("is_active", active).Error
}

// AssignRole also records organization membership if it is missing.
func (r *RBACRepository) AssignRole(ctx context.Context, userID, roleID, orgID string) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rbacDatamodel.UserRole{UserID: userID, RoleID: roleID, OrganizationID: orgID}).Error; err != nil {
			if dberr.IsUniqueViolation(err) {
				return rbac.ErrRoleAlreadyHeld
			}
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&rbacDatamodel.OrganizationMember{OrganizationID: orgID, UserID: userID}).Error
	})
}

func (r *RBACRepository) HasUserRole(ctx context.Context, userID, roleID string) (bool, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var count int64
	err := db.Model(&rbacDatamodel.UserRole{}).Where("user_id = ? AND role_id = ?", userID, roleID).Count(&count).Error
	return count > 0, err
}

func (r *RBACRepository) RemoveUserRole(ctx context.Context, userID, roleID string) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	return db.Where("user_id = ? AND role_id = ?", userID, roleID).Delete(&rbacDatamodel.UserRole{}).Error
}

func (r *RBACRepository) HasActiveRoleNamed(ctx context.Context, userID, orgID string, names []string) (bool, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var count int64
	err := db.Table("user_roles AS ur").
		Joins("JOIN roles r ON r.id = ur.role_id").
		Where("ur.user_id = ? AND r.organization_id = ? AND r.is_active = ? AND r.name IN ?", userID, orgID, true, names).
		Count(&count).Error
	return count > 0, err
}

func (r *RBACRepository) permissionQuery(db *gorm.DB, userID, orgID string) *gorm.DB {
	return db.Table("user_roles AS ur").
		Joins("JOIN roles r ON r.id = ur.role_id").
		Joins("JOIN role_permissions rp ON rp.role_id = r.id").
		Joins("JOIN permissions p ON p.id = rp.permission_id").
		Where("ur.user_id = ? AND r.organization_id = ? AND r.is_active = ?", userID, orgID, true)
}

func (r *RBACRepository) HasPermission(ctx context.Context, userID, orgID, permission string) (bool, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var count int64
	err := r.permissionQuery(db, userID, orgID).Where("p.name = ?", permission).Count(&count).Error
	return count > 0, err
}

func (r *RBACRepository) ListUserPermissions(ctx context.Context, userID, orgID string) ([]string, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var names []string
	err := r.permissionQuery(db, userID, orgID).
		Distinct("p.name").
		Order("p.name").
		Pluck("p.name", &names).Error
	return names, err
}

func (r *RBACRepository) IsMember(ctx context.Context, userID, orgID string) (bool, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var count int64
	err := db.Model(&rbacDatamodel.OrganizationMember{}).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *RBACRepository) ListMembers(ctx context.Context, orgID string, limit, offset int) ([]*rbacDatamodel.MemberRecord, int64, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	base := db.Table("organization_members AS om").
		Joins("JOIN users u ON u.id = om.user_id").
		Where("om.organization_id = ? AND u.is_deleted = ?", orgID, false)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var members []*rbacDatamodel.MemberRecord
	err := base.Session(&gorm.Session{}).
		Select("om.user_id AS user_id, u.email AS email, u.name AS name, om.created_at AS joined_at").
		Order("om.created_at ASC, om.user_id ASC").
		Limit(limit).
		Offset(offset).
		Scan(&members).Error
	return members, total, err
}

func (r *RBACRepository) RemoveMember(ctx context.Context, orgID, userID string) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("organization_id = ? AND user_id = ?", orgID, userID).
			Delete(&rbacDatamodel.UserRole{}).Error; err != nil {
			return err
		}
		res := tx.Where("organization_id = ? AND user_id = ?", orgID, userID).
			Delete(&rbacDatamodel.OrganizationMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return rbac.ErrNotMember
		}
		return nil
	})
}
