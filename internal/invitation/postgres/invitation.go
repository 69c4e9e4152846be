package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/core/common/dberr"
	"github.com/frahmantamala/tenant-identity/internal/core/common/dbtx"
	invitationDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/invitation"
	rbacDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/rbac"
	userDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/user"
	"github.com/frahmantamala/tenant-identity/internal/invitation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InvitationRepository struct {
	db           *gorm.DB
	queryTimeout time.Duration
}

func NewInvitationRepository(db *gorm.DB, queryTimeout time.Duration) invitation.RepositoryAPI {
	return &InvitationRepository{db: db, queryTimeout: queryTimeout}
}

func (r *InvitationRepository) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := internal.WithTimeout(ctx, r.queryTimeout)
	return dbtx.From(ctx, r.db), cancel
}

func (r *InvitationRepository) Create(ctx context.Context, inv *invitationDatamodel.Invitation) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	return db.Create(inv).Error
}

func (r *InvitationRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	return userExists(db, userID)
}

func (r *InvitationRepository) OrganizationExists(ctx context.Context, orgID string) (bool, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	return organizationExists(db, orgID)
}

func userExists(db *gorm.DB, userID string) (bool, error) {
	var count int64
	err := db.Model(&userDatamodel.User{}).
		Where("id = ? AND is_deleted = ?", userID, false).
		Count(&count).Error
	return count > 0, err
}

func organizationExists(db *gorm.DB, orgID string) (bool, error) {
	var count int64
	err := db.Model(&rbacDatamodel.Organization{}).
		Where("id = ?", orgID).
		Count(&count).Error
	return count > 0, err
}

func (r *InvitationRepository) Accept(ctx context.Context, id string, now time.Time) (*invitationDatamodel.Invitation, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var (
		accepted invitationDatamodel.Invitation
		expired  bool
	)

	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND is_valid = ?", id, true).
			First(&accepted).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invitation.ErrInvitationNotFound
			}
			return err
		}

		if !now.Before(accepted.ExpiresAt) {
			if err := invalidate(tx, id); err != nil {
				return err
			}
			// commit the invalidation, report after
			expired = true
			return nil
		}

		ok, err := organizationExists(tx, accepted.OrganizationID)
		if err != nil {
			return err
		}
		if !ok {
			return invitation.ErrOrgGone
		}

		ok, err = userExists(tx, accepted.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return invitation.ErrInviteeGone
		}

		var members int64
		if err := tx.Model(&rbacDatamodel.OrganizationMember{}).
			Where("organization_id = ? AND user_id = ?", accepted.OrganizationID, accepted.UserID).
			Count(&members).Error; err != nil {
			return err
		}
		if members > 0 {
			return invitation.ErrAlreadyMember
		}

		if err := invalidate(tx, id); err != nil {
			return err
		}

		member := &rbacDatamodel.OrganizationMember{OrganizationID: accepted.OrganizationID, UserID: accepted.UserID}
		if err := tx.Create(member).Error; err != nil {
			if dberr.IsUniqueViolation(err) {
				return invitation.ErrAlreadyMember
			}
			return err
		}

		accepted.IsValid = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, invitation.ErrInvitationExpired
	}
	return &accepted, nil
}

// invalidate flips is_valid only while it is still true, so two transactions
// can never both claim the same invitation.
func invalidate(tx *gorm.DB, id string) error {
	result := tx.Model(&invitationDatamodel.Invitation{}).
		Where("id = ? AND is_valid = ?", id, true).
		Update("is_valid", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return invitation.ErrInvitationNotFound
	}
	return nil
}

func (r *InvitationRepository) Deactivate(ctx context.Context, id, callerID string) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	return db.Transaction(func(tx *gorm.DB) error {
		var inv invitationDatamodel.Invitation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND is_valid = ?", id, true).
			First(&inv).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invitation.ErrInvitationNotFound
			}
			return err
		}

		if inv.UserID != callerID {
			return invitation.ErrNotOwner
		}

		return invalidate(tx, id)
	})
}

func (r *InvitationRepository) Delete(ctx context.Context, id string) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	result := db.Where("id = ?", id).Delete(&invitationDatamodel.Invitation{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return invitation.ErrInvitationNotFound
	}
	return nil
}
