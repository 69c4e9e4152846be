package postgres

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/core/common/dbtx"
	tokenDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/token"
	userDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/user"
	"github.com/frahmantamala/tenant-identity/internal/ephemeral"
	"github.com/frahmantamala/tenant-identity/internal/user"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EphemeralTokenRepository struct {
	db           *gorm.DB
	queryTimeout time.Duration
}

func NewEphemeralTokenRepository(db *gorm.DB, queryTimeout time.Duration) ephemeral.RepositoryAPI {
	return &EphemeralTokenRepository{db: db, queryTimeout: queryTimeout}
}

func (r *EphemeralTokenRepository) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := internal.WithTimeout(ctx, r.queryTimeout)
	return dbtx.From(ctx, r.db), cancel
}

func (r *EphemeralTokenRepository) Create(ctx context.Context, tok *tokenDatamodel.EphemeralToken) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND purpose = ?", tok.UserID, tok.Purpose).
			Delete(&tokenDatamodel.EphemeralToken{}).Error; err != nil {
			return err
		}
		return tx.Create(tok).Error
	})
}

// lockRow returns ErrTokenConsumed when the row is gone: it was either used
// already or replaced by a newer request.
func lockRow(tx *gorm.DB, id string, purpose ephemeral.Purpose, userID string) error {
	var row tokenDatamodel.EphemeralToken
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND purpose = ?", id, string(purpose)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ephemeral.ErrTokenConsumed
		}
		return err
	}
	if row.UserID != userID {
		return ephemeral.ErrTokenMismatch
	}

	result := tx.Where("id = ?", id).Delete(&tokenDatamodel.EphemeralToken{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ephemeral.ErrTokenConsumed
	}
	return nil
}

func (r *EphemeralTokenRepository) Consume(ctx context.Context, id string, purpose ephemeral.Purpose, userID string) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	return db.Transaction(func(tx *gorm.DB) error {
		return lockRow(tx, id, purpose, userID)
	})
}

// ConsumeCode checks codeHash against the user's outstanding login code under
// a row lock. Expired codes are deleted. A wrong guess is counted and the
// code is deleted once MaxLoginCodeAttempts is reached.
func (r *EphemeralTokenRepository) ConsumeCode(ctx context.Context, userID, codeHash string, now time.Time) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	// the outcome is decided inside the tx but reported after commit, so the
	// delete or the attempt counter sticks
	var outcome error
	err := db.Transaction(func(tx *gorm.DB) error {
		var row tokenDatamodel.EphemeralToken
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND purpose = ?", userID, string(ephemeral.PurposeLoginCode)).
			Order("created_at DESC").
			First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ephemeral.ErrTokenNotFound
			}
			return err
		}

		if !now.Before(row.ExpiresAt) {
			outcome = ephemeral.ErrTokenExpired
			return deleteRow(tx, row.ID)
		}

		if subtle.ConstantTimeCompare([]byte(row.Code), []byte(codeHash)) != 1 {
			outcome = ephemeral.ErrTokenNotFound
			if row.Attempts+1 >= ephemeral.MaxLoginCodeAttempts {
				return deleteRow(tx, row.ID)
			}
			return tx.Model(&tokenDatamodel.EphemeralToken{}).
				Where("id = ?", row.ID).
				Update("attempts", gorm.Expr("attempts + 1")).Error
		}

		return deleteRow(tx, row.ID)
	})
	if err != nil {
		return err
	}
	return outcome
}

func deleteRow(tx *gorm.DB, id string) error {
	result := tx.Where("id = ?", id).Delete(&tokenDatamodel.EphemeralToken{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ephemeral.ErrTokenConsumed
	}
	return nil
}

func (r *EphemeralTokenRepository) ConsumeAndResetPassword(ctx context.Context, id, userID, passwordHash string) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	return db.Transaction(func(tx *gorm.DB) error {
		if err := lockRow(tx, id, ephemeral.PurposePasswordReset, userID); err != nil {
			return err
		}

		result := tx.Model(&userDatamodel.User{}).
			Where("id = ? AND is_deleted = ?", userID, false).
			Update("password_hash", passwordHash)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return user.ErrUserNotFound
		}
		return nil
	})
}
