package postgres

import (
	"context"
	"time"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/auth"
	"github.com/frahmantamala/tenant-identity/internal/core/common/dbtx"
	tokenDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/token"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlacklistRepository is the revocation registry backed by blacklisted_tokens.
type BlacklistRepository struct {
	db           *gorm.DB
	queryTimeout time.Duration
}

func NewBlacklistRepository(db *gorm.DB, queryTimeout time.Duration) auth.RevocationRegistry {
	return &BlacklistRepository{db: db, queryTimeout: queryTimeout}
}

func (r *BlacklistRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	ctx, cancel := internal.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	var count int64
	err := dbtx.From(ctx, r.db).Model(&tokenDatamodel.BlacklistedToken{}).
		Where("token = ?", token).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *BlacklistRepository) Revoke(ctx context.Context, token, revokedBy string) error {
	ctx, cancel := internal.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	return dbtx.From(ctx, r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "token"}}, DoNothing: true}).
		Create(&tokenDatamodel.BlacklistedToken{Token: token, CreatedBy: revokedBy}).Error
}
