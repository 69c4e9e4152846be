package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/core/common/dberr"
	"github.com/frahmantamala/tenant-identity/internal/core/common/dbtx"
	userDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/user"
	"github.com/frahmantamala/tenant-identity/internal/user"
	"gorm.io/gorm"
)

type UserRepository struct {
	db           *gorm.DB
	queryTimeout time.Duration
}

func NewUserRepository(db *gorm.DB, queryTimeout time.Duration) user.RepositoryAPI {
	return &UserRepository{db: db, queryTimeout: queryTimeout}
}

func (r *UserRepository) Create(ctx context.Context, u *userDatamodel.User) error {
	ctx, cancel := internal.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	if err := dbtx.From(ctx, r.db).Create(u).Error; err != nil {
		if dberr.IsUniqueViolation(err) {
			return user.ErrEmailTaken
		}
		return err
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*userDatamodel.User, error) {
	ctx, cancel := internal.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	var u userDatamodel.User
	err := dbtx.From(ctx, r.db).Where("id = ? AND is_deleted = ?", id, false).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*userDatamodel.User, error) {
	ctx, cancel := internal.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	var u userDatamodel.User
	err := dbtx.From(ctx, r.db).
		Where("LOWER(email) = ? AND is_deleted = ?", strings.ToLower(email), false).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	ctx, cancel := internal.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	return dbtx.From(ctx, r.db).Model(&userDatamodel.User{}).
		Where("id = ?", id).
		Update("password_hash", passwordHash).Error
}

func (r *UserRepository) SoftDelete(ctx context.Context, id string) error {
	ctx, cancel := internal.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	return dbtx.From(ctx, r.db).Model(&userDatamodel.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_deleted": true, "is_active": false}).Error
}
