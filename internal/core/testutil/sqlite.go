// Package testutil opens throwaway sqlite databases carrying the full schema.
package testutil

import (
	"fmt"

	invitationDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/invitation"
	rbacDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/rbac"
	tokenDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/token"
	userDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/user"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models lists every table in migration order.
func Models() []interface{} {
	return []interface{}{
		&userDatamodel.User{},
		&rbacDatamodel.Organization{},
		&rbacDatamodel.OrganizationMember{},
		&rbacDatamodel.Permission{},
		&rbacDatamodel.Role{},
		&rbacDatamodel.RolePermission{},
		&rbacDatamodel.UserRole{},
		&invitationDatamodel.Invitation{},
		&tokenDatamodel.BlacklistedToken{},
		&tokenDatamodel.EphemeralToken{},
	}
}

// NewSQLiteDB returns an isolated in-memory database. The pool is pinned to one
// connection so every goroutine sees the same memory database and transactions
// serialise the way row locks would on postgres.
func NewSQLiteDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, err
	}
	return db, nil
}
