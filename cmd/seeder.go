package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/frahmantamala/tenant-identity/internal/core/common/dbtx"
	userDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/user"
	"github.com/frahmantamala/tenant-identity/internal/rbac"
	rbacPostgres "github.com/frahmantamala/tenant-identity/internal/rbac/postgres"
	"github.com/frahmantamala/tenant-identity/internal/user"
	userPostgres "github.com/frahmantamala/tenant-identity/internal/user/postgres"
	"github.com/frahmantamala/tenant-identity/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	seedAdminEmail    string
	seedAdminPassword string
	seedAdminName     string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with the default permissions and a super admin",
	Long: `Seed the permission catalogue every organization role draws from, and
optionally a super admin account that can create new permissions.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gormDB, err := initGorm(db, cfg.Env)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		ctx := context.Background()
		lg := logger.LoggerWrapper()
		timeout := cfg.Database.QueryTimeout

		rbacService := rbac.NewService(rbacPostgres.NewRBACRepository(gormDB, timeout), lg)
		for name, desc := range rbac.DefaultPermissions {
			_, err := rbacService.CreatePermission(ctx, rbac.CreatePermissionDTO{Name: name, Description: desc})
			switch {
			case err == nil:
				fmt.Println("Seeded permission:", name)
			case errors.Is(err, rbac.ErrNameTaken):
				fmt.Println("permission already exists:", name)
			default:
				log.Fatalf("failed to insert permission %s: %v", name, err)
			}
		}

		if seedAdminEmail == "" {
			return
		}

		userService := user.NewService(userPostgres.NewUserRepository(gormDB, timeout), cfg.Security.BCryptCost, lg)
		var admin *user.User
		err = dbtx.NewTransactor(gormDB).WithinTransaction(ctx, func(ctx context.Context) error {
			created, err := userService.Register(ctx, user.RegisterDTO{
				Email:    seedAdminEmail,
				Password: seedAdminPassword,
				Name:     seedAdminName,
			})
			if err != nil {
				return err
			}
			admin = created
			return rbacService.ProvisionPersonalOrganization(ctx, created.ID, created.Email)
		})
		switch {
		case err == nil:
			fmt.Println("Seeded admin user:", seedAdminEmail)
		case errors.Is(err, user.ErrEmailTaken):
			fmt.Println("admin user already exists; will ensure super admin flag")
			admin, err = userService.GetActiveByEmail(ctx, seedAdminEmail)
			if err != nil {
				log.Fatalf("failed to lookup admin user: %v", err)
			}
		default:
			log.Fatalf("failed to insert admin user: %v", err)
		}

		res := gormDB.WithContext(ctx).Model(&userDatamodel.User{}).
			Where("id = ?", admin.ID).
			Update("is_super_admin", true)
		if res.Error != nil {
			log.Fatalf("failed to promote admin user: %v", res.Error)
		}

		fmt.Println("Granted super admin to:", seedAdminEmail)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminEmail, "admin-email", "", "email of the super admin to create")
	seedCmd.Flags().StringVar(&seedAdminPassword, "admin-password", "", "password of the super admin")
	seedCmd.Flags().StringVar(&seedAdminName, "admin-name", "Administrator", "display name of the super admin")
}
