package auth_test

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/tenant-identity/internal/auth"
	authPostgres "github.com/frahmantamala/tenant-identity/internal/auth/postgres"
	"github.com/frahmantamala/tenant-identity/internal/core/common/dbtx"
	"github.com/frahmantamala/tenant-identity/internal/core/testutil"
	"github.com/frahmantamala/tenant-identity/internal/rbac"
	rbacPostgres "github.com/frahmantamala/tenant-identity/internal/rbac/postgres"
	"github.com/frahmantamala/tenant-identity/internal/user"
	userPostgres "github.com/frahmantamala/tenant-identity/internal/user/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

type failingProvisioner struct {
	next auth.OrganizationProvisioner
	fail bool
}

func (f *failingProvisioner) ProvisionPersonalOrganization(ctx context.Context, userID, email string) error {
	if f.fail {
		return errors.New("provisioning unavailable")
	}
	return f.next.ProvisionPersonalOrganization(ctx, userID, email)
}

var _ = Describe("Registration", func() {
	var (
		ctx         context.Context
		db          *gorm.DB
		users       *user.Service
		rbacService *rbac.Service
		provisioner *failingProvisioner
		service     *auth.Service
	)

	const password = "Str0ng!Pass"

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		db, err = testutil.NewSQLiteDB()
		Expect(err).NotTo(HaveOccurred())

		users = user.NewService(userPostgres.NewUserRepository(db, time.Second), 10, nil)
		rbacService = rbac.NewService(rbacPostgres.NewRBACRepository(db, time.Second), nil)
		provisioner = &failingProvisioner{next: rbacService}

		clock := &fakeClock{now: time.Now().Truncate(time.Second)}
		service = auth.NewService(users, newTestGenerator(clock),
			authPostgres.NewBlacklistRepository(db, time.Second),
			auth.Options{Provisioner: provisioner, Transactor: dbtx.NewTransactor(db)}, nil)
	})

	countOrganizations := func() int64 {
		var n int64
		Expect(db.Table("organizations").Count(&n).Error).To(Succeed())
		return n
	}

	It("lets a soft deleted email register again", func() {
		first, err := service.Register(ctx, user.RegisterDTO{Email: "alice@example.com", Password: password})
		Expect(err).NotTo(HaveOccurred())
		Expect(users.SoftDelete(ctx, first.User.ID)).To(Succeed())

		second, err := service.Register(ctx, user.RegisterDTO{Email: "alice@example.com", Password: password})
		Expect(err).NotTo(HaveOccurred())
		Expect(second.User.ID).NotTo(Equal(first.User.ID))
		Expect(countOrganizations()).To(Equal(int64(2)))
	})

	It("is not blocked by an organisation named after the email", func() {
		squatter, err := service.Register(ctx, user.RegisterDTO{Email: "mallory@example.com", Password: password})
		Expect(err).NotTo(HaveOccurred())
		_, err = rbacService.CreateOrganization(ctx, squatter.User.ID, rbac.CreateOrganizationDTO{Name: "victim@example.com's Organisation"})
		Expect(err).NotTo(HaveOccurred())

		_, err = service.Register(ctx, user.RegisterDTO{Email: "victim@example.com", Password: password})
		Expect(err).NotTo(HaveOccurred())
	})

	It("leaves nothing behind when provisioning fails, so a retry succeeds", func() {
		provisioner.fail = true
		_, err := service.Register(ctx, user.RegisterDTO{Email: "alice@example.com", Password: password})
		Expect(err).To(HaveOccurred())

		_, err = users.GetActiveByEmail(ctx, "alice@example.com")
		Expect(errors.Is(err, user.ErrUserNotFound)).To(BeTrue())
		Expect(countOrganizations()).To(BeZero())

		provisioner.fail = false
		resp, err := service.Register(ctx, user.RegisterDTO{Email: "alice@example.com", Password: password})
		Expect(err).NotTo(HaveOccurred())

		isMember, err := rbacService.IsMember(ctx, resp.User.ID, firstOrganizationID(db))
		Expect(err).NotTo(HaveOccurred())
		Expect(isMember).To(BeTrue())
	})
})

func firstOrganizationID(db *gorm.DB) string {
	var ids []string
	Expect(db.Table("organizations").Pluck("id", &ids).Error).To(Succeed())
	Expect(ids).To(HaveLen(1))
	return ids[0]
}
