package invitation_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/frahmantamala/tenant-identity/internal"
	invitationDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/invitation"
	rbacDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/rbac"
	userDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/user"
	"github.com/frahmantamala/tenant-identity/internal/core/events"
	"github.com/frahmantamala/tenant-identity/internal/core/testutil"
	"github.com/frahmantamala/tenant-identity/internal/invitation"
	invitationPostgres "github.com/frahmantamala/tenant-identity/internal/invitation/postgres"
	"github.com/frahmantamala/tenant-identity/internal/rbac"
	rbacPostgres "github.com/frahmantamala/tenant-identity/internal/rbac/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

var _ = Describe("InvitationService", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		now       time.Time
		publisher *recordingPublisher
		service   *invitation.Service
		userID    string
		orgID     string
		inviterID string
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = testutil.NewSQLiteDB()
		Expect(err).NotTo(HaveOccurred())

		now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		publisher = &recordingPublisher{}
		rbacService := rbac.NewService(rbacPostgres.NewRBACRepository(db, 5*time.Second), nil)
		service = invitation.NewService(
			invitationPostgres.NewInvitationRepository(db, 5*time.Second),
			publisher, "https://id.example.com", time.Hour, nil,
		).WithClock(func() time.Time { return now }).WithAuthorizer(rbacService)

		u := &userDatamodel.User{Email: "bob@example.com", PasswordHash: "hash", IsActive: true}
		Expect(db.Create(u).Error).To(Succeed())
		userID = u.ID

		inviter := &userDatamodel.User{Email: "owner@example.com", PasswordHash: "hash", IsActive: true}
		Expect(db.Create(inviter).Error).To(Succeed())
		inviterID = inviter.ID

		// the owner role picks up every permission that exists at creation
		_, err = rbacService.CreatePermission(ctx, rbac.CreatePermissionDTO{Name: rbac.PermissionManageInvitations})
		Expect(err).NotTo(HaveOccurred())
		org, err := rbacService.CreateOrganization(ctx, inviterID, rbac.CreateOrganizationDTO{Name: "Acme"})
		Expect(err).NotTo(HaveOccurred())
		orgID = org.ID
	})

	invite := func() string {
		resp, err := service.Create(ctx, inviterID, invitation.CreateInvitationDTO{UserID: userID, OrganizationID: orgID})
		Expect(err).NotTo(HaveOccurred())
		return resp.InvitationLink
	}

	isMember := func() bool {
		var count int64
		Expect(db.Model(&rbacDatamodel.OrganizationMember{}).
			Where("organization_id = ? AND user_id = ?", orgID, userID).
			Count(&count).Error).To(Succeed())
		return count > 0
	}

	stored := func(link string) invitationDatamodel.Invitation {
		id, err := invitation.ParseLink(link)
		Expect(err).NotTo(HaveOccurred())
		var inv invitationDatamodel.Invitation
		Expect(db.First(&inv, "id = ?", id).Error).To(Succeed())
		return inv
	}

	Describe("Create", func() {
		It("issues a link valid for the configured ttl", func() {
			resp, err := service.Create(ctx, inviterID, invitation.CreateInvitationDTO{UserID: userID, OrganizationID: orgID})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.InvitationLink).To(HavePrefix("https://id.example.com/api/v1/invite/accept?invitation_id="))
			Expect(resp.ExpiresAt).To(BeTemporally("==", now.Add(time.Hour)))

			inv := stored(resp.InvitationLink)
			Expect(inv.IsValid).To(BeTrue())
			Expect(publisher.types()).To(ContainElement(events.EventTypeInvitationCreated))
		})

		It("rejects unknown users and organizations", func() {
			_, err := service.Create(ctx, inviterID, invitation.CreateInvitationDTO{UserID: "6f1c1a52-3f7e-4b8e-9a57-1f4bc0d0a001", OrganizationID: orgID})
			Expect(errors.Is(err, invitation.ErrInvalidUser)).To(BeTrue())

			_, err = service.Create(ctx, inviterID, invitation.CreateInvitationDTO{UserID: userID, OrganizationID: "6f1c1a52-3f7e-4b8e-9a57-1f4bc0d0a002"})
			Expect(errors.Is(err, invitation.ErrInvalidOrg)).To(BeTrue())
		})

		It("refuses callers without manage_invitations in the organization", func() {
			_, err := service.Create(ctx, userID, invitation.CreateInvitationDTO{UserID: userID, OrganizationID: orgID})
			Expect(errors.Is(err, invitation.ErrNotInviter)).To(BeTrue())

			_, err = service.Create(ctx, userID, invitation.CreateInvitationDTO{UserID: "6f1c1a52-3f7e-4b8e-9a57-1f4bc0d0a001", OrganizationID: orgID})
			Expect(errors.Is(err, invitation.ErrNotInviter)).To(BeTrue())

			var count int64
			Expect(db.Model(&invitationDatamodel.Invitation{}).Count(&count).Error).To(Succeed())
			Expect(count).To(BeZero())
		})

		It("refuses every caller when no authorizer is configured", func() {
			bare := invitation.NewService(invitationPostgres.NewInvitationRepository(db, time.Second), nil, "https://id.example.com", time.Hour, nil)
			_, err := bare.Create(ctx, inviterID, invitation.CreateInvitationDTO{UserID: userID, OrganizationID: orgID})
			Expect(errors.Is(err, invitation.ErrNotInviter)).To(BeTrue())
		})

		It("rejects ids that are not uuids", func() {
			_, err := service.Create(ctx, inviterID, invitation.CreateInvitationDTO{UserID: "bob", OrganizationID: orgID})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeValidationFailed))
		})
	})

	Describe("Accept", func() {
		It("adds the membership and invalidates the link", func() {
			link := invite()

			inv, err := service.Accept(ctx, link)
			Expect(err).NotTo(HaveOccurred())
			Expect(inv.IsValid).To(BeFalse())
			Expect(isMember()).To(BeTrue())
			Expect(stored(link).IsValid).To(BeFalse())
			Expect(publisher.types()).To(ContainElement(events.EventTypeInvitationAccepted))

			_, err = service.Accept(ctx, link)
			Expect(errors.Is(err, invitation.ErrInvitationNotFound)).To(BeTrue())
		})

		It("lets exactly one of many concurrent accepts win", func() {
			link := invite()

			const callers = 8
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				notFound  int
			)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := service.Accept(ctx, link)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes++
					case errors.Is(err, invitation.ErrInvitationNotFound):
						notFound++
					}
				}()
			}
			wg.Wait()

			Expect(successes).To(Equal(1))
			Expect(notFound).To(Equal(callers - 1))
			Expect(stored(link).IsValid).To(BeFalse())
			Expect(isMember()).To(BeTrue())
		})

		It("invalidates an expired link and keeps rejecting it", func() {
			link := invite()
			now = now.Add(time.Hour)

			_, err := service.Accept(ctx, link)
			Expect(errors.Is(err, invitation.ErrInvitationExpired)).To(BeTrue())
			Expect(stored(link).IsValid).To(BeFalse())
			Expect(isMember()).To(BeFalse())

			_, err = service.Accept(ctx, link)
			Expect(err).To(HaveOccurred())
			Expect(isMember()).To(BeFalse())
		})

		It("reports an existing member and leaves the link valid", func() {
			link := invite()
			Expect(db.Create(&rbacDatamodel.OrganizationMember{OrganizationID: orgID, UserID: userID}).Error).To(Succeed())

			_, err := service.Accept(ctx, link)
			Expect(errors.Is(err, invitation.ErrAlreadyMember)).To(BeTrue())
			Expect(stored(link).IsValid).To(BeTrue())
		})

		It("returns 404 when the organization is gone", func() {
			link := invite()
			Expect(db.Where("id = ?", orgID).Delete(&rbacDatamodel.Organization{}).Error).To(Succeed())

			_, err := service.Accept(ctx, link)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidOrg))
			Expect(appErr.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("rejects malformed links before touching storage", func() {
			_, err := service.Accept(ctx, "invite_garbage")
			Expect(errors.Is(err, invitation.ErrInvalidLink)).To(BeTrue())
		})
	})

	Describe("Deactivate", func() {
		It("lets the invitee deactivate the link", func() {
			link := invite()

			Expect(service.Deactivate(ctx, link, userID)).To(Succeed())
			Expect(stored(link).IsValid).To(BeFalse())

			err := service.Deactivate(ctx, link, userID)
			Expect(errors.Is(err, invitation.ErrInvitationNotFound)).To(BeTrue())
		})

		It("forbids anyone else", func() {
			link := invite()

			err := service.Deactivate(ctx, link, "someone-else")
			Expect(errors.Is(err, invitation.ErrNotOwner)).To(BeTrue())
			Expect(stored(link).IsValid).To(BeTrue())
		})
	})

	Describe("Delete", func() {
		It("removes the row and reports a missing one", func() {
			link := invite()
			id, _ := invitation.ParseLink(link)

			Expect(service.Delete(ctx, id)).To(Succeed())

			err := service.Delete(ctx, id)
			Expect(errors.Is(err, invitation.ErrInvitationNotFound)).To(BeTrue())
		})
	})
})
