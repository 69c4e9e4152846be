package auth_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/auth"
	authPostgres "github.com/frahmantamala/tenant-identity/internal/auth/postgres"
	"github.com/frahmantamala/tenant-identity/internal/core/events"
	"github.com/frahmantamala/tenant-identity/internal/core/testutil"
	"github.com/frahmantamala/tenant-identity/internal/user"
	userPostgres "github.com/frahmantamala/tenant-identity/internal/user/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeProvisioner struct {
	calls []string
	err   error
}

func (f *fakeProvisioner) ProvisionPersonalOrganization(_ context.Context, userID, _ string) error {
	f.calls = append(f.calls, userID)
	return f.err
}

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

type countingRecorder struct {
	counts map[string]int
}

func (c *countingRecorder) RecordAuth(event, outcome string) {
	c.counts[event+":"+outcome]++
}

var _ = Describe("AuthService", func() {
	var (
		ctx         context.Context
		clock       *fakeClock
		users       *user.Service
		registry    auth.RevocationRegistry
		provisioner *fakeProvisioner
		publisher   *recordingPublisher
		recorder    *countingRecorder
		opts        auth.Options
		service     *auth.Service
	)

	const password = "Str0ng!Pass"

	buildService := func() {
		gen := newTestGenerator(clock)
		service = auth.NewService(users, gen, registry, opts, nil)
	}

	BeforeEach(func() {
		ctx = context.Background()
		clock = &fakeClock{now: time.Now().Truncate(time.Second)}

		db, err := testutil.NewSQLiteDB()
		Expect(err).NotTo(HaveOccurred())

		users = user.NewService(userPostgres.NewUserRepository(db, time.Second), 10, nil)
		registry = authPostgres.NewBlacklistRepository(db, time.Second)
		provisioner = &fakeProvisioner{}
		publisher = &recordingPublisher{}
		recorder = &countingRecorder{counts: map[string]int{}}
		opts = auth.Options{Provisioner: provisioner, Publisher: publisher, Recorder: recorder}
		buildService()
	})

	register := func(email string) *auth.RegisterResponse {
		resp, err := service.Register(ctx, user.RegisterDTO{Email: email, Password: password})
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("Register", func() {
		It("creates the user, provisions an organisation and returns tokens", func() {
			resp := register("alice@example.com")

			Expect(resp.AccessToken).NotTo(BeEmpty())
			Expect(resp.RefreshToken).NotTo(BeEmpty())
			Expect(resp.User.Email).To(Equal("alice@example.com"))
			Expect(provisioner.calls).To(ConsistOf(resp.User.ID))
			Expect(publisher.events).To(HaveLen(1))
			Expect(publisher.events[0].EventType()).To(Equal(events.EventTypeUserRegistered))
			Expect(recorder.counts["register:success"]).To(Equal(1))
		})

		It("rejects a duplicate email with 400", func() {
			register("alice@example.com")

			_, err := service.Register(ctx, user.RegisterDTO{Email: "alice@example.com", Password: password})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeEmailTaken))
			Expect(appErr.StatusCode).To(Equal(400))
			Expect(recorder.counts["register:failure"]).To(Equal(1))
		})

		It("fails when the organisation cannot be provisioned", func() {
			provisioner.err = errors.New("boom")
			_, err := service.Register(ctx, user.RegisterDTO{Email: "alice@example.com", Password: password})
			appErr, _ := internal.IsAppError(err)
			Expect(appErr.Type).To(Equal(internal.ErrorTypeInternal))
		})
	})

	Describe("Login", func() {
		It("authenticates the registered user", func() {
			resp := register("alice@example.com")

			tokens, err := service.Login(ctx, auth.LoginDTO{Email: "alice@example.com", Password: password})
			Expect(err).NotTo(HaveOccurred())

			p, err := service.ResolvePrincipal(ctx, tokens.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.UserID).To(Equal(resp.User.ID))
		})

		It("fails generically for wrong passwords and unknown users", func() {
			register("alice@example.com")

			_, wrong := service.Login(ctx, auth.LoginDTO{Email: "alice@example.com", Password: "Wr0ng!Pass"})
			_, unknown := service.Login(ctx, auth.LoginDTO{Email: "bob@example.com", Password: password})
			Expect(wrong).To(Equal(internal.ErrInvalidCredentials))
			Expect(unknown).To(Equal(internal.ErrInvalidCredentials))
		})

		It("requires both fields", func() {
			_, err := service.Login(ctx, auth.LoginDTO{Email: "alice@example.com"})
			appErr, _ := internal.IsAppError(err)
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
		})
	})

	Describe("Verify", func() {
		var tokens auth.AuthTokens

		BeforeEach(func() {
			tokens = register("alice@example.com").AuthTokens
		})

		It("rejects a revoked token whose signature and expiry are still valid", func() {
			Expect(registry.Revoke(ctx, tokens.AccessToken, "test")).To(Succeed())

			_, _, err := service.Verify(ctx, tokens.AccessToken, auth.TokenTypeAccess)
			Expect(errors.Is(err, internal.ErrTokenRevoked)).To(BeTrue())
		})

		It("checks revocation before expiry", func() {
			Expect(registry.Revoke(ctx, tokens.AccessToken, "test")).To(Succeed())
			clock.now = clock.now.Add(time.Hour)

			_, _, err := service.Verify(ctx, tokens.AccessToken, auth.TokenTypeAccess)
			Expect(errors.Is(err, internal.ErrTokenRevoked)).To(BeTrue())
		})

		It("reports expiry", func() {
			clock.now = clock.now.Add(15 * time.Minute)
			_, _, err := service.Verify(ctx, tokens.AccessToken, auth.TokenTypeAccess)
			Expect(errors.Is(err, internal.ErrTokenExpired)).To(BeTrue())
		})

		It("refuses a refresh token where an access token is expected", func() {
			_, _, err := service.Verify(ctx, tokens.RefreshToken, auth.TokenTypeAccess)
			Expect(errors.Is(err, internal.ErrWrongTokenType)).To(BeTrue())
		})

		It("fails when the user no longer exists", func() {
			p, err := service.ResolvePrincipal(ctx, tokens.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(users.SoftDelete(ctx, p.UserID)).To(Succeed())

			_, err = service.ResolvePrincipal(ctx, tokens.AccessToken)
			Expect(errors.Is(err, internal.ErrPrincipalNotFound)).To(BeTrue())
		})

		It("requires a token", func() {
			_, _, err := service.Verify(ctx, "", auth.TokenTypeAccess)
			Expect(errors.Is(err, internal.ErrMissingToken)).To(BeTrue())
		})
	})

	Describe("Rotate", func() {
		var tokens auth.AuthTokens

		BeforeEach(func() {
			tokens = register("alice@example.com").AuthTokens
		})

		It("issues a fresh pair and keeps the old refresh token usable by default", func() {
			rotated, err := service.Rotate(ctx, tokens.RefreshToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(rotated.RefreshToken).NotTo(Equal(tokens.RefreshToken))

			_, err = service.Rotate(ctx, tokens.RefreshToken)
			Expect(err).NotTo(HaveOccurred())
		})

		It("revokes the consumed refresh token when configured to", func() {
			opts.RevokeRefreshOnRotate = true
			buildService()

			_, err := service.Rotate(ctx, tokens.RefreshToken)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Rotate(ctx, tokens.RefreshToken)
			Expect(errors.Is(err, internal.ErrTokenRevoked)).To(BeTrue())
		})

		It("refuses access tokens", func() {
			_, err := service.Rotate(ctx, tokens.AccessToken)
			Expect(errors.Is(err, internal.ErrWrongTokenType)).To(BeTrue())
		})
	})

	Describe("Logout", func() {
		It("revokes the access token and the supplied refresh token, idempotently", func() {
			tokens := register("alice@example.com").AuthTokens
			p, err := service.ResolvePrincipal(ctx, tokens.AccessToken)
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Logout(ctx, p, tokens.RefreshToken)).To(Succeed())
			Expect(service.Logout(ctx, p, tokens.RefreshToken)).To(Succeed())

			_, err = service.ResolvePrincipal(ctx, tokens.AccessToken)
			Expect(errors.Is(err, internal.ErrTokenRevoked)).To(BeTrue())
			_, err = service.Rotate(ctx, tokens.RefreshToken)
			Expect(errors.Is(err, internal.ErrTokenRevoked)).To(BeTrue())
		})

		It("does not revoke someone else's refresh token", func() {
			alice := register("alice@example.com").AuthTokens
			bob := register("bob@example.com").AuthTokens
			p, _ := service.ResolvePrincipal(ctx, alice.AccessToken)

			Expect(service.Logout(ctx, p, bob.RefreshToken)).To(Succeed())
			_, err := service.Rotate(ctx, bob.RefreshToken)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("ChangePassword", func() {
		It("swaps the password and revokes the presented tokens", func() {
			tokens := register("alice@example.com").AuthTokens
			p, err := service.ResolvePrincipal(ctx, tokens.AccessToken)
			Expect(err).NotTo(HaveOccurred())

			Expect(service.ChangePassword(ctx, p, user.ChangePasswordDTO{
				CurrentPassword: password,
				NewPassword:     "N3w!Password",
				RefreshToken:    tokens.RefreshToken,
			})).To(Succeed())

			_, err = service.ResolvePrincipal(ctx, tokens.AccessToken)
			Expect(errors.Is(err, internal.ErrTokenRevoked)).To(BeTrue())
			_, err = service.Rotate(ctx, tokens.RefreshToken)
			Expect(errors.Is(err, internal.ErrTokenRevoked)).To(BeTrue())

			_, err = service.Login(ctx, auth.LoginDTO{Email: "alice@example.com", Password: password})
			Expect(errors.Is(err, internal.ErrInvalidCredentials)).To(BeTrue())
			_, err = service.Login(ctx, auth.LoginDTO{Email: "alice@example.com", Password: "N3w!Password"})
			Expect(err).NotTo(HaveOccurred())
			Expect(recorder.counts["change_password:success"]).To(Equal(1))
		})

		It("keeps the session when the current password is wrong", func() {
			tokens := register("alice@example.com").AuthTokens
			p, _ := service.ResolvePrincipal(ctx, tokens.AccessToken)

			err := service.ChangePassword(ctx, p, user.ChangePasswordDTO{CurrentPassword: "Wr0ng!Pass", NewPassword: "N3w!Password"})
			Expect(errors.Is(err, user.ErrWrongCurrentPassword)).To(BeTrue())

			_, err = service.ResolvePrincipal(ctx, tokens.AccessToken)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Deactivate", func() {
		It("soft deletes the caller so none of their tokens resolve", func() {
			tokens := register("alice@example.com").AuthTokens
			other, err := service.Login(ctx, auth.LoginDTO{Email: "alice@example.com", Password: password})
			Expect(err).NotTo(HaveOccurred())
			p, _ := service.ResolvePrincipal(ctx, tokens.AccessToken)

			Expect(service.Deactivate(ctx, p, "")).To(Succeed())

			_, err = service.ResolvePrincipal(ctx, tokens.AccessToken)
			Expect(errors.Is(err, internal.ErrTokenRevoked)).To(BeTrue())
			_, err = service.ResolvePrincipal(ctx, other.AccessToken)
			Expect(errors.Is(err, internal.ErrPrincipalNotFound)).To(BeTrue())
			_, err = service.Login(ctx, auth.LoginDTO{Email: "alice@example.com", Password: password})
			Expect(errors.Is(err, internal.ErrInvalidCredentials)).To(BeTrue())

			Expect(publisher.events[len(publisher.events)-1].EventType()).To(Equal(events.EventTypeUserDeactivated))
		})
	})
})
