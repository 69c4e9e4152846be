package auth

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/core/events"
	"github.com/frahmantamala/tenant-identity/internal/user"
)

// RevocationRegistry remembers tokens that must never be accepted again.
type RevocationRegistry interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
	// Revoke is idempotent.
	Revoke(ctx context.Context, token, revokedBy string) error
}

type UserServiceAPI interface {
	Authenticate(ctx context.Context, email, password string) (*user.User, error)
	Register(ctx context.Context, dto user.RegisterDTO) (*user.User, error)
	Resolve(ctx context.Context, id string) (*user.User, error)
	ChangePassword(ctx context.Context, id string, dto user.ChangePasswordDTO) error
	SoftDelete(ctx context.Context, id string) error
}

// OrganizationProvisioner gives a freshly registered user a home organisation.
type OrganizationProvisioner interface {
	ProvisionPersonalOrganization(ctx context.Context, userID, email string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type AuthRecorder interface {
	RecordAuth(event, outcome string)
}

// Transactor makes user creation and organisation provisioning commit together.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Options struct {
	RevokeRefreshOnRotate bool
	Provisioner           OrganizationProvisioner
	Publisher             EventPublisher
	Recorder              AuthRecorder
	Transactor            Transactor
}

type Service struct {
	users    UserServiceAPI
	tokens   TokenGeneratorAPI
	registry RevocationRegistry
	opts     Options
	logger   *slog.Logger
}

func NewService(users UserServiceAPI, tokens TokenGeneratorAPI, registry RevocationRegistry, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		tokens:   tokens,
		registry: registry,
		opts:     opts,
		logger:   logger,
	}
}

func (s *Service) record(event string, err error) {
	if s.opts.Recorder == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.opts.Recorder.RecordAuth(event, outcome)
}

// IssueTokens mints a fresh access/refresh pair for userID.
func (s *Service) IssueTokens(userID string) (AuthTokens, error) {
	accessToken, err := s.tokens.GenerateAccessToken(userID)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue access token", err)
	}
	refreshToken, err := s.tokens.GenerateRefreshToken(userID)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue refresh token", err)
	}
	return AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	}, nil
}

func (s *Service) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.opts.Transactor == nil {
		return fn(ctx)
	}
	return s.opts.Transactor.WithinTransaction(ctx, fn)
}

func (s *Service) Login(ctx context.Context, dto LoginDTO) (tokens AuthTokens, err error) {
	defer func() { s.record("login", err) }()

	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	u, err := s.users.Authenticate(ctx, dto.Email, dto.Password)
	if err != nil {
		return AuthTokens{}, err
	}

	s.logger.Info("user logged in", "user_id", u.ID)
	return s.IssueTokens(u.ID)
}

func (s *Service) Register(ctx context.Context, dto user.RegisterDTO) (resp *RegisterResponse, err error) {
	defer func() { s.record("register", err) }()

	var u *user.User
	err = s.inTransaction(ctx, func(ctx context.Context) error {
		created, err := s.users.Register(ctx, dto)
		if err != nil {
			return err
		}
		if s.opts.Provisioner != nil {
			if err := s.opts.Provisioner.ProvisionPersonalOrganization(ctx, created.ID, created.Email); err != nil {
				s.logger.Error("failed to provision personal organization", "user_id", created.ID, "error", err)
				return internal.NewInternalError("failed to complete registration", err)
			}
		}
		u = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	tokens, err := s.IssueTokens(u.ID)
	if err != nil {
		return nil, err
	}

	if s.opts.Publisher != nil {
		_ = s.opts.Publisher.Publish(ctx, events.NewUserRegisteredEvent(u.ID, u.Email))
	}

	return &RegisterResponse{AuthTokens: tokens, User: u.ToResponse()}, nil
}

// Verify checks a token in a fixed order: revocation, signature and
// expiry, token type, then the user it names.
func (s *Service) Verify(ctx context.Context, token string, expected TokenType) (*Principal, *Claims, error) {
	if token == "" {
		return nil, nil, internal.ErrMissingToken
	}

	revoked, err := s.registry.IsRevoked(ctx, token)
	if err != nil {
		return nil, nil, internal.NewInternalError("failed to check revocation", err)
	}
	if revoked {
		return nil, nil, internal.ErrTokenRevoked
	}

	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return nil, nil, err
	}

	if claims.Type != expected {
		return nil, nil, internal.ErrWrongTokenType
	}

	u, err := s.users.Resolve(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}

	return PrincipalFromUser(u, token, claims), claims, nil
}

func (s *Service) ResolvePrincipal(ctx context.Context, bearer string) (*Principal, error) {
	p, _, err := s.Verify(ctx, bearer, TokenTypeAccess)
	return p, err
}

// Rotate trades a refresh token for a new pair. The old refresh token stays
// usable unless RevokeRefreshOnRotate is set.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (tokens AuthTokens, err error) {
	defer func() { s.record("refresh", err) }()

	p, _, err := s.Verify(ctx, refreshToken, TokenTypeRefresh)
	if err != nil {
		return AuthTokens{}, err
	}

	tokens, err = s.IssueTokens(p.UserID)
	if err != nil {
		return AuthTokens{}, err
	}

	if s.opts.RevokeRefreshOnRotate {
		if err := s.registry.Revoke(ctx, refreshToken, p.UserID); err != nil {
			return AuthTokens{}, internal.NewInternalError("failed to revoke refresh token", err)
		}
	}
	return tokens, nil
}

// Logout revokes the caller's access token and, when given, a refresh token
// belonging to the same user. Revoking twice is not an error.
func (s *Service) Logout(ctx context.Context, principal *Principal, refreshToken string) (err error) {
	defer func() { s.record("logout", err) }()

	if principal == nil {
		return internal.ErrMissingToken
	}
	if err := s.revokeSession(ctx, principal, refreshToken); err != nil {
		return err
	}

	s.logger.Info("user logged out", "user_id", principal.UserID)
	return nil
}

// ChangePassword swaps the caller's password and ends the session that asked
// for it, so the client has to sign in with the new password.
func (s *Service) ChangePassword(ctx context.Context, principal *Principal, dto user.ChangePasswordDTO) (err error) {
	defer func() { s.record("change_password", err) }()

	if principal == nil {
		return internal.ErrMissingToken
	}
	err = s.inTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.ChangePassword(ctx, principal.UserID, dto); err != nil {
			return err
		}
		return s.revokeSession(ctx, principal, dto.RefreshToken)
	})
	if err != nil {
		return err
	}

	if s.opts.Publisher != nil {
		_ = s.opts.Publisher.Publish(ctx, events.NewAccountEvent(events.EventTypePasswordChanged, principal.UserID))
	}
	s.logger.Info("password changed", "user_id", principal.UserID)
	return nil
}

// Deactivate soft deletes the caller. Every token they hold stops resolving
// because the principal no longer exists; the presented ones are revoked too.
func (s *Service) Deactivate(ctx context.Context, principal *Principal, refreshToken string) (err error) {
	defer func() { s.record("deactivate", err) }()

	if principal == nil {
		return internal.ErrMissingToken
	}
	err = s.inTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.SoftDelete(ctx, principal.UserID); err != nil {
			return err
		}
		return s.revokeSession(ctx, principal, refreshToken)
	})
	if err != nil {
		return err
	}

	if s.opts.Publisher != nil {
		_ = s.opts.Publisher.Publish(ctx, events.NewAccountEvent(events.EventTypeUserDeactivated, principal.UserID))
	}
	s.logger.Info("user deactivated", "user_id", principal.UserID)
	return nil
}

func (s *Service) revokeSession(ctx context.Context, principal *Principal, refreshToken string) error {
	if err := s.registry.Revoke(ctx, principal.Token, principal.UserID); err != nil {
		return internal.NewInternalError("failed to revoke token", err)
	}
	if refreshToken == "" {
		return nil
	}

	claims, err := s.tokens.ParseToken(refreshToken)
	switch {
	case err != nil:
		s.logger.Warn("ignoring unusable refresh token", "user_id", principal.UserID, "error", err)
	case claims.Type != TokenTypeRefresh || claims.UserID != principal.UserID:
		s.logger.Warn("refresh token does not belong to caller", "user_id", principal.UserID)
	default:
		if err := s.registry.Revoke(ctx, refreshToken, principal.UserID); err != nil {
			return internal.NewInternalError("failed to revoke refresh token", err)
		}
	}
	return nil
}
