package ephemeral

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/auth"
	tokenDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/token"
	"github.com/frahmantamala/tenant-identity/internal/core/events"
	"github.com/frahmantamala/tenant-identity/internal/user"
	"github.com/google/uuid"
)

type RepositoryAPI interface {
	// Create stores tok, replacing any earlier token of the same user and purpose.
	Create(ctx context.Context, tok *tokenDatamodel.EphemeralToken) error
	// Consume deletes the row id after checking it belongs to userID.
	Consume(ctx context.Context, id string, purpose Purpose, userID string) error
	// ConsumeCode deletes the user's login code when codeHash matches. An
	// expired row is deleted with ErrTokenExpired; wrong guesses are counted
	// and burn the row after MaxLoginCodeAttempts.
	ConsumeCode(ctx context.Context, userID, codeHash string, now time.Time) error
	// ConsumeAndResetPassword consumes the reset row and stores passwordHash in
	// one transaction.
	ConsumeAndResetPassword(ctx context.Context, id, userID, passwordHash string) error
}

type UserDirectory interface {
	GetActiveByEmail(ctx context.Context, email string) (*user.User, error)
	HashPassword(password string) (string, error)
}

type TokenSigner interface {
	GenerateToken(userID string, tokenType auth.TokenType, ttl time.Duration, jti string) (string, time.Time, error)
	ParseToken(tokenString string) (*auth.Claims, error)
}

type SessionIssuer interface {
	IssueTokens(userID string) (auth.AuthTokens, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type Options struct {
	PasswordResetTTL time.Duration
	LoginCodeTTL     time.Duration
	MagicLinkTTL     time.Duration
	BaseURL          string
	Publisher        EventPublisher
}

type Service struct {
	repo     RepositoryAPI
	users    UserDirectory
	signer   TokenSigner
	sessions SessionIssuer
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(repo RepositoryAPI, users UserDirectory, signer TokenSigner, sessions SessionIssuer, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PasswordResetTTL <= 0 {
		opts.PasswordResetTTL = internal.DefaultPasswordResetTTL
	}
	if opts.LoginCodeTTL <= 0 {
		opts.LoginCodeTTL = internal.DefaultLoginCodeTTL
	}
	if opts.MagicLinkTTL <= 0 {
		opts.MagicLinkTTL = internal.DefaultMagicLinkTTL
	}
	return &Service{
		repo:     repo,
		users:    users,
		signer:   signer,
		sessions: sessions,
		opts:     opts,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) publish(ctx context.Context, eventType string, u *user.User, secret string, expiresAt time.Time) {
	if s.opts.Publisher == nil {
		return
	}
	if err := s.opts.Publisher.Publish(ctx, events.NewDeliveryRequestedEvent(eventType, u.ID, u.Email, secret, expiresAt)); err != nil {
		s.logger.Error("failed to publish delivery event", "event_type", eventType, "user_id", u.ID, "error", err)
	}
}

func storageErr(err error, msg string) error {
	if appErr, ok := internal.IsAppError(err); ok {
		return appErr
	}
	return internal.NewInternalError(msg, err)
}

// issueSigned stores the row first so the jti of the signed token always
// points at something that can be consumed.
func (s *Service) issueSigned(ctx context.Context, u *user.User, purpose Purpose, tokenType auth.TokenType, ttl time.Duration) (string, time.Time, error) {
	row := &tokenDatamodel.EphemeralToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Purpose:   string(purpose),
		ExpiresAt: s.now().Add(ttl).UTC(),
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return "", time.Time{}, storageErr(err, "failed to store token")
	}

	token, expiresAt, err := s.signer.GenerateToken(u.ID, tokenType, ttl, row.ID)
	if err != nil {
		return "", time.Time{}, internal.NewInternalError("failed to sign token", err)
	}
	return token, expiresAt, nil
}

// verifySigned maps jwt failures onto 400s and checks the token type.
func (s *Service) verifySigned(token string, expected auth.TokenType) (*auth.Claims, error) {
	claims, err := s.signer.ParseToken(token)
	if err != nil {
		if errors.Is(err, internal.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	if claims.Type != expected {
		return nil, ErrWrongTokenType
	}
	if claims.ID == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.users.GetActiveByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, expiresAt, err := s.issueSigned(ctx, u, PurposePasswordReset, auth.TokenTypePasswordReset, s.opts.PasswordResetTTL)
	if err != nil {
		return err
	}

	s.logger.Info("password reset requested", "user_id", u.ID)
	s.publish(ctx, events.EventTypePasswordResetRequested, u, token, expiresAt)
	return nil
}

// ResetPassword consumes a password_reset token and sets the new password in
// the same transaction, then signs the user in.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) (auth.AuthTokens, error) {
	if newPassword != confirmPassword {
		return auth.AuthTokens{}, ErrPasswordMismatch
	}
	if err := user.ValidatePasswordStrength(newPassword); err != nil {
		return auth.AuthTokens{}, err
	}

	claims, err := s.verifySigned(token, auth.TokenTypePasswordReset)
	if err != nil {
		return auth.AuthTokens{}, err
	}

	hash, err := s.users.HashPassword(newPassword)
	if err != nil {
		return auth.AuthTokens{}, internal.NewInternalError("failed to hash password", err)
	}

	if err := s.repo.ConsumeAndResetPassword(ctx, claims.ID, claims.UserID, hash); err != nil {
		s.logger.Warn("password reset rejected", "user_id", claims.UserID, "error", err)
		return auth.AuthTokens{}, storageErr(err, "failed to reset password")
	}

	s.logger.Info("password reset", "user_id", claims.UserID)
	return s.sessions.IssueTokens(claims.UserID)
}

func (s *Service) RequestLoginCode(ctx context.Context, email string) error {
	u, err := s.users.GetActiveByEmail(ctx, email)
	if err != nil {
		return err
	}

	code, err := GenerateLoginCode()
	if err != nil {
		return internal.NewInternalError("failed to generate login code", err)
	}

	row := &tokenDatamodel.EphemeralToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Purpose:   string(PurposeLoginCode),
		Code:      HashCode(code),
		ExpiresAt: s.now().Add(s.opts.LoginCodeTTL).UTC(),
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return storageErr(err, "failed to store login code")
	}

	s.logger.Info("login code requested", "user_id", u.ID)
	s.publish(ctx, events.EventTypeLoginCodeRequested, u, code, row.ExpiresAt)
	return nil
}

func (s *Service) VerifyLoginCode(ctx context.Context, email, code string) (auth.AuthTokens, error) {
	u, err := s.users.GetActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return auth.AuthTokens{}, ErrTokenNotFound
		}
		return auth.AuthTokens{}, err
	}

	if err := s.repo.ConsumeCode(ctx, u.ID, HashCode(code), s.now()); err != nil {
		s.logger.Warn("login code rejected", "user_id", u.ID, "error", err)
		return auth.AuthTokens{}, storageErr(err, "failed to verify login code")
	}

	s.logger.Info("login code verified", "user_id", u.ID)
	return s.sessions.IssueTokens(u.ID)
}

func (s *Service) RequestMagicLink(ctx context.Context, email string) error {
	u, err := s.users.GetActiveByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, expiresAt, err := s.issueSigned(ctx, u, PurposeMagicLink, auth.TokenTypeMagicLink, s.opts.MagicLinkTTL)
	if err != nil {
		return err
	}

	s.logger.Info("magic link requested", "user_id", u.ID)
	s.publish(ctx, events.EventTypeMagicLinkRequested, u, FormatMagicLink(s.opts.BaseURL, token), expiresAt)
	return nil
}

func (s *Service) VerifyMagicLink(ctx context.Context, token string) (auth.AuthTokens, error) {
	claims, err := s.verifySigned(token, auth.TokenTypeMagicLink)
	if err != nil {
		return auth.AuthTokens{}, err
	}

	if err := s.repo.Consume(ctx, claims.ID, PurposeMagicLink, claims.UserID); err != nil {
		s.logger.Warn("magic link rejected", "user_id", claims.UserID, "error", err)
		return auth.AuthTokens{}, storageErr(err, "failed to verify magic link")
	}

	s.logger.Info("magic link verified", "user_id", claims.UserID)
	return s.sessions.IssueTokens(claims.UserID)
}
