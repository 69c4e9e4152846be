package user

import (
	"context"
	"log/slog"
	"strings"

	"github.com/frahmantamala/tenant-identity/internal"
	userDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/user"
)

type RepositoryAPI interface {
	Create(ctx context.Context, u *userDatamodel.User) error
	GetByID(ctx context.Context, id string) (*userDatamodel.User, error)
	// GetByEmail only sees rows that are not soft deleted.
	GetByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SoftDelete(ctx context.Context, id string) error
}

type Service struct {
	repo       RepositoryAPI
	bcryptCost int
	logger     *slog.Logger
}

func NewService(repo RepositoryAPI, bcryptCost int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, dto RegisterDTO) (*User, error) {
	dto.Email = NormalizeEmail(dto.Email)
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByEmail(ctx, dto.Email)
	if err != nil {
		s.logger.Error("failed to look up email", "error", err)
		return nil, internal.NewInternalError("failed to register user", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := HashPassword(dto.Password, s.bcryptCost)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	name := strings.TrimSpace(dto.Name)
	if name == "" {
		name = dto.Email
	}

	data := &userDatamodel.User{
		Email:        dto.Email,
		Name:         name,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, data); err != nil {
		if appErr, ok := internal.IsAppError(err); ok {
			return nil, appErr
		}
		s.logger.Error("failed to create user", "error", err)
		return nil, internal.NewInternalError("failed to register user", err)
	}

	s.logger.Info("user registered", "user_id", data.ID)
	return FromDataModel(data), nil
}

// Authenticate returns ErrInvalidCredentials for every failure so callers
// cannot tell an unknown email from a wrong password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	data, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		s.logger.Error("failed to load user for authentication", "error", err)
		return nil, internal.NewInternalError("failed to authenticate", err)
	}
	if data == nil {
		burnCompare(password)
		return nil, internal.ErrInvalidCredentials
	}

	if err := VerifyPassword(data.PasswordHash, password); err != nil {
		return nil, internal.ErrInvalidCredentials
	}

	u := FromDataModel(data)
	if !u.CanAuthenticate() {
		return nil, internal.ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	data, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if data == nil {
		return nil, ErrUserNotFound
	}
	return FromDataModel(data), nil
}

// Resolve loads the user behind a verified token.
func (s *Service) Resolve(ctx context.Context, id string) (*User, error) {
	data, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to resolve principal", err)
	}
	if data == nil {
		return nil, internal.ErrPrincipalNotFound
	}
	u := FromDataModel(data)
	if !u.CanAuthenticate() {
		return nil, internal.ErrPrincipalNotFound
	}
	return u, nil
}

// GetActiveByEmail returns ErrUserNotFound unless the account can sign in.
func (s *Service) GetActiveByEmail(ctx context.Context, email string) (*User, error) {
	data, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if data == nil {
		return nil, ErrUserNotFound
	}
	u := FromDataModel(data)
	if !u.CanAuthenticate() {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *Service) HashPassword(password string) (string, error) {
	return HashPassword(password, s.bcryptCost)
}

func (s *Service) UpdatePassword(ctx context.Context, id, newPassword string) error {
	if err := ValidatePasswordStrength(newPassword); err != nil {
		return err
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return internal.NewInternalError("failed to hash password", err)
	}
	if err := s.repo.UpdatePassword(ctx, id, hash); err != nil {
		return internal.NewInternalError("failed to update password", err)
	}
	s.logger.Info("password updated", "user_id", id)
	return nil
}

// ChangePassword replaces the password of a signed-in user after checking the
// current one.
func (s *Service) ChangePassword(ctx context.Context, id string, dto ChangePasswordDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}
	data, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return internal.NewInternalError("failed to load user", err)
	}
	if data == nil {
		return ErrUserNotFound
	}
	if err := VerifyPassword(data.PasswordHash, dto.CurrentPassword); err != nil {
		return ErrWrongCurrentPassword
	}
	return s.UpdatePassword(ctx, id, dto.NewPassword)
}

func (s *Service) SoftDelete(ctx context.Context, id string) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return internal.NewInternalError("failed to delete user", err)
	}
	s.logger.Info("user soft deleted", "user_id", id)
	return nil
}
