package user

import (
	"net/http"
	"time"

	"github.com/frahmantamala/tenant-identity/internal"
	userDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/user"
)

// User is the credential-store view of an account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // Never expose password hash
	IsActive     bool      `json:"is_active"`
	IsDeleted    bool      `json:"-"`
	IsSuperAdmin bool      `json:"is_super_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CanAuthenticate reports whether the account may hold a session.
func (u *User) CanAuthenticate() bool {
	return u.IsActive && !u.IsDeleted
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		IsActive:     u.IsActive,
		IsSuperAdmin: u.IsSuperAdmin,
		CreatedAt:    u.CreatedAt,
	}
}

var (
	ErrUserNotFound  = internal.NewNotFoundError("User not found", internal.ErrCodeUserNotFound)
	ErrEmailTaken    = internal.NewConflictError("Email already registered", internal.ErrCodeEmailTaken).WithStatus(http.StatusBadRequest)
	ErrWeakPassword  = internal.NewValidationError("Password does not meet strength requirements", internal.ErrCodeWeakPassword)
	ErrUserForbidden = internal.NewForbiddenError("User account is inactive", internal.ErrCodeInvalidCredentials)
	// ErrWrongCurrentPassword is a 400 so a client does not read it as a dead session.
	ErrWrongCurrentPassword = internal.NewValidationError("Current password is incorrect", internal.ErrCodeInvalidCredentials)
)

func ToDataModel(u *User) *userDatamodel.User {
	return &userDatamodel.User{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
		IsDeleted:    u.IsDeleted,
		IsSuperAdmin: u.IsSuperAdmin,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
		IsDeleted:    u.IsDeleted,
		IsSuperAdmin: u.IsSuperAdmin,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}
