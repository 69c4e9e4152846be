package user

import (
	"time"

	"github.com/frahmantamala/tenant-identity/internal/core/common/validation"
)

type RegisterDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (d RegisterDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email().MaxLength(254)
	v.Field("password", d.Password).Required().MaxLength(72)
	v.Field("name", d.Name).MaxLength(120)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return ValidatePasswordStrength(d.Password)
}

type ChangePasswordDTO struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	// RefreshToken, when given, is revoked together with the access token.
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (d ChangePasswordDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("current_password", d.CurrentPassword).Required()
	v.Field("new_password", d.NewPassword).Required().MaxLength(72)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return ValidatePasswordStrength(d.NewPassword)
}

type UserResponse struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	IsActive     bool      `json:"is_active"`
	IsSuperAdmin bool      `json:"is_super_admin"`
	CreatedAt    time.Time `json:"created_at"`
}
