package auth

import (
	"github.com/frahmantamala/tenant-identity/internal/core/common/validation"
	"github.com/frahmantamala/tenant-identity/internal/user"
)

// LoginDTO is the transport shape used by the HTTP handler to accept login requests.
type LoginDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate only checks presence; anything else would leak which part failed.
func (d LoginDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required()
	v.Field("password", d.Password).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// RefreshTokenDTO for refresh token requests
type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token"`
}

func (d RefreshTokenDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("refresh_token", d.RefreshToken).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// LogoutDTO is optional; an empty body only revokes the access token.
type LogoutDTO struct {
	RefreshToken string `json:"refresh_token"`
}

type RegisterResponse struct {
	AuthTokens
	User user.UserResponse `json:"user"`
}
