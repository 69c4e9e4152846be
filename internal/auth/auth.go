package auth

import (
	"context"
	"time"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/user"
)

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID       string
	Email        string
	IsSuperAdmin bool
	Token        string
	ExpiresAt    time.Time
}

func PrincipalFromUser(u *user.User, token string, claims *Claims) *Principal {
	p := &Principal{
		UserID:       u.ID,
		Email:        u.Email,
		IsSuperAdmin: u.IsSuperAdmin,
		Token:        token,
	}
	if claims != nil && claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p
}

type ctxKey string

const principalKey ctxKey = "principal"

// ContextWithPrincipal stores the principal and mirrors its id under
// internal.UserIDFromContext for packages that must not import auth.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	ctx = context.WithValue(ctx, principalKey, p)
	return internal.ContextWithUserID(ctx, p.UserID)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}
