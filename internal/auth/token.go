package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenType string

const (
	TokenTypeAccess        TokenType = "access"
	TokenTypeRefresh       TokenType = "refresh"
	TokenTypePasswordReset TokenType = "password_reset"
	TokenTypeMagicLink     TokenType = "magic_link"
)

// Claims is the payload of every token we sign: user_id, type, jti, exp, iat.
type Claims struct {
	UserID string    `json:"user_id"`
	Type   TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Validate is called by the jwt parser after the registered claims pass.
func (c *Claims) Validate() error {
	if c.UserID == "" {
		return errors.New("user_id claim is missing")
	}
	if c.Type == "" {
		return errors.New("type claim is missing")
	}
	return nil
}

type TokenGeneratorAPI interface {
	GenerateToken(userID string, tokenType TokenType, ttl time.Duration, jti string) (token string, expiresAt time.Time, err error)
	GenerateAccessToken(userID string) (string, error)
	GenerateRefreshToken(userID string) (string, error)
	ParseToken(tokenString string) (*Claims, error)
}

type JWTTokenGenerator struct {
	method          jwt.SigningMethod
	signKey         interface{}
	verifyKey       interface{}
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	now             func() time.Time
}

func NewJWTTokenGenerator(algorithm string, signKey, verifyKey interface{}, accessTTL, refreshTTL time.Duration) (*JWTTokenGenerator, error) {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil || algorithm == "none" {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
	return &JWTTokenGenerator{
		method:          method,
		signKey:         signKey,
		verifyKey:       verifyKey,
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: refreshTTL,
		now:             time.Now,
	}, nil
}

func NewJWTTokenGeneratorFromConfig(cfg internal.SecurityConfig) (*JWTTokenGenerator, error) {
	signKey, verifyKey, err := cfg.SigningKeys()
	if err != nil {
		return nil, err
	}
	return NewJWTTokenGenerator(cfg.Algorithm, signKey, verifyKey, cfg.AccessTokenDuration, cfg.RefreshTokenDuration)
}

// WithClock swaps the time source used for both signing and verification.
func (j *JWTTokenGenerator) WithClock(now func() time.Time) *JWTTokenGenerator {
	j.now = now
	return j
}

func (j *JWTTokenGenerator) GenerateToken(userID string, tokenType TokenType, ttl time.Duration, jti string) (string, time.Time, error) {
	if jti == "" {
		jti = uuid.NewString()
	}
	issuedAt := j.now()
	expiresAt := issuedAt.Add(ttl)

	claims := &Claims{
		UserID: userID,
		Type:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	signed, err := jwt.NewWithClaims(j.method, claims).SignedString(j.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (j *JWTTokenGenerator) GenerateAccessToken(userID string) (string, error) {
	token, _, err := j.GenerateToken(userID, TokenTypeAccess, j.AccessTokenTTL, "")
	return token, err
}

func (j *JWTTokenGenerator) GenerateRefreshToken(userID string) (string, error) {
	token, _, err := j.GenerateToken(userID, TokenTypeRefresh, j.RefreshTokenTTL, "")
	return token, err
}

// ParseToken checks signature and expiry only. A token is expired once
// now >= exp; there is no leeway.
func (j *JWTTokenGenerator) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return j.verifyKey, nil },
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired.WithCause(err)
		}
		return nil, internal.ErrTokenMalformed.WithCause(err)
	}
	return claims, nil
}
