package ephemeral

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/frahmantamala/tenant-identity/internal"
)

type Purpose string

const (
	PurposePasswordReset Purpose = "password_reset"
	PurposeLoginCode     Purpose = "login_code"
	PurposeMagicLink     Purpose = "magic_link"
)

const (
	LoginCodeDigits = 6
	// MaxLoginCodeAttempts wrong guesses burn the outstanding code.
	MaxLoginCodeAttempts = 5
	MagicLinkPath        = "/api/v1/auth/magic-link/verify"
)

var (
	ErrTokenNotFound    = internal.NewValidationError("Invalid or expired code", internal.ErrCodeEphemeralNotFound)
	ErrTokenConsumed    = internal.NewValidationError("Token already used or invalid", internal.ErrCodeTokenConsumed)
	ErrTokenMismatch    = internal.NewValidationError("Token does not belong to this user", internal.ErrCodeTokenMismatch)
	ErrPasswordMismatch = internal.NewValidationError("Passwords do not match", internal.ErrCodePasswordMismatch)

	// single use tokens fail with 400, not the 401 used for sessions
	ErrTokenExpired   = internal.ErrTokenExpired.WithStatus(http.StatusBadRequest)
	ErrTokenMalformed = internal.ErrTokenMalformed.WithStatus(http.StatusBadRequest)
	ErrWrongTokenType = internal.ErrWrongTokenType.WithStatus(http.StatusBadRequest)
)

// GenerateLoginCode returns a zero padded numeric code.
func GenerateLoginCode() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(LoginCodeDigits), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", LoginCodeDigits, n.Int64()), nil
}

// HashCode is what gets stored for a login code; the plain code only travels
// to the user.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(code)))
	return hex.EncodeToString(sum[:])
}

func FormatMagicLink(baseURL, token string) string {
	q := url.Values{"token": []string{token}}
	return strings.TrimRight(baseURL, "/") + MagicLinkPath + "?" + q.Encode()
}
