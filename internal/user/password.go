package user

import (
	"errors"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// PasswordSpecialChars is the set a password must draw at least one character from.
const PasswordSpecialChars = "@$!%*?&#^()-_+=."

const MinPasswordLength = 8

type passwordRule struct {
	message string
	ok      func(string) bool
}

var passwordRules = []passwordRule{
	{"password must be at least 8 characters long", func(p string) bool { return len(p) >= MinPasswordLength }},
	{"password must contain at least one lowercase letter", func(p string) bool { return strings.IndexFunc(p, unicode.IsLower) >= 0 }},
	{"password must contain at least one uppercase letter", func(p string) bool { return strings.IndexFunc(p, unicode.IsUpper) >= 0 }},
	{"password must contain at least one digit", func(p string) bool { return strings.IndexFunc(p, unicode.IsDigit) >= 0 }},
	{"password must contain at least one special character (" + PasswordSpecialChars + ")", func(p string) bool { return strings.ContainsAny(p, PasswordSpecialChars) }},
	{"password must not contain whitespace", func(p string) bool { return strings.IndexFunc(p, unicode.IsSpace) < 0 }},
}

// ValidatePasswordStrength applies the rules in order and reports the first one broken.
func ValidatePasswordStrength(password string) error {
	for _, rule := range passwordRules {
		if !rule.ok(password) {
			return ErrWeakPassword.WithMessage(rule.message)
		}
	}
	return nil
}

func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func VerifyPassword(hashedPassword, password string) error {
	if hashedPassword == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// burnCompare spends roughly one bcrypt comparison so unknown emails take as
// long to reject as wrong passwords.
func burnCompare(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
