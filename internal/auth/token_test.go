package auth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"time"

	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestGenerator(clock *fakeClock) *auth.JWTTokenGenerator {
	gen, err := auth.NewJWTTokenGenerator("HS256", []byte(testSecret), []byte(testSecret), 15*time.Minute, 24*time.Hour)
	Expect(err).NotTo(HaveOccurred())
	return gen.WithClock(clock.Now)
}

var _ = Describe("JWTTokenGenerator", func() {
	var (
		clock *fakeClock
		gen   *auth.JWTTokenGenerator
	)

	BeforeEach(func() {
		clock = &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
		gen = newTestGenerator(clock)
	})

	It("round trips user id, type and jti", func() {
		token, expiresAt, err := gen.GenerateToken("u-1", auth.TokenTypePasswordReset, time.Minute, "row-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(expiresAt).To(Equal(clock.now.Add(time.Minute)))

		claims, err := gen.ParseToken(token)
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.UserID).To(Equal("u-1"))
		Expect(claims.Type).To(Equal(auth.TokenTypePasswordReset))
		Expect(claims.ID).To(Equal("row-1"))
		Expect(claims.IssuedAt.Time).To(BeTemporally("==", clock.now))
	})

	It("issues access and refresh tokens with distinct types", func() {
		access, err := gen.GenerateAccessToken("u-1")
		Expect(err).NotTo(HaveOccurred())
		refresh, err := gen.GenerateRefreshToken("u-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(access).NotTo(Equal(refresh))

		accessClaims, _ := gen.ParseToken(access)
		refreshClaims, _ := gen.ParseToken(refresh)
		Expect(accessClaims.Type).To(Equal(auth.TokenTypeAccess))
		Expect(refreshClaims.Type).To(Equal(auth.TokenTypeRefresh))
	})

	It("expires exactly at issued_at + ttl", func() {
		token, err := gen.GenerateAccessToken("u-1")
		Expect(err).NotTo(HaveOccurred())

		clock.now = clock.now.Add(15*time.Minute - time.Second)
		_, err = gen.ParseToken(token)
		Expect(err).NotTo(HaveOccurred())

		clock.now = clock.now.Add(time.Second)
		_, err = gen.ParseToken(token)
		Expect(errors.Is(err, internal.ErrTokenExpired)).To(BeTrue())
	})

	It("rejects tampered tokens as malformed", func() {
		token, _ := gen.GenerateAccessToken("u-1")
		parts := strings.Split(token, ".")
		tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

		_, err := gen.ParseToken(tampered)
		Expect(errors.Is(err, internal.ErrTokenMalformed)).To(BeTrue())

		_, err = gen.ParseToken("not-a-jwt")
		Expect(errors.Is(err, internal.ErrTokenMalformed)).To(BeTrue())
	})

	It("rejects tokens signed with another algorithm", func() {
		other, err := auth.NewJWTTokenGenerator("HS512", []byte(testSecret), []byte(testSecret), time.Minute, time.Hour)
		Expect(err).NotTo(HaveOccurred())
		token, _ := other.GenerateAccessToken("u-1")

		_, err = gen.ParseToken(token)
		Expect(errors.Is(err, internal.ErrTokenMalformed)).To(BeTrue())
	})

	It("rejects tokens without the identity claims", func() {
		raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": clock.now.Add(time.Hour).Unix()})
		token, err := raw.SignedString([]byte(testSecret))
		Expect(err).NotTo(HaveOccurred())

		_, err = gen.ParseToken(token)
		Expect(errors.Is(err, internal.ErrTokenMalformed)).To(BeTrue())
	})

	It("refuses the none algorithm", func() {
		_, err := auth.NewJWTTokenGenerator("none", nil, nil, time.Minute, time.Hour)
		Expect(err).To(HaveOccurred())
	})

	It("signs and verifies with RSA keys", func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		Expect(err).NotTo(HaveOccurred())

		rs, err := auth.NewJWTTokenGenerator("RS256", key, &key.PublicKey, time.Minute, time.Hour)
		Expect(err).NotTo(HaveOccurred())

		token, err := rs.GenerateAccessToken("u-1")
		Expect(err).NotTo(HaveOccurred())
		claims, err := rs.ParseToken(token)
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.UserID).To(Equal("u-1"))
	})
})
