package ephemeral_test

import (
	"github.com/frahmantamala/tenant-identity/internal/ephemeral"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Login codes", func() {
	It("are six zero padded digits", func() {
		for i := 0; i < 50; i++ {
			code, err := ephemeral.GenerateLoginCode()
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(MatchRegexp(`^\d{6}$`))
		}
	})

	It("hash independently of surrounding whitespace", func() {
		Expect(ephemeral.HashCode(" 123456 ")).To(Equal(ephemeral.HashCode("123456")))
		Expect(ephemeral.HashCode("123456")).NotTo(Equal(ephemeral.HashCode("123457")))
		Expect(ephemeral.HashCode("123456")).To(HaveLen(64))
	})

	It("builds magic links under the verify path", func() {
		Expect(ephemeral.FormatMagicLink("https://id.example.com/", "abc")).
			To(Equal("https://id.example.com/api/v1/auth/magic-link/verify?token=abc"))
	})
})
