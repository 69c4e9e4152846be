package validation_test

import (
	errors "github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/core/common/validation"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func fieldCodes(appErr *errors.AppError) []string {
	details, ok := appErr.Details.(errors.ValidationErrors)
	Expect(ok).To(BeTrue())
	codes := make([]string, 0, len(details.Errors))
	for _, e := range details.Errors {
		codes = append(codes, e.Field+":"+e.Code)
	}
	return codes
}

var _ = Describe("ValidationBuilder", func() {
	DescribeTable("email format",
		func(email string, valid bool) {
			v := validation.NewValidator()
			v.Field("email", email).Email()
			appErr := v.Validate()
			if valid {
				Expect(appErr).To(BeNil())
				return
			}
			Expect(appErr).NotTo(BeNil())
			Expect(fieldCodes(appErr)).To(ConsistOf("email:" + string(errors.ErrCodeInvalidEmail)))
		},
		Entry("plain address", "alice@example.com", true),
		Entry("plus tag", "alice+work@example.co.uk", true),
		Entry("missing domain", "alice@", false),
		Entry("no at sign", "not-an-email", false),
	)

	It("leaves empty emails to Required", func() {
		v := validation.NewValidator()
		v.Field("email", "").Required().Email()
		Expect(fieldCodes(v.Validate())).To(ConsistOf("email:" + string(errors.ErrCodeValidationFailed)))
	})

	It("reports one message per field", func() {
		v := validation.NewValidator()
		v.Field("email", "x").MinLength(5).Email()
		v.Field("org_id", "nope").UUID()
		Expect(fieldCodes(v.Validate())).To(ConsistOf(
			"email:"+string(errors.ErrCodeValidationFailed),
			"org_id:"+string(errors.ErrCodeValidationFailed),
		))
	})
})
