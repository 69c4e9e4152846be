package ephemeral

import (
	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/core/common/validation"
)

type EmailRequestDTO struct {
	Email string `json:"email"`
}

func (d EmailRequestDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type ResetPasswordDTO struct {
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (d ResetPasswordDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("new_password", d.NewPassword).Required()
	v.Field("confirm_password", d.ConfirmPassword).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type VerifyCodeDTO struct {
	Email string `json:"email"`
	Code  string `json:"token"`
}

func (d VerifyCodeDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email()
	v.Field("token", d.Code).Required().Custom(func(value interface{}) *internal.AppError {
		code, _ := value.(string)
		if len(code) != LoginCodeDigits {
			return internal.NewValidationFieldError("token", "token must be a 6 digit code", internal.ErrCodeValidationFailed)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				return internal.NewValidationFieldError("token", "token must be a 6 digit code", internal.ErrCodeValidationFailed)
			}
		}
		return nil
	})
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type MagicLinkVerifyDTO struct {
	Token string `json:"token"`
}

func (d MagicLinkVerifyDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("token", d.Token).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type MessageResponse struct {
	Message string `json:"message"`
}
