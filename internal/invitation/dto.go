package invitation

import (
	"time"

	"github.com/frahmantamala/tenant-identity/internal/core/common/validation"
)

type CreateInvitationDTO struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
}

func (d CreateInvitationDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("user_id", d.UserID).Required().UUID()
	v.Field("organization_id", d.OrganizationID).Required().UUID()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// InvitationLinkDTO is the body of accept and deactivate.
type InvitationLinkDTO struct {
	InvitationLink string `json:"invitation_link"`
}

type CreateInvitationResponse struct {
	InvitationLink string    `json:"invitation_link"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type InvitationResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	ExpiresAt      time.Time `json:"expires_at"`
	IsValid        bool      `json:"is_valid"`
}

type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
