package invitation

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/frahmantamala/tenant-identity/internal"
	invitationDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/invitation"
	"github.com/google/uuid"
)

const (
	AcceptPath = "/api/v1/invite/accept"
	LinkParam  = "invitation_id"
	linkPrefix = "invite_"
)

type Invitation struct {
	ID             string
	UserID         string
	OrganizationID string
	ExpiresAt      time.Time
	IsValid        bool
	CreatedAt      time.Time
}

// ExpiredAt reports whether the invitation can no longer be used at now.
func (i *Invitation) ExpiredAt(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

func FromDataModel(d *invitationDatamodel.Invitation) *Invitation {
	return &Invitation{
		ID:             d.ID,
		UserID:         d.UserID,
		OrganizationID: d.OrganizationID,
		ExpiresAt:      d.ExpiresAt,
		IsValid:        d.IsValid,
		CreatedAt:      d.CreatedAt,
	}
}

func (i *Invitation) ToResponse() InvitationResponse {
	return InvitationResponse{
		ID:             i.ID,
		UserID:         i.UserID,
		OrganizationID: i.OrganizationID,
		ExpiresAt:      i.ExpiresAt,
		IsValid:        i.IsValid,
	}
}

var (
	ErrInvalidUser        = internal.NewValidationError("Invalid user ID", internal.ErrCodeInvalidUser)
	ErrInvalidOrg         = internal.NewValidationError("Invalid organization ID", internal.ErrCodeInvalidOrg)
	ErrInvalidLink        = internal.NewValidationError("Invalid invitation link", internal.ErrCodeInvalidLink)
	ErrInvitationNotFound = internal.NewNotFoundError("Invitation not found or already used", internal.ErrCodeInvitationNotFound)
	ErrInvitationExpired  = internal.NewValidationError("Expired invitation link", internal.ErrCodeInvitationExpired)
	ErrAlreadyMember      = internal.NewConflictError("User already in organization", internal.ErrCodeAlreadyMember)
	ErrNotOwner           = internal.NewForbiddenError("Only the invited user can deactivate this invitation", internal.ErrCodeNotInvitationOwner)
	ErrNotInviter         = internal.NewForbiddenError("Inviting requires the manage_invitations permission in the organization", internal.ErrCodeInsufficientRole)

	// the invitee or organization disappeared after the invitation was issued
	ErrInviteeGone = ErrInvalidUser.WithStatus(http.StatusNotFound)
	ErrOrgGone     = ErrInvalidOrg.WithStatus(http.StatusNotFound)
)

// FormatLink builds the link handed to the invitee.
func FormatLink(baseURL, id string) string {
	q := url.Values{LinkParam: []string{id}}
	return strings.TrimRight(baseURL, "/") + AcceptPath + "?" + q.Encode()
}

// ParseLink extracts the invitation id from a full link, an "invite_<uuid>"
// token or a bare uuid.
func ParseLink(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", ErrInvalidLink
	}

	candidate := link
	if strings.Contains(link, "?") || strings.Contains(link, "://") {
		u, err := url.Parse(link)
		if err != nil {
			return "", ErrInvalidLink
		}
		candidate = u.Query().Get(LinkParam)
	} else {
		candidate = strings.TrimPrefix(candidate, linkPrefix)
	}

	id, err := uuid.Parse(candidate)
	if err != nil {
		return "", ErrInvalidLink
	}
	return id.String(), nil
}
