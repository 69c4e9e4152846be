package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeUserRegistered         = "user.registered"
	EventTypePasswordChanged        = "user.password_changed"
	EventTypeUserDeactivated        = "user.deactivated"
	EventTypePasswordResetRequested = "password_reset.requested"
	EventTypeLoginCodeRequested     = "login_code.requested"
	EventTypeMagicLinkRequested     = "magic_link.requested"
	EventTypeInvitationCreated      = "invitation.created"
	EventTypeInvitationAccepted     = "invitation.accepted"
	EventTypeMemberRemoved          = "organization.member_removed"
)

// DeliveryEventTypes carry a secret that must reach the user out of band.
var DeliveryEventTypes = []string{
	EventTypePasswordResetRequested,
	EventTypeLoginCodeRequested,
	EventTypeMagicLinkRequested,
	EventTypeInvitationCreated,
}

func newBaseEvent(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

type UserRegisteredEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func NewUserRegisteredEvent(userID, email string) *UserRegisteredEvent {
	return &UserRegisteredEvent{
		BaseEvent: newBaseEvent(EventTypeUserRegistered, map[string]interface{}{
			"user_id": userID,
			"email":   email,
		}),
		UserID: userID,
		Email:  email,
	}
}

// AccountEvent records a change a user made to their own account.
type AccountEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
}

func NewAccountEvent(eventType, userID string) *AccountEvent {
	return &AccountEvent{
		BaseEvent: newBaseEvent(eventType, map[string]interface{}{"user_id": userID}),
		UserID:    userID,
	}
}

// MemberRemovedEvent is raised when a manager takes a user out of an organisation.
type MemberRemovedEvent struct {
	BaseEvent
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
	RemovedBy      string `json:"removed_by"`
}

func NewMemberRemovedEvent(orgID, userID, removedBy string) *MemberRemovedEvent {
	return &MemberRemovedEvent{
		BaseEvent: newBaseEvent(EventTypeMemberRemoved, map[string]interface{}{
			"organization_id": orgID,
			"user_id":         userID,
			"removed_by":      removedBy,
		}),
		OrganizationID: orgID,
		UserID:         userID,
		RemovedBy:      removedBy,
	}
}

// DeliveryRequestedEvent asks a mailer to send Secret (a code or a link) to Email.
type DeliveryRequestedEvent struct {
	BaseEvent
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Secret    string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewDeliveryRequestedEvent(eventType, userID, email, secret string, expiresAt time.Time) *DeliveryRequestedEvent {
	return &DeliveryRequestedEvent{
		BaseEvent: newBaseEvent(eventType, map[string]interface{}{
			"user_id":    userID,
			"email":      email,
			"expires_at": expiresAt,
		}),
		UserID:    userID,
		Email:     email,
		Secret:    secret,
		ExpiresAt: expiresAt,
	}
}

type InvitationAcceptedEvent struct {
	BaseEvent
	InvitationID   string `json:"invitation_id"`
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
}

func NewInvitationAcceptedEvent(invitationID, userID, orgID string) *InvitationAcceptedEvent {
	return &InvitationAcceptedEvent{
		BaseEvent: newBaseEvent(EventTypeInvitationAccepted, map[string]interface{}{
			"invitation_id":   invitationID,
			"user_id":         userID,
			"organization_id": orgID,
		}),
		InvitationID:   invitationID,
		UserID:         userID,
		OrganizationID: orgID,
	}
}

// SubscribeDeliveryLogger stands in for a mailer: it logs every delivery
// request without the secret itself.
func SubscribeDeliveryLogger(bus *EventBus, logger *slog.Logger) {
	for _, eventType := range DeliveryEventTypes {
		bus.Subscribe(eventType, func(ctx context.Context, event Event) error {
			attrs := []any{"event_type", event.EventType(), "event_id", event.EventID()}
			if d, ok := event.(*DeliveryRequestedEvent); ok {
				attrs = append(attrs, "user_id", d.UserID, "email", redactEmail(d.Email), "expires_at", d.ExpiresAt)
			}
			logger.InfoContext(ctx, "delivery requested", attrs...)
			return nil
		})
	}
}

// SubscribeAuditLogger writes one line per identity event of any type, with
// emails redacted.
func SubscribeAuditLogger(bus *EventBus, logger *slog.Logger) {
	bus.Subscribe(AllEvents, func(ctx context.Context, event Event) error {
		attrs := []any{"event_type", event.EventType(), "event_id", event.EventID(), "occurred_at", event.OccurredAt()}
		if data, ok := event.Payload().(map[string]interface{}); ok {
			for k, v := range data {
				if k == "email" {
					v = redactEmail(fmt.Sprint(v))
				}
				attrs = append(attrs, k, v)
			}
		}
		logger.InfoContext(ctx, "audit", attrs...)
		return nil
	})
}

func redactEmail(email string) string {
	for i, c := range email {
		if c == '@' {
			if i <= 1 {
				return "*" + email[i:]
			}
			return email[:1] + "***" + email[i:]
		}
	}
	return "***"
}
