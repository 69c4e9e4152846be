package invitation

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/tenant-identity/internal"
	invitationDatamodel "github.com/frahmantamala/tenant-identity/internal/core/datamodel/invitation"
	"github.com/frahmantamala/tenant-identity/internal/core/events"
	"github.com/frahmantamala/tenant-identity/internal/rbac"
)

type RepositoryAPI interface {
	Create(ctx context.Context, inv *invitationDatamodel.Invitation) error
	UserExists(ctx context.Context, userID string) (bool, error)
	OrganizationExists(ctx context.Context, orgID string) (bool, error)
	// Accept locks the invitation row, adds the membership and invalidates the
	// invitation in one transaction. An expired invitation is invalidated and
	// committed before ErrInvitationExpired is returned.
	Accept(ctx context.Context, id string, now time.Time) (*invitationDatamodel.Invitation, error)
	Deactivate(ctx context.Context, id, callerID string) error
	Delete(ctx context.Context, id string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// PermissionChecker answers whether userID holds permission inside orgID.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, userID, orgID, permission string) (bool, error)
}

type Service struct {
	repo       RepositoryAPI
	publisher  EventPublisher
	authorizer PermissionChecker
	baseURL    string
	ttl        time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

func NewService(repo RepositoryAPI, publisher EventPublisher, baseURL string, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = internal.DefaultInvitationTTL
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		baseURL:   baseURL,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithAuthorizer sets who may invite. Without one every Create is refused.
func (s *Service) WithAuthorizer(a PermissionChecker) *Service {
	s.authorizer = a
	return s
}

func wrapRepoErr(err error, msg string) error {
	if appErr, ok := internal.IsAppError(err); ok {
		return appErr
	}
	return internal.NewInternalError(msg, err)
}

// Create invites dto.UserID into dto.OrganizationID. callerID must hold
// manage_invitations in that organization; the invitee is looked up only
// after that check.
func (s *Service) Create(ctx context.Context, callerID string, dto CreateInvitationDTO) (*CreateInvitationResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	ok, err := s.repo.OrganizationExists(ctx, dto.OrganizationID)
	if err != nil {
		return nil, wrapRepoErr(err, "failed to load organization")
	}
	if !ok {
		return nil, ErrInvalidOrg
	}

	if err := s.authorize(ctx, callerID, dto.OrganizationID); err != nil {
		return nil, err
	}

	ok, err = s.repo.UserExists(ctx, dto.UserID)
	if err != nil {
		return nil, wrapRepoErr(err, "failed to load user")
	}
	if !ok {
		return nil, ErrInvalidUser
	}

	inv := &invitationDatamodel.Invitation{
		UserID:         dto.UserID,
		OrganizationID: dto.OrganizationID,
		ExpiresAt:      s.now().Add(s.ttl).UTC(),
		IsValid:        true,
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, wrapRepoErr(err, "failed to create invitation")
	}

	link := FormatLink(s.baseURL, inv.ID)
	s.logger.Info("invitation created", "invitation_id", inv.ID, "organization_id", inv.OrganizationID)

	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, events.NewDeliveryRequestedEvent(
			events.EventTypeInvitationCreated, inv.UserID, "", link, inv.ExpiresAt))
	}

	return &CreateInvitationResponse{InvitationLink: link, ExpiresAt: inv.ExpiresAt}, nil
}

func (s *Service) authorize(ctx context.Context, callerID, orgID string) error {
	if s.authorizer == nil || callerID == "" {
		return ErrNotInviter
	}
	allowed, err := s.authorizer.CheckPermission(ctx, callerID, orgID, rbac.PermissionManageInvitations)
	if err != nil {
		return wrapRepoErr(err, "failed to check invite permission")
	}
	if !allowed {
		s.logger.Warn("invitation refused", "caller_id", callerID, "organization_id", orgID)
		return ErrNotInviter
	}
	return nil
}

// Accept succeeds at most once per invitation, however many callers race.
func (s *Service) Accept(ctx context.Context, link string) (*Invitation, error) {
	id, err := ParseLink(link)
	if err != nil {
		return nil, err
	}

	inv, err := s.repo.Accept(ctx, id, s.now())
	if err != nil {
		if appErr, ok := internal.IsAppError(err); ok {
			s.logger.Warn("invitation not accepted", "invitation_id", id, "code", appErr.Code)
			return nil, appErr
		}
		s.logger.Error("failed to accept invitation", "invitation_id", id, "error", err)
		return nil, internal.NewInternalError("failed to accept invitation", err)
	}

	s.logger.Info("invitation accepted", "invitation_id", id, "user_id", inv.UserID, "organization_id", inv.OrganizationID)
	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, events.NewInvitationAcceptedEvent(inv.ID, inv.UserID, inv.OrganizationID))
	}
	return FromDataModel(inv), nil
}

// Deactivate is reserved for the invited user.
func (s *Service) Deactivate(ctx context.Context, link, callerID string) error {
	id, err := ParseLink(link)
	if err != nil {
		return err
	}

	if err := s.repo.Deactivate(ctx, id, callerID); err != nil {
		return wrapRepoErr(err, "failed to deactivate invitation")
	}

	s.logger.Info("invitation deactivated", "invitation_id", id, "user_id", callerID)
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	parsed, err := ParseLink(id)
	if err != nil {
		return ErrInvitationNotFound
	}

	if err := s.repo.Delete(ctx, parsed); err != nil {
		return wrapRepoErr(err, "failed to delete invitation")
	}

	s.logger.Info("invitation deleted", "invitation_id", parsed)
	return nil
}
