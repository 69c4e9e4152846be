package internal

import (
	"context"
	"time"
)

// DefaultQueryTimeout bounds a repository call when no timeout is configured.
const DefaultQueryTimeout = 5 * time.Second

type (
	userIDKey struct{}
	orgIDKey  struct{}
)

// UserIDFromContext returns the authenticated user id, or "" for anonymous
// requests.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	userID, _ := ctx.Value(userIDKey{}).(string)
	return userID
}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// OrganizationIDFromContext returns the organisation a permission check has
// already admitted the caller to.
func OrganizationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	orgID, _ := ctx.Value(orgIDKey{}).(string)
	return orgID
}

func ContextWithOrganizationID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey{}, orgID)
}

// WithTimeout bounds ctx by duration, or by DefaultQueryTimeout when
// duration is not positive.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = DefaultQueryTimeout
	}
	return context.WithTimeout(ctx, duration)
}
