package livesync

import (
	"context"
	"time"

	"github.com/stratify/live-metrics/internal/domain"
)

// Topic returns the broadcast topic for one owner identity.
func Topic(ownerID string) string { return "live-dashboard-" + ownerID }

// Broadcaster publishes and subscribes live-state toggles on an owner-keyed
// topic. Ownership of the toggle lies with the authenticated owner; every
// subscriber, proxy viewers included, transitions on receipt.
type Broadcaster interface {
	Publish(ctx context.Context, ownerID string, state domain.LiveStateBroadcast) error
	Subscribe(ctx context.Context, ownerID string) (Subscription, error)
}

// Subscription is one session's handle on a broadcast topic. Updates is
// closed when the subscription is closed.
type Subscription interface {
	Updates() <-chan domain.LiveStateBroadcast
	Close() error
}

// PresenceStore records viewer sightings and counts the distinct viewers
// seen inside a trailing window, scoped to an owner identity.
type PresenceStore interface {
	Touch(ctx context.Context, ownerID, viewerID string, at time.Time) error
	CountActive(ctx context.Context, ownerID string, window time.Duration, now time.Time) (int, error)
}

// SessionValidator reports whether the caller still holds a valid
// authenticated session for ownerID. Implementations return
// auth.ErrSessionExpired once the session lapses.
type SessionValidator interface {
	Validate(ctx context.Context, ownerID string) error
}
