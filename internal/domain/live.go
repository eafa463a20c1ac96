package domain

import "time"

// LiveStateBroadcast is the ephemeral message published on the owner-keyed
// broadcast topic when the owner toggles the dashboard between live and paused.
type LiveStateBroadcast struct {
	IsLive bool `json:"isLive"`
}

// ViewerPresenceRecord marks one viewer as having fetched the dashboard of a
// given owner at a given time. Presence counts are derived from the set of
// distinct viewer IDs seen inside a trailing window.
type ViewerPresenceRecord struct {
	OwnerID  string    `json:"owner_id"`
	ViewerID string    `json:"viewer_id"`
	SeenAt   time.Time `json:"seen_at"`
}
