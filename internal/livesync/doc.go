// Package livesync orchestrates the live dashboard session: it selects the
// direct or proxy access path, polls the data gateway on a fixed interval,
// synchronizes the live/paused toggle across sessions through an owner-keyed
// broadcast topic, and tracks viewer presence inside a trailing window.
//
// Each session (owner or viewer) runs its own Controller with its own local
// copy of the aggregated payload; sessions share nothing except the backend.
// A Controller is an explicit lifecycle object: Start acquires the poll timer
// and the broadcast subscription as one scoped resource and Stop releases
// both synchronously, after which no fetch callback can write state.
package livesync
