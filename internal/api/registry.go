package api

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stratify/live-metrics/internal/gateway"
	"github.com/stratify/live-metrics/internal/livesync"
)

// Registry owns the server-side dashboard sessions. Each authenticated owner
// and each anonymous viewer gets its own controller; the registry starts a
// controller on first sight and stops idle ones, so subscriptions and poll
// timers never outlive the session that needed them.
type Registry struct {
	gw        gateway.Gateway
	bc        livesync.Broadcaster
	presence  livesync.PresenceStore
	validator livesync.SessionValidator

	pollInterval   time.Duration
	presenceWindow time.Duration
	fetchTimeout   time.Duration
	idleTTL        time.Duration

	mu      sync.Mutex
	entries map[string]*registryEntry

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

type registryEntry struct {
	ctrl     *livesync.Controller
	lastSeen time.Time
}

// NewRegistry creates a session registry. Idle sessions are reaped after
// twice the presence window.
func NewRegistry(gw gateway.Gateway, bc livesync.Broadcaster, presence livesync.PresenceStore, validator livesync.SessionValidator, pollInterval, presenceWindow, fetchTimeout time.Duration) *Registry {
	if pollInterval <= 0 {
		pollInterval = livesync.DefaultPollInterval
	}
	if presenceWindow <= 0 {
		presenceWindow = livesync.DefaultPresenceWindow
	}
	return &Registry{
		gw:             gw,
		bc:             bc,
		presence:       presence,
		validator:      validator,
		pollInterval:   pollInterval,
		presenceWindow: presenceWindow,
		fetchTimeout:   fetchTimeout,
		idleTTL:        2 * presenceWindow,
		entries:        make(map[string]*registryEntry),
		stopCh:         make(chan struct{}),
	}
}

// Start launches the idle-session reaper.
func (r *Registry) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.reap(time.Now())
			}
		}
	}()
}

// Stop tears down the reaper and every live controller.
func (r *Registry) Stop() {
	r.stopped.Do(func() { close(r.stopCh) })
	r.wg.Wait()

	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, e := range entries {
		e.ctrl.Stop()
	}
}

// OwnerSession returns the running controller for an authenticated owner,
// creating and starting one on first sight.
func (r *Registry) OwnerSession(ctx context.Context, ownerID, projectID string) (*livesync.Controller, error) {
	key := fmt.Sprintf("owner:%s:%s", ownerID, projectID)
	return r.acquire(ctx, key, livesync.Config{
		OwnerID:        ownerID,
		ProjectID:      projectID,
		PollInterval:   r.pollInterval,
		PresenceWindow: r.presenceWindow,
		FetchTimeout:   r.fetchTimeout,
	})
}

// ViewerSession returns the running controller for one anonymous viewer of a
// shared dashboard. Sessions are keyed per viewer so presence counts stay
// distinct.
func (r *Registry) ViewerSession(ctx context.Context, viewID, viewerKey string) (*livesync.Controller, error) {
	key := fmt.Sprintf("view:%s:%s", viewID, viewerKey)
	return r.acquire(ctx, key, livesync.Config{
		ViewID:         viewID,
		PollInterval:   r.pollInterval,
		PresenceWindow: r.presenceWindow,
		FetchTimeout:   r.fetchTimeout,
	})
}

func (r *Registry) acquire(ctx context.Context, key string, cfg livesync.Config) (*livesync.Controller, error) {
	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		e.lastSeen = time.Now()
		r.mu.Unlock()
		return e.ctrl, nil
	}
	r.mu.Unlock()

	// Start outside the lock; subscribing and the initial load can block.
	ctrl := livesync.NewController(cfg, r.gw, r.bc, r.presence, r.validator)
	if err := ctrl.Start(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		// Lost the race; keep the first controller.
		e.lastSeen = time.Now()
		first := e.ctrl
		r.mu.Unlock()
		ctrl.Stop()
		return first, nil
	}
	r.entries[key] = &registryEntry{ctrl: ctrl, lastSeen: time.Now()}
	r.mu.Unlock()
	return ctrl, nil
}

// reap stops controllers nobody has touched inside the idle TTL.
func (r *Registry) reap(now time.Time) {
	r.mu.Lock()
	var stale []*registryEntry
	for key, e := range r.entries {
		if now.Sub(e.lastSeen) > r.idleTTL {
			stale = append(stale, e)
			delete(r.entries, key)
		}
	}
	r.mu.Unlock()

	for _, e := range stale {
		e.ctrl.Stop()
	}
	if len(stale) > 0 {
		log.Printf("[Registry] reaped %d idle dashboard sessions", len(stale))
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
