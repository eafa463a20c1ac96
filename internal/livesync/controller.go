package livesync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratify/live-metrics/internal/auth"
	"github.com/stratify/live-metrics/internal/domain"
	"github.com/stratify/live-metrics/internal/gateway"
	"github.com/stratify/live-metrics/internal/metrics"
)

// State enumerates the controller lifecycle.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLive    State = "live"
	StatePaused  State = "paused"
	StateError   State = "error"
)

// AccessMode is the data path a fetch uses.
type AccessMode string

const (
	// ModeNone means no identity is available; no fetch is attempted.
	ModeNone AccessMode = "none"
	// ModeDirect queries the gateway scoped to the caller's own identity.
	ModeDirect AccessMode = "direct"
	// ModeProxy delegates the aggregation to a server-side path running
	// under the target identity; the caller never holds its credentials.
	ModeProxy AccessMode = "proxy"
)

const (
	DefaultPollInterval   = 15 * time.Second
	DefaultPresenceWindow = 10 * time.Minute
	defaultFetchTimeout   = 10 * time.Second
)

// Config describes one dashboard session.
type Config struct {
	// OwnerID is the caller's authenticated identity; empty for anonymous
	// viewers.
	OwnerID string
	// ViewID is the target identity from the shareable view address.
	ViewID string
	// ProjectID optionally narrows the owner aggregation.
	ProjectID string

	PollInterval   time.Duration
	PresenceWindow time.Duration
	FetchTimeout   time.Duration
}

// DashboardView is the session's local copy of the resolved dashboard.
type DashboardView struct {
	State       State                       `json:"state"`
	Mode        AccessMode                  `json:"mode"`
	Stale       bool                        `json:"stale"`
	Denied      bool                        `json:"denied"`
	Notice      string                      `json:"notice,omitempty"`
	Campaigns   []domain.Campaign           `json:"campaigns"`
	Cards       map[string][]metrics.Card   `json:"cards"`
	Totals      metrics.PortfolioTotals     `json:"totals"`
	MonthPacing metrics.MonthPacing         `json:"month_pacing"`
	Channels    []metrics.ChannelPacing     `json:"channels"`
	// SpendHistory is realized spend per calendar month, keyed "YYYY-MM".
	SpendHistory map[string]float64 `json:"spend_history"`
	ViewerCount  int                `json:"viewer_count"`
	FetchedAt    time.Time          `json:"fetched_at"`
}

// Controller drives one dashboard session. All exported methods are safe for
// concurrent use; internally the poll timer and the broadcast subscription
// feed a single event loop.
type Controller struct {
	cfg      Config
	gw       gateway.Gateway
	bc       Broadcaster
	presence PresenceStore
	sessions SessionValidator

	viewerID string

	mu          sync.Mutex
	state       State
	view        DashboardView
	started     bool
	stopped     bool
	inflight    bool
	lastApplied time.Time

	sub    Subscription
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewController creates a controller for one session. gw and bc are
// required; presence and sessions may be nil for sessions that need neither
// (presence-less embedding, pre-validated server contexts).
func NewController(cfg Config, gw gateway.Gateway, bc Broadcaster, presence PresenceStore, sessions SessionValidator) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PresenceWindow <= 0 {
		cfg.PresenceWindow = DefaultPresenceWindow
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Controller{
		cfg:      cfg,
		gw:       gw,
		bc:       bc,
		presence: presence,
		sessions: sessions,
		viewerID: uuid.New().String(),
		state:    StateIdle,
	}
}

// Mode resolves the access mode for the next fetch. Direct wins when an
// authenticated identity is present; the proxy path is used only when the
// view address carries a target identity.
func (c *Controller) Mode() AccessMode {
	if c.cfg.OwnerID != "" {
		return ModeDirect
	}
	if c.cfg.ViewID != "" {
		return ModeProxy
	}
	return ModeNone
}

// identity is the owner whose topic and records this session observes.
func (c *Controller) identity() string {
	if c.cfg.OwnerID != "" {
		return c.cfg.OwnerID
	}
	return c.cfg.ViewID
}

// Start acquires the session's resources (broadcast subscription and poll
// timer) and performs the initial, non-silent load. With no identity at all
// the controller stays Idle and holds no resources.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("controller already started")
	}
	c.started = true
	c.stopCh = make(chan struct{})
	c.mu.Unlock()

	if c.Mode() == ModeNone {
		return nil
	}

	sub, err := c.bc.Subscribe(ctx, c.identity())
	if err != nil {
		return fmt.Errorf("subscribe live topic: %w", err)
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(sub)

	c.refresh(false)
	return nil
}

// Stop releases the timer and the subscription together and waits for the
// event loop to exit. After Stop returns, no callback writes state and no
// further fetch occurs.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	sub := c.sub
	c.mu.Unlock()

	close(c.stopCh)
	if sub != nil {
		sub.Close()
	}
	c.wg.Wait()
}

// run is the session event loop: poll ticks and broadcast receipts. Fetches
// are dispatched on their own goroutine so a slow round trip never delays a
// toggle receipt; the in-flight guard and last-write-wins stamping in refresh
// keep concurrent dispatches safe.
func (c *Controller) run(sub Subscription) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			switch c.State() {
			case StateLive:
				c.spawnRefresh(true)
			case StateError:
				// Error is recoverable: retry as a fresh load.
				c.spawnRefresh(false)
			}
		case b, ok := <-sub.Updates():
			if !ok {
				return
			}
			c.applyBroadcast(b)
		}
	}
}

// spawnRefresh runs one fetch off the event loop. The goroutine is tracked so
// Stop still waits for any outstanding fetch before returning.
func (c *Controller) spawnRefresh(silent bool) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.refresh(silent)
	}()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// View returns a copy of the session's current dashboard payload.
func (c *Controller) View() DashboardView {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.view
	v.State = c.state
	v.Mode = c.Mode()
	return v
}

// Refresh triggers a manual fetch. Once a session has loaded, a manual
// refresh is silent so a transient failure keeps the last-good payload; from
// Idle or Error it behaves like a fresh load. A refresh requested while a
// fetch is already in flight is suppressed; results are additionally applied
// last-write-wins keyed by fetch-start time, so a slower, earlier-started
// fetch can never overwrite a later one.
func (c *Controller) Refresh() {
	st := c.State()
	c.refresh(st == StateLive || st == StatePaused)
}

// SetLive publishes the owner's live/paused toggle on the broadcast topic.
// Only the authenticated owner may toggle; the local session transitions
// immediately and every subscriber transitions on receipt.
func (c *Controller) SetLive(ctx context.Context, isLive bool) error {
	if c.Mode() != ModeDirect {
		return errors.New("only the owner can toggle live state")
	}
	if c.sessions != nil {
		if err := c.sessions.Validate(ctx, c.cfg.OwnerID); err != nil {
			c.forcePaused("session expired, sign in again to resume live updates")
			return err
		}
	}
	if err := c.bc.Publish(ctx, c.cfg.OwnerID, domain.LiveStateBroadcast{IsLive: isLive}); err != nil {
		return fmt.Errorf("publish live toggle: %w", err)
	}
	c.applyBroadcast(domain.LiveStateBroadcast{IsLive: isLive})
	return nil
}

// applyBroadcast transitions Live <-> Paused on a toggle receipt. These are
// the only steady-state transitions after the initial load, so receipts are
// ignored while the session is still Idle or Loading or sits in Error.
func (c *Controller) applyBroadcast(b domain.LiveStateBroadcast) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if c.state != StateLive && c.state != StatePaused {
		return
	}
	if b.IsLive {
		c.state = StateLive
	} else {
		c.state = StatePaused
	}
}

// forcePaused is the session-expiry guard: the controller stops issuing
// authenticated calls and surfaces a re-authentication notice.
func (c *Controller) forcePaused(notice string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.state = StatePaused
	c.view.Notice = notice
}

func (c *Controller) refresh(silent bool) {
	c.mu.Lock()
	if c.stopped || c.inflight {
		c.mu.Unlock()
		return
	}
	mode := c.Mode()
	if mode == ModeNone {
		c.state = StateIdle
		c.mu.Unlock()
		return
	}
	if !silent && (c.state == StateIdle || c.state == StateError) {
		c.state = StateLoading
	}
	c.inflight = true
	start := time.Now()
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FetchTimeout)
	defer cancel()

	payload, viewers, err := c.doFetch(ctx, mode)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight = false
	if c.stopped {
		return
	}
	if !start.After(c.lastApplied) && !c.lastApplied.IsZero() {
		return
	}
	if err != nil {
		c.applyError(err, silent)
		return
	}
	c.lastApplied = start
	c.applyPayload(payload, viewers, start)
}

// doFetch performs one round trip on the resolved access path. The proxy
// branch never touches the direct-query path and never needs credentials for
// the target identity.
func (c *Controller) doFetch(ctx context.Context, mode AccessMode) (*gateway.AggregationPayload, int, error) {
	now := time.Now()
	switch mode {
	case ModeDirect:
		if c.sessions != nil {
			if err := c.sessions.Validate(ctx, c.cfg.OwnerID); err != nil {
				return nil, 0, err
			}
		}
		payload, err := c.gw.FetchOwnerAggregation(ctx, c.cfg.OwnerID, gateway.Filters{ProjectID: c.cfg.ProjectID})
		if err != nil {
			return nil, 0, err
		}
		// Presence is recomputed only on the owner's own fetch.
		viewers := 0
		if c.presence != nil {
			n, err := c.presence.CountActive(ctx, c.cfg.OwnerID, c.cfg.PresenceWindow, now)
			if err != nil {
				log.Printf("[LiveSync] presence count failed: %v", err)
			} else {
				viewers = n
			}
		}
		return payload, viewers, nil

	case ModeProxy:
		payload, err := c.gw.FetchProxyAggregation(ctx, c.cfg.ViewID)
		if err != nil {
			return nil, 0, err
		}
		if c.presence != nil {
			if err := c.presence.Touch(ctx, c.cfg.ViewID, c.viewerID, now); err != nil {
				log.Printf("[LiveSync] presence touch failed: %v", err)
			}
		}
		return payload, 0, nil
	}
	return nil, 0, errors.New("no access mode resolvable")
}

// applyError classifies a failed fetch. Callers hold c.mu.
func (c *Controller) applyError(err error, silent bool) {
	switch {
	case errors.Is(err, auth.ErrSessionExpired):
		c.state = StatePaused
		c.view.Notice = "session expired, sign in again to resume live updates"
	case errors.Is(err, gateway.ErrProxyDenied):
		c.state = StateError
		c.view = DashboardView{Denied: true, Notice: "this dashboard is not publicly viewable"}
	default:
		if silent {
			// Keep last-good data; the next tick retries implicitly.
			c.view.Stale = true
			log.Printf("[LiveSync] silent refresh failed, keeping last payload: %v", err)
			return
		}
		c.state = StateError
		c.view.Notice = "failed to load dashboard data"
		log.Printf("[LiveSync] initial load failed: %v", err)
	}
}

// applyPayload resolves the fetched aggregation into the local view and
// settles the post-load state. Callers hold c.mu.
func (c *Controller) applyPayload(p *gateway.AggregationPayload, viewers int, fetchedAt time.Time) {
	cards := make(map[string][]metrics.Card, len(p.Campaigns))
	for i := range p.Campaigns {
		camp := &p.Campaigns[i]
		cards[camp.ID] = metrics.Resolve(camp, p.LatestMetricsByCampaign[camp.ID], p.SummariesByCampaign[camp.ID])
	}

	notice := c.view.Notice
	c.view = DashboardView{
		Campaigns:    p.Campaigns,
		Cards:        cards,
		Totals:       metrics.Aggregate(p.Campaigns, p.SummariesByCampaign, p.LatestMetricsByCampaign),
		MonthPacing:  metrics.CurrentMonthPacing(p.Allocations, p.Campaigns, fetchedAt),
		Channels:     metrics.ChannelBreakdown(p.Campaigns),
		SpendHistory: p.MonthlyActuals,
		ViewerCount:  viewers,
		FetchedAt:    fetchedAt,
	}

	switch c.state {
	case StateIdle, StateLoading, StateError:
		c.state = StateLive
	case StatePaused:
		// A manual refresh while paused updates data without going live,
		// but an expiry notice survives until re-authentication.
		c.view.Notice = notice
	}
}
