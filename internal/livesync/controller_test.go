package livesync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratify/live-metrics/internal/auth"
	"github.com/stratify/live-metrics/internal/domain"
	"github.com/stratify/live-metrics/internal/gateway"
)

// fakeGateway counts calls per access path and serves a canned payload or an
// injected error.
type fakeGateway struct {
	directCalls int64
	proxyCalls  int64

	mu      sync.Mutex
	err     error
	gate    chan struct{}
	payload *gateway.AggregationPayload
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payload: &gateway.AggregationPayload{
		Campaigns: []domain.Campaign{
			{ID: "c1", OwnerID: "owner-1", Name: "Brand Search", Channel: domain.ChannelGoogle, Status: domain.CampaignActive, BudgetTotal: 1000, BudgetSpent: 400},
		},
		SummariesByCampaign:     map[string]*domain.MetricsSummary{},
		LatestMetricsByCampaign: map[string]*domain.MetricSnapshot{},
	}}
}

func (g *fakeGateway) setErr(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

// setGate makes subsequent fetches block until the channel is closed.
func (g *fakeGateway) setGate(gate chan struct{}) {
	g.mu.Lock()
	g.gate = gate
	g.mu.Unlock()
}

func (g *fakeGateway) FetchOwnerAggregation(_ context.Context, _ string, _ gateway.Filters) (*gateway.AggregationPayload, error) {
	atomic.AddInt64(&g.directCalls, 1)
	g.mu.Lock()
	gate := g.gate
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return g.payload, nil
}

func (g *fakeGateway) FetchProxyAggregation(_ context.Context, _ string) (*gateway.AggregationPayload, error) {
	atomic.AddInt64(&g.proxyCalls, 1)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return g.payload, nil
}

// fakeBroadcaster fans published toggles out to every in-process subscriber
// on the same topic.
type fakeBroadcaster struct {
	mu   sync.Mutex
	subs map[string][]*fakeSubscription
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{subs: make(map[string][]*fakeSubscription)}
}

func (b *fakeBroadcaster) Publish(_ context.Context, ownerID string, state domain.LiveStateBroadcast) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs[ownerID] {
		select {
		case s.ch <- state:
		default:
		}
	}
	return nil
}

func (b *fakeBroadcaster) Subscribe(_ context.Context, ownerID string) (Subscription, error) {
	s := &fakeSubscription{ch: make(chan domain.LiveStateBroadcast, 8)}
	b.mu.Lock()
	b.subs[ownerID] = append(b.subs[ownerID], s)
	b.mu.Unlock()
	return s, nil
}

type fakeSubscription struct {
	ch   chan domain.LiveStateBroadcast
	once sync.Once
}

func (s *fakeSubscription) Updates() <-chan domain.LiveStateBroadcast { return s.ch }
func (s *fakeSubscription) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

type fakePresence struct {
	mu      sync.Mutex
	touched map[string][]string
	count   int
}

func newFakePresence() *fakePresence {
	return &fakePresence{touched: make(map[string][]string)}
}

func (p *fakePresence) Touch(_ context.Context, ownerID, viewerID string, _ time.Time) error {
	p.mu.Lock()
	p.touched[ownerID] = append(p.touched[ownerID], viewerID)
	p.mu.Unlock()
	return nil
}

func (p *fakePresence) CountActive(_ context.Context, _ string, _ time.Duration, _ time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count, nil
}

type fakeSessions struct {
	mu  sync.Mutex
	err error
}

func (s *fakeSessions) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *fakeSessions) Validate(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func TestControllerMode(t *testing.T) {
	gw := newFakeGateway()
	bc := newFakeBroadcaster()

	owner := NewController(Config{OwnerID: "owner-1"}, gw, bc, nil, nil)
	assert.Equal(t, ModeDirect, owner.Mode())

	viewer := NewController(Config{ViewID: "owner-1"}, gw, bc, nil, nil)
	assert.Equal(t, ModeProxy, viewer.Mode())

	// An owner viewing a shared address still uses the direct path.
	both := NewController(Config{OwnerID: "owner-1", ViewID: "owner-2"}, gw, bc, nil, nil)
	assert.Equal(t, ModeDirect, both.Mode())

	anon := NewController(Config{}, gw, bc, nil, nil)
	assert.Equal(t, ModeNone, anon.Mode())
}

func TestControllerNoIdentityStaysIdle(t *testing.T) {
	gw := newFakeGateway()
	c := NewController(Config{}, gw, newFakeBroadcaster(), nil, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, int64(0), atomic.LoadInt64(&gw.directCalls))
	assert.Equal(t, int64(0), atomic.LoadInt64(&gw.proxyCalls))
}

func TestControllerInitialLoadGoesLive(t *testing.T) {
	gw := newFakeGateway()
	pr := newFakePresence()
	pr.count = 3

	c := NewController(Config{OwnerID: "owner-1"}, gw, newFakeBroadcaster(), pr, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.Equal(t, StateLive, c.State())
	v := c.View()
	assert.Equal(t, ModeDirect, v.Mode)
	assert.Len(t, v.Campaigns, 1)
	assert.Contains(t, v.Cards, "c1")
	assert.Equal(t, 3, v.ViewerCount)
	assert.False(t, v.Stale)
}

func TestControllerInitialLoadFailureIsError(t *testing.T) {
	gw := newFakeGateway()
	gw.setErr(errors.New("connection refused"))

	c := NewController(Config{OwnerID: "owner-1"}, gw, newFakeBroadcaster(), nil, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.Equal(t, StateError, c.State())
	assert.Equal(t, "failed to load dashboard data", c.View().Notice)
}

func TestControllerProxyNeverTouchesDirectPath(t *testing.T) {
	gw := newFakeGateway()
	pr := newFakePresence()

	c := NewController(Config{ViewID: "owner-1"}, gw, newFakeBroadcaster(), pr, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.Equal(t, StateLive, c.State())
	assert.Equal(t, int64(0), atomic.LoadInt64(&gw.directCalls))
	assert.Equal(t, int64(1), atomic.LoadInt64(&gw.proxyCalls))

	// The viewer registered itself against the target identity.
	pr.mu.Lock()
	defer pr.mu.Unlock()
	assert.Len(t, pr.touched["owner-1"], 1)
}

func TestControllerProxyDenied(t *testing.T) {
	gw := newFakeGateway()
	gw.setErr(gateway.ErrProxyDenied)

	c := NewController(Config{ViewID: "owner-2"}, gw, newFakeBroadcaster(), nil, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.Equal(t, StateError, c.State())
	v := c.View()
	assert.True(t, v.Denied)
	assert.Empty(t, v.Campaigns)
}

func TestControllerSessionExpiryPausesFetching(t *testing.T) {
	gw := newFakeGateway()
	sess := &fakeSessions{}

	c := NewController(Config{OwnerID: "owner-1"}, gw, newFakeBroadcaster(), nil, sess)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	require.Equal(t, StateLive, c.State())

	sess.setErr(auth.ErrSessionExpired)
	c.Refresh()

	assert.Equal(t, StatePaused, c.State())
	assert.Contains(t, c.View().Notice, "session expired")
}

func TestControllerSetLiveFansOutToViewers(t *testing.T) {
	gw := newFakeGateway()
	bc := newFakeBroadcaster()

	owner := NewController(Config{OwnerID: "owner-1"}, gw, bc, nil, nil)
	require.NoError(t, owner.Start(context.Background()))
	defer owner.Stop()

	viewer := NewController(Config{ViewID: "owner-1"}, gw, bc, nil, nil)
	require.NoError(t, viewer.Start(context.Background()))
	defer viewer.Stop()

	require.Equal(t, StateLive, owner.State())
	require.Equal(t, StateLive, viewer.State())

	require.NoError(t, owner.SetLive(context.Background(), false))
	assert.Equal(t, StatePaused, owner.State())
	assert.Eventually(t, func() bool { return viewer.State() == StatePaused },
		time.Second, 5*time.Millisecond)

	require.NoError(t, owner.SetLive(context.Background(), true))
	assert.Eventually(t, func() bool { return viewer.State() == StateLive },
		time.Second, 5*time.Millisecond)
}

func TestControllerSetLiveRejectedForViewer(t *testing.T) {
	c := NewController(Config{ViewID: "owner-1"}, newFakeGateway(), newFakeBroadcaster(), nil, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	err := c.SetLive(context.Background(), false)
	assert.Error(t, err)
	assert.Equal(t, StateLive, c.State())
}

func TestControllerSetLiveWithExpiredSession(t *testing.T) {
	sess := &fakeSessions{}

	c := NewController(Config{OwnerID: "owner-1"}, newFakeGateway(), newFakeBroadcaster(), nil, sess)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	require.Equal(t, StateLive, c.State())

	sess.setErr(auth.ErrSessionExpired)
	err := c.SetLive(context.Background(), true)
	assert.ErrorIs(t, err, auth.ErrSessionExpired)
	assert.Equal(t, StatePaused, c.State())
}

func TestControllerSilentFailureKeepsLastPayload(t *testing.T) {
	gw := newFakeGateway()

	c := NewController(Config{OwnerID: "owner-1"}, gw, newFakeBroadcaster(), nil, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	require.Equal(t, StateLive, c.State())

	gw.setErr(errors.New("upstream timeout"))
	c.Refresh()

	// Still live on last-good data, flagged stale.
	v := c.View()
	assert.Equal(t, StateLive, v.State)
	assert.True(t, v.Stale)
	assert.Len(t, v.Campaigns, 1)
}

func TestControllerPollsOnlyWhileLive(t *testing.T) {
	gw := newFakeGateway()

	c := NewController(Config{OwnerID: "owner-1", PollInterval: 20 * time.Millisecond}, gw, newFakeBroadcaster(), nil, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	require.Equal(t, StateLive, c.State())

	assert.Eventually(t, func() bool { return atomic.LoadInt64(&gw.directCalls) >= 3 },
		time.Second, 5*time.Millisecond)

	require.NoError(t, c.SetLive(context.Background(), false))
	time.Sleep(50 * time.Millisecond)
	paused := atomic.LoadInt64(&gw.directCalls)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, paused, atomic.LoadInt64(&gw.directCalls))
}

func TestControllerPausedManualRefreshUpdatesData(t *testing.T) {
	gw := newFakeGateway()

	c := NewController(Config{OwnerID: "owner-1"}, gw, newFakeBroadcaster(), nil, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.NoError(t, c.SetLive(context.Background(), false))
	require.Equal(t, StatePaused, c.State())

	gw.mu.Lock()
	gw.payload.Campaigns = append(gw.payload.Campaigns, domain.Campaign{
		ID: "c2", OwnerID: "owner-1", Name: "Retargeting", Channel: domain.ChannelMeta, Status: domain.CampaignActive,
	})
	gw.mu.Unlock()

	c.Refresh()

	v := c.View()
	assert.Equal(t, StatePaused, v.State)
	assert.Len(t, v.Campaigns, 2)
}

func TestControllerBroadcastNotDelayedBySlowFetch(t *testing.T) {
	gw := newFakeGateway()
	bc := newFakeBroadcaster()

	c := NewController(Config{OwnerID: "owner-1", PollInterval: 10 * time.Millisecond}, gw, bc, nil, nil)
	require.NoError(t, c.Start(context.Background()))
	gate := make(chan struct{})
	defer func() {
		close(gate)
		c.Stop()
	}()
	require.Equal(t, StateLive, c.State())

	// Block the next poll-driven fetch mid-flight.
	gw.setGate(gate)
	require.Eventually(t, func() bool { return atomic.LoadInt64(&gw.directCalls) >= 2 },
		time.Second, time.Millisecond)

	// The toggle must be applied while the fetch is still hanging.
	require.NoError(t, bc.Publish(context.Background(), "owner-1", domain.LiveStateBroadcast{IsLive: false}))
	assert.Eventually(t, func() bool { return c.State() == StatePaused },
		time.Second, time.Millisecond)
}

func TestControllerStopHaltsPolling(t *testing.T) {
	gw := newFakeGateway()

	c := NewController(Config{OwnerID: "owner-1", PollInterval: 10 * time.Millisecond}, gw, newFakeBroadcaster(), nil, nil)
	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, StateLive, c.State())

	c.Stop()
	after := atomic.LoadInt64(&gw.directCalls)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt64(&gw.directCalls))

	// Stop is idempotent.
	c.Stop()
}

func TestControllerStartTwiceFails(t *testing.T) {
	c := NewController(Config{OwnerID: "owner-1"}, newFakeGateway(), newFakeBroadcaster(), nil, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.Error(t, c.Start(context.Background()))
}
