// Package syncmanager coordinates the poller and the push client: it
// starts in IDLE, moves to POLLING after the initial fetch when streaming
// is off, and otherwise to STREAMING_STARTING while the SSE connection is
// established. It falls back to FALLBACK_POLLING permanently on a
// non-retryable streaming error, or to POLLING temporarily when the
// stream goes down or hits a retryable error.
package syncmanager

import (
	"context"
	"log/slog"
	"sync"

	"github.com/splitkit/splitkit-go/internal/poller"
	"github.com/splitkit/splitkit-go/internal/push"
)

// State is one of the sync manager's five states.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateStreamingStarting
	StateStreamingReady
	StateFallbackPolling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePolling:
		return "POLLING"
	case StateStreamingStarting:
		return "STREAMING_STARTING"
	case StateStreamingReady:
		return "STREAMING_READY"
	case StateFallbackPolling:
		return "FALLBACK_POLLING"
	default:
		return "UNKNOWN"
	}
}

// Manager runs the poller and, if streaming is enabled, the push client,
// switching between them based on push connection health.
type Manager struct {
	poller         *poller.Poller
	push           *push.Client
	streamingOn    bool
	logger         *slog.Logger

	mu         sync.Mutex
	state      State
	pollCancel context.CancelFunc

	ready     chan struct{}
	readyOnce sync.Once
}

// New constructs a Manager. If push is nil, streaming is considered
// disabled and the manager stays in POLLING for its whole lifetime.
func New(p *poller.Poller, pushClient *push.Client, streamingEnabled bool, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		poller:      p,
		push:        pushClient,
		streamingOn: streamingEnabled && pushClient != nil,
		logger:      logger,
		state:       StateIdle,
		ready:       make(chan struct{}),
	}
}

// Ready returns a channel that is closed once the first flag fetch (and
// every segment it references) has landed in storage — the readiness
// condition a factory's BlockUntilReady waits on.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

func (m *Manager) markReady() {
	m.readyOnce.Do(func() { close(m.ready) })
}

// State returns the manager's current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.logger.Debug("syncmanager: state transition", "state", s.String())
}

// Run blocks until ctx is cancelled, driving the poll/stream state
// machine. It performs one synchronous flag+referenced-segment fetch
// before returning control to the caller's readiness gate, matching the
// factory's BlockUntilReady contract: by the time the
// initial fetch below completes, storage holds a usable snapshot.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.poller.RefreshFlags(ctx); err != nil {
		return err
	}
	for _, seg := range m.poller.TrackedSegments() {
		if err := m.poller.RefreshSegment(ctx, seg); err != nil {
			m.logger.Warn("syncmanager: initial segment fetch failed", "segment", seg, "error", err)
		}
	}
	m.markReady()

	if !m.streamingOn {
		m.setState(StatePolling)
		m.poller.Run(ctx)
		return nil
	}

	m.setState(StateStreamingStarting)
	m.startPolling(ctx) // poll while the SSE connection is establishing
	go m.push.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			m.stopPolling()
			return nil
		case status := <-m.push.Status():
			m.handlePushStatus(ctx, status)
		case n := <-m.push.Notifications():
			m.handleNotification(ctx, n)
		}
	}
}

// startPolling and stopPolling manage the poller's background goroutine,
// guarded by mu so state transitions and the poll goroutine's lifetime
// stay consistent under concurrent status/notification delivery.
func (m *Manager) startPolling(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pollCancel != nil {
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	m.pollCancel = cancel
	go m.poller.Run(pollCtx)
}

func (m *Manager) stopPolling() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pollCancel != nil {
		m.pollCancel()
		m.pollCancel = nil
	}
}

func (m *Manager) handlePushStatus(ctx context.Context, status push.Status) {
	switch status {
	case push.StatusUp:
		m.setState(StateStreamingReady)
		m.stopPolling()
	case push.StatusDown, push.StatusRetryableError:
		m.setState(StatePolling)
		m.startPolling(ctx)
	case push.StatusNonRetryableError:
		m.setState(StateFallbackPolling)
		m.streamingOn = false
		m.startPolling(ctx)
	}
}

func (m *Manager) handleNotification(ctx context.Context, n push.Notification) {
	switch n.Kind {
	case push.NotificationSplitUpdate:
		if err := m.poller.FetchUntil(ctx, n.ChangeNumber); err != nil {
			m.logger.Warn("syncmanager: fetch until failed", "error", err)
		}
	case push.NotificationSegmentUpdate:
		if err := m.poller.RefreshSegment(ctx, n.SegmentName); err != nil {
			m.logger.Warn("syncmanager: segment refresh failed", "segment", n.SegmentName, "error", err)
		}
	case push.NotificationSplitKill:
		// The kill flag itself always arrives via the next splitChanges
		// page; fetching immediately shortens that window.
		if err := m.poller.FetchUntil(ctx, n.ChangeNumber); err != nil {
			m.logger.Warn("syncmanager: fetch until failed after kill", "flag", n.FlagName, "error", err)
		}
	}
}
