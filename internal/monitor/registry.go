package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"focusguard-backend/internal/metrics"
)

var (
	// ErrAlreadyMonitored is returned when the session has a live monitor here or on another instance.
	ErrAlreadyMonitored = errors.New("monitor: session already monitored")
	// ErrShuttingDown is returned by Attach once Shutdown has been called.
	ErrShuttingDown = errors.New("monitor: registry shutting down")
)

// Registry owns the monitors of this instance, keyed by session id.
type Registry struct {
	settings Settings
	deps     Deps
	presence Presence
	logger   zerolog.Logger

	mu       sync.Mutex
	monitors map[string]*Monitor
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a registry. A nil presence means single-instance operation.
func NewRegistry(settings Settings, deps Deps, presence Presence) *Registry {
	if presence == nil {
		presence = LocalPresence{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		settings: settings,
		deps:     deps,
		presence: presence,
		logger:   deps.Logger.With().Str("component", "registry").Logger(),
		monitors: make(map[string]*Monitor),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Attach creates and starts the monitor for a session.
func (r *Registry) Attach(ctx context.Context, sessionID, userID string) (*Monitor, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if _, ok := r.monitors[sessionID]; ok {
		r.mu.Unlock()
		return nil, ErrAlreadyMonitored
	}
	// Reserve the id while the presence claim is in flight.
	r.monitors[sessionID] = nil
	r.mu.Unlock()

	ok, err := r.presence.Acquire(ctx, sessionID, userID)
	if err != nil || !ok {
		r.mu.Lock()
		delete(r.monitors, sessionID)
		r.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("failed to claim session: %w", err)
		}
		return nil, ErrAlreadyMonitored
	}

	m := New(sessionID, userID, r.settings, r.deps)

	r.mu.Lock()
	if r.closed {
		delete(r.monitors, sessionID)
		r.mu.Unlock()
		r.release(sessionID)
		return nil, ErrShuttingDown
	}
	r.monitors[sessionID] = m
	r.wg.Add(1)
	r.mu.Unlock()

	metrics.ActiveMonitors.Inc()
	go r.run(m)
	return m, nil
}

func (r *Registry) run(m *Monitor) {
	defer r.wg.Done()
	m.Run(r.ctx)

	r.mu.Lock()
	if r.monitors[m.SessionID()] == m {
		delete(r.monitors, m.SessionID())
	}
	r.mu.Unlock()

	metrics.ActiveMonitors.Dec()
	r.release(m.SessionID())
}

func (r *Registry) release(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.presence.Release(ctx, sessionID); err != nil {
		r.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to release session claim")
	}
}

// Get returns the live monitor of a session.
func (r *Registry) Get(sessionID string) (*Monitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.monitors[sessionID]
	return m, m != nil
}

// Len returns the number of live monitors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.monitors {
		if m != nil {
			n++
		}
	}
	return n
}

// List returns snapshots of the user's live monitors, oldest first.
func (r *Registry) List(userID string) []Snapshot {
	r.mu.Lock()
	var snaps []Snapshot
	for _, m := range r.monitors {
		if m != nil && m.UserID() == userID {
			snaps = append(snaps, m.Snapshot())
		}
	}
	r.mu.Unlock()

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].StartedAt.Before(snaps[j].StartedAt) })
	return snaps
}

// KeepAlive refreshes the presence claims of live monitors every interval until ctx is done.
func (r *Registry) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			ids := make([]string, 0, len(r.monitors))
			for id, m := range r.monitors {
				if m != nil {
					ids = append(ids, id)
				}
			}
			r.mu.Unlock()
			if len(ids) == 0 {
				continue
			}
			if err := r.presence.Refresh(ctx, ids); err != nil {
				r.logger.Warn().Err(err).Int("sessions", len(ids)).Msg("failed to refresh session claims")
			}
		}
	}
}

// Shutdown stops every monitor and waits for them to flush, bounded by ctx.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	n := len(r.monitors)
	r.mu.Unlock()

	r.logger.Info().Int("monitors", n).Msg("stopping monitors")
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("monitors did not stop in time: %w", ctx.Err())
	}
}
