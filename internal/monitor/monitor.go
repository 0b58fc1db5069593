// Package monitor runs one analysis actor per monitored session and tracks the active sessions.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"focusguard-backend/config"
	"focusguard-backend/internal/alert"
	"focusguard-backend/internal/detector"
	"focusguard-backend/internal/frame"
	"focusguard-backend/internal/metrics"
	"focusguard-backend/internal/model"
	"focusguard-backend/internal/proximity"
	"focusguard-backend/internal/usage"
)

// Reasons a monitor stops.
const (
	ReasonStopped  = "stopped"
	ReasonAbsent   = "absent"
	ReasonShutdown = "shutdown"
)

const alertSendTimeout = 2 * time.Second

// Settings are shared by every monitor of a registry.
type Settings struct {
	Proximity       proximity.Config
	Policies        []usage.Policy
	AbsenceTimeout  time.Duration
	TickInterval    time.Duration
	MaxInFlight     int
	OutboundBuffer  int
	Annotate        bool
	PushMinSeverity usage.Severity
}

// SettingsFromConfig converts the monitor and push configuration sections.
func SettingsFromConfig(c config.MonitorConfig, push config.PushConfig) Settings {
	minSev, err := usage.ParseSeverity(push.MinSeverity)
	if err != nil {
		minSev = usage.SeverityHigh
	}
	return Settings{
		Proximity: proximity.Config{
			PersonConfidence:   c.PersonConfidenceThreshold,
			PhoneConfidence:    c.PhoneConfidenceThreshold,
			ProximityThreshold: c.ProximityThreshold,
		},
		Policies:        usage.PoliciesFromConfig(c),
		AbsenceTimeout:  c.AbsenceTimeout,
		TickInterval:    c.TickInterval,
		MaxInFlight:     c.MaxInFlight,
		OutboundBuffer:  c.OutboundBuffer,
		Annotate:        c.Annotate,
		PushMinSeverity: minSev,
	}
}

// Submitter accepts detection jobs without blocking.
type Submitter interface {
	TrySubmit(job detector.Job) error
}

// EventSink accepts closed windows for persistence without blocking.
type EventSink interface {
	Enqueue(ev *model.DistractionEvent) bool
}

// AlertNotifier forwards alerts outside the session's own connection.
type AlertNotifier interface {
	Notify(userID string, a alert.Alert)
}

// Deps are the collaborators of a monitor.
type Deps struct {
	Pool     Submitter
	Events   EventSink
	Notifier AlertNotifier
	Clock    Clock
	Logger   zerolog.Logger
}

// Snapshot is a point-in-time view of a running monitor.
type Snapshot struct {
	SessionID         string    `json:"session_id"`
	UserID            string    `json:"user_id"`
	StartedAt         time.Time `json:"started_at"`
	FramesReceived    uint64    `json:"frames_received"`
	FramesProcessed   uint64    `json:"frames_processed"`
	FramesDropped     uint64    `json:"frames_dropped"`
	TotalDistractions int64     `json:"total_distractions"`
	FPS               int64     `json:"fps"`
}

// Monitor analyzes the frames of one session. All analysis state is owned by the goroutine in Run.
type Monitor struct {
	sessionID  string
	userID     string
	settings   Settings
	deps       Deps
	logger     zerolog.Logger
	dispatcher *alert.Dispatcher
	trackers   []*usage.Tracker
	phone      *usage.Tracker

	inbox    *inbox
	results  chan detector.Result
	notices  chan Message
	out      chan Message
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	startedAt         time.Time
	seq               atomic.Uint64
	framesReceived    atomic.Uint64
	framesProcessed   atomic.Uint64
	totalDistractions atomic.Int64
	fps               atomic.Int64

	inFlight       int
	pending        []time.Time
	lastApplied    time.Time
	lastFrameAt    time.Time
	fpsWindowStart time.Time
	fpsCount       int64
}

// New creates a monitor. Call Run to start it.
func New(sessionID, userID string, settings Settings, deps Deps) *Monitor {
	if deps.Clock == nil {
		deps.Clock = RealClock{}
	}
	if settings.MaxInFlight <= 0 {
		settings.MaxInFlight = 1
	}
	if settings.OutboundBuffer <= 0 {
		settings.OutboundBuffer = 16
	}
	if settings.TickInterval <= 0 {
		settings.TickInterval = 250 * time.Millisecond
	}

	m := &Monitor{
		sessionID:  sessionID,
		userID:     userID,
		settings:   settings,
		deps:       deps,
		dispatcher: alert.NewDispatcher(),
		inbox:      newInbox(),
		results:    make(chan detector.Result, settings.MaxInFlight),
		notices:    make(chan Message, 4),
		out:        make(chan Message, settings.OutboundBuffer),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		startedAt:  deps.Clock.Now(),
		logger: deps.Logger.With().
			Str("component", "monitor").
			Str("session_id", sessionID).
			Str("user_id", userID).
			Logger(),
	}
	for _, p := range settings.Policies {
		tr := usage.NewTracker(p)
		m.trackers = append(m.trackers, tr)
		if p.EventType == model.EventPhoneUsage {
			m.phone = tr
		}
	}
	return m
}

// SessionID returns the monitored session.
func (m *Monitor) SessionID() string { return m.sessionID }

// UserID returns the session owner.
func (m *Monitor) UserID() string { return m.userID }

// Outbound carries messages for the client. It is closed when the monitor exits.
func (m *Monitor) Outbound() <-chan Message { return m.out }

// Done is closed after the monitor has exited and flushed its windows.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Stop asks the monitor to finish. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Submit offers a frame. A frame still waiting in the inbox is replaced. Frames without a timestamp are
// stamped with the monitor clock.
func (m *Monitor) Submit(f *frame.Frame) {
	f.Seq = m.seq.Add(1)
	if f.Timestamp.IsZero() {
		f.Timestamp = m.deps.Clock.Now()
	}
	m.framesReceived.Add(1)
	metrics.FramesReceived.Inc()
	if m.inbox.put(f) {
		metrics.FramesDropped.WithLabelValues("superseded").Inc()
	}
}

// Notify queues a message for the client from outside the monitor goroutine. It never blocks and
// reports whether the message was accepted.
func (m *Monitor) Notify(msg Message) bool {
	select {
	case m.notices <- msg:
		return true
	default:
		return false
	}
}

// Snapshot returns the monitor's counters.
func (m *Monitor) Snapshot() Snapshot {
	return Snapshot{
		SessionID:         m.sessionID,
		UserID:            m.userID,
		StartedAt:         m.startedAt,
		FramesReceived:    m.framesReceived.Load(),
		FramesProcessed:   m.framesProcessed.Load(),
		FramesDropped:     m.inbox.dropped(),
		TotalDistractions: m.totalDistractions.Load(),
		FPS:               m.fps.Load(),
	}
}

// Run processes frames until the session stops, goes quiet for the absence timeout, or ctx is cancelled.
// Open windows are closed and reportable ones persisted before Run returns.
func (m *Monitor) Run(ctx context.Context) {
	defer close(m.done)
	defer close(m.out)

	ticker := time.NewTicker(m.settings.TickInterval)
	defer ticker.Stop()

	m.lastFrameAt = m.deps.Clock.Now()
	m.send(Message{Type: TypeConnection, Message: "Connected to distraction monitor", SessionID: m.sessionID})
	m.logger.Info().Msg("monitor started")

	reason := m.loop(ctx, ticker.C)
	m.finish(reason)
}

func (m *Monitor) loop(ctx context.Context, tick <-chan time.Time) string {
	for {
		select {
		case <-ctx.Done():
			return ReasonShutdown
		case <-m.stop:
			return ReasonStopped
		case <-m.inbox.ready:
			m.lastFrameAt = m.deps.Clock.Now()
			m.pump(ctx)
		case res := <-m.results:
			m.inFlight--
			m.settle(res.Frame.Timestamp)
			m.apply(ctx, res)
			m.pump(ctx)
		case msg := <-m.notices:
			m.send(msg)
		case <-tick:
			now := m.deps.Clock.Now()
			m.expire(m.expiryHorizon(now))
			if now.Sub(m.lastFrameAt) >= m.settings.AbsenceTimeout {
				return ReasonAbsent
			}
			m.pump(ctx)
		}
	}
}

// pump submits inbox frames while the session is under its in-flight cap. A frame the pool cannot take
// goes back to the inbox where a newer frame may still replace it.
func (m *Monitor) pump(ctx context.Context) {
	for m.inFlight < m.settings.MaxInFlight {
		f := m.inbox.take()
		if f == nil {
			return
		}
		if err := m.deps.Pool.TrySubmit(detector.Job{Ctx: ctx, Frame: f, Reply: m.results}); err != nil {
			if !m.inbox.restore(f) {
				metrics.FramesDropped.WithLabelValues("saturated").Inc()
			}
			return
		}
		m.inFlight++
		m.pending = append(m.pending, f.Timestamp)
	}
}

// settle forgets a submitted frame once its result, failed or not, is back.
func (m *Monitor) settle(ts time.Time) {
	for i, p := range m.pending {
		if p.Equal(ts) {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

// expiryHorizon is the latest instant windows may be expired at: now, or the timestamp of the oldest
// frame still waiting for detection.
func (m *Monitor) expiryHorizon(now time.Time) time.Time {
	horizon := now
	for _, p := range m.pending {
		if p.Before(horizon) {
			horizon = p
		}
	}
	if ts, ok := m.inbox.peek(); ok && ts.Before(horizon) {
		horizon = ts
	}
	return horizon
}

func (m *Monitor) apply(ctx context.Context, res detector.Result) {
	if res.Err != nil {
		if ctx.Err() == nil {
			m.logger.Warn().Err(res.Err).Uint64("seq", res.Frame.Seq).Msg("detection failed, skipping frame")
		}
		return
	}

	ts := res.Frame.Timestamp
	if !ts.After(m.lastApplied) {
		metrics.StaleResults.Inc()
		return
	}
	m.lastApplied = ts

	analysis := proximity.Analyze(m.settings.Proximity, res.Detection.Persons, res.Detection.Phones)

	shouldAlert := false
	for _, tr := range m.trackers {
		eventType := tr.Policy().EventType
		near, conf := observation(eventType, analysis)
		upd := tr.Observe(ts, near, conf)
		if upd.Closed != nil {
			m.closed(upd.Closed)
		}
		if a := m.dispatcher.Evaluate(eventType, upd.Window, upd.Severity, ts); a != nil {
			shouldAlert = true
			m.raise(ctx, *a)
		}
	}

	m.framesProcessed.Add(1)
	metrics.FramesProcessed.Inc()
	m.updateFPS(ts)

	data := DetectionData{
		PersonDetected:    analysis.PersonCount() > 0,
		PhoneDetected:     analysis.PhoneInUse,
		ShouldAlert:       shouldAlert,
		TotalDistractions: m.totalDistractions.Load(),
		FPS:               m.fps.Load(),
		PersonCount:       analysis.PersonCount(),
		PhoneCount:        analysis.PhoneCount(),
		Timestamp:         ts,
	}
	if m.phone != nil {
		if w := m.phone.Window(); w != nil {
			data.PhoneUsageDuration = w.Accumulated.Seconds()
			data.DistractionActive = w.HighestFired() >= usage.SeverityLow
		}
	}

	msg := Message{Type: TypeDetection, Data: data}
	if m.settings.Annotate {
		url, err := frame.Annotate(res.Frame, analysis, frame.Overlay{
			FPS:           int(data.FPS),
			PersonPresent: data.PersonDetected,
			PhoneSeconds:  data.PhoneUsageDuration,
			Distracted:    data.DistractionActive,
		})
		if err != nil {
			m.logger.Debug().Err(err).Msg("failed to annotate frame")
		} else {
			msg.AnnotatedFrame = url
		}
	}

	select {
	case m.out <- msg:
	default:
		metrics.OutboundDropped.Inc()
	}
}

// observation maps a frame analysis onto the condition each tracker follows.
func observation(t model.EventType, r proximity.Result) (bool, float64) {
	switch t {
	case model.EventPhoneUsage:
		if r.Best != nil {
			return true, r.Best.Phone.Confidence
		}
	case model.EventUserAbsent:
		return r.PersonCount() == 0, 0
	case model.EventMultiplePersons:
		if r.PersonCount() > 1 {
			var max float64
			for _, p := range r.Persons {
				if p.Confidence > max {
					max = p.Confidence
				}
			}
			return true, max
		}
	}
	return false, 0
}

func (m *Monitor) updateFPS(ts time.Time) {
	if m.fpsWindowStart.IsZero() {
		m.fpsWindowStart = ts
	}
	m.fpsCount++
	if ts.Sub(m.fpsWindowStart) >= time.Second {
		m.fps.Store(m.fpsCount)
		m.fpsCount = 0
		m.fpsWindowStart = ts
	}
}

func (m *Monitor) expire(now time.Time) {
	for _, tr := range m.trackers {
		if c := tr.Expire(now); c != nil {
			m.closed(c)
		}
	}
}

func (m *Monitor) closed(c *usage.Closed) {
	outcome := "discarded"
	if c.Reportable {
		outcome = "reported"
	}
	metrics.WindowsClosed.WithLabelValues(string(c.EventType), outcome).Inc()

	if !c.Reportable {
		m.logger.Debug().
			Str("type", string(c.EventType)).
			Dur("accumulated", c.Accumulated).
			Msg("discarding short window")
		return
	}

	m.totalDistractions.Add(1)
	ev := m.toEvent(c)
	m.logger.Info().
		Str("type", string(c.EventType)).
		Str("severity", string(ev.Severity)).
		Int("duration_seconds", ev.DurationSeconds).
		Msg("distraction window closed")
	m.deps.Events.Enqueue(ev)
}

func (m *Monitor) toEvent(c *usage.Closed) *model.DistractionEvent {
	ended := c.EndedAt
	ev := &model.DistractionEvent{
		ID:              uuid.NewString(),
		SessionID:       m.sessionID,
		UserID:          m.userID,
		EventType:       c.EventType,
		Severity:        c.Severity.Label(),
		DurationSeconds: c.DurationSeconds(),
		StartedAt:       c.StartedAt,
		EndedAt:         &ended,
	}
	if err := ev.SetDetails(model.EventDetails{
		Frames:        c.Frames,
		MaxConfidence: c.MaxConfidence,
		AvgConfidence: c.AvgConfidence,
		Source:        model.SourceMonitor,
	}); err != nil {
		m.logger.Warn().Err(err).Msg("failed to encode event details")
	}
	return ev
}

func (m *Monitor) raise(ctx context.Context, a alert.Alert) {
	metrics.AlertsTotal.WithLabelValues(string(a.Type), a.Severity.String()).Inc()
	m.logger.Info().
		Str("type", string(a.Type)).
		Str("severity", a.Severity.String()).
		Dur("duration", a.Duration).
		Msg("alert")

	msg := Message{Type: TypeAlert, Data: AlertData{
		AlertType: string(a.Type),
		Message:   a.Message,
		Severity:  a.Severity.String(),
		Duration:  a.Duration.Seconds(),
		PlaySound: a.PlaySound,
		Timestamp: a.At,
	}}
	timer := time.NewTimer(alertSendTimeout)
	defer timer.Stop()
	select {
	case m.out <- msg:
	case <-ctx.Done():
	case <-timer.C:
		m.logger.Warn().Msg("client is not reading, alert not delivered")
	}

	if m.deps.Notifier != nil && a.Severity >= m.settings.PushMinSeverity {
		m.deps.Notifier.Notify(m.userID, a)
	}
}

// send delivers control messages without blocking the loop.
func (m *Monitor) send(msg Message) {
	select {
	case m.out <- msg:
	default:
		metrics.OutboundDropped.Inc()
	}
}

func (m *Monitor) finish(reason string) {
	for _, tr := range m.trackers {
		if c := tr.Finish(); c != nil {
			m.closed(c)
		}
	}

	snap := m.Snapshot()
	summary := Message{Type: TypeStopped, SessionID: m.sessionID, Data: StoppedData{
		Reason:            reason,
		FramesReceived:    snap.FramesReceived,
		FramesProcessed:   snap.FramesProcessed,
		FramesDropped:     snap.FramesDropped,
		TotalDistractions: snap.TotalDistractions,
		DurationSeconds:   m.deps.Clock.Now().Sub(m.startedAt).Seconds(),
	}}
	timer := time.NewTimer(time.Second)
	defer timer.Stop()
	select {
	case m.out <- summary:
	case <-timer.C:
	}

	m.logger.Info().
		Str("reason", reason).
		Uint64("frames_processed", snap.FramesProcessed).
		Int64("total_distractions", snap.TotalDistractions).
		Msg("monitor stopped")
}
