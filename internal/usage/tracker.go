// Package usage tracks sustained distraction windows from per-frame observations.
package usage

import (
	"time"

	"focusguard-backend/config"
	"focusguard-backend/internal/model"
)

// Policy configures one tracker.
type Policy struct {
	EventType     model.EventType
	Bands         Bands
	GracePeriod   time.Duration
	MinReportable time.Duration
}

// PhonePolicy returns the phone-usage policy with stock bands and the given timing settings.
func PhonePolicy(grace, minReportable time.Duration) Policy {
	return Policy{EventType: model.EventPhoneUsage, Bands: PhoneBands, GracePeriod: grace, MinReportable: minReportable}
}

// PoliciesFromConfig builds the enabled policies. Phone usage always comes first.
func PoliciesFromConfig(c config.MonitorConfig) []Policy {
	policies := []Policy{{
		EventType:     model.EventPhoneUsage,
		Bands:         BandsFromConfig(c.PhoneBands),
		GracePeriod:   c.GracePeriod,
		MinReportable: c.MinReportable,
	}}
	if c.TrackUserAbsent {
		policies = append(policies, Policy{
			EventType:     model.EventUserAbsent,
			Bands:         BandsFromConfig(c.AbsentBands),
			GracePeriod:   c.GracePeriod,
			MinReportable: c.MinReportable,
		})
	}
	if c.TrackMultiplePersons {
		policies = append(policies, Policy{
			EventType:     model.EventMultiplePersons,
			Bands:         BandsFromConfig(c.MultiplePersonsBands),
			GracePeriod:   c.GracePeriod,
			MinReportable: c.MinReportable,
		})
	}
	return policies
}

// Window is an open distraction window.
type Window struct {
	StartedAt    time.Time
	LastSeenAt   time.Time
	Accumulated  time.Duration
	PeakSeverity Severity
	Frames       int

	MaxConfidence float64
	confSum       float64
	fired         uint8
}

// Fired reports whether an alert for s was already emitted in this window.
func (w *Window) Fired(s Severity) bool {
	return w.fired&(1<<uint(s)) != 0
}

// MarkFired records that an alert for s was emitted.
func (w *Window) MarkFired(s Severity) {
	w.fired |= 1 << uint(s)
}

// HighestFired returns the highest band alerted in this window, SeverityNone if none.
func (w *Window) HighestFired() Severity {
	for s := SeverityHigh; s > SeverityNone; s-- {
		if w.Fired(s) {
			return s
		}
	}
	return SeverityNone
}

func (w *Window) observe(conf float64) {
	w.Frames++
	w.confSum += conf
	if conf > w.MaxConfidence {
		w.MaxConfidence = conf
	}
}

// Closed describes a window that has ended.
type Closed struct {
	EventType     model.EventType
	StartedAt     time.Time
	EndedAt       time.Time
	Accumulated   time.Duration
	Severity      Severity
	Frames        int
	MaxConfidence float64
	AvgConfidence float64
	Reportable    bool
}

// DurationSeconds is the accumulated time truncated to whole seconds.
func (c *Closed) DurationSeconds() int {
	return int(c.Accumulated / time.Second)
}

// Update is the result of one observation.
type Update struct {
	// Closed is set when the observation ended the previous window.
	Closed *Closed
	// Window is the open window after the observation, nil when idle.
	Window *Window
	// Severity is the band of the open window's accumulated time.
	Severity Severity
}

// Tracker is the per-session, per-type window state machine. It is not safe for concurrent use.
type Tracker struct {
	policy Policy
	window *Window
}

// NewTracker returns an idle tracker.
func NewTracker(p Policy) *Tracker {
	return &Tracker{policy: p}
}

// Policy returns the tracker's policy.
func (t *Tracker) Policy() Policy { return t.policy }

// Window returns the open window, nil when idle.
func (t *Tracker) Window() *Window { return t.window }

// Observe feeds one frame result. near is whether the condition holds in the frame and conf the
// confidence of the evidence.
func (t *Tracker) Observe(ts time.Time, near bool, conf float64) Update {
	var upd Update

	if w := t.window; w != nil {
		if !ts.After(w.LastSeenAt) {
			upd.Window = w
			upd.Severity = w.PeakSeverity
			return upd
		}
		if ts.Sub(w.LastSeenAt) >= t.policy.GracePeriod {
			upd.Closed = t.close()
		}
	}

	if !near {
		if t.window != nil {
			upd.Window = t.window
			upd.Severity = t.window.PeakSeverity
		}
		return upd
	}

	w := t.window
	if w == nil {
		w = &Window{StartedAt: ts, LastSeenAt: ts}
		t.window = w
	} else {
		w.Accumulated += ts.Sub(w.LastSeenAt)
		w.LastSeenAt = ts
	}
	w.observe(conf)
	if sev := t.policy.Bands.Classify(w.Accumulated); sev > w.PeakSeverity {
		w.PeakSeverity = sev
	}

	upd.Window = w
	upd.Severity = w.PeakSeverity
	return upd
}

// Expire closes the open window if no near frame has been seen for the grace period as of now.
func (t *Tracker) Expire(now time.Time) *Closed {
	if t.window == nil || now.Sub(t.window.LastSeenAt) < t.policy.GracePeriod {
		return nil
	}
	return t.close()
}

// Finish closes the open window unconditionally.
func (t *Tracker) Finish() *Closed {
	if t.window == nil {
		return nil
	}
	return t.close()
}

func (t *Tracker) close() *Closed {
	w := t.window
	t.window = nil

	sev := w.PeakSeverity
	if sev < SeverityLow {
		sev = SeverityLow
	}
	c := &Closed{
		EventType:     t.policy.EventType,
		StartedAt:     w.StartedAt,
		EndedAt:       w.LastSeenAt,
		Accumulated:   w.Accumulated,
		Severity:      sev,
		Frames:        w.Frames,
		MaxConfidence: w.MaxConfidence,
		Reportable:    w.Accumulated >= t.policy.MinReportable,
	}
	if w.Frames > 0 {
		c.AvgConfidence = w.confSum / float64(w.Frames)
	}
	return c
}
