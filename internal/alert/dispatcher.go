// Package alert decides when an open distraction window crosses into a new severity band.
package alert

import (
	"time"

	"focusguard-backend/internal/model"
	"focusguard-backend/internal/usage"
)

// Alert is a user-facing notification for one band crossing.
type Alert struct {
	Type      model.EventType
	Severity  usage.Severity
	Duration  time.Duration
	Message   string
	PlaySound bool
	At        time.Time
}

var defaultMessages = map[model.EventType]string{
	model.EventPhoneUsage:      "Phone usage detected! Please focus on your work.",
	model.EventUserAbsent:      "You seem to have stepped away. Come back when you are ready to focus.",
	model.EventMultiplePersons: "Multiple people detected. Try to minimise interruptions.",
}

// Dispatcher emits at most one alert per band per window, in increasing band order.
type Dispatcher struct {
	messages map[model.EventType]string
}

// NewDispatcher returns a dispatcher using the stock alert messages.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{messages: defaultMessages}
}

// Evaluate checks the window's current band and returns an alert if it is higher than every band
// already alerted. The window records the fired band.
func (d *Dispatcher) Evaluate(eventType model.EventType, w *usage.Window, band usage.Severity, at time.Time) *Alert {
	if w == nil || band <= usage.SeverityNone || band <= w.HighestFired() {
		return nil
	}
	w.MarkFired(band)
	return &Alert{
		Type:      eventType,
		Severity:  band,
		Duration:  w.Accumulated,
		Message:   d.messages[eventType],
		PlaySound: true,
		At:        at,
	}
}
