package usage

import (
	"fmt"
	"time"

	"focusguard-backend/config"
	"focusguard-backend/internal/model"
)

// Severity is an ordered band of accumulated distraction time.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	}
	return "none"
}

// Label returns the stored form of s. SeverityNone maps to low, the floor for persisted events.
func (s Severity) Label() model.Severity {
	switch s {
	case SeverityMedium:
		return model.SeverityMedium
	case SeverityHigh:
		return model.SeverityHigh
	}
	return model.SeverityLow
}

// ParseSeverity converts a low/medium/high label.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	}
	return SeverityNone, fmt.Errorf("unknown severity %q", s)
}

// Bands are the lower bounds of each severity. Durations below Low have no severity.
type Bands struct {
	Low    time.Duration
	Medium time.Duration
	High   time.Duration
}

// Classify maps an accumulated duration onto its band.
func (b Bands) Classify(d time.Duration) Severity {
	switch {
	case d >= b.High:
		return SeverityHigh
	case d >= b.Medium:
		return SeverityMedium
	case d >= b.Low:
		return SeverityLow
	}
	return SeverityNone
}

// BandsFromConfig converts the YAML form.
func BandsFromConfig(c config.BandsConfig) Bands {
	return Bands{
		Low:    time.Duration(c.LowSeconds * float64(time.Second)),
		Medium: time.Duration(c.MediumSeconds * float64(time.Second)),
		High:   time.Duration(c.HighSeconds * float64(time.Second)),
	}
}

// PhoneBands are the stock phone-usage bands: 10s, 15s, 60s.
var PhoneBands = Bands{Low: 10 * time.Second, Medium: 15 * time.Second, High: 60 * time.Second}
