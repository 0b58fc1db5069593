package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// EventType names the kind of distraction an event records.
type EventType string

const (
	EventPhoneUsage      EventType = "phone_usage"
	EventUserAbsent      EventType = "user_absent"
	EventMultiplePersons EventType = "multiple_persons"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventPhoneUsage, EventUserAbsent, EventMultiplePersons:
		return true
	}
	return false
}

// Severity is the stored severity label of an event.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Event sources recorded in EventDetails.Source.
const (
	SourceMonitor = "monitor"
	SourceManual  = "manual"
)

// EventDetails defines the structured metadata stored with an event.
type EventDetails struct {
	Frames        int     `json:"frames,omitempty"`
	MaxConfidence float64 `json:"max_confidence,omitempty"`
	AvgConfidence float64 `json:"avg_confidence,omitempty"`
	Source        string  `json:"source"`
	Note          string  `json:"note,omitempty"`
}

// DistractionEvent is one closed, reportable distraction window. Rows are written once and never updated.
type DistractionEvent struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	SessionID       string         `gorm:"size:36;not null;index:idx_event_session_started,priority:1" json:"session_id"`
	UserID          string         `gorm:"size:64;not null;index" json:"user_id"`
	EventType       EventType      `gorm:"size:32;not null;index" json:"event_type"`
	Severity        Severity       `gorm:"size:16;not null;default:low" json:"severity"`
	DurationSeconds int            `gorm:"not null;default:0" json:"duration_seconds"`
	StartedAt       time.Time      `gorm:"not null;index:idx_event_session_started,priority:2" json:"started_at"`
	EndedAt         *time.Time     `json:"ended_at,omitempty"`
	Details         datatypes.JSON `json:"details,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`

	// Associations
	Session Session `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// SetDetails encodes d into the Details column.
func (e *DistractionEvent) SetDetails(d EventDetails) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	e.Details = datatypes.JSON(raw)
	return nil
}
