package store

import "errors"

var (
	// ErrNotFound is returned when a session does not exist or is not visible to the caller.
	ErrNotFound = errors.New("store: session not found")
	// ErrForbidden is returned when a session belongs to another user.
	ErrForbidden = errors.New("store: session belongs to another user")
	// ErrInvalidEvent is returned for events that violate the schema constraints.
	ErrInvalidEvent = errors.New("store: invalid event")
)

// Stats aggregates the stored events of one session.
type Stats struct {
	SessionID                     string           `json:"session_id"`
	TotalDistractions             int64            `json:"total_distractions"`
	PhoneUsageCount               int64            `json:"phone_usage_count"`
	UserAbsentCount               int64            `json:"user_absent_count"`
	MultiplePersonsCount          int64            `json:"multiple_persons_count"`
	TotalDistractionTimeSeconds   int64            `json:"total_distraction_time_seconds"`
	AvgDistractionDurationSeconds float64          `json:"avg_distraction_duration_seconds"`
	SeverityBreakdown             map[string]int64 `json:"severity_breakdown"`
}

// statsRow is one group of the stats aggregation query.
type statsRow struct {
	EventType string
	Severity  string
	Count     int64
	Seconds   int64
}
