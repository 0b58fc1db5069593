package monitor

import "time"

// Outbound message types.
const (
	TypeConnection = "connection"
	TypeDetection  = "detection"
	TypeAlert      = "alert"
	TypeError      = "error"
	TypePong       = "pong"
	TypeStopped    = "stopped"
)

// Inbound message types.
const (
	TypeFrame = "frame"
	TypeStop  = "stop"
	TypePing  = "ping"
)

// Message is one server-to-client message.
type Message struct {
	Type           string `json:"type"`
	Message        string `json:"message,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	Data           any    `json:"data,omitempty"`
	AnnotatedFrame string `json:"annotated_frame,omitempty"`
}

// Inbound is one client-to-server message.
type Inbound struct {
	Type      string     `json:"type"`
	Frame     string     `json:"frame,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// DetectionData is echoed for every applied frame.
type DetectionData struct {
	PersonDetected     bool      `json:"person_detected"`
	PhoneDetected      bool      `json:"phone_detected"`
	PhoneUsageDuration float64   `json:"phone_usage_duration"`
	ShouldAlert        bool      `json:"should_alert"`
	DistractionActive  bool      `json:"distraction_active"`
	TotalDistractions  int64     `json:"total_distractions"`
	FPS                int64     `json:"fps"`
	PersonCount        int       `json:"person_count"`
	PhoneCount         int       `json:"phone_count"`
	Timestamp          time.Time `json:"timestamp"`
}

// AlertData describes one band crossing.
type AlertData struct {
	AlertType string    `json:"alert_type"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Duration  float64   `json:"duration"`
	PlaySound bool      `json:"play_sound"`
	Timestamp time.Time `json:"timestamp"`
}

// StoppedData summarises a finished monitor.
type StoppedData struct {
	Reason            string  `json:"reason"`
	FramesReceived    uint64  `json:"frames_received"`
	FramesProcessed   uint64  `json:"frames_processed"`
	FramesDropped     uint64  `json:"frames_dropped"`
	TotalDistractions int64   `json:"total_distractions"`
	DurationSeconds   float64 `json:"duration_seconds"`
}
