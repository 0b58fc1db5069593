package model

import "time"

// Session is the owning row for the distraction events of one monitored work session.
type Session struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:64;not null;index" json:"user_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`

	// Associations
	Events []DistractionEvent `gorm:"foreignKey:SessionID" json:"-"`
}
