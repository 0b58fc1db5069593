package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"focusguard-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB
	EnsureSession(ctx context.Context, sessionID, userID string) error
	CreateEvent(ctx context.Context, ev *model.DistractionEvent) error
	ListEvents(ctx context.Context, sessionID, userID string) ([]model.DistractionEvent, error)
	Stats(ctx context.Context, sessionID, userID string) (*Stats, error)
	DeleteEvents(ctx context.Context, sessionID, userID string, olderThan time.Duration) (int64, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, now: time.Now}
}

// DB returns the underlying connection.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// EnsureSession creates the session for userID if it does not exist yet. It returns ErrForbidden when the
// session is owned by someone else.
func (s *gormStore) EnsureSession(ctx context.Context, sessionID, userID string) error {
	sess := model.Session{ID: sessionID, UserID: userID}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&sess).Error; err != nil {
		return fmt.Errorf("failed to create session %s: %w", sessionID, err)
	}

	var existing model.Session
	if err := s.db.WithContext(ctx).Where("id = ?", sessionID).First(&existing).Error; err != nil {
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if existing.UserID != userID {
		return ErrForbidden
	}
	return nil
}

// ownedSession returns ErrNotFound unless the session exists and belongs to userID.
func (s *gormStore) ownedSession(ctx context.Context, sessionID, userID string) error {
	var sess model.Session
	err := s.db.WithContext(ctx).Where("id = ?", sessionID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if sess.UserID != userID {
		return ErrNotFound
	}
	return nil
}

// CreateEvent validates and inserts one event.
func (s *gormStore) CreateEvent(ctx context.Context, ev *model.DistractionEvent) error {
	if err := validateEvent(ev); err != nil {
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(ev).Error; err != nil {
		return fmt.Errorf("failed to insert event %s: %w", ev.ID, err)
	}
	return nil
}

func validateEvent(ev *model.DistractionEvent) error {
	switch {
	case ev.SessionID == "" || ev.UserID == "":
		return fmt.Errorf("%w: session and user are required", ErrInvalidEvent)
	case !ev.EventType.Valid():
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, ev.EventType)
	case !ev.Severity.Valid():
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidEvent, ev.Severity)
	case ev.DurationSeconds < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidEvent)
	case ev.StartedAt.IsZero():
		return fmt.Errorf("%w: started_at is required", ErrInvalidEvent)
	case ev.EndedAt != nil && ev.EndedAt.Before(ev.StartedAt):
		return fmt.Errorf("%w: ended_at before started_at", ErrInvalidEvent)
	}
	return nil
}

// ListEvents returns the session's events ordered by start time.
func (s *gormStore) ListEvents(ctx context.Context, sessionID, userID string) ([]model.DistractionEvent, error) {
	if err := s.ownedSession(ctx, sessionID, userID); err != nil {
		return nil, err
	}

	var events []model.DistractionEvent
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Order("started_at ASC").
		Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// Stats aggregates the session's events in the database.
func (s *gormStore) Stats(ctx context.Context, sessionID, userID string) (*Stats, error) {
	if err := s.ownedSession(ctx, sessionID, userID); err != nil {
		return nil, err
	}

	var rows []statsRow
	err := s.db.WithContext(ctx).
		Model(&model.DistractionEvent{}).
		Select("event_type, severity, COUNT(*) AS count, COALESCE(SUM(duration_seconds), 0) AS seconds").
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Group("event_type, severity").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}
	return foldStats(sessionID, rows), nil
}

func foldStats(sessionID string, rows []statsRow) *Stats {
	st := &Stats{
		SessionID: sessionID,
		SeverityBreakdown: map[string]int64{
			string(model.SeverityLow):    0,
			string(model.SeverityMedium): 0,
			string(model.SeverityHigh):   0,
		},
	}
	for _, r := range rows {
		st.TotalDistractions += r.Count
		st.TotalDistractionTimeSeconds += r.Seconds
		st.SeverityBreakdown[r.Severity] += r.Count
		switch model.EventType(r.EventType) {
		case model.EventPhoneUsage:
			st.PhoneUsageCount += r.Count
		case model.EventUserAbsent:
			st.UserAbsentCount += r.Count
		case model.EventMultiplePersons:
			st.MultiplePersonsCount += r.Count
		}
	}
	if st.TotalDistractions > 0 {
		avg := float64(st.TotalDistractionTimeSeconds) / float64(st.TotalDistractions)
		st.AvgDistractionDurationSeconds = math.Round(avg*100) / 100
	}
	return st
}

// DeleteEvents removes the session's events. A positive olderThan only removes events created before
// now minus olderThan.
func (s *gormStore) DeleteEvents(ctx context.Context, sessionID, userID string, olderThan time.Duration) (int64, error) {
	if err := s.ownedSession(ctx, sessionID, userID); err != nil {
		return 0, err
	}

	q := s.db.WithContext(ctx).Where("session_id = ? AND user_id = ?", sessionID, userID)
	if olderThan > 0 {
		q = q.Where("created_at < ?", s.now().Add(-olderThan))
	}
	res := q.Delete(&model.DistractionEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeBefore removes every event created before cutoff, across sessions.
func (s *gormStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.DistractionEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge events: %w", res.Error)
	}
	return res.RowsAffected, nil
}
