package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"focusguard-backend/internal/model"
	"focusguard-backend/internal/mw"
	"focusguard-backend/internal/store"
)

// sessionParam validates the :id path parameter and writes a 400 if it is not a uuid.
func sessionParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id must be a uuid"})
		return "", false
	}
	return id, true
}

// storeError maps store errors onto HTTP responses.
func (h *Handler) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, store.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "session belongs to another user"})
	case errors.Is(err, store.ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("store error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// ListEvents returns the events of a session in start order.
func (h *Handler) ListEvents(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	events, err := h.store.ListEvents(c.Request.Context(), sessionID, mw.UserID(c))
	if err != nil {
		h.storeError(c, err)
		return
	}
	if events == nil {
		events = []model.DistractionEvent{}
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "count": len(events), "events": events})
}

type createEventRequest struct {
	SessionID       string              `json:"session_id" binding:"required"`
	EventType       model.EventType     `json:"event_type" binding:"required"`
	Severity        model.Severity      `json:"severity"`
	DurationSeconds int                 `json:"duration_seconds"`
	StartedAt       *time.Time          `json:"started_at"`
	EndedAt         *time.Time          `json:"ended_at"`
	Details         *model.EventDetails `json:"details"`
}

// CreateEvent records a manually reported event.
func (h *Handler) CreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if _, err := uuid.Parse(req.SessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id must be a uuid"})
		return
	}

	userID := mw.UserID(c)
	ctx := c.Request.Context()
	if err := h.store.EnsureSession(ctx, req.SessionID, userID); err != nil {
		h.storeError(c, err)
		return
	}

	ev := &model.DistractionEvent{
		ID:              uuid.NewString(),
		SessionID:       req.SessionID,
		UserID:          userID,
		EventType:       req.EventType,
		Severity:        req.Severity,
		DurationSeconds: req.DurationSeconds,
		EndedAt:         req.EndedAt,
	}
	if ev.Severity == "" {
		ev.Severity = model.SeverityLow
	}
	switch {
	case req.StartedAt != nil:
		ev.StartedAt = *req.StartedAt
	case req.EndedAt != nil:
		ev.StartedAt = req.EndedAt.Add(-time.Duration(req.DurationSeconds) * time.Second)
	default:
		ev.StartedAt = time.Now().UTC().Add(-time.Duration(req.DurationSeconds) * time.Second)
	}

	details := model.EventDetails{Source: model.SourceManual}
	if req.Details != nil {
		details = *req.Details
		details.Source = model.SourceManual
	}
	if err := ev.SetDetails(details); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid details"})
		return
	}

	if err := h.store.CreateEvent(ctx, ev); err != nil {
		h.storeError(c, err)
		return
	}
	h.invalidate(req.SessionID)

	c.JSON(http.StatusCreated, ev)
}

// DeleteEvents removes a session's events, optionally only those older than older_than_days.
func (h *Handler) DeleteEvents(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	var olderThan time.Duration
	if raw := c.Query("older_than_days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "older_than_days must be a non-negative integer"})
			return
		}
		olderThan = time.Duration(days) * 24 * time.Hour
	}

	deleted, err := h.store.DeleteEvents(c.Request.Context(), sessionID, mw.UserID(c), olderThan)
	if err != nil {
		h.storeError(c, err)
		return
	}
	h.invalidate(sessionID)

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "deleted": deleted})
}
