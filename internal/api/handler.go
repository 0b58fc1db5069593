package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"focusguard-backend/internal/monitor"
	"focusguard-backend/internal/mw"
	"focusguard-backend/internal/store"
)

// Options tunes the HTTP and WebSocket handlers.
type Options struct {
	// MaxFPS caps the frames a connection may submit per second. Zero means no cap.
	MaxFPS float64
	// MaxFrameBytes bounds a single inbound WebSocket message.
	MaxFrameBytes int64
	// AllowedOrigins lists the browser origins allowed to open a monitor socket. Empty allows any.
	AllowedOrigins []string
	// PushMinSeverity is the lowest alert severity delivered as a web push.
	PushMinSeverity string
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	registry *monitor.Registry
	cache    *mw.ResponseCache
	webpush  *webpush.Options
	opts     Options
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, registry *monitor.Registry, cache *mw.ResponseCache, webpushOptions *webpush.Options, opts Options, logger zerolog.Logger) *Handler {
	h := &Handler{
		store:    s,
		registry: registry,
		cache:    cache,
		webpush:  webpushOptions,
		opts:     opts,
		logger:   logger.With().Str("component", "api").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 << 10,
		WriteBufferSize: 64 << 10,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

// invalidate drops cached reads of a session after a write.
func (h *Handler) invalidate(sessionID string) {
	if h.cache != nil {
		h.cache.InvalidateSession(sessionID)
	}
}
