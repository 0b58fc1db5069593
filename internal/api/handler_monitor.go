package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"focusguard-backend/internal/frame"
	"focusguard-backend/internal/metrics"
	"focusguard-backend/internal/monitor"
	"focusguard-backend/internal/mw"
)

const writeWait = 10 * time.Second

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients do not send an origin.
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// MonitorSession upgrades to a WebSocket and streams frames into the session's monitor.
// Every rejection happens before the upgrade so no monitor state is created for it.
func (h *Handler) MonitorSession(c *gin.Context) {
	sessionID := c.Query("session_id")
	if _, err := uuid.Parse(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id must be a uuid"})
		return
	}
	userID := mw.UserID(c)

	if err := h.store.EnsureSession(c.Request.Context(), sessionID, userID); err != nil {
		h.storeError(c, err)
		return
	}

	m, err := h.registry.Attach(c.Request.Context(), sessionID, userID)
	switch {
	case errors.Is(err, monitor.ErrAlreadyMonitored):
		c.JSON(http.StatusConflict, gin.H{"error": "session is already being monitored"})
		return
	case errors.Is(err, monitor.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
		return
	case err != nil:
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to start monitor")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the error response.
		h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("websocket upgrade failed")
		m.Stop()
		return
	}

	h.serveMonitor(conn, m)
}

func (h *Handler) serveMonitor(conn *websocket.Conn, m *monitor.Monitor) {
	logger := h.logger.With().Str("session_id", m.SessionID()).Str("user_id", m.UserID()).Logger()
	logger.Info().Msg("monitor connected")

	if h.opts.MaxFrameBytes > 0 {
		conn.SetReadLimit(h.opts.MaxFrameBytes)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writeOutbound(conn, m)
	}()

	var limiter *rate.Limiter
	if h.opts.MaxFPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.opts.MaxFPS), 1)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("websocket read failed")
			}
			break
		}

		var in monitor.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			m.Notify(monitor.Message{Type: monitor.TypeError, Message: "invalid message"})
			continue
		}

		switch in.Type {
		case monitor.TypeFrame:
			if limiter != nil && !limiter.Allow() {
				metrics.FramesDropped.WithLabelValues("rate_limited").Inc()
				continue
			}
			f, err := frame.Decode(in.Frame)
			if err != nil {
				metrics.FramesDropped.WithLabelValues("undecodable").Inc()
				m.Notify(monitor.Message{Type: monitor.TypeError, Message: "could not decode frame: " + err.Error()})
				continue
			}
			m.Submit(f)
		case monitor.TypeStop:
			m.Stop()
		case monitor.TypePing:
			m.Notify(monitor.Message{Type: monitor.TypePong})
		default:
			m.Notify(monitor.Message{Type: monitor.TypeError, Message: "unknown message type: " + in.Type})
		}
	}

	m.Stop()
	<-writerDone
	<-m.Done()
	logger.Info().Msg("monitor disconnected")
}

// writeOutbound is the only writer of conn. It drains the monitor's outbound queue until the monitor
// exits, then closes the connection.
func writeOutbound(conn *websocket.Conn, m *monitor.Monitor) {
	broken := false
	for msg := range m.Outbound() {
		if broken {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			broken = true
			m.Stop()
		}
	}
	if !broken {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "monitor stopped"))
	}
	conn.Close()
}
