package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"focusguard-backend/config"
	"focusguard-backend/internal/auth"
	"focusguard-backend/internal/db"
	"focusguard-backend/internal/detector"
	"focusguard-backend/internal/frame"
	"focusguard-backend/internal/model"
	"focusguard-backend/internal/monitor"
	"focusguard-backend/internal/mw"
	"focusguard-backend/internal/persist"
	"focusguard-backend/internal/store"
)

type testAPI struct {
	router   *gin.Engine
	store    store.Store
	auth     *auth.Authenticator
	registry *monitor.Registry
	writer   *persist.Writer
}

func newTestAPI(t *testing.T, det detector.Detector) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gormDB, err := db.Init(&config.DatabaseConfig{DSN: "file::memory:", MaxOpenConns: 1, LogLevel: "silent"}, zerolog.Nop())
	require.NoError(t, err)
	s := store.NewGormStore(gormDB)

	cfg := config.Default()
	cache := mw.NewResponseCache(time.Minute)
	writer := persist.NewWriter(s, cfg.Persist, zerolog.Nop())
	writer.OnPersisted(func(ev *model.DistractionEvent) { cache.InvalidateSession(ev.SessionID) })
	writer.Start()

	if det == nil {
		det = detector.Func(func(ctx context.Context, f *frame.Frame) (detector.Detection, error) {
			return detector.Detection{}, nil
		})
	}
	ctx, cancel := context.WithCancel(context.Background())
	pool := detector.NewPool(2, 2, time.Second, det, zerolog.Nop())
	pool.Start(ctx)

	registry := monitor.NewRegistry(
		monitor.SettingsFromConfig(cfg.Monitor, cfg.Push),
		monitor.Deps{Pool: pool, Events: writer, Logger: zerolog.Nop()},
		nil,
	)
	authn := auth.NewAuthenticator("test-secret", time.Hour)

	h := NewHandler(s, registry, cache, &webpush.Options{VAPIDPublicKey: "test-public-key", VAPIDPrivateKey: "test-private-key"}, Options{MaxFrameBytes: 1 << 20, PushMinSeverity: "high"}, zerolog.Nop())
	router := NewRouter(h, authn, mw.NewIPRateLimiter(rate.Inf, 1), zerolog.Nop())

	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		registry.Shutdown(shutdownCtx)
		writer.Close(shutdownCtx)
		pool.Stop()
		cancel()
	})

	return &testAPI{router: router, store: s, auth: authn, registry: registry, writer: writer}
}

func (a *testAPI) token(t *testing.T, userID string) string {
	tok, err := a.auth.GenerateToken(userID)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(t, userID))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func TestUnauthenticatedRequests(t *testing.T) {
	api := newTestAPI(t, nil)
	sessionID := uuid.NewString()

	testCases := []struct {
		name   string
		method string
		path   string
	}{
		{"List events", http.MethodGet, "/distraction/sessions/" + sessionID + "/events"},
		{"Stats", http.MethodGet, "/distraction/sessions/" + sessionID + "/stats"},
		{"Create event", http.MethodPost, "/distraction/events"},
		{"Delete events", http.MethodDelete, "/distraction/sessions/" + sessionID + "/events"},
		{"Monitors", http.MethodGet, "/distraction/monitors"},
		{"Subscriptions", http.MethodPut, "/api/subscriptions"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := api.do(t, tc.method, tc.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestEventLifecycle(t *testing.T) {
	api := newTestAPI(t, nil)
	sessionID := uuid.NewString()
	eventsPath := "/distraction/sessions/" + sessionID + "/events"
	statsPath := "/distraction/sessions/" + sessionID + "/stats"

	w := api.do(t, http.MethodGet, eventsPath, "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "unknown session")

	w = api.do(t, http.MethodPost, "/distraction/events", "alice", gin.H{
		"session_id":       sessionID,
		"event_type":       "phone_usage",
		"severity":         "medium",
		"duration_seconds": 20,
		"started_at":       "2026-03-01T10:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created model.DistractionEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "alice", created.UserID)
	assert.JSONEq(t, `{"source":"manual"}`, string(created.Details))

	w = api.do(t, http.MethodGet, statsPath, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats store.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalDistractions)

	w = api.do(t, http.MethodPost, "/distraction/events", "alice", gin.H{
		"session_id":       sessionID,
		"event_type":       "user_absent",
		"duration_seconds": 40,
		"started_at":       "2026-03-01T09:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(t, http.MethodGet, statsPath, "alice", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.TotalDistractions, "writes invalidate cached stats")
	assert.Equal(t, int64(60), stats.TotalDistractionTimeSeconds)
	assert.Equal(t, 30.0, stats.AvgDistractionDurationSeconds)
	assert.Equal(t, map[string]int64{"low": 1, "medium": 1, "high": 0}, stats.SeverityBreakdown)

	w = api.do(t, http.MethodGet, eventsPath, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Count  int                      `json:"count"`
		Events []model.DistractionEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Equal(t, 2, listed.Count)
	assert.Equal(t, model.EventUserAbsent, listed.Events[0].EventType, "ordered by start time")

	w = api.do(t, http.MethodDelete, eventsPath, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"session_id":"`+sessionID+`","deleted":2}`, w.Body.String())

	w = api.do(t, http.MethodGet, eventsPath, "alice", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Equal(t, 0, listed.Count)
	assert.NotNil(t, listed.Events)
}

func TestSessionOwnership(t *testing.T) {
	api := newTestAPI(t, nil)
	sessionID := uuid.NewString()
	require.NoError(t, api.store.EnsureSession(context.Background(), sessionID, "alice"))

	w := api.do(t, http.MethodGet, "/distraction/sessions/"+sessionID+"/events", "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodGet, "/distraction/sessions/"+sessionID+"/stats", "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodDelete, "/distraction/sessions/"+sessionID+"/events", "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPost, "/distraction/events", "bob", gin.H{
		"session_id": sessionID,
		"event_type": "phone_usage",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestValidation(t *testing.T) {
	api := newTestAPI(t, nil)
	sessionID := uuid.NewString()

	testCases := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"Session id not a uuid", http.MethodGet, "/distraction/sessions/abc/events", nil},
		{"Stats session id not a uuid", http.MethodGet, "/distraction/sessions/abc/stats", nil},
		{"Negative older_than_days", http.MethodDelete, "/distraction/sessions/" + sessionID + "/events?older_than_days=-1", nil},
		{"Non-numeric older_than_days", http.MethodDelete, "/distraction/sessions/" + sessionID + "/events?older_than_days=week", nil},
		{"Missing event type", http.MethodPost, "/distraction/events", gin.H{"session_id": sessionID}},
		{"Unknown event type", http.MethodPost, "/distraction/events", gin.H{"session_id": sessionID, "event_type": "dozing"}},
		{"Unknown severity", http.MethodPost, "/distraction/events", gin.H{"session_id": sessionID, "event_type": "phone_usage", "severity": "extreme"}},
		{"Negative duration", http.MethodPost, "/distraction/events", gin.H{"session_id": sessionID, "event_type": "phone_usage", "duration_seconds": -5}},
		{"Event session not a uuid", http.MethodPost, "/distraction/events", gin.H{"session_id": "abc", "event_type": "phone_usage"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := api.do(t, tc.method, tc.path, "alice", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestSubscriptions(t *testing.T) {
	api := newTestAPI(t, nil)
	endpoint := "https://push.example.com/abc"

	w := api.do(t, http.MethodPut, "/api/subscriptions", "alice", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())

	w = api.do(t, http.MethodPut, "/api/subscriptions", "alice", gin.H{"endpoint": endpoint, "p256dh": "key", "auth": "secret"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "subscriptions are per user")

	w = api.do(t, http.MethodDelete, "/api/subscriptions", "bob", gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodDelete, "/api/subscriptions", "alice", gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = api.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(t, http.MethodGet, "/api/vapid_public_key", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"test-public-key","min_severity":"high"}`, w.Body.String())

	w = api.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","monitors":0}`, w.Body.String())

	w = api.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "focusguard_active_monitors")
}

func TestGetVAPIDPublicKey_PushDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	testCases := []struct {
		name    string
		options *webpush.Options
	}{
		{"no options", nil},
		{"public key only", &webpush.Options{VAPIDPublicKey: "test-public-key"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(nil, nil, nil, tc.options, Options{PushMinSeverity: "high"}, zerolog.Nop())
			r := gin.New()
			r.GET("/api/vapid_public_key", h.GetVAPIDPublicKey)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/vapid_public_key", nil))
			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
			assert.Contains(t, w.Body.String(), "disabled")
		})
	}
}

func TestListMonitors(t *testing.T) {
	api := newTestAPI(t, nil)
	sessionID := uuid.NewString()

	_, err := api.registry.Attach(context.Background(), sessionID, "alice")
	require.NoError(t, err)

	w := api.do(t, http.MethodGet, "/distraction/monitors", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Monitors []monitor.Snapshot `json:"monitors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Monitors, 1)
	assert.Equal(t, sessionID, body.Monitors[0].SessionID)

	w = api.do(t, http.MethodGet, "/distraction/monitors", "bob", nil)
	assert.JSONEq(t, `{"monitors":[]}`, w.Body.String())
}

func TestMonitorSocketRejections(t *testing.T) {
	api := newTestAPI(t, nil)
	server := httptest.NewServer(api.router)
	defer server.Close()
	wsBase := "ws" + strings.TrimPrefix(server.URL, "http") + "/distraction/ws/monitor"

	owned := uuid.NewString()
	require.NoError(t, api.store.EnsureSession(context.Background(), owned, "alice"))
	busy := uuid.NewString()
	require.NoError(t, api.store.EnsureSession(context.Background(), busy, "bob"))
	_, err := api.registry.Attach(context.Background(), busy, "bob")
	require.NoError(t, err)

	testCases := []struct {
		name           string
		query          string
		expectedStatus int
	}{
		{"Missing token", "?session_id=" + owned, http.StatusUnauthorized},
		{"Bad token", "?session_id=" + owned + "&token=nope", http.StatusUnauthorized},
		{"Session id not a uuid", "?session_id=abc&token=" + api.token(t, "bob"), http.StatusBadRequest},
		{"Foreign session", "?session_id=" + owned + "&token=" + api.token(t, "bob"), http.StatusForbidden},
		{"Already monitored", "?session_id=" + busy + "&token=" + api.token(t, "bob"), http.StatusConflict},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(wsBase+tc.query, nil)
			if conn != nil {
				conn.Close()
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, tc.expectedStatus, resp.StatusCode)
		})
	}

	assert.Equal(t, 1, api.registry.Len(), "rejected connections create no monitor")
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com/"})

	testCases := []struct {
		origin   string
		expected bool
	}{
		{"", true},
		{"https://app.example.com", true},
		{"HTTPS://APP.EXAMPLE.COM", true},
		{"https://evil.example.com", false},
		{"http://app.example.com", false},
	}
	for _, tc := range testCases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		assert.Equal(t, tc.expected, check(req), tc.origin)
	}

	evil := httptest.NewRequest(http.MethodGet, "/", nil)
	evil.Header.Set("Origin", "https://evil.example.com")
	assert.True(t, originChecker(nil)(evil))
	assert.True(t, originChecker([]string{"*"})(evil))
}
