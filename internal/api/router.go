package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"focusguard-backend/internal/metrics"
	"focusguard-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, auth mw.TokenValidator, limiter *mw.IPRateLimiter, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(logger))

	requireUser := mw.RequireUser(auth)
	rateLimiter := mw.RateLimiter(limiter)

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	distraction := r.Group("/distraction")
	{
		// The socket is authenticated before the upgrade and is not rate limited per request.
		distraction.GET("/ws/monitor", requireUser, h.MonitorSession)

		rest := distraction.Group("")
		rest.Use(rateLimiter, requireUser)

		var caching gin.HandlerFunc = func(c *gin.Context) { c.Next() }
		if h.cache != nil {
			caching = h.cache.Middleware()
		}
		rest.GET("/sessions/:id/events", caching, h.ListEvents)
		rest.GET("/sessions/:id/stats", caching, h.GetStats)
		rest.DELETE("/sessions/:id/events", h.DeleteEvents)
		rest.POST("/events", h.CreateEvent)
		rest.GET("/monitors", h.ListMonitors)
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)

		subs := api.Group("/subscriptions", requireUser)
		subs.GET("", h.GetSubscription)
		subs.PUT("", h.PutSubscription)
		subs.DELETE("", h.DeleteSubscription)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

// Health reports whether the database is reachable.
func (h *Handler) Health(c *gin.Context) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "monitors": h.registry.Len()})
}
