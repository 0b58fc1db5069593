package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"focusguard-backend/internal/mw"
)

// GetStats returns the aggregate statistics of a session.
func (h *Handler) GetStats(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	stats, err := h.store.Stats(c.Request.Context(), sessionID, mw.UserID(c))
	if err != nil {
		h.storeError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ListMonitors returns the caller's live monitors on this instance.
func (h *Handler) ListMonitors(c *gin.Context) {
	snaps := h.registry.List(mw.UserID(c))
	if snaps == nil {
		c.JSON(http.StatusOK, gin.H{"monitors": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"monitors": snaps})
}
