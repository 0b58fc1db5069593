package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetVAPIDPublicKey tells a browser how to subscribe for alert pushes: the application server key and the
// lowest alert severity that is pushed. Alerts below it only reach the open monitor socket.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	push := h.webpush
	if push == nil || push.VAPIDPublicKey == "" || push.VAPIDPrivateKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert pushes are disabled on this server"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"public_key":   push.VAPIDPublicKey,
		"min_severity": h.opts.PushMinSeverity,
	})
}
