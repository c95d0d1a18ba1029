package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryWindow = time.Hour
	defaultHistoryLimit  = 500
	maxHistoryLimit      = 5000
)

// telemetry returns samples newer than since (RFC 3339, default one hour
// ago), newest first.
func (h *handlers) telemetry(c *gin.Context) {
	since := h.Now().Add(-defaultHistoryWindow)
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC 3339"})
			return
		}
		since = t
	}
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	samples, err := h.History.QuerySamples(c.Request.Context(), c.Param("siteId"), since, limit)
	if err != nil {
		h.internalError(c, "query telemetry", err)
		return
	}
	c.JSON(http.StatusOK, samples)
}
