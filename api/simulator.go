package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// simulatorStatus reports the loop state. Start and stop are idempotent:
// a repeated call succeeds with Changed false.
type simulatorStatus struct {
	Success    bool   `json:"success"`
	Changed    bool   `json:"changed"`
	Running    bool   `json:"running"`
	IntervalMS int64  `json:"interval_ms"`
	Message    string `json:"message,omitempty"`
}

func (h *handlers) status(msg string, changed bool) simulatorStatus {
	return simulatorStatus{
		Success:    true,
		Changed:    changed,
		Running:    h.Simulator.Running(),
		IntervalMS: h.Simulator.Interval().Milliseconds(),
		Message:    msg,
	}
}

func (h *handlers) startSimulator(c *gin.Context) {
	if !h.Simulator.Start() {
		c.JSON(http.StatusOK, h.status("already running", false))
		return
	}
	c.JSON(http.StatusOK, h.status("started", true))
}

func (h *handlers) stopSimulator(c *gin.Context) {
	if !h.Simulator.Stop() {
		c.JSON(http.StatusOK, h.status("not running", false))
		return
	}
	c.JSON(http.StatusOK, h.status("stopped", true))
}

func (h *handlers) simulatorState(c *gin.Context) {
	c.JSON(http.StatusOK, h.status("", false))
}
