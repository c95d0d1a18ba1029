package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/sitepulse/core/alerting"
	"github.com/kilianp07/sitepulse/core/model"
)

func (h *handlers) acknowledgeAlert(c *gin.Context) {
	err := h.Alerts.AcknowledgeAlert(c.Request.Context(), c.Param("siteId"), c.Param("id"))
	if errors.Is(err, alerting.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "alert not found"})
		return
	}
	if err != nil {
		h.internalError(c, "acknowledge alert", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": model.AlertAcknowledged})
}

func (h *handlers) listAlerts(c *gin.Context) {
	status := model.AlertStatus(c.DefaultQuery("status", string(model.AlertActive)))
	if status != model.AlertActive && status != model.AlertAcknowledged {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active or acknowledged"})
		return
	}
	list, err := h.Alerts.ListAlerts(c.Request.Context(), c.Param("siteId"), status)
	if err != nil {
		h.internalError(c, "list alerts", err)
		return
	}
	c.JSON(http.StatusOK, list)
}
