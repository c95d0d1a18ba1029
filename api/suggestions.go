package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/sitepulse/core/suggestion"
)

func (h *handlers) acceptSuggestion(c *gin.Context) {
	h.decide(c, "accept", h.Suggestions.Accept)
}

func (h *handlers) rejectSuggestion(c *gin.Context) {
	h.decide(c, "reject", h.Suggestions.Reject)
}

func (h *handlers) decide(c *gin.Context, op string, fn func(ctx context.Context, siteID, id string) (suggestion.Result, error)) {
	res, err := fn(c.Request.Context(), c.Param("siteId"), c.Param("id"))
	if errors.Is(err, suggestion.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "suggestion not found"})
		return
	}
	if err != nil {
		h.internalError(c, op+" suggestion", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) pendingSuggestions(c *gin.Context) {
	list, err := h.Suggestions.Pending(c.Request.Context(), c.Param("siteId"))
	if err != nil {
		h.internalError(c, "list suggestions", err)
		return
	}
	c.JSON(http.StatusOK, list)
}
