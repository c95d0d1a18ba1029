// Package api exposes the operator REST surface and the websocket routes
// with gin.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/sitepulse/core/logger"
	"github.com/kilianp07/sitepulse/core/model"
	"github.com/kilianp07/sitepulse/core/suggestion"
)

// Suggestions applies operator decisions.
type Suggestions interface {
	Accept(ctx context.Context, siteID, id string) (suggestion.Result, error)
	Reject(ctx context.Context, siteID, id string) (suggestion.Result, error)
	Pending(ctx context.Context, siteID string) ([]model.Suggestion, error)
}

// Alerts reads and acknowledges alerts.
type Alerts interface {
	AcknowledgeAlert(ctx context.Context, siteID, id string) error
	ListAlerts(ctx context.Context, siteID string, status model.AlertStatus) ([]model.Alert, error)
}

// History reads persisted samples.
type History interface {
	QuerySamples(ctx context.Context, siteID string, since time.Time, limit int) ([]model.TelemetrySample, error)
}

// Simulator controls the generation loop.
type Simulator interface {
	Start() bool
	Stop() bool
	Running() bool
	Interval() time.Duration
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SocketHandler serves websocket upgrades.
type SocketHandler interface {
	http.Handler
	Serve(w http.ResponseWriter, r *http.Request, siteID string)
}

// Deps wires the router. Nil members disable their routes.
type Deps struct {
	Suggestions Suggestions
	Alerts      Alerts
	History     History
	Simulator   Simulator
	Health      Pinger
	Sockets     SocketHandler
	Log         logger.Logger
	Now         func() time.Time
}

type handlers struct {
	Deps
}

// NewRouter builds the gin engine.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = logger.NopLogger{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handlers{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", h.health)

	if d.Sockets != nil {
		r.GET("/ws", gin.WrapH(d.Sockets))
		r.GET("/ws/site/:siteId", func(c *gin.Context) {
			d.Sockets.Serve(c.Writer, c.Request, c.Param("siteId"))
		})
	}

	v1 := r.Group("/api/v1")
	sites := v1.Group("/sites/:siteId")
	if d.Suggestions != nil {
		sites.GET("/suggestions", h.pendingSuggestions)
		sites.POST("/suggestions/:id/accept", h.acceptSuggestion)
		sites.POST("/suggestions/:id/reject", h.rejectSuggestion)
	}
	if d.Alerts != nil {
		sites.GET("/alerts", h.listAlerts)
		sites.POST("/alerts/:id/acknowledge", h.acknowledgeAlert)
	}
	if d.History != nil {
		sites.GET("/telemetry", h.telemetry)
	}
	if d.Simulator != nil {
		sim := v1.Group("/simulator")
		sim.POST("/start", h.startSimulator)
		sim.POST("/stop", h.stopSimulator)
		sim.GET("/status", h.simulatorState)
	}
	return r
}

func (h *handlers) health(c *gin.Context) {
	body := gin.H{"status": "healthy", "time": h.Now().UTC()}
	if h.Simulator != nil {
		body["simulator_running"] = h.Simulator.Running()
	}
	if h.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.Health.Ping(ctx); err != nil {
			body["status"] = "degraded"
			body["storage"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	c.JSON(http.StatusOK, body)
}

func (h *handlers) internalError(c *gin.Context, op string, err error) {
	h.Log.Errorf("%s: %v", op, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
