// Package ws exposes the broadcast hub to dashboards over websockets.
package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kilianp07/sitepulse/core/hub"
	"github.com/kilianp07/sitepulse/core/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Inbound operations.
const (
	OpSubscribe   = "subscribe_site"
	OpUnsubscribe = "unsubscribe"
)

// Broker is the subset of the hub used by connections.
type Broker interface {
	Connect(connID string) *hub.Client
	Subscribe(connID, siteID string) error
	Unsubscribe(connID string)
	Disconnect(connID string)
	Notify(connID string, ev hub.Event) bool
}

// Request is a client to server message.
type Request struct {
	Op     string `json:"op"`
	SiteID string `json:"siteId"`
}

// Handler upgrades HTTP requests and pumps hub events to the socket.
type Handler struct {
	broker   Broker
	upgrader websocket.Upgrader
	log      logger.Logger
	newID    func() string
}

// NewHandler builds a Handler. An empty origins list accepts any origin.
func NewHandler(b Broker, origins []string, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NopLogger{}
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	up := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		},
	}
	return &Handler{broker: b, upgrader: up, log: log, newID: uuid.NewString}
}

// ServeHTTP accepts a connection that subscribes later with subscribe_site.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Serve(w, r, "")
}

// Serve upgrades the request and, when siteID is set, subscribes the
// connection right away. It returns once the connection is closed.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, siteID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade: %v", err)
		return
	}
	id := h.newID()
	client := h.broker.Connect(id)
	h.log.Debugw("websocket connected", map[string]any{"conn_id": id, "remote": conn.RemoteAddr().String()})
	if siteID != "" {
		h.subscribe(id, siteID)
	}
	go h.writePump(conn, client)
	h.readPump(conn, id)
}

func (h *Handler) readPump(conn *websocket.Conn, id string) {
	defer func() {
		h.broker.Disconnect(id)
		_ = conn.Close()
		h.log.Debugw("websocket closed", map[string]any{"conn_id": id})
	}()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warnf("websocket read %s: %v", id, err)
			}
			return
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			h.fail(id, "invalid message")
			continue
		}
		switch req.Op {
		case OpSubscribe:
			if req.SiteID == "" {
				h.fail(id, "siteId is required")
				continue
			}
			h.subscribe(id, req.SiteID)
		case OpUnsubscribe:
			h.broker.Unsubscribe(id)
		default:
			h.fail(id, "unknown op "+req.Op)
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case ev, ok := <-client.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the queue
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "send queue full"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Warnf("websocket write %s: %v", client.ID(), err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) subscribe(id, siteID string) {
	if err := h.broker.Subscribe(id, siteID); err != nil {
		h.fail(id, err.Error())
	}
}

func (h *Handler) fail(id, msg string) {
	h.broker.Notify(id, hub.Event{Type: hub.EventError, Data: hub.ErrorData{Message: msg}})
}
