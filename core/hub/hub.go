package hub

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/sitepulse/core/logger"
	"github.com/kilianp07/sitepulse/core/metrics"
	"github.com/kilianp07/sitepulse/core/model"
)

// DefaultQueueSize is the per-connection send buffer.
const DefaultQueueSize = 64

var (
	// ErrUnknownConnection is returned for operations on a connection that
	// was never connected or has been evicted.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrEmptySite is returned when subscribing without a site id.
	ErrEmptySite = errors.New("site id required")
	// ErrEvicted is returned when the connection was dropped because its
	// send queue was full.
	ErrEvicted = errors.New("connection evicted: send queue full")
)

// Client is one connected dashboard. The transport drains Send until it is
// closed by the hub.
type Client struct {
	id   string
	site string
	send chan Event
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Send returns the outbound queue.
func (c *Client) Send() <-chan Event { return c.send }

// Hub holds connection membership per site.
type Hub struct {
	mu      sync.Mutex
	queue   int
	conns   map[string]*Client
	bySite  map[string]map[string]*Client
	latest  map[string]TelemetryData
	evicted uint64

	log logger.Logger
	now func() time.Time
}

// New creates a hub whose connections buffer queueSize events.
func New(queueSize int, log logger.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Hub{
		queue:  queueSize,
		conns:  make(map[string]*Client),
		bySite: make(map[string]map[string]*Client),
		latest: make(map[string]TelemetryData),
		log:    log,
		now:    time.Now,
	}
}

// Connect registers a connection. Connecting an id twice returns the
// existing client.
func (h *Hub) Connect(connID string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[connID]; ok {
		return c
	}
	c := &Client{id: connID, send: make(chan Event, h.queue)}
	h.conns[connID] = c
	return c
}

// Subscribe moves the connection into siteID's group and queues a welcome
// event carrying the last known metrics of that site. If the welcome does not
// fit in the queue the connection is evicted and ErrEvicted is returned.
func (h *Hub) Subscribe(connID, siteID string) error {
	if siteID == "" {
		return ErrEmptySite
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return fmt.Errorf("subscribe %s: %w", connID, ErrUnknownConnection)
	}
	h.leave(c)
	group := h.bySite[siteID]
	if group == nil {
		group = make(map[string]*Client)
		h.bySite[siteID] = group
	}
	group[connID] = c
	c.site = siteID

	welcome := WelcomeData{Message: fmt.Sprintf("Subscribed to site %s", siteID)}
	if last, ok := h.latest[siteID]; ok {
		welcome.Metrics = last.Metrics
	}
	if !h.deliver(c, Event{Type: EventWelcome, SiteID: siteID, Timestamp: h.now().UTC(), Data: welcome}) {
		return fmt.Errorf("subscribe %s: %w", connID, ErrEvicted)
	}
	return nil
}

// Unsubscribe removes the connection from its site group. The connection
// stays open.
func (h *Hub) Unsubscribe(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[connID]; ok {
		h.leave(c)
	}
}

// Disconnect drops the connection and closes its queue.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[connID]; ok {
		h.remove(c)
	}
}

// Publish delivers ev to every connection subscribed to siteID and returns
// the number of connections that accepted it.
func (h *Hub) Publish(siteID string, ev Event) int {
	if ev.SiteID == "" {
		ev.SiteID = siteID
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if td, ok := ev.Data.(TelemetryData); ok && ev.Type == EventTelemetry {
		h.latest[siteID] = td
	}
	delivered := 0
	for _, c := range h.bySite[siteID] {
		if h.deliver(c, ev) {
			delivered++
		}
	}
	return delivered
}

// PublishTelemetry publishes a telemetry_update for siteID.
func (h *Hub) PublishTelemetry(siteID string, at time.Time, metrics model.MetricVector) int {
	data := TelemetryData{SiteID: siteID, Timestamp: at.UTC(), Metrics: metrics}
	return h.Publish(siteID, Event{Type: EventTelemetry, SiteID: siteID, Timestamp: data.Timestamp, Data: data})
}

// Broadcast delivers ev to every open connection regardless of site.
func (h *Hub) Broadcast(ev Event) int {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for _, c := range h.conns {
		if h.deliver(c, ev) {
			delivered++
		}
	}
	return delivered
}

// Notify delivers ev to a single connection. It reports false when the
// connection is unknown or was evicted.
func (h *Hub) Notify(connID string, ev Event) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return false
	}
	return h.deliver(c, ev)
}

// Latest returns the last telemetry published for siteID.
func (h *Hub) Latest(siteID string) (TelemetryData, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	td, ok := h.latest[siteID]
	return td, ok
}

// Subscribers returns the size of siteID's group.
func (h *Hub) Subscribers(siteID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.bySite[siteID])
}

// Stats returns a snapshot of hub membership.
func (h *Hub) Stats() metrics.HubStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := metrics.HubStats{Connections: len(h.conns), Sites: len(h.bySite), Evicted: h.evicted}
	for _, g := range h.bySite {
		st.Subscriptions += len(g)
	}
	return st
}

// deliver must be called with h.mu held.
func (h *Hub) deliver(c *Client, ev Event) bool {
	select {
	case c.send <- ev:
		return true
	default:
		h.log.Warnf("evicting connection %s: send queue full", c.id)
		h.evicted++
		h.remove(c)
		return false
	}
}

func (h *Hub) leave(c *Client) {
	if c.site == "" {
		return
	}
	if group := h.bySite[c.site]; group != nil {
		delete(group, c.id)
		if len(group) == 0 {
			delete(h.bySite, c.site)
		}
	}
	c.site = ""
}

func (h *Hub) remove(c *Client) {
	h.leave(c)
	delete(h.conns, c.id)
	close(c.send)
}
