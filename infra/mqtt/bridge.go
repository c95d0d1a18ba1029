package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/sitepulse/core/hub"
	"github.com/kilianp07/sitepulse/core/logger"
	"github.com/kilianp07/sitepulse/core/metrics"
	"github.com/kilianp07/sitepulse/core/model"
	"github.com/kilianp07/sitepulse/core/monitoring"
)

// SuggestionIntake accepts suggestions produced by the optimizer.
type SuggestionIntake interface {
	Propose(ctx context.Context, s model.Suggestion) (bool, error)
}

// Bridge mirrors telemetry to the broker and feeds optimizer suggestions
// published on <prefix>/site/+/suggestions into the lifecycle.
type Bridge struct {
	cli     pahoClient
	cfg     Config
	intake  SuggestionIntake
	log     logger.Logger
	mon     monitoring.Monitor
	backoff time.Duration
}

// TelemetryTopic returns the topic a site's telemetry is published on.
func TelemetryTopic(prefix, siteID string) string {
	return fmt.Sprintf("%s/site/%s/telemetry", prefix, siteID)
}

// SuggestionTopic returns the wildcard subscription for suggestions.
func SuggestionTopic(prefix string) string {
	return prefix + "/site/+/suggestions"
}

// siteFromTopic extracts the site id from <prefix>/site/<id>/suggestions.
func siteFromTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/site/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/suggestions")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// NewBridge connects to the broker. intake may be nil to disable the
// suggestion subscription.
func NewBridge(cfg Config, intake SuggestionIntake, log logger.Logger, mon monitoring.Monitor) (*Bridge, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if mon == nil {
		mon = monitoring.NopMonitor{}
	}
	b := &Bridge{
		cfg:     cfg,
		intake:  intake,
		log:     log,
		mon:     mon,
		backoff: time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
		if b.intake == nil {
			return
		}
		topic := SuggestionTopic(cfg.TopicPrefix)
		if token := c.Subscribe(topic, cfg.qos("suggestion"), b.onSuggestion); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe %s: %v", topic, token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	b.cli = c
	return b, nil
}

// PublishTelemetry sends one site's metric vector, retrying with
// exponential backoff.
func (b *Bridge) PublishTelemetry(siteID string, at time.Time, mv model.MetricVector) error {
	payload, err := json.Marshal(hub.TelemetryData{SiteID: siteID, Timestamp: at.UTC(), Metrics: mv})
	if err != nil {
		return err
	}
	topic := TelemetryTopic(b.cfg.TopicPrefix, siteID)
	qos := b.cfg.qos("telemetry")
	var publishErr error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		token := b.cli.Publish(topic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		b.log.Warnf("publish %s attempt %d failed: %v", topic, attempt+1, publishErr)
		if attempt < b.cfg.MaxRetries {
			time.Sleep(b.backoff * time.Duration(1<<attempt))
		}
	}
	b.mon.CaptureException(publishErr, map[string]string{"module": "mqtt", "site_id": siteID})
	return publishErr
}

// Run mirrors every successful tick until ctx is done or events closes.
func (b *Bridge) Run(ctx context.Context, events <-chan metrics.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			tick, isTick := ev.(metrics.TickEvent)
			if !isTick || tick.Err != nil || tick.Written == 0 {
				continue
			}
			b.mirror(tick)
		}
	}
}

func (b *Bridge) mirror(tick metrics.TickEvent) {
	bySite := make(map[string][]model.TelemetrySample)
	for _, s := range tick.Samples {
		bySite[s.SiteID] = append(bySite[s.SiteID], s)
	}
	for site, samples := range bySite {
		if err := b.PublishTelemetry(site, tick.Time, model.Vector(samples)); err != nil {
			b.log.Errorf("mirror telemetry for %s: %v", site, err)
		}
	}
}

type suggestionMessage struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func (b *Bridge) onSuggestion(_ paho.Client, msg paho.Message) {
	site, ok := siteFromTopic(b.cfg.TopicPrefix, msg.Topic())
	if !ok {
		b.log.Warnf("ignoring suggestion on unexpected topic %s", msg.Topic())
		return
	}
	var m suggestionMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		b.log.Errorf("failed to decode suggestion for %s: %v", site, err)
		return
	}
	if len(m.Payload) == 0 {
		m.Payload = json.RawMessage(msg.Payload())
	}
	accepted, err := b.intake.Propose(context.Background(), model.Suggestion{ID: m.ID, SiteID: site, Payload: m.Payload})
	if err != nil {
		b.log.Errorf("propose suggestion for %s: %v", site, err)
		b.mon.CaptureException(err, map[string]string{"module": "mqtt", "site_id": site})
		return
	}
	if accepted {
		b.log.Infof("received suggestion for %s", site)
	}
}

// Disconnect gracefully closes the MQTT connection.
func (b *Bridge) Disconnect() {
	if b.cli != nil && b.cli.IsConnected() {
		b.cli.Disconnect(250)
	}
}
