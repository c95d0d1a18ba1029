package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/sitepulse/api"
	"github.com/kilianp07/sitepulse/config"
	"github.com/kilianp07/sitepulse/core/alerting"
	"github.com/kilianp07/sitepulse/core/hub"
	coremetrics "github.com/kilianp07/sitepulse/core/metrics"
	coremon "github.com/kilianp07/sitepulse/core/monitoring"
	"github.com/kilianp07/sitepulse/core/pipeline"
	"github.com/kilianp07/sitepulse/core/scheduler"
	"github.com/kilianp07/sitepulse/core/suggestion"
	"github.com/kilianp07/sitepulse/core/synth"
	"github.com/kilianp07/sitepulse/infra/logger"
	"github.com/kilianp07/sitepulse/infra/metrics"
	"github.com/kilianp07/sitepulse/infra/monitoring"
	"github.com/kilianp07/sitepulse/infra/mqtt"
	"github.com/kilianp07/sitepulse/infra/store"
	"github.com/kilianp07/sitepulse/infra/ws"
	"github.com/kilianp07/sitepulse/internal/eventbus"
)

const busBuffer = 64

// Service wires storage, the tick pipeline, its schedulers and the outer
// HTTP, websocket and MQTT surfaces.
type Service struct {
	cfg         *config.Config
	log         logger.Logger
	mon         coremon.Monitor
	store       *store.Store
	hub         *hub.Hub
	suggestions *suggestion.Service
	pipeline    *pipeline.Pipeline
	ticker      *scheduler.Scheduler
	retention   *scheduler.Scheduler
	bus         *eventbus.TypedBus[coremetrics.Event]
	sink        coremetrics.MetricsSink
	bridge      *mqtt.Bridge
	router      http.Handler
}

// New creates a Service from the configuration. The MQTT bridge connects
// here; nothing else runs until Run.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	logg := logger.New("service")
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}

	st, err := store.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	s := &Service{cfg: cfg, log: logg, mon: mon, store: st}
	if err := s.build(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) build(ctx context.Context) error {
	cfg := s.cfg
	for _, sc := range cfg.Sites {
		if err := s.store.UpsertSite(ctx, sc.Site()); err != nil {
			return fmt.Errorf("seed site %s: %w", sc.ID, err)
		}
	}

	catalog, err := loadCatalog(cfg.Simulator.PatternsFile)
	if err != nil {
		return err
	}
	loc, err := cfg.Simulator.Location()
	if err != nil {
		return err
	}
	seed := cfg.Simulator.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	gen := synth.NewSeeded(catalog, loc, seed)

	rules := cfg.Alerts.Rules
	if len(rules) == 0 {
		rules = nil
	}
	engine, err := alerting.NewEngine(rules)
	if err != nil {
		return fmt.Errorf("alerts: %w", err)
	}

	s.hub = hub.New(cfg.HTTP.QueueSize, logger.New("hub"))
	s.suggestions = suggestion.NewService(s.store, s.hub, logger.New("suggestions"),
		suggestion.WithCooldown(cfg.Suggestions.Cooldown))
	s.bus = eventbus.NewTypedWithBuffer[coremetrics.Event](busBuffer)
	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return fmt.Errorf("metrics sink: %w", err)
	}

	s.pipeline, err = pipeline.New(pipeline.Deps{
		Writer:    s.store,
		Registry:  s.store,
		Generator: gen,
		Publisher: s.hub,
		Alerts:    engine,
		AlertSink: s.store,
		Bus:       s.bus,
		Log:       logger.New("pipeline"),
		Monitor:   s.mon,
		Running:   s.Running,
	}, pipeline.Options{Retention: cfg.Retention.Window(), Heartbeat: cfg.Simulator.Heartbeat})
	if err != nil {
		return err
	}
	if s.ticker, err = scheduler.New("simulator", cfg.Simulator.Interval(), s.pipeline.TickJob(), logger.New("simulator"), s.mon); err != nil {
		return err
	}
	if s.retention, err = scheduler.New("retention", cfg.Retention.Interval(), s.pipeline.PruneJob(), logger.New("retention"), s.mon); err != nil {
		return err
	}

	if cfg.MQTT.Enabled {
		if s.bridge, err = mqtt.NewBridge(cfg.MQTT, s.suggestions, logger.New("mqtt"), s.mon); err != nil {
			return fmt.Errorf("mqtt bridge: %w", err)
		}
	}

	gin.SetMode(cfg.HTTP.Mode)
	s.router = api.NewRouter(api.Deps{
		Suggestions: s.suggestions,
		Alerts:      s.store,
		History:     s.store,
		Simulator:   s.ticker,
		Health:      s.store,
		Sockets:     ws.NewHandler(s.hub, cfg.HTTP.AllowedOrigins, logger.New("ws")),
		Log:         logger.New("api"),
	})
	return nil
}

func loadCatalog(path string) (*synth.Catalog, error) {
	if path == "" {
		return synth.NewCatalog(nil)
	}
	c, err := synth.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("patterns: %w", err)
	}
	return c, nil
}

// Running reports whether the generation loop is active.
func (s *Service) Running() bool { return s.ticker != nil && s.ticker.Running() }

// Pipeline exposes the tick and prune passes for one-shot commands.
func (s *Service) Pipeline() *pipeline.Pipeline { return s.pipeline }

// Handler returns the HTTP router.
func (s *Service) Handler() http.Handler { return s.router }

// Run starts the schedulers and servers and blocks until ctx is canceled
// or the HTTP server fails.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.bus, s.sink, logger.New("metrics"))
	metrics.StartHubStatsRecorder(ctx, time.Duration(s.cfg.Metrics.HubStatsIntervalSeconds)*time.Second, s.hub, s.sink)
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.bridge != nil {
		events := s.bus.Subscribe()
		defer s.bus.Unsubscribe(events)
		go s.bridge.Run(ctx, events)
	}

	s.retention.Start()
	if s.cfg.Simulator.AutoStart {
		s.ticker.Start()
	}
	defer func() {
		s.ticker.Stop()
		s.retention.Stop()
		s.ticker.Wait()
		s.retention.Wait()
	}()

	srv := &http.Server{Addr: s.cfg.HTTP.Addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("http shutdown: %v", err)
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.bridge != nil {
		s.bridge.Disconnect()
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	s.mon.Flush(2 * time.Second)
	return s.store.Close()
}
