package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kilianp07/powermux/api/commands"
	apistate "github.com/kilianp07/powermux/api/state"
	"github.com/kilianp07/powermux/config"
	"github.com/kilianp07/powermux/core/command"
	"github.com/kilianp07/powermux/core/engine"
	coremetrics "github.com/kilianp07/powermux/core/metrics"
	coremon "github.com/kilianp07/powermux/core/monitoring"
	"github.com/kilianp07/powermux/core/scheduler"
	coresnap "github.com/kilianp07/powermux/core/snapshot"
	"github.com/kilianp07/powermux/core/state"
	"github.com/kilianp07/powermux/infra/logger"
	"github.com/kilianp07/powermux/infra/metrics"
	"github.com/kilianp07/powermux/infra/monitoring"
	"github.com/kilianp07/powermux/infra/mqtt"
	"github.com/kilianp07/powermux/infra/snapshot"
	"github.com/kilianp07/powermux/infra/telemetry"
	"github.com/kilianp07/powermux/infra/tracing"
	"github.com/kilianp07/powermux/infra/trigger"
	"github.com/kilianp07/powermux/internal/eventbus"
)

// Service wires the engine, the scheduler and every adapter selected by the
// configuration.
type Service struct {
	Engine    *engine.Engine
	Scheduler *scheduler.Scheduler
	Store     *coresnap.MemoryStore
	Commands  *command.MemorySource

	cfg       *config.Config
	log       logger.Logger
	bus       *eventbus.TypedBus[engine.Event]
	sink      coremetrics.MetricsSink
	history   snapshot.HistoryStore
	client    *mqtt.Client
	bridge    *mqtt.SwitchBridge
	telemetry *telemetry.Manager
	server    *http.Server
	tracing   tracing.Shutdown
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if cfg.Sentry.Enabled() {
		mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
		if err != nil {
			return nil, fmt.Errorf("sentry: %w", err)
		}
		coremon.Init(mon)
	}
	shutdown, err := tracing.Init(context.Background(), cfg.Tracing, logger.New("tracing"))
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	svc := &Service{cfg: cfg, log: logg, tracing: shutdown}
	if err := svc.build(); err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}

func (s *Service) build() error {
	cfg := s.cfg
	st := state.New(cfg.Modules.MaxCurrent)
	if cfg.Snapshot.RestoreOnStart {
		if err := snapshot.NewLoader(cfg.Snapshot.Dir, logger.New("snapshot_loader")).Load(st); err != nil {
			return fmt.Errorf("restore state: %w", err)
		}
	}

	s.bus = eventbus.NewTyped[engine.Event]()
	s.Engine = engine.New(st, logger.New("engine"), engine.WithEventSink(s.bus))

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return fmt.Errorf("metrics sink: %w", err)
	}
	s.sink = sink

	exporter, err := snapshot.NewFileExporter(cfg.Snapshot.Dir)
	if err != nil {
		return fmt.Errorf("snapshot exporter: %w", err)
	}
	pubs := []coresnap.Publisher{exporter}
	if cfg.History.Enabled {
		h := cfg.History
		s.history, err = snapshot.Open(h.Backend, h.Path, h.MaxSizeMB, h.MaxBackups, h.MaxAgeDays)
		if err != nil {
			return fmt.Errorf("history store: %w", err)
		}
		pubs = append(pubs, s.history)
	}

	s.Commands = command.NewMemorySource()
	sources := []command.Source{s.Commands}
	if cfg.Trigger.Enabled {
		sources = append(sources, trigger.NewFileSource(cfg.Trigger.Path, logger.New("trigger")))
	}
	if cfg.MQTT.Enabled() {
		s.client, err = mqtt.NewClient(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		src, err := mqtt.NewCommandSource(s.client)
		if err != nil {
			return fmt.Errorf("mqtt commands: %w", err)
		}
		sources = append(sources, src)
		pubs = append(pubs, mqtt.NewSnapshotPublisher(s.client))
		s.bridge = mqtt.NewSwitchBridge(s.client)
	}

	// The API store goes last: a snapshot visible there is already on disk.
	s.Store = coresnap.NewMemoryStore()
	pubs = append(pubs, s.Store)

	s.Scheduler = scheduler.New(cfg.Scheduler, s.Engine,
		scheduler.WithSource(command.NewMultiSource(sources...)),
		scheduler.WithPublisher(coresnap.NewMultiPublisher(pubs...)),
		scheduler.WithMetrics(sink),
		scheduler.WithLogger(logger.New("scheduler")),
	)

	if cfg.Telemetry.Enabled && s.client != nil {
		s.telemetry, err = telemetry.NewManager(cfg.Telemetry, s.client, s.Scheduler, nil)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	s.server = &http.Server{Addr: cfg.HTTP.Addr, Handler: s.Routes(), ReadHeaderTimeout: 5 * time.Second}
	return nil
}

// Routes returns the HTTP API.
func (s *Service) Routes() http.Handler {
	mux := http.NewServeMux()
	latest := apistate.WithLive(s.Store, s.Scheduler)
	mux.Handle("/api/state", apistate.NewStateHandler(latest))
	mux.Handle("/api/connectors/{name}/modules", apistate.NewModulesHandler(latest))
	mux.Handle("/api/connectors/{name}/command", commands.NewCommandHandler(s.Commands, s.cfg.HTTP.Token))
	if s.history != nil {
		mux.Handle("/api/history", apistate.NewHistoryHandler(s.history, s.cfg.HTTP.Token))
	}
	return mux
}

// Run starts every actor and blocks until the context is cancelled and all
// of them have returned.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	goRun := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer coremon.Recover()
			if err := fn(); err != nil {
				s.log.Errorf("%s: %v", name, err)
			}
		}()
	}

	collected := metrics.StartEventCollector(ctx, s.bus, s.sink)
	var bridged <-chan struct{}
	if s.bridge != nil {
		bridged = s.bridge.Start(ctx, s.bus)
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		goRun("prom server", func() error { return metrics.StartPromServer(ctx, addr, nil) })
	}
	if s.telemetry != nil {
		goRun("telemetry", func() error { return s.telemetry.Start(ctx) })
	}
	goRun("http server", func() error {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	goRun("scheduler", func() error {
		s.Scheduler.Run(ctx)
		return nil
	})
	s.log.Infof("powermux running (http=%s)", s.cfg.HTTP.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.log.Warnf("http shutdown: %v", err)
	}
	wg.Wait()
	<-collected
	if bridged != nil {
		<-bridged
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.bus != nil {
		s.bus.Close()
	}
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	if closer, ok := s.sink.(interface{ Close() }); ok {
		closer.Close()
	}
	if s.client != nil {
		s.client.Disconnect()
	}
	tracing.ShutdownWithTimeout(context.Background(), s.tracing, s.log)
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
