package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/battswap/boothd/api"
	"github.com/battswap/boothd/config"
	"github.com/battswap/boothd/core/audit"
	"github.com/battswap/boothd/core/booth"
	"github.com/battswap/boothd/core/dispatch"
	"github.com/battswap/boothd/core/health"
	"github.com/battswap/boothd/core/inventory"
	coremetrics "github.com/battswap/boothd/core/metrics"
	"github.com/battswap/boothd/core/model"
	coremon "github.com/battswap/boothd/core/monitoring"
	"github.com/battswap/boothd/core/session"
	"github.com/battswap/boothd/core/telemetry"
	"github.com/battswap/boothd/infra/logger"
	"github.com/battswap/boothd/infra/metrics"
	"github.com/battswap/boothd/infra/monitoring"
	"github.com/battswap/boothd/infra/mqtt"
	"github.com/battswap/boothd/internal/eventbus"
)

// Service wires the booth manager, session orchestrator and transports.
type Service struct {
	Manager  *booth.Manager
	Sessions *session.Orchestrator

	bus        eventbus.EventBus
	log        logger.Logger
	transport  *mqtt.PahoTransport
	subscriber *mqtt.Subscriber
	auditStore audit.Store
	apiAddr    string
	router     http.Handler

	promEnabled bool
	promAddr    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	monitor, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(monitor)

	transport, err := mqtt.NewPahoTransport(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt transport: %w", err)
	}

	var sinks []coremetrics.MetricsSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		sinks = append(sinks, sink)
	}
	var sink coremetrics.MetricsSink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	bus := eventbus.New()
	timeout := time.Duration(cfg.Dispatch.CommandTimeoutSeconds) * time.Second
	disp, err := dispatch.New(transport, timeout, logger.New("dispatch"), bus)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	if sink != nil {
		disp.SetMetricsSink(sink)
	}

	inv := inventory.New()
	for _, bc := range cfg.Booths {
		if err := inv.AddBooth(inventory.Booth{ID: bc.ID, Name: bc.Name, Location: bc.Location, ChargeCutoff: bc.ChargeCutoff}); err != nil {
			return nil, fmt.Errorf("booth %s: %w", bc.ID, err)
		}
		for _, slotID := range bc.Slots {
			if _, err := inv.AddSlot(model.SlotRef{BoothID: bc.ID, SlotID: slotID}); err != nil {
				return nil, fmt.Errorf("slot %s/%s: %w", bc.ID, slotID, err)
			}
		}
	}

	store := telemetry.NewMemoryStore()
	rec := telemetry.NewReconciler(time.Duration(cfg.Telemetry.StaleAfterSeconds) * time.Second)
	manager, err := booth.New(inv, store, rec, disp, bus, logger.New("booth"))
	if err != nil {
		return nil, fmt.Errorf("booth manager: %w", err)
	}
	if sink != nil {
		manager.SetMetricsSink(sink)
	}
	if cfg.Telemetry.AnomalyDetection {
		manager.SetAnomalyDetector(health.NewDetector(cfg.Telemetry.AnomalyWindow))
	}

	var auditStore audit.Store
	switch cfg.Audit.Backend {
	case "sqlite":
		auditStore, err = audit.NewSQLiteStore(cfg.Audit.Path)
	default:
		auditStore, err = audit.NewJSONLStore(cfg.Audit.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	manager.SetAuditStore(auditStore)

	sessions, err := session.NewOrchestrator(manager, logger.New("session"), bus)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	sessions.SetAuditStore(auditStore)
	manager.SetSessionHook(sessions)

	sub, err := mqtt.NewSubscriber(cfg.MQTT, manager.ApplyTelemetry)
	if err != nil {
		return nil, fmt.Errorf("mqtt subscriber: %w", err)
	}

	router := api.NewRouter(api.Deps{
		Booths:     manager,
		Sessions:   sessions,
		Audit:      auditStore,
		AuditToken: cfg.API.AuditToken,
		Log:        logger.New("api"),
	})

	return &Service{
		Manager:     manager,
		Sessions:    sessions,
		bus:         bus,
		log:         logg,
		transport:   transport,
		subscriber:  sub,
		auditStore:  auditStore,
		apiAddr:     cfg.API.Addr,
		router:      router,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promAddr:    cfg.Metrics.PrometheusAddr,
	}, nil
}

// Run starts the HTTP surfaces and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go func() {
		defer coremon.Recover()
		watchEvents(s.bus.Subscribe(), s.log)
	}()

	if s.promEnabled {
		go func() {
			defer coremon.Recover()
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{Addr: s.apiAddr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		defer coremon.Recover()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.subscriber != nil {
		s.subscriber.Close()
	}
	if s.transport != nil {
		s.transport.Close()
	}
	if s.bus != nil {
		s.bus.Close()
	}
	var err error
	if s.auditStore != nil {
		err = s.auditStore.Close()
	}
	coremon.Flush(2 * time.Second)
	return err
}
