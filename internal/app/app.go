// Package app wires every component into the two runtime modes ward
// supports: a stateless API process serving the dispatcher over HTTP, and a
// worker process driving the Maintenance Orchestrator and the periodic
// sweeps that don't belong to one of its five ordered tasks.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wardctl/ward/internal/audit"
	"github.com/wardctl/ward/internal/config"
	"github.com/wardctl/ward/internal/dispatch"
	"github.com/wardctl/ward/internal/dispatch/handlers"
	"github.com/wardctl/ward/internal/httpserver"
	"github.com/wardctl/ward/internal/platform"
	"github.com/wardctl/ward/internal/telemetry"
	"github.com/wardctl/ward/internal/version"
	"github.com/wardctl/ward/pkg/enforcement"
	"github.com/wardctl/ward/pkg/envelope"
	"github.com/wardctl/ward/pkg/incident"
	"github.com/wardctl/ward/pkg/integration"
	"github.com/wardctl/ward/pkg/maintenance"
	"github.com/wardctl/ward/pkg/notify"
	"github.com/wardctl/ward/pkg/snapshot"
	"github.com/wardctl/ward/pkg/storage"
	"github.com/wardctl/ward/pkg/tenant"
	"github.com/wardctl/ward/pkg/tenantconfig"
	"github.com/wardctl/ward/pkg/usage"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the mode requested by cfg.Mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting ward", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	shutdownTracer, err := telemetry.InitTracer(ctx, "ward", version.Version, logger)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunGlobalMigrations(cfg.DatabaseURL, cfg.MigrationsGlobalDir); err != nil {
		return fmt.Errorf("running global migrations: %w", err)
	}
	logger.Info("global migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	case "migrate":
		logger.Info("migrate mode: global migrations already applied, nothing else to do")
		return nil
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// ProvisionTenant runs outside the normal API/worker lifecycle: it connects
// just long enough to create or drop one tenant's schema, then exits. It
// does not start the tracer, metrics registry, or any domain engine.
func ProvisionTenant(ctx context.Context, cfg *config.Config, tenantID string, deprovision bool) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	provisioner := &tenant.Provisioner{
		DB:            db,
		DatabaseURL:   cfg.DatabaseURL,
		MigrationsDir: cfg.MigrationsTenantDir,
		Logger:        logger,
	}

	if deprovision {
		return provisioner.Deprovision(ctx, tenantID)
	}
	_, err = provisioner.Provision(ctx, tenantID)
	return err
}

// components bundles everything both runAPI and runWorker build identically
// — the domain engines are stateless (or, for the Coordinator, hold their
// own lock) so the same instances can be shared wherever a process needs
// them, just never across processes.
type components struct {
	adapter        *storage.Adapter
	emitter        *audit.Emitter
	integrations   *integration.Store
	usageDriver    *usage.Driver
	enforcement    *enforcement.Engine
	coordinator    *envelope.Coordinator
	envelopeStore  *envelope.Store
	incidents      *incident.Aggregator
	incidentStore  *incident.Store
	snapshotEngine *snapshot.Engine
	snapshotStore  *snapshot.Store
	notifier       *notify.Notifier
}

// buildComponents constructs every domain engine from cfg. The envelope
// Coordinator's emit hook forwards every coordination decision into the
// audit emitter under a synthetic "global" tenant, since the Coordinator
// itself is one process-wide authority with no tenant scope of its own
// (pkg/envelope/store.go) — only the handler-level persistence into
// envelope.Store ties a decision back to the tenant whose request triggered
// it.
func buildComponents(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) *components {
	adapter := storage.New(db)
	emitter := audit.NewEmitter(logger)

	integrations := integration.NewStore()
	usageDriver := usage.New()
	rateCounter := usage.NewRateCounter(rdb, cfg.RateLimitWindow())
	enforcementEngine := enforcement.New(integrations, usageDriver, rateCounter, cfg.WarningThresholdPct, int64(cfg.RateLimitMaxRequests))

	coordinator := envelope.New(func(a envelope.CoordinationAudit) {
		if err := emitter.Emit(audit.Event{
			EventType:     "envelope_coordination",
			TenantID:      "global",
			ActorType:     audit.ActorSystem,
			DecisionOwner: "envelope",
			Context: map[string]any{
				"envelope_id": a.EnvelopeID,
				"class":       a.Class,
				"decision":    a.Decision,
				"reason":      a.Reason,
			},
		}); err != nil {
			logger.Warn("dropping malformed coordination audit event", "error", err)
		}
	})
	coordinator.SetObserver(envelope.NewDriftObserver(cfg.LearningEnabled, 24*time.Hour))

	incidentStore := incident.NewStore()
	incidentsAggregator := incident.New(incidentStore, cfg.AggregationWindow(), cfg.MaxIncidentsPerTenantPerHr, cfg.IncidentRelatedCallsCap)

	snapshotStore := snapshot.NewStore()
	snapshotEngine := snapshot.New(usageDriver, snapshotStore, cfg.AnomalyThresholdPct, cfg.BaselineMinSamples)

	notifier := notify.New(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)

	return &components{
		adapter:        adapter,
		emitter:        emitter,
		integrations:   integrations,
		usageDriver:    usageDriver,
		enforcement:    enforcementEngine,
		coordinator:    coordinator,
		envelopeStore:  envelope.NewStore(),
		incidents:      incidentsAggregator,
		incidentStore:  incidentStore,
		snapshotEngine: snapshotEngine,
		snapshotStore:  snapshotStore,
		notifier:       notifier,
	}
}

func (c *components) deps(logger *slog.Logger) handlers.Deps {
	return handlers.Deps{
		Integrations:   c.integrations,
		Usage:          c.usageDriver,
		Enforcement:    c.enforcement,
		Coordinator:    c.coordinator,
		EnvelopeStore:  c.envelopeStore,
		Incidents:      c.incidents,
		IncidentStore:  c.incidentStore,
		SnapshotEngine: c.snapshotEngine,
		SnapshotStore:  c.snapshotStore,
		Notifier:       c.notifier,
		Logger:         logger,
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	c := buildComponents(cfg, logger, db, rdb)
	c.emitter.Start(ctx)
	defer c.emitter.Close()

	registry := dispatch.NewRegistry()
	handlers.Register(registry, c.deps(logger))
	dispatcher := dispatch.New(registry, c.adapter, c.emitter, logger)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, tenant.HeaderResolver{}, dispatcher)

	tenantConfigHandler := tenantconfig.NewHandler(tenantconfig.NewStore(db))
	srv.APIRouter.Mount("/config", tenantConfigHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	c := buildComponents(cfg, logger, db, rdb)
	c.emitter.Start(ctx)
	defer c.emitter.Close()

	locks := platform.NewLockService(rdb)
	locks.SetMirror(maintenance.NewLockMirror(c.adapter))

	orchestrator, err := maintenance.New(
		c.adapter, locks, rdb, cfg.MaintenanceCronSpec,
		cfg.LockTTL(), cfg.TaskTimeout(), cfg.RetentionPeriod(),
		deliverOutboxEvent(c.notifier), logger,
	)
	if err != nil {
		return fmt.Errorf("assembling maintenance orchestrator: %w", err)
	}
	orchestrator.Start()
	defer orchestrator.Stop()
	logger.Info("maintenance orchestrator started", "cron", cfg.MaintenanceCronSpec)

	runPeriodicSweeps(ctx, cfg, logger, db, c.adapter, c.coordinator, c.incidents)
	return nil
}

// deliverOutboxEvent adapts the maintenance outbox's DeliverFunc contract to
// the Notifier: every outbox payload is expected to decode straight into a
// notify.Notification. Nothing in this repository writes outbox rows; the
// incident and kill-switch handlers call the Notifier directly.
func deliverOutboxEvent(notifier *notify.Notifier) maintenance.DeliverFunc {
	return func(ctx context.Context, ev maintenance.OutboxEvent) error {
		var note notify.Notification
		if err := json.Unmarshal(ev.Payload, &note); err != nil {
			return fmt.Errorf("decoding outbox payload for event %s: %w", ev.EventType, err)
		}
		return notifier.Send(ctx, note)
	}
}

// runPeriodicSweeps drives the two cleanup passes that sit outside the
// Maintenance Orchestrator's five fixed tasks: envelope timebox expiry
// (global, no tenant scope needed) and each active tenant's incident
// auto-resolve sweep. It blocks until ctx is cancelled, the same shape as
// the teacher's roster.RunScheduleTopUpLoop.
func runPeriodicSweeps(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, adapter *storage.Adapter, coordinator *envelope.Coordinator, incidents *incident.Aggregator) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("periodic sweeps stopped")
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if expired := coordinator.ExpireStale(now); len(expired) > 0 {
				logger.Info("envelopes expired by timebox", "count", len(expired))
			}
			sweepIncidentsAcrossTenants(ctx, db, adapter, incidents, cfg.AutoResolveAfter(), now, logger)
		}
	}
}

func sweepIncidentsAcrossTenants(ctx context.Context, db *pgxpool.Pool, adapter *storage.Adapter, incidents *incident.Aggregator, after time.Duration, now time.Time, logger *slog.Logger) {
	rows, err := db.Query(ctx, "SELECT tenant_id FROM public.tenants WHERE status = $1", tenant.StatusActive)
	if err != nil {
		logger.Warn("listing active tenants for incident sweep failed", "error", err)
		return
	}
	var tenantIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		tenantIDs = append(tenantIDs, id)
	}
	rows.Close()

	for _, tenantID := range tenantIDs {
		scope, err := adapter.Begin(ctx)
		if err != nil {
			logger.Warn("opening scope for incident sweep failed", "tenant_id", tenantID, "error", err)
			continue
		}
		if err := scope.SetSearchPath(ctx, tenant.SchemaName(tenantID)); err != nil {
			_ = scope.Rollback(ctx)
			continue
		}
		if _, err := incidents.AutoResolveStale(ctx, scope, now, after); err != nil {
			_ = scope.Rollback(ctx)
			logger.Warn("incident auto-resolve sweep failed", "tenant_id", tenantID, "error", err)
			continue
		}
		if err := scope.Commit(ctx); err != nil {
			logger.Warn("committing incident sweep failed", "tenant_id", tenantID, "error", err)
		}
	}
}
