package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/backingwatch/backingx/app/tracker/activity"
	"github.com/backingwatch/backingx/app/tracker/workflow"
	"github.com/backingwatch/backingx/pkg/alerting"
	"github.com/backingwatch/backingx/pkg/chains"
	"github.com/backingwatch/backingx/pkg/chains/evm"
	"github.com/backingwatch/backingx/pkg/chains/rest"
	"github.com/backingwatch/backingx/pkg/compiler"
	"github.com/backingwatch/backingx/pkg/logging"
	"github.com/backingwatch/backingx/pkg/sources"
	"github.com/backingwatch/backingx/pkg/timeseries"
	"github.com/backingwatch/backingx/pkg/utils"
	"github.com/backingwatch/backingx/pkg/workerpool"
)

// App owns the recurring pipeline: one cron-driven run at a time plus a
// small HTTP surface for health and the last run's summary.
type App struct {
	Logger   *zap.Logger
	Store    timeseries.Store
	Registry sources.Registry
	Alerter  alerting.Alerter
	Pool     *workerpool.Pool
	Activity *activity.Context

	Cron     *cron.Cron
	CronSpec string
	Server   *http.Server

	mu      sync.Mutex
	running bool
	lastRun *workflow.Summary
	lastErr error
}

// Initialize wires the whole process from environment configuration.
func Initialize(ctx context.Context) (*App, error) {
	logger, err := logging.New()
	if err != nil {
		panic(err)
	}

	store, err := newStore(ctx, logger)
	if err != nil {
		return nil, err
	}

	dispatcher := chains.NewDispatcher(logger)
	dispatcher.Register("evm", evm.NewModule)
	dispatcher.Register("rest", rest.NewModule)

	registry, err := sources.LoadRegistry(logger, dispatcher, utils.Env("SOURCES_CONFIG", "sources.json"))
	if err != nil {
		return nil, err
	}

	alerter := alerting.New(ctx, logger)
	comp := compiler.NewFileCompiler(logger, utils.Env("RESOURCES_DIR", "resources"))

	app := &App{
		Logger:   logger,
		Store:    store,
		Registry: registry,
		Alerter:  alerter,
		Pool:     workerpool.New(logger),
		Activity: activity.NewContext(logger, store, registry, alerter, comp),
		CronSpec: utils.Env("CRON_SPEC", "0 0 6 * * *"),
	}

	if err := app.SetupScheduler(ctx, cron.DefaultLogger); err != nil {
		return nil, err
	}
	app.SetupServer()
	return app, nil
}

func newStore(ctx context.Context, logger *zap.Logger) (timeseries.Store, error) {
	switch backend := utils.Env("STORE_BACKEND", "file"); backend {
	case "file":
		return timeseries.NewFileStore(logger, utils.Env("DATA_DIR", "data")), nil
	case "clickhouse":
		return timeseries.NewClickHouseStore(ctx, logger)
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", backend)
	}
}

// SetupScheduler registers the recurring pipeline run.
func (a *App) SetupScheduler(ctx context.Context, logger cron.Logger) error {
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)))

	_, err := a.Cron.AddFunc(a.CronSpec, func() {
		rctx, cancel := context.WithTimeout(ctx, utils.EnvDuration("RUN_TIMEOUT", 2*time.Hour))
		defer cancel()
		if _, err := a.RunOnce(rctx); err != nil {
			a.Logger.Error("Pipeline run failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule pipeline: %w", err)
	}
	return nil
}

// RunOnce executes one full pipeline run. Only one run may be active: a tick
// arriving while the previous run still executes is skipped, not queued.
func (a *App) RunOnce(ctx context.Context) (*workflow.Summary, error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		a.Logger.Warn("Previous run still active, skipping tick")
		return nil, nil
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	assets, err := a.Registry.Assets(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate assets: %w", err)
	}
	entities, err := a.Registry.Entities(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate entities: %w", err)
	}
	systems, err := a.Registry.Systems(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate systems: %w", err)
	}

	state := activity.NewState(time.Now().UTC().Truncate(time.Minute), assets, entities, systems)
	runner := workflow.NewRunner(a.Logger, a.Pool, a.Alerter)

	a.Logger.Info("Pipeline run starting",
		zap.Time("runTime", state.RunTime),
		zap.Int("assets", len(assets)),
		zap.Int("entities", len(entities)),
		zap.Int("systems", len(systems)),
		zap.Int("poolSize", a.Pool.Size()))

	summary, err := runner.Run(ctx, workflow.BuildTiers(a.Activity, state))

	a.mu.Lock()
	a.lastRun = summary
	a.lastErr = err
	a.mu.Unlock()
	return summary, err
}

// SetupServer wires the health endpoints.
func (a *App) SetupServer() {
	addr := utils.Env("ADDR", ":3001")

	r := mux.NewRouter()
	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).Methods("GET")
	r.Handle("/readyz", http.HandlerFunc(a.handleReady)).Methods("GET")
	r.Handle("/statusz", http.HandlerFunc(a.handleStatus)).Methods("GET")

	a.Server = &http.Server{Addr: addr, Handler: r}
}

// handleReady degrades readiness while the alert channel is unreachable;
// log-only alerters have no external dependency and are always ready.
func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if hc, ok := a.Alerter.(alerting.HealthChecker); ok {
		if err := hc.Health(r.Context()); err != nil {
			a.Logger.Warn("Readiness check failed", zap.Error(err))
			http.Error(w, "alert channel unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	status := struct {
		Running bool              `json:"running"`
		LastRun *workflow.Summary `json:"last_run"`
		Error   string            `json:"error,omitempty"`
	}{Running: a.running, LastRun: a.lastRun}
	if a.lastErr != nil {
		status.Error = a.lastErr.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// Start begins cron scheduling and serves HTTP until ctx is done.
func (a *App) Start(ctx context.Context) error {
	a.Cron.Start()
	a.Logger.Info("Scheduler started", zap.String("cronSpec", a.CronSpec))

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("HTTP server listening", zap.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown()
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}
}

// Shutdown drains the cron, the pool and the server, then closes the store.
func (a *App) Shutdown() error {
	a.Logger.Info("Shutting down")

	cronCtx := a.Cron.Stop()
	<-cronCtx.Done()

	a.Pool.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("HTTP server shutdown", zap.Error(err))
	}

	return a.Store.Close()
}
