// Package app wires configuration into a running service: store, models,
// tools, teams, event bus, and the HTTP/WebSocket server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	mesh "github.com/nevindra/mesh"
	"github.com/nevindra/mesh/internal/config"
	"github.com/nevindra/mesh/internal/server"
	"github.com/nevindra/mesh/observer"
	"github.com/nevindra/mesh/provider/resolve"
	"github.com/nevindra/mesh/store/postgres"
	"github.com/nevindra/mesh/store/sqlite"
	"github.com/nevindra/mesh/tools/bash"
	"github.com/nevindra/mesh/tools/file"
	"github.com/nevindra/mesh/tools/report"
)

const shutdownTimeout = 10 * time.Second

// App is the assembled service.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	bus      *mesh.Bus
	store    mesh.TaskStore
	registry *mesh.Registry
	models   map[string]mesh.Model
	tracer   mesh.Tracer
	inst     *observer.Instruments

	obsShutdown func(context.Context) error
}

// New assembles an App from cfg. Model wrapping with observability happens
// later in Run, once the OTEL providers exist.
func New(cfg config.Config) (*App, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	a := &App{
		cfg:    cfg,
		logger: logger,
		bus:    mesh.NewBus(mesh.WithBusLogger(logger)),
	}

	store, err := a.buildStore()
	if err != nil {
		return nil, err
	}
	a.store = store

	a.registry = mesh.NewRegistry()
	ws := cfg.Server.WorkspacePath
	a.registry.Register(bash.New(ws))
	a.registry.Register(file.NewRead(ws))
	a.registry.Register(file.NewWrite(ws))
	a.registry.Register(report.New(ws))

	return a, nil
}

func (a *App) buildStore() (mesh.TaskStore, error) {
	switch a.cfg.Database.Driver {
	case "", "sqlite":
		return sqlite.New(a.cfg.Database.Path, sqlite.WithLogger(a.logger)), nil
	case "postgres":
		pool, err := pgxpool.New(context.Background(), a.cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
		return postgres.New(pool, postgres.WithLogger(a.logger)), nil
	}
	return nil, &mesh.ErrConfig{Kind: "database driver", Name: a.cfg.Database.Driver}
}

// buildModels resolves every configured model endpoint, wrapping each with
// observability when enabled.
func (a *App) buildModels() error {
	a.models = make(map[string]mesh.Model, len(a.cfg.Models))
	for name, mc := range a.cfg.Models {
		m, err := resolve.Model(resolve.Config{
			Provider: mc.Provider,
			APIKey:   mc.APIKey,
			Model:    mc.Model,
			BaseURL:  mc.APIBase,
		}, resolve.WithLogger(a.logger))
		if err != nil {
			return fmt.Errorf("model %q: %w", name, err)
		}
		if mc.MaxRetries > 0 {
			m = mesh.WithRetry(m, mesh.RetryMaxAttempts(mc.MaxRetries), mesh.RetryLogger(a.logger))
		}
		if mc.RPM > 0 || mc.TPM > 0 {
			m = mesh.WithRateLimit(m, mesh.RPM(mc.RPM), mesh.TPM(mc.TPM))
		}
		if a.inst != nil {
			m = observer.WrapModel(m, mc.Model, a.inst)
		}
		a.models[name] = m
	}
	return nil
}

// BuildTeam constructs a fresh TeamContext for one task. Agents are new
// instances on every call so concurrent tasks never share history.
func (a *App) BuildTeam(name string) (*mesh.TeamContext, error) {
	tc, ok := a.cfg.Teams[name]
	if !ok {
		return nil, &mesh.ErrConfig{Kind: "team", Name: name}
	}
	teamModel, ok := a.models[tc.Model]
	if !ok {
		return nil, &mesh.ErrConfig{Kind: "model", Name: tc.Model}
	}

	agents := make([]*mesh.Agent, 0, len(tc.Agents))
	for _, ac := range tc.Agents {
		modelRef := ac.Model
		if modelRef == "" {
			modelRef = tc.Model
		}
		model, ok := a.models[modelRef]
		if !ok {
			return nil, &mesh.ErrConfig{Kind: "model", Name: modelRef}
		}
		tools, err := a.registry.Resolve(ac.Tools)
		if err != nil {
			return nil, err
		}

		opts := []mesh.AgentOption{
			mesh.WithDescription(ac.Description),
			mesh.WithSystemPrompt(ac.SystemPrompt),
			mesh.WithAvatar(ac.Avatar),
			mesh.WithTools(tools...),
		}
		if ac.MaxSteps > 0 {
			opts = append(opts, mesh.WithMaxSteps(ac.MaxSteps))
		}
		modelName := a.cfg.Models[modelRef].Model
		agents = append(agents, mesh.NewAgent(ac.Name, model, modelName, opts...))
	}

	return &mesh.TeamContext{
		Name:        name,
		Description: tc.Description,
		Rule:        tc.Rule,
		Model:       teamModel,
		ModelName:   a.cfg.Models[tc.Model].Model,
		MaxSteps:    tc.MaxSteps,
		Agents:      agents,
	}, nil
}

// Run starts the service and blocks until ctx is canceled, then shuts down
// the HTTP server, drains the bus, and closes the store.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Observer.Enabled {
		var obsOpts []observer.InitOption
		if a.cfg.Observer.Endpoint != "" {
			obsOpts = append(obsOpts, observer.WithEndpoint(a.cfg.Observer.Endpoint))
		}
		inst, shutdown, err := observer.Init(ctx, a.cfg.Observer.ServiceName, obsOpts...)
		if err != nil {
			return fmt.Errorf("observer init: %w", err)
		}
		a.inst = inst
		a.obsShutdown = shutdown
		a.tracer = observer.NewTracer()
		a.logger.Info("app: observability enabled", "service", a.cfg.Observer.ServiceName)

		// Wrap registered tools now that the instruments exist.
		wrapped := mesh.NewRegistry()
		for _, name := range a.registry.Names() {
			t, _ := a.registry.Get(name)
			wrapped.Register(observer.WrapTool(t, a.inst))
		}
		a.registry = wrapped
	}

	if err := a.buildModels(); err != nil {
		return err
	}

	if err := a.store.Init(ctx); err != nil {
		return fmt.Errorf("store init: %w", err)
	}
	if err := os.MkdirAll(a.cfg.Server.WorkspacePath, 0o755); err != nil {
		return fmt.Errorf("workspace: %w", err)
	}

	worker := server.NewWorker(ctx, a.store, a.bus, a.BuildTeam,
		server.WithWorkerLogger(a.logger),
		server.WithWorkerTracer(a.tracer),
	)
	srv := server.New(a.store, a.bus, worker, server.WithLogger(a.logger))

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("app: listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("app: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("app: http shutdown", "err", err)
	}
	a.bus.Shutdown(shutdownCtx)
	if err := a.store.Close(); err != nil {
		a.logger.Warn("app: store close", "err", err)
	}
	if a.obsShutdown != nil {
		if err := a.obsShutdown(shutdownCtx); err != nil {
			a.logger.Warn("app: observer shutdown", "err", err)
		}
	}
	return nil
}

// RunWithSignal wraps Run with OS signal handling for graceful shutdown.
func (a *App) RunWithSignal() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}
