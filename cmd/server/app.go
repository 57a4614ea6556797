package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/owl-api/internal/config"
	"github.com/phrazzld/owl-api/internal/events"
	"github.com/phrazzld/owl-api/internal/pipeline"
	"github.com/phrazzld/owl-api/internal/platform/gemini"
	"github.com/phrazzld/owl-api/internal/platform/postgres"
	"github.com/phrazzld/owl-api/internal/redact"
	"github.com/phrazzld/owl-api/internal/resource"
	"github.com/phrazzld/owl-api/internal/schedule"
	"github.com/phrazzld/owl-api/internal/service/auth"
	"github.com/phrazzld/owl-api/internal/task"
)

// application holds all dependencies of the running server.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	store     task.Store
	inventory resource.Inventory
	pool      *resource.Pool

	jwtService   auth.JWTService
	eventEmitter *events.InMemoryEventEmitter
	orchestrator *task.Orchestrator
	queries      *task.QueryService
	scheduler    *schedule.Scheduler
}

// newApplication wires every component from cfg. On error, anything already
// opened has been released.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *application, err error) {
	app := &application{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeStore()
		}
	}()

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	if err := app.setupStore(ctx); err != nil {
		return nil, err
	}

	app.inventory = inventoryFrom(cfg.Resources)
	units, err := app.inventory.Units(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load resource inventory: %w", err)
	}
	app.pool, err = resource.NewPool(units)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource pool: %w", err)
	}
	logger.Info("resource pool initialized",
		"units", len(units),
		"capability", cfg.Resources.Capability)

	var opts []pipeline.Option
	if cfg.LLM.Enabled() {
		summarizer, err := gemini.NewSummarizer(ctx, logger, cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM summarizer: %w", err)
		}
		opts = append(opts, pipeline.WithSummarizer(summarizer))
		logger.Info("LLM summarizer enabled", "model", cfg.LLM.ModelName)
	}
	pl := pipeline.New(pipeline.ConfigFrom(cfg.Pipeline), logger, opts...)

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	app.eventEmitter.RegisterHandler(events.NewAuditLogHandler(logger))

	app.orchestrator = task.NewOrchestrator(
		app.store,
		app.pool,
		pl,
		task.PolicyFromConfig(cfg),
		logger,
		task.WithEmitter(app.eventEmitter),
	)
	if err := app.orchestrator.Start(ctx); err != nil {
		return nil, err
	}
	app.queries = task.NewQueryService(app.store, app.orchestrator)

	app.scheduler = schedule.New(logger)
	if err := app.scheduler.Add("inventory_refresh", cfg.Resources.RefreshSchedule,
		schedule.InventoryRefresh(app.inventory, app.pool, logger)); err != nil {
		return nil, err
	}
	sweep := ""
	if cfg.Task.Retention() > 0 {
		sweep = cfg.Task.SweepSchedule
	}
	if err := app.scheduler.Add("retention_sweep", sweep, schedule.RetentionSweep(app.orchestrator)); err != nil {
		return nil, err
	}

	logger.Info("application initialized successfully")
	return app, nil
}

// setupStore opens Postgres and applies migrations when a database URL is
// configured, and otherwise keeps tasks in memory.
func (app *application) setupStore(ctx context.Context) error {
	if app.config.Database.URL == "" {
		app.store = task.NewMemoryStore()
		app.logger.Warn("no database configured, task records will not survive a restart")
		return nil
	}

	db, err := postgres.Open(ctx, app.config.Database.URL)
	if err != nil {
		return err
	}
	app.db = db
	if err := postgres.Migrate(ctx, db, postgres.MigrateUp, app.logger); err != nil {
		return err
	}
	app.store = postgres.NewTaskStore(db, app.logger)
	app.logger.Info("database connection established")
	return nil
}

func inventoryFrom(cfg config.ResourcesConfig) resource.Inventory {
	if cfg.InventoryFile != "" {
		return resource.FileInventory{Path: cfg.InventoryFile, DefaultCapability: cfg.Capability}
	}
	return resource.StaticInventory{Capability: cfg.Capability, Count: cfg.Count}
}

// shutdown stops background work in dependency order: scheduled jobs first,
// then running tasks, then the store.
func (app *application) shutdown(ctx context.Context) error {
	var errs []error
	if app.scheduler != nil {
		if err := app.scheduler.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if app.orchestrator != nil {
		if err := app.orchestrator.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	app.closeStore()
	app.logger.Info("application shutdown completed")
	return errors.Join(errs...)
}

func (app *application) closeStore() {
	if app.db == nil {
		return
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database connection", redact.Attr(err))
	}
	app.db = nil
}
