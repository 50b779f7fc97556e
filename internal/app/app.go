package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/aggsync/internal/data/aggregates"
	dbpkg "github.com/yungbote/aggsync/internal/data/db"
	"github.com/yungbote/aggsync/internal/data/repos"
	domainagg "github.com/yungbote/aggsync/internal/domain/aggregates"
	"github.com/yungbote/aggsync/internal/domain/blog"
	"github.com/yungbote/aggsync/internal/domain/polls"
	apphttp "github.com/yungbote/aggsync/internal/http"
	"github.com/yungbote/aggsync/internal/observability"
	"github.com/yungbote/aggsync/internal/platform/logger"
	"github.com/yungbote/aggsync/internal/realtime/bus"
)

type App struct {
	Log     *logger.Logger
	Cfg     Config
	DB      *gorm.DB
	Metrics *observability.Metrics
	Engine  *aggregates.Engine
	Repos   *repos.Set
	Bus     bus.Bus
	Server  *apphttp.Server

	dbService *dbpkg.Service
}

// OtelConfig is the tracing config with the running service filled in.
func (a *App) OtelConfig() observability.OtelConfig {
	cfg := a.Cfg.Tracing
	cfg.ServiceName = a.Cfg.ServiceName
	cfg.DBDriver = a.Cfg.DB.Driver
	if a.Engine != nil {
		cfg.Definitions = a.Engine.Registry().Len()
	}
	return cfg
}

// New builds the logger from LOG_MODE and the rest from the environment.
func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	a, err := NewWithConfig(log, LoadConfig(log))
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}

func NewWithConfig(log *logger.Logger, cfg Config) (*App, error) {
	dbService, err := dbpkg.NewService(cfg.DB, log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbpkg.AutoMigrateAll(dbService.DB()); err != nil {
		_ = dbService.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := dbService.DB()

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	changeBus, err := wireBus(log, cfg, metrics)
	if err != nil {
		_ = dbService.Close()
		return nil, err
	}

	registry, err := BuildRegistry(cfg.AggregatesFile)
	if err != nil {
		_ = changeBus.Close()
		_ = dbService.Close()
		return nil, err
	}
	log.Info("Wiring aggregates...", "definitions", registry.Len())

	reposet, err := repos.NewSet(theDB, log)
	if err != nil {
		_ = changeBus.Close()
		_ = dbService.Close()
		return nil, fmt.Errorf("init repos: %w", err)
	}
	engine, err := aggregates.NewEngine(aggregates.BaseDeps{
		DB:    theDB,
		Log:   log,
		Hooks: aggregates.NewObservabilityHooks(metrics),
	}, registry,
		aggregates.WithNotifier(changeBus),
		aggregates.WithRefreshRuns(reposet.RefreshRuns),
		aggregates.WithRefreshBatchSize(cfg.RefreshBatchSize),
		aggregates.WithRefreshConcurrency(cfg.RefreshConcurrency),
	)
	if err != nil {
		_ = changeBus.Close()
		_ = dbService.Close()
		return nil, err
	}
	reposet.Observe(engine.Interceptor())

	server := wireServer(log, cfg, theDB, metrics, engine, reposet)

	return &App{
		Log:       log,
		Cfg:       cfg,
		DB:        theDB,
		Metrics:   metrics,
		Engine:    engine,
		Repos:     reposet,
		Bus:       changeBus,
		Server:    server,
		dbService: dbService,
	}, nil
}

// BuildRegistry combines the built-in definitions with those of path, if any.
func BuildRegistry(path string) (*aggregates.Registry, error) {
	defs := append(blog.Aggregates(), polls.Aggregates()...)
	extra, err := domainagg.LoadDefinitionsFile(path)
	if err != nil {
		return nil, err
	}
	return aggregates.NewRegistry(append(defs, extra...)...)
}

// Serve runs the HTTP server and the change feed until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Bus.StartForwarder(gctx, func(c domainagg.Change) {
			a.Log.Debug("aggregate changed",
				"definition", c.Definition,
				"parent_id", c.ParentID,
				"old", c.Old.String(),
				"new", c.New.String(),
			)
		})
	})
	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
		return a.Server.Run()
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := a.Cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		a.Log.Info("HTTP server shutting down")
		return a.Server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
