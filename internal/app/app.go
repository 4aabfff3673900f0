package app

import (
	"context"
	"fmt"

	"github.com/yungbote/pyplots-catalog/internal/data/db"
	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
	"github.com/yungbote/pyplots-catalog/internal/platform/gcp"
	"github.com/yungbote/pyplots-catalog/internal/platform/pkgquery"
	"github.com/yungbote/pyplots-catalog/internal/registry"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *db.Service
	Registry *registry.Registry
	// Migrated lists the schema versions applied while opening.
	Migrated []int
}

func NewLogger(cfg Config) (*logger.Logger, error) {
	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// New opens the database, applies pending migrations and wires the
// registry. A failure here leaves nothing open.
func New(ctx context.Context, cfg Config) (*App, error) {
	log, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	a, err := NewWithLogger(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}

func NewWithLogger(ctx context.Context, cfg Config, log *logger.Logger) (*App, error) {
	svc, err := db.Open(cfg.DBConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	applied, err := svc.Migrate(ctx)
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	if len(applied) > 0 {
		log.Info("Applied migrations", "versions", applied)
	}

	reg := registry.New(svc.DB(), log, registry.Options{
		Root:     cfg.Catalog.Root,
		PageSize: cfg.Catalog.PageSize,
	})

	return &App{
		Log:      log,
		Cfg:      cfg,
		DB:       svc,
		Registry: reg,
		Migrated: applied,
	}, nil
}

func (a *App) PackageQuerier() (*pkgquery.Command, error) {
	return pkgquery.NewCommand(pkgquery.Options{
		Command: a.Cfg.PkgQuery.Command,
		Timeout: a.Cfg.PkgQuery.Timeout,
		Dir:     a.Cfg.Catalog.Root,
	}, a.Log)
}

func (a *App) Bucket(ctx context.Context) (gcp.BucketService, error) {
	return resolveBucketService(ctx, a.Log, a.Cfg)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil && a.Log != nil {
			a.Log.Warn("Closing database failed", "error", err)
		}
		a.DB = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
