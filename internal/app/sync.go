package app

import (
	"context"

	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
	"github.com/yungbote/pyplots-catalog/internal/platform/pkgquery"
	"github.com/yungbote/pyplots-catalog/internal/versionsync"
)

type SyncOptions struct {
	// Overrides are library=version pairs used instead of querying the
	// package manager.
	Overrides []string
	DryRun    bool
	SkipDB    bool
}

// RunVersionSync wires a synchronizer from cfg and runs it. The database
// is opened only when the run will write to it; if it cannot be opened the
// files are still synchronized and the summary carries the failure.
func RunVersionSync(ctx context.Context, cfg Config, log *logger.Logger, opts SyncOptions) (*versionsync.Summary, error) {
	var query pkgquery.Querier
	if len(opts.Overrides) > 0 {
		static, err := pkgquery.ParseOverrides(opts.Overrides)
		if err != nil {
			return nil, err
		}
		query = static
	} else {
		cmd, err := pkgquery.NewCommand(pkgquery.Options{
			Command: cfg.PkgQuery.Command,
			Timeout: cfg.PkgQuery.Timeout,
			Dir:     cfg.Catalog.Root,
		}, log)
		if err != nil {
			return nil, err
		}
		query = cmd
	}

	var store versionsync.Store
	if !opts.DryRun && !opts.SkipDB {
		a, err := NewWithLogger(ctx, cfg, log)
		if err != nil {
			log.Error("Database unavailable; files will still be synchronized", "error", err)
			store = versionsync.Unavailable(err)
		} else {
			defer func() {
				if err := a.DB.Close(); err != nil {
					log.Warn("Closing database failed", "error", err)
				}
			}()
			store = a.Registry
		}
	}

	return versionsync.New(query, store, log, versionsync.Options{
		Root:   cfg.Catalog.Root,
		DryRun: opts.DryRun,
		SkipDB: opts.SkipDB,
	}).Run(ctx)
}
