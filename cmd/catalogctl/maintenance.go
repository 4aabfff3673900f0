package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yungbote/pyplots-catalog/internal/app"
	"github.com/yungbote/pyplots-catalog/internal/catalog/audit"
	"github.com/yungbote/pyplots-catalog/internal/catalog/indexer"
	"github.com/yungbote/pyplots-catalog/internal/catalog/previews"
	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
	"github.com/yungbote/pyplots-catalog/internal/platform/gcp"
	"github.com/yungbote/pyplots-catalog/internal/versionsync"
)

func migrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if len(a.Migrated) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied migrations %v\n", a.Migrated)
			return nil
		},
	}
}

func indexCmd(g *globalFlags) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Register scripts under plots/ that have no registry row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := indexer.New(a.Registry, a.Log, indexer.Options{
				Root:   a.Cfg.Catalog.Root,
				DryRun: dryRun,
			}).Run(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, f := range rep.Failures {
				fmt.Fprintf(w, "%-18s %s: %v\n", f.Code, f.Path, f.Err)
			}
			fmt.Fprintf(w, "specs created: %d, implementations registered: %d, already registered: %d, failures: %d\n",
				len(rep.SpecsCreated), len(rep.Registered), rep.Existing, len(rep.Failures))
			if len(rep.Failures) > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be registered")
	return cmd
}

func verifyCmd(g *globalFlags) *cobra.Command {
	var specID, library string
	var concurrency int
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that rows, headers and metadata files agree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if concurrency <= 0 {
				concurrency = a.Cfg.Audit.Concurrency
			}
			rep, err := audit.New(a.Registry, a.Log, audit.Options{
				Root:        a.Cfg.Catalog.Root,
				Concurrency: concurrency,
				Filter:      catalog.ImplementationFilter{SpecID: specID, LibraryID: catalog.LibraryID(library)},
			}).Run(cmd.Context())
			if err != nil {
				return err
			}
			rep.Print(cmd.OutOrStdout())
			if !rep.OK() {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&specID, "spec", "", "only this spec")
	cmd.Flags().StringVar(&library, "library", "", "only this library")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel file checks (default: audit.concurrency)")
	return cmd
}

func previewsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "previews",
		Short: "Manage rendered preview images",
	}
	cmd.AddCommand(previewsPublishCmd(g))
	return cmd
}

func previewsPublishCmd(g *globalFlags) *cobra.Command {
	var artifactsDir, specID, library string
	var local, dryRun bool
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload rendered plot.png artifacts and record preview URLs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if artifactsDir == "" {
				artifactsDir = a.Cfg.Previews.ArtifactsDir
			}
			var bucket gcp.BucketService
			if !local {
				bucket, err = a.Bucket(cmd.Context())
				if err != nil {
					return err
				}
				defer bucket.Close()
			}
			rep, err := previews.New(a.Registry, bucket, a.Log, previews.Options{
				ArtifactsDir: artifactsDir,
				Local:        local,
				DryRun:       dryRun,
				Filter:       catalog.ImplementationFilter{SpecID: specID, LibraryID: catalog.LibraryID(library)},
			}).Run(cmd.Context())
			if err != nil {
				return err
			}
			printPreviewReport(cmd.OutOrStdout(), rep)
			if len(rep.Failures) > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&artifactsDir, "artifacts", "", "directory holding <spec>/<library>[_<variant>]/plot.png (default: previews.artifacts_dir)")
	cmd.Flags().BoolVar(&local, "local", false, "record local artifact paths instead of uploading")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without uploading or updating rows")
	cmd.Flags().StringVar(&specID, "spec", "", "only this spec")
	cmd.Flags().StringVar(&library, "library", "", "only this library")
	return cmd
}

func printPreviewReport(w io.Writer, rep *previews.Report) {
	for _, k := range rep.Missing {
		fmt.Fprintf(w, "missing   %s\n", k)
	}
	for _, f := range rep.Failures {
		fmt.Fprintf(w, "failed    %s: %v\n", f.Key, f.Err)
	}
	fmt.Fprintf(w, "published: %d, unchanged: %d, missing: %d, failed: %d\n",
		len(rep.Published), rep.Unchanged, len(rep.Missing), len(rep.Failures))
}

func syncCmd(g *globalFlags) *cobra.Command {
	var overrides []string
	var dryRun, skipDB bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Propagate installed library versions into metadata, headers and the database",
		Long: `Queries the installed version of every library, rewrites metadata sidecars
and script headers in place, then updates the library table.

Exit codes: 0 all good, 1 a file failed, 2 database unavailable,
3 no library version could be determined, 4 the run could not start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.logger()
			if err != nil {
				return &exitError{code: versionsync.ExitSetupFailed, err: err}
			}
			defer log.Sync()

			sum, err := app.RunVersionSync(cmd.Context(), cfg, log, app.SyncOptions{
				Overrides: overrides,
				DryRun:    dryRun,
				SkipDB:    skipDB,
			})
			if sum == nil {
				return &exitError{code: versionsync.ExitSetupFailed, err: err}
			}
			if err != nil {
				log.Error("Version sync aborted", "error", err)
			}
			sum.Print(cmd.OutOrStdout())
			if code := sum.ExitCode(); code != versionsync.ExitOK {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&overrides, "version", nil, "library=version to use instead of querying (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without writing")
	cmd.Flags().BoolVar(&skipDB, "skip-db", false, "rewrite files only")
	return cmd
}
