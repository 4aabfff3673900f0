// Command catalogctl is the operator CLI for the plot catalog: schema
// migrations, registry edits, indexing, auditing and preview publishing.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yungbote/pyplots-catalog/internal/app"
	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
		}
		os.Exit(ee.code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

type globalFlags struct {
	configPath string
	root       string
	dsn        string
	logLevel   string
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Manage the pyplots catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (default: ./pyplots.yaml if present)")
	cmd.PersistentFlags().StringVar(&g.root, "root", "", "catalog root holding plots/")
	cmd.PersistentFlags().StringVar(&g.dsn, "dsn", "", "database DSN")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		migrateCmd(g),
		specCmd(g),
		implCmd(g),
		libraryCmd(g),
		indexCmd(g),
		verifyCmd(g),
		previewsCmd(g),
		syncCmd(g),
	)
	return cmd
}

func (g *globalFlags) config() (app.Config, error) {
	cfg, err := app.LoadConfig(g.configPath)
	if err != nil {
		return app.Config{}, err
	}
	if g.root != "" {
		cfg.Catalog.Root = g.root
	}
	if g.dsn != "" {
		cfg.Database.DSN = g.dsn
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	return cfg, nil
}

func (g *globalFlags) logger() (app.Config, *logger.Logger, error) {
	cfg, err := g.config()
	if err != nil {
		return app.Config{}, nil, err
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		return app.Config{}, nil, err
	}
	return cfg, log, nil
}

// open loads config and opens the migrated database.
func (g *globalFlags) open(ctx context.Context) (*app.App, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
