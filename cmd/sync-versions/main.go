package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/yungbote/pyplots-catalog/internal/app"
	"github.com/yungbote/pyplots-catalog/internal/versionsync"
)

type pairList []string

func (l *pairList) String() string { return strings.Join(*l, ",") }
func (l *pairList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run returns the process exit code. Failures before the synchronizer
// starts (flags, config, logger, overrides) exit with ExitSetupFailed so
// codes 1 to 3 keep their sync meaning.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var overrides pairList
	var configFile, root, command string
	var dryRun, skipDB bool
	var timeout time.Duration
	fs := flag.NewFlagSet("sync-versions", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&configFile, "config", "", "config file (default: ./pyplots.yaml if present)")
	fs.StringVar(&root, "root", "", "catalog root holding plots/ (overrides catalog.root)")
	fs.StringVar(&command, "query", "", "package listing command (overrides pkgquery.command)")
	fs.DurationVar(&timeout, "timeout", 0, "package listing timeout (overrides pkgquery.timeout)")
	fs.Var(&overrides, "version", "library=version to use instead of querying (repeatable)")
	fs.BoolVar(&dryRun, "dry-run", false, "report changes without writing files or the database")
	fs.BoolVar(&skipDB, "skip-db", false, "rewrite files only; leave the library table alone")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return versionsync.ExitOK
		}
		return versionsync.ExitSetupFailed
	}

	cfg, err := app.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return versionsync.ExitSetupFailed
	}
	if root != "" {
		cfg.Catalog.Root = root
	}
	if command != "" {
		cfg.PkgQuery.Command = command
	}
	if timeout > 0 {
		cfg.PkgQuery.Timeout = timeout
	}

	log, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return versionsync.ExitSetupFailed
	}
	defer log.Sync()

	sum, err := app.RunVersionSync(ctx, cfg, log, app.SyncOptions{
		Overrides: overrides,
		DryRun:    dryRun,
		SkipDB:    skipDB,
	})
	if sum == nil {
		log.Error("Version sync could not start", "error", err)
		fmt.Fprintf(stderr, "%v\n", err)
		return versionsync.ExitSetupFailed
	}
	if err != nil {
		log.Error("Version sync aborted", "error", err)
	}
	sum.Print(stdout)
	return sum.ExitCode()
}
