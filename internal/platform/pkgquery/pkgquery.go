// Package pkgquery asks the Python package manager which versions of the
// supported plotting libraries are installed.
package pkgquery

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
)

const (
	DefaultCommand = "python -m pip list --format=json"
	DefaultTimeout = 30 * time.Second
)

// Querier reports the installed version of every library in the closed
// set. Libraries that are not installed map to catalog.UnknownVersion.
// A non-nil error means the query itself failed; the map is then all
// unknown.
type Querier interface {
	Versions(ctx context.Context) (map[catalog.LibraryID]string, error)
}

type Options struct {
	// Command is split shell-style; it is not run through a shell.
	Command string
	Timeout time.Duration
	Dir     string
}

type Command struct {
	argv    []string
	timeout time.Duration
	dir     string
	log     *logger.Logger
}

func NewCommand(opts Options, baseLog *logger.Logger) (*Command, error) {
	line := strings.TrimSpace(opts.Command)
	if line == "" {
		line = DefaultCommand
	}
	argv, err := shellquote.Split(line)
	if err != nil {
		return nil, catalog.Wrap(catalog.CodeValidation, "pkgquery.new", line, err)
	}
	if len(argv) == 0 {
		return nil, catalog.Errorf(catalog.CodeValidation, "pkgquery.new", line, "command is empty")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Command{
		argv:    argv,
		timeout: timeout,
		dir:     opts.Dir,
		log:     baseLog.With("service", "PackageQuery"),
	}, nil
}

// Versions runs the command once under the configured timeout.
func (c *Command) Versions(ctx context.Context) (map[catalog.LibraryID]string, error) {
	const op = "pkgquery.versions"
	subject := shellquote.Join(c.argv...)

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.argv[0], c.argv[1:]...)
	cmd.Dir = c.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		c.log.Warn("Package query timed out", "command", subject, "timeout", c.timeout.String())
		return Unknown(), catalog.NewError(catalog.CodeEnvironmentQuery, op, subject,
			fmt.Sprintf("timed out after %s", c.timeout), runCtx.Err())
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		c.log.Warn("Package query failed", "command", subject, "error", msg)
		return Unknown(), catalog.NewError(catalog.CodeEnvironmentQuery, op, subject, msg, err)
	}

	installed, err := ParseListing(stdout.Bytes())
	if err != nil {
		return Unknown(), catalog.NewError(catalog.CodeEnvironmentQuery, op, subject, err.Error(), err)
	}
	out := Resolve(installed)
	c.log.Debug("Package query finished", "command", subject, "duration", time.Since(start).String(), "packages", len(installed))
	return out, nil
}

// Unknown maps every library to catalog.UnknownVersion.
func Unknown() map[catalog.LibraryID]string {
	out := make(map[catalog.LibraryID]string, len(catalog.LibraryIDs()))
	for _, id := range catalog.LibraryIDs() {
		out[id] = catalog.UnknownVersion
	}
	return out
}

// Resolve picks the version of each library's distribution out of an
// installed-package listing keyed by normalized name.
func Resolve(installed map[string]string) map[catalog.LibraryID]string {
	out := Unknown()
	for _, lib := range catalog.Libraries() {
		if v, ok := installed[NormalizeName(lib.PackageName)]; ok && v != "" {
			out[lib.ID] = v
		}
	}
	return out
}

var nameSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizeName folds a distribution name the way package indexes compare
// them: case-insensitive, with runs of "-", "_" and "." equivalent.
func NormalizeName(name string) string {
	return nameSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

type listItem struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ParseListing accepts `pip list --format=json` output or `pip freeze`
// style name==version lines.
func ParseListing(data []byte) (map[string]string, error) {
	trimmed := bytes.TrimSpace(data)
	out := map[string]string{}
	if len(trimmed) == 0 {
		return out, nil
	}
	if trimmed[0] == '[' {
		var items []listItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode package listing: %w", err)
		}
		for _, it := range items {
			if it.Name == "" {
				continue
			}
			out[NormalizeName(it.Name)] = strings.TrimSpace(it.Version)
		}
		return out, nil
	}

	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, version, ok := strings.Cut(line, "==")
		if !ok {
			continue
		}
		out[NormalizeName(name)] = strings.TrimSpace(version)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read package listing: %w", err)
	}
	return out, nil
}

// Static is a fixed answer, used when versions are supplied by hand.
type Static map[catalog.LibraryID]string

func (s Static) Versions(ctx context.Context) (map[catalog.LibraryID]string, error) {
	out := Unknown()
	for id, v := range s {
		if id.Valid() && strings.TrimSpace(v) != "" {
			out[id] = strings.TrimSpace(v)
		}
	}
	return out, nil
}

// ParseOverrides reads "library=version" pairs into a Static querier.
func ParseOverrides(pairs []string) (Static, error) {
	out := Static{}
	for _, p := range pairs {
		name, version, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(version) == "" {
			return nil, catalog.Errorf(catalog.CodeValidation, "pkgquery.overrides", p, "expected library=version")
		}
		id, ok := catalog.ParseLibraryID(name)
		if !ok {
			return nil, catalog.Errorf(catalog.CodeUnknownLibrary, "pkgquery.overrides", name, "library is not one of the supported libraries")
		}
		out[id] = strings.TrimSpace(version)
	}
	return out, nil
}

// Known counts the libraries that resolved to a real version.
func Known(versions map[catalog.LibraryID]string) int {
	n := 0
	for _, v := range versions {
		if v != "" && v != catalog.UnknownVersion {
			n++
		}
	}
	return n
}
