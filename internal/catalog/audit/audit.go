// Package audit checks that registry rows, script headers and metadata
// sidecars agree with each other and with their position in the tree.
// It never writes.
package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/pyplots-catalog/internal/catalog/header"
	"github.com/yungbote/pyplots-catalog/internal/catalog/layout"
	"github.com/yungbote/pyplots-catalog/internal/catalog/metadata"
	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
)

const defaultConcurrency = 8

type Registry interface {
	ListLibraries(ctx context.Context, activeOnly bool) ([]*catalog.Library, error)
	ListImplementations(ctx context.Context, filter catalog.ImplementationFilter) iter.Seq2[*catalog.Implementation, error]
}

type Options struct {
	Root        string
	Concurrency int
	Filter      catalog.ImplementationFilter
}

// Violation is one broken invariant. Subject is a file path, or the
// implementation key when the row has no usable file.
type Violation struct {
	Subject string
	Code    catalog.ErrorCode
	Message string
}

type Report struct {
	Checked      int
	Unregistered int
	Violations   []Violation
}

func (r *Report) OK() bool { return len(r.Violations) == 0 }

func (r *Report) Print(w io.Writer) {
	for _, v := range r.Violations {
		fmt.Fprintf(w, "%-18s %s: %s\n", v.Code, v.Subject, v.Message)
	}
	fmt.Fprintf(w, "checked %d implementations, %d unregistered scripts, %d violations\n",
		r.Checked, r.Unregistered, len(r.Violations))
}

type Auditor struct {
	reg  Registry
	opts Options
	log  *logger.Logger
}

func New(reg Registry, baseLog *logger.Logger, opts Options) *Auditor {
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Auditor{reg: reg, opts: opts, log: baseLog.With("service", "Auditor")}
}

// Run checks every matching implementation row with a bounded number of
// concurrent file reads, then looks for scripts that have no row.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	libs, err := a.reg.ListLibraries(ctx, false)
	if err != nil {
		return nil, err
	}
	libVersions := make(map[catalog.LibraryID]string, len(libs))
	for _, l := range libs {
		libVersions[l.ID] = l.Version
	}

	var (
		mu         sync.Mutex
		rep        = &Report{}
		registered = map[string]bool{}
	)
	add := func(vs []Violation) {
		mu.Lock()
		defer mu.Unlock()
		rep.Violations = append(rep.Violations, vs...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for impl, err := range a.reg.ListImplementations(ctx, a.opts.Filter) {
		if err != nil {
			_ = g.Wait()
			return nil, err
		}
		rep.Checked++
		registered[impl.FilePath] = true
		libVersion := libVersions[impl.LibraryID]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			add(a.checkImplementation(impl, libVersion))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if a.opts.Filter == (catalog.ImplementationFilter{}) {
		if err := a.checkUnregistered(rep, registered); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(rep.Violations, func(i, j int) bool {
		if rep.Violations[i].Subject != rep.Violations[j].Subject {
			return rep.Violations[i].Subject < rep.Violations[j].Subject
		}
		return rep.Violations[i].Code < rep.Violations[j].Code
	})
	a.log.Info("Audit finished", "checked", rep.Checked, "violations", len(rep.Violations))
	return rep, nil
}

func (a *Auditor) checkImplementation(impl *catalog.Implementation, libVersion string) []Violation {
	var out []Violation
	report := func(subject string, code catalog.ErrorCode, format string, args ...any) {
		out = append(out, Violation{Subject: subject, Code: code, Message: fmt.Sprintf(format, args...)})
	}
	key := impl.Key()

	entry, ok := layout.ParseScriptPath(impl.FilePath)
	if !ok || entry.Key() != key {
		report(key.String(), catalog.CodeValidation, "file_path %q is not %s", impl.FilePath,
			layout.ScriptPath(key.SpecID, key.LibraryID, key.Variant))
	}
	if impl.QualityScore != nil && !catalog.ValidQualityScore(*impl.QualityScore) {
		report(key.String(), catalog.CodeValidation, "quality_score %v is outside [0, 100]", *impl.QualityScore)
	}

	src, err := os.ReadFile(a.abs(impl.FilePath))
	if err != nil {
		report(impl.FilePath, catalog.CodeMissingFile, "script for %s cannot be read: %v", key, err)
		return out
	}
	h, err := header.Parse(src)
	if err != nil {
		report(impl.FilePath, catalog.CodeHeaderParse, "%v", err)
		return out
	}
	if h.SpecID != key.SpecID {
		report(impl.FilePath, catalog.CodeValidation, "header spec id %q differs from row %q", h.SpecID, key.SpecID)
	}
	if lib, ok := h.LibraryID(); !ok || lib != key.LibraryID {
		report(impl.FilePath, catalog.CodeValidation, "header library %q differs from row %q", h.Library, key.LibraryID)
	}
	if libVersion != "" && libVersion != catalog.UnknownVersion && h.LibraryVersion != libVersion {
		report(impl.FilePath, catalog.CodeValidation, "header version %s %s library version %s",
			h.LibraryVersion, relation(h.LibraryVersion, libVersion), libVersion)
	}

	metaPath := layout.MetadataPath(key.SpecID, key.LibraryID, key.Variant)
	meta, err := metadata.ReadValid(a.abs(metaPath))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		report(metaPath, catalog.CodeMissingFile, "metadata file for %s does not exist", key)
	case err != nil:
		code := catalog.CodeOf(err)
		if code == "" {
			code = catalog.CodeValidation
		}
		report(metaPath, code, "%v", err)
	case meta.LibraryVersion != h.LibraryVersion:
		report(metaPath, catalog.CodeValidation, "library_version %s %s header version %s",
			meta.LibraryVersion, relation(meta.LibraryVersion, h.LibraryVersion), h.LibraryVersion)
	}
	return out
}

func (a *Auditor) checkUnregistered(rep *Report, registered map[string]bool) error {
	entries, _, err := layout.Scripts(os.DirFS(a.opts.Root))
	if err != nil {
		return catalog.Wrap(catalog.CodeStorage, "audit.scan", a.opts.Root, err)
	}
	for _, e := range entries {
		if registered[e.Path] {
			continue
		}
		rep.Unregistered++
		rep.Violations = append(rep.Violations, Violation{
			Subject: e.Path,
			Code:    catalog.CodeNotFound,
			Message: "script has no registry row",
		})
	}
	return nil
}

func (a *Auditor) abs(rel string) string {
	return filepath.Join(a.opts.Root, filepath.FromSlash(rel))
}

// relation describes how version a sits relative to b.
func relation(a, b string) string {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return "differs from"
	}
	if va.LessThan(vb) {
		return "is behind"
	}
	if va.GreaterThan(vb) {
		return "is ahead of"
	}
	return "differs from"
}
