// Package indexer brings the registry in line with the scripts present on
// disk. It only adds rows; it never rewrites files or removes rows.
package indexer

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gorm.io/datatypes"

	"github.com/yungbote/pyplots-catalog/internal/catalog/header"
	"github.com/yungbote/pyplots-catalog/internal/catalog/layout"
	"github.com/yungbote/pyplots-catalog/internal/catalog/metadata"
	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
)

type Registry interface {
	GetSpec(ctx context.Context, id string) (*catalog.Spec, error)
	CreateSpec(ctx context.Context, spec *catalog.Spec) (*catalog.Spec, error)
	GetImplementation(ctx context.Context, key catalog.Key) (*catalog.Implementation, error)
	RegisterImplementation(ctx context.Context, impl *catalog.Implementation) (*catalog.Implementation, error)
}

type Options struct {
	Root   string
	DryRun bool
}

type Failure struct {
	Path string
	Code catalog.ErrorCode
	Err  error
}

type Report struct {
	DryRun       bool
	SpecsCreated []string
	Registered   []catalog.Key
	Existing     int
	Ignored      []layout.Skipped
	Failures     []Failure
}

type Indexer struct {
	reg  Registry
	opts Options
	log  *logger.Logger
}

func New(reg Registry, baseLog *logger.Logger, opts Options) *Indexer {
	if opts.Root == "" {
		opts.Root = "."
	}
	return &Indexer{reg: reg, opts: opts, log: baseLog.With("service", "Indexer")}
}

// Run registers every script under plots/ that has no row yet, creating
// the owning spec when it is missing. Per-file problems are collected in
// the report; a storage failure ends the run.
func (ix *Indexer) Run(ctx context.Context) (*Report, error) {
	rep := &Report{DryRun: ix.opts.DryRun}
	entries, ignored, err := layout.Scripts(os.DirFS(ix.opts.Root))
	if err != nil {
		return rep, catalog.Wrap(catalog.CodeStorage, "indexer.scan", ix.opts.Root, err)
	}
	rep.Ignored = ignored
	for _, sk := range ignored {
		ix.log.Debug("Ignoring file", "path", sk.Path, "reason", sk.Reason)
	}

	created := map[string]bool{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return rep, catalog.Wrap(catalog.CodeStorage, "indexer.run", "", err)
		}
		if err := ix.index(ctx, e, rep, created); err != nil {
			if catalog.IsCode(err, catalog.CodeStorage) {
				return rep, err
			}
			ix.fail(rep, e.Path, err)
		}
	}

	ix.log.Info("Index finished",
		"specs_created", len(rep.SpecsCreated),
		"registered", len(rep.Registered),
		"existing", rep.Existing,
		"failures", len(rep.Failures),
		"dry_run", rep.DryRun,
	)
	return rep, nil
}

func (ix *Indexer) index(ctx context.Context, e layout.Entry, rep *Report, created map[string]bool) error {
	const op = "indexer.index"
	_, err := ix.reg.GetImplementation(ctx, e.Key())
	switch {
	case err == nil:
		rep.Existing++
		return nil
	case !catalog.IsCode(err, catalog.CodeNotFound):
		return err
	}

	src, err := os.ReadFile(ix.abs(e.Path))
	if err != nil {
		return catalog.Wrap(catalog.CodeMissingFile, op, e.Path, err)
	}
	h, err := header.Parse(src)
	if err != nil {
		return catalog.NewError(catalog.CodeHeaderParse, op, e.Path, "unparseable header", err)
	}
	if h.SpecID != e.SpecID {
		return catalog.Errorf(catalog.CodeValidation, op, e.Path, "header spec id %q does not match directory %q", h.SpecID, e.SpecID)
	}
	if lib, ok := h.LibraryID(); !ok || lib != e.LibraryID {
		return catalog.Errorf(catalog.CodeValidation, op, e.Path, "header library %q does not match file name %q", h.Library, e.LibraryID)
	}

	metaPath := layout.MetadataPath(e.SpecID, e.LibraryID, e.Variant)
	meta, err := metadata.ReadValid(ix.abs(metaPath))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		meta = nil
	}

	if !created[e.SpecID] {
		ok, err := ix.ensureSpec(ctx, e.SpecID, h, meta)
		if err != nil {
			return err
		}
		if ok {
			created[e.SpecID] = true
			rep.SpecsCreated = append(rep.SpecsCreated, e.SpecID)
		}
	}

	impl := &catalog.Implementation{
		SpecID:        e.SpecID,
		LibraryID:     e.LibraryID,
		Variant:       e.Variant,
		FilePath:      e.Path,
		PlotFunction:  header.PlotFunction(src),
		PythonVersion: h.PythonVersion,
		QualityScore:  h.Quality,
	}
	if impl.QualityScore == nil && meta != nil {
		impl.QualityScore = meta.QualityScore
	}
	if ix.opts.DryRun {
		rep.Registered = append(rep.Registered, e.Key())
		return nil
	}
	if _, err := ix.reg.RegisterImplementation(ctx, impl); err != nil {
		return err
	}
	rep.Registered = append(rep.Registered, e.Key())
	return nil
}

// ensureSpec reports whether it created the spec.
func (ix *Indexer) ensureSpec(ctx context.Context, id string, h *header.Header, meta *metadata.File) (bool, error) {
	_, err := ix.reg.GetSpec(ctx, id)
	if err == nil {
		return false, nil
	}
	if !catalog.IsCode(err, catalog.CodeNotFound) {
		return false, err
	}
	title := h.Title
	if title == "" {
		title = id
	}
	spec := &catalog.Spec{
		ID:               id,
		Title:            title,
		DataRequirements: datatypes.JSON([]byte("{}")),
		OptionalParams:   datatypes.JSON([]byte("{}")),
	}
	if meta != nil {
		spec.SetTags(meta.Tags)
	}
	if ix.opts.DryRun {
		return true, nil
	}
	if _, err := ix.reg.CreateSpec(ctx, spec); err != nil {
		return false, err
	}
	return true, nil
}

func (ix *Indexer) abs(rel string) string {
	return filepath.Join(ix.opts.Root, filepath.FromSlash(rel))
}

func (ix *Indexer) fail(rep *Report, path string, err error) {
	code := catalog.CodeOf(err)
	if code == "" {
		code = catalog.CodeValidation
	}
	rep.Failures = append(rep.Failures, Failure{Path: path, Code: code, Err: err})
	ix.log.Warn("Script not indexed", "path", path, "code", code, "error", err)
}
