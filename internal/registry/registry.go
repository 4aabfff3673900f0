package registry

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/pyplots-catalog/internal/catalog/layout"
	"github.com/yungbote/pyplots-catalog/internal/data/repos"
	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
	"github.com/yungbote/pyplots-catalog/internal/pkg/dbctx"
	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
)

const defaultPageSize = 200

type Options struct {
	// Root is the catalog root; implementation file paths resolve against it.
	Root string
	// PageSize bounds each query issued while iterating a listing.
	PageSize int
}

// Registry is the transactional API over specs, libraries and
// implementations. Every mutation runs in a single transaction and fails
// with a typed *catalog.Error.
type Registry struct {
	tx       TxRunner
	repos    repos.Catalog
	root     string
	pageSize int
	log      *logger.Logger
}

func New(db *gorm.DB, baseLog *logger.Logger, opts Options) *Registry {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	root := opts.Root
	if root == "" {
		root = "."
	}
	return &Registry{
		tx:       NewGormTxRunner(db),
		repos:    repos.NewCatalog(db, baseLog),
		root:     root,
		pageSize: pageSize,
		log:      baseLog.With("service", "Registry"),
	}
}

func (r *Registry) Root() string { return r.root }

// CreateSpec inserts a new spec.
func (r *Registry) CreateSpec(ctx context.Context, spec *catalog.Spec) (*catalog.Spec, error) {
	const op = "registry.create_spec"
	if spec == nil {
		return nil, catalog.Errorf(catalog.CodeValidation, op, "", "spec is nil")
	}
	spec.ID = strings.TrimSpace(spec.ID)
	spec.Title = strings.TrimSpace(spec.Title)
	if !catalog.ValidSlug(spec.ID) {
		return nil, catalog.Errorf(catalog.CodeValidation, op, spec.ID, "spec id must be lowercase kebab-case")
	}
	if spec.Title == "" {
		return nil, catalog.Errorf(catalog.CodeValidation, op, spec.ID, "title is required")
	}
	if !spec.HasDataRequirements() {
		return nil, catalog.Errorf(catalog.CodeValidation, op, spec.ID, "data_requirements must be a JSON object")
	}
	if len(spec.Tags) > 0 {
		spec.SetTags(spec.TagList())
	}

	err := r.tx.InTx(ctx, func(dbc dbctx.Context) error {
		existing, err := r.repos.Specs.GetByID(dbc, spec.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return catalog.Errorf(catalog.CodeDuplicateID, op, spec.ID, "a spec with this id already exists")
		}
		_, err = r.repos.Specs.Create(dbc, []*catalog.Spec{spec})
		return err
	})
	if err != nil {
		return nil, MapError(op, spec.ID, catalog.CodeDuplicateID, err)
	}
	r.log.Info("Spec created", "spec_id", spec.ID)
	return spec, nil
}

func (r *Registry) GetSpec(ctx context.Context, id string) (*catalog.Spec, error) {
	const op = "registry.get_spec"
	spec, err := r.repos.Specs.GetByID(dbctx.Background(ctx), id)
	if err != nil {
		return nil, MapError(op, id, catalog.CodeStorage, err)
	}
	if spec == nil {
		return nil, catalog.Errorf(catalog.CodeNotFound, op, id, "no spec with this id")
	}
	return spec, nil
}

func (r *Registry) ListSpecs(ctx context.Context) ([]*catalog.Spec, error) {
	rows, err := r.repos.Specs.List(dbctx.Background(ctx))
	if err != nil {
		return nil, MapError("registry.list_specs", "", catalog.CodeStorage, err)
	}
	return rows, nil
}

// DeleteSpec removes a spec and, through the cascade, its implementation
// rows. Files on disk are left alone. Returns the number of implementation
// rows removed.
func (r *Registry) DeleteSpec(ctx context.Context, id string) (int, error) {
	const op = "registry.delete_spec"
	var removed int
	err := r.tx.InTx(ctx, func(dbc dbctx.Context) error {
		spec, err := r.repos.Specs.GetByID(dbc, id)
		if err != nil {
			return err
		}
		if spec == nil {
			return catalog.Errorf(catalog.CodeNotFound, op, id, "no spec with this id")
		}
		impls, err := r.repos.Implementations.GetBySpecIDs(dbc, []string{id})
		if err != nil {
			return err
		}
		removed = len(impls)
		_, err = r.repos.Specs.DeleteByIDs(dbc, []string{id})
		return err
	})
	if err != nil {
		return 0, MapError(op, id, catalog.CodeStorage, err)
	}
	r.log.Info("Spec deleted", "spec_id", id, "implementations_removed", removed)
	return removed, nil
}

// UpsertLibrary inserts or updates a member of the closed library set. An
// empty name or version falls back to the seed name and "unknown".
func (r *Registry) UpsertLibrary(ctx context.Context, lib *catalog.Library) (*catalog.Library, error) {
	const op = "registry.upsert_library"
	if lib == nil {
		return nil, catalog.Errorf(catalog.CodeValidation, op, "", "library is nil")
	}
	info, ok := catalog.LookupLibrary(lib.ID)
	if !ok {
		return nil, catalog.Errorf(catalog.CodeUnknownLibrary, op, string(lib.ID), "library is not one of the supported libraries")
	}
	if strings.TrimSpace(lib.Name) == "" {
		lib.Name = info.Name
	}
	if strings.TrimSpace(lib.Version) == "" {
		lib.Version = catalog.UnknownVersion
	}
	err := r.tx.InTx(ctx, func(dbc dbctx.Context) error {
		existing, err := r.repos.Libraries.GetByID(dbc, lib.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			lib.CreatedAt = existing.CreatedAt
		}
		_, err = r.repos.Libraries.Upsert(dbc, []*catalog.Library{lib})
		return err
	})
	if err != nil {
		return nil, MapError(op, string(lib.ID), catalog.CodeStorage, err)
	}
	r.log.Info("Library upserted", "library_id", lib.ID, "version", lib.Version, "active", lib.Active)
	return lib, nil
}

func (r *Registry) ListLibraries(ctx context.Context, activeOnly bool) ([]*catalog.Library, error) {
	rows, err := r.repos.Libraries.List(dbctx.Background(ctx), activeOnly)
	if err != nil {
		return nil, MapError("registry.list_libraries", "", catalog.CodeStorage, err)
	}
	return rows, nil
}

// SetLibraryVersions writes every version in one transaction and returns
// the number of rows whose version changed.
func (r *Registry) SetLibraryVersions(ctx context.Context, versions map[catalog.LibraryID]string) (int64, error) {
	const op = "registry.set_library_versions"
	for id := range versions {
		if !id.Valid() {
			return 0, catalog.Errorf(catalog.CodeUnknownLibrary, op, string(id), "library is not one of the supported libraries")
		}
	}
	var changed int64
	err := r.tx.InTx(ctx, func(dbc dbctx.Context) error {
		n, err := r.repos.Libraries.UpdateVersions(dbc, versions)
		changed = n
		return err
	})
	if err != nil {
		return 0, MapError(op, "", catalog.CodeStorage, err)
	}
	return changed, nil
}

// RegisterImplementation inserts an implementation row. The script must
// exist under the catalog root at the position its (spec, library,
// variant) dictates.
func (r *Registry) RegisterImplementation(ctx context.Context, impl *catalog.Implementation) (*catalog.Implementation, error) {
	const op = "registry.register_implementation"
	if impl == nil {
		return nil, catalog.Errorf(catalog.CodeValidation, op, "", "implementation is nil")
	}
	impl.Normalize()
	subject := impl.Key().String()
	if err := validateImplementation(op, impl); err != nil {
		return nil, err
	}

	err := r.tx.InTx(ctx, func(dbc dbctx.Context) error {
		spec, err := r.repos.Specs.GetByID(dbc, impl.SpecID)
		if err != nil {
			return err
		}
		if spec == nil {
			return catalog.Errorf(catalog.CodeMissingParent, op, subject, "spec %q does not exist", impl.SpecID)
		}
		lib, err := r.repos.Libraries.GetByID(dbc, impl.LibraryID)
		if err != nil {
			return err
		}
		if lib == nil {
			return catalog.Errorf(catalog.CodeMissingParent, op, subject, "library %q does not exist", impl.LibraryID)
		}
		existing, err := r.repos.Implementations.GetByKey(dbc, impl.Key())
		if err != nil {
			return err
		}
		if existing != nil {
			return catalog.Errorf(catalog.CodeDuplicateVariant, op, subject, "an implementation for this spec, library and variant is already registered")
		}
		if err := r.checkFile(op, impl.FilePath); err != nil {
			return err
		}
		_, err = r.repos.Implementations.Create(dbc, []*catalog.Implementation{impl})
		return err
	})
	if err != nil {
		return nil, MapError(op, subject, catalog.CodeDuplicateVariant, err)
	}
	r.log.Info("Implementation registered", "key", subject, "file_path", impl.FilePath)
	return impl, nil
}

func validateImplementation(op string, impl *catalog.Implementation) error {
	subject := impl.Key().String()
	if !catalog.ValidSlug(impl.SpecID) {
		return catalog.Errorf(catalog.CodeValidation, op, subject, "spec id must be lowercase kebab-case")
	}
	if !impl.LibraryID.Valid() {
		return catalog.Errorf(catalog.CodeMissingParent, op, subject, "library %q does not exist", impl.LibraryID)
	}
	if impl.FilePath == "" {
		return catalog.Errorf(catalog.CodeValidation, op, subject, "file_path is required")
	}
	if impl.QualityScore != nil && !catalog.ValidQualityScore(*impl.QualityScore) {
		return catalog.Errorf(catalog.CodeValidation, op, subject, "quality_score %v is outside [0, 100]", *impl.QualityScore)
	}
	entry, ok := layout.ParseScriptPath(impl.FilePath)
	if !ok || entry.Key() != impl.Key() {
		return catalog.Errorf(catalog.CodeValidation, op, impl.FilePath,
			"file_path must be %s", layout.ScriptPath(impl.SpecID, impl.LibraryID, impl.Variant))
	}
	return nil
}

func (r *Registry) checkFile(op, rel string) error {
	full := filepath.Join(r.root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return catalog.Errorf(catalog.CodeMissingFile, op, rel, "script does not exist under %s", r.root)
		}
		return catalog.Wrap(catalog.CodeMissingFile, op, rel, err)
	}
	if !info.Mode().IsRegular() {
		return catalog.Errorf(catalog.CodeMissingFile, op, rel, "script path is not a regular file")
	}
	return nil
}

func (r *Registry) GetImplementation(ctx context.Context, key catalog.Key) (*catalog.Implementation, error) {
	const op = "registry.get_implementation"
	if key.Variant == "" {
		key.Variant = catalog.DefaultVariant
	}
	row, err := r.repos.Implementations.GetByKey(dbctx.Background(ctx), key)
	if err != nil {
		return nil, MapError(op, key.String(), catalog.CodeStorage, err)
	}
	if row == nil {
		return nil, catalog.Errorf(catalog.CodeNotFound, op, key.String(), "no implementation registered")
	}
	return row, nil
}

// ListImplementations yields matching rows in (spec, library, variant)
// order, fetching one page at a time. Ranging over the sequence again
// re-runs the query from the start. The first error ends the sequence.
func (r *Registry) ListImplementations(ctx context.Context, filter catalog.ImplementationFilter) iter.Seq2[*catalog.Implementation, error] {
	const op = "registry.list_implementations"
	return func(yield func(*catalog.Implementation, error) bool) {
		if filter.LibraryID != "" && !filter.LibraryID.Valid() {
			yield(nil, catalog.Errorf(catalog.CodeUnknownLibrary, op, string(filter.LibraryID), "library is not one of the supported libraries"))
			return
		}
		if filter.MinQuality != nil && !catalog.ValidQualityScore(*filter.MinQuality) {
			yield(nil, catalog.Errorf(catalog.CodeValidation, op, fmt.Sprint(*filter.MinQuality), "min_quality is outside [0, 100]"))
			return
		}
		var after catalog.Key
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, MapError(op, "", catalog.CodeStorage, err))
				return
			}
			page, err := r.repos.Implementations.ListPage(dbctx.Background(ctx), filter, after, r.pageSize)
			if err != nil {
				yield(nil, MapError(op, "", catalog.CodeStorage, err))
				return
			}
			for _, row := range page {
				if !yield(row, nil) {
					return
				}
			}
			if len(page) < r.pageSize {
				return
			}
			after = page[len(page)-1].Key()
		}
	}
}

// SetPreviewURL records where the rendered preview of an implementation
// lives.
func (r *Registry) SetPreviewURL(ctx context.Context, id uuid.UUID, url string) error {
	const op = "registry.set_preview_url"
	err := r.tx.InTx(ctx, func(dbc dbctx.Context) error {
		row, err := r.repos.Implementations.GetByID(dbc, id)
		if err != nil {
			return err
		}
		if row == nil {
			return catalog.Errorf(catalog.CodeNotFound, op, id.String(), "no implementation with this id")
		}
		return r.repos.Implementations.UpdateFields(dbc, id, map[string]interface{}{"preview_url": url})
	})
	return MapError(op, id.String(), catalog.CodeStorage, err)
}

// UpdateEvaluation records the outcome of an evaluation pass. Nil fields
// are left unchanged.
func (r *Registry) UpdateEvaluation(ctx context.Context, key catalog.Key, tested *bool, quality *float64) (*catalog.Implementation, error) {
	const op = "registry.update_evaluation"
	if key.Variant == "" {
		key.Variant = catalog.DefaultVariant
	}
	if quality != nil && !catalog.ValidQualityScore(*quality) {
		return nil, catalog.Errorf(catalog.CodeValidation, op, key.String(), "quality_score %v is outside [0, 100]", *quality)
	}
	var out *catalog.Implementation
	err := r.tx.InTx(ctx, func(dbc dbctx.Context) error {
		row, err := r.repos.Implementations.GetByKey(dbc, key)
		if err != nil {
			return err
		}
		if row == nil {
			return catalog.Errorf(catalog.CodeNotFound, op, key.String(), "no implementation registered")
		}
		updates := map[string]interface{}{}
		if tested != nil {
			updates["tested"] = *tested
			row.Tested = *tested
		}
		if quality != nil {
			updates["quality_score"] = *quality
			row.QualityScore = quality
		}
		if len(updates) == 0 {
			out = row
			return nil
		}
		if err := r.repos.Implementations.UpdateFields(dbc, row.ID, updates); err != nil {
			return err
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, MapError(op, key.String(), catalog.CodeStorage, err)
	}
	return out, nil
}
