// Package versionsync makes the three copies of each library version (the
// library row, the metadata sidecars and the script headers) agree with the
// version installed in the environment.
package versionsync

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/yungbote/pyplots-catalog/internal/catalog/header"
	"github.com/yungbote/pyplots-catalog/internal/catalog/layout"
	"github.com/yungbote/pyplots-catalog/internal/catalog/metadata"
	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
	"github.com/yungbote/pyplots-catalog/internal/pkg/fsutil"
	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
	"github.com/yungbote/pyplots-catalog/internal/platform/pkgquery"
)

// Store receives the reconciled versions. *registry.Registry satisfies it.
type Store interface {
	SetLibraryVersions(ctx context.Context, versions map[catalog.LibraryID]string) (int64, error)
}

type unavailableStore struct{ err error }

func (u unavailableStore) SetLibraryVersions(context.Context, map[catalog.LibraryID]string) (int64, error) {
	return 0, u.err
}

// Unavailable is a Store for a database that could not be opened. Files
// are still synchronized; the database step reports err.
func Unavailable(err error) Store {
	return unavailableStore{err: catalog.Wrap(catalog.CodeStorage, "versionsync.open_db", "", err)}
}

type Options struct {
	Root   string
	DryRun bool
	// SkipDB leaves the library table alone.
	SkipDB bool
}

type Synchronizer struct {
	query pkgquery.Querier
	store Store
	opts  Options
	log   *logger.Logger
}

func New(query pkgquery.Querier, store Store, baseLog *logger.Logger, opts Options) *Synchronizer {
	if opts.Root == "" {
		opts.Root = "."
	}
	return &Synchronizer{
		query: query,
		store: store,
		opts:  opts,
		log:   baseLog.With("service", "VersionSynchronizer"),
	}
}

// Run queries installed versions, rewrites metadata files, then script
// headers, then the library rows. Per-file failures are collected and the
// run continues; files already rewritten stay rewritten. The returned
// error is non-nil only when the run could not start or was interrupted.
func (s *Synchronizer) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{DryRun: s.opts.DryRun, DBSkipped: s.opts.SkipDB || s.opts.DryRun}

	answered, err := s.query.Versions(ctx)
	versions := make(map[catalog.LibraryID]string, len(answered))
	for id, v := range answered {
		versions[id] = v
	}
	sum.Versions = versions
	sum.QueryErr = err
	if err != nil {
		s.log.Warn("Installed version query failed; affected libraries are skipped", "error", err)
	}
	for _, id := range catalog.LibraryIDs() {
		if v := versions[id]; v == "" || v == catalog.UnknownVersion {
			versions[id] = catalog.UnknownVersion
			s.log.Info("Library version unknown; skipping", "library_id", id)
		} else {
			s.log.Debug("Installed version", "library_id", id, "version", v)
		}
	}
	if pkgquery.Known(versions) == 0 {
		s.log.Error("No installed library version could be determined")
		sum.DBSkipped = true
		return sum, nil
	}

	fsys := os.DirFS(s.opts.Root)
	if err := s.syncMetadata(ctx, fsys, sum); err != nil {
		return sum, err
	}
	if err := s.syncScripts(ctx, fsys, sum); err != nil {
		return sum, err
	}
	if err := s.syncDatabase(ctx, sum); err != nil {
		return sum, err
	}

	s.log.Info("Version sync finished",
		"metadata_changed", sum.MetadataChanged,
		"implementations_changed", sum.ImplementationsChanged,
		"libraries_updated", sum.LibrariesUpdated,
		"failures", len(sum.Failures),
		"dry_run", sum.DryRun,
	)
	return sum, nil
}

func (s *Synchronizer) abs(rel string) string {
	return filepath.Join(s.opts.Root, filepath.FromSlash(rel))
}

func (s *Synchronizer) fail(sum *Summary, path string, err error) {
	code := catalog.CodeOf(err)
	if code == "" {
		code = catalog.CodeStorage
	}
	sum.Failures = append(sum.Failures, Failure{Path: path, Code: code, Err: err})
	s.log.Warn("File not synchronized", "path", path, "code", code, "error", err)
}

func (s *Synchronizer) interrupted(ctx context.Context, sum *Summary) error {
	if err := ctx.Err(); err != nil {
		sum.Interrupted = true
		return catalog.Wrap(catalog.CodeStorage, "versionsync.run", "", err)
	}
	return nil
}

func (s *Synchronizer) syncMetadata(ctx context.Context, fsys fs.FS, sum *Summary) error {
	entries, ignored, err := layout.MetadataFiles(fsys)
	if err != nil {
		return catalog.Wrap(catalog.CodeStorage, "versionsync.metadata", s.opts.Root, err)
	}
	s.logIgnored(ignored, sum)

	for _, e := range entries {
		if err := s.interrupted(ctx, sum); err != nil {
			return err
		}
		version := sum.Versions[e.LibraryID]
		if version == catalog.UnknownVersion {
			continue
		}
		sum.MetadataChecked++
		path := s.abs(e.Path)
		f, err := metadata.Read(path)
		if err != nil {
			s.fail(sum, e.Path, err)
			continue
		}
		if err := metadata.Validate(path, f); err != nil {
			s.fail(sum, e.Path, err)
			continue
		}
		old := f.LibraryVersion
		if !f.SetLibraryVersion(version) {
			continue
		}
		if !s.opts.DryRun {
			if err := metadata.Write(path, f); err != nil {
				s.fail(sum, e.Path, err)
				continue
			}
		}
		sum.MetadataChanged++
		s.log.Info("Metadata version updated", "path", e.Path, "from", old, "to", version, "change", Direction(old, version), "dry_run", s.opts.DryRun)
	}
	return nil
}

func (s *Synchronizer) syncScripts(ctx context.Context, fsys fs.FS, sum *Summary) error {
	entries, ignored, err := layout.Scripts(fsys)
	if err != nil {
		return catalog.Wrap(catalog.CodeStorage, "versionsync.scripts", s.opts.Root, err)
	}
	s.logIgnored(ignored, sum)

	for _, e := range entries {
		if err := s.interrupted(ctx, sum); err != nil {
			return err
		}
		version := sum.Versions[e.LibraryID]
		if version == catalog.UnknownVersion {
			continue
		}
		sum.ImplementationsChecked++
		changed, old, err := s.rewriteScript(e, version)
		if err != nil {
			s.fail(sum, e.Path, err)
			continue
		}
		if !changed {
			continue
		}
		sum.ImplementationsChanged++
		s.log.Info("Header version updated", "path", e.Path, "from", old, "to", version, "change", Direction(old, version), "dry_run", s.opts.DryRun)
	}
	return nil
}

func (s *Synchronizer) rewriteScript(e layout.Entry, version string) (bool, string, error) {
	const op = "versionsync.script"
	path := s.abs(e.Path)
	src, err := os.ReadFile(path)
	if err != nil {
		return false, "", catalog.Wrap(catalog.CodeMissingFile, op, e.Path, err)
	}
	h, err := header.Parse(src)
	if err != nil {
		return false, "", err
	}
	if h.SpecID != e.SpecID {
		return false, "", catalog.Errorf(catalog.CodeValidation, op, e.Path, "header declares spec %q, directory says %q", h.SpecID, e.SpecID)
	}
	if lib, ok := h.LibraryID(); !ok || lib != e.LibraryID {
		return false, "", catalog.Errorf(catalog.CodeValidation, op, e.Path, "header declares library %q, file name says %q", h.Library, e.LibraryID)
	}
	out, changed, err := header.RewriteVersion(src, version)
	if err != nil || !changed {
		return false, h.LibraryVersion, err
	}
	if s.opts.DryRun {
		return true, h.LibraryVersion, nil
	}
	if err := fsutil.WriteFileAtomic(path, out, 0o644); err != nil {
		return false, h.LibraryVersion, catalog.Wrap(catalog.CodeStorage, op, e.Path, err)
	}
	return true, h.LibraryVersion, nil
}

func (s *Synchronizer) syncDatabase(ctx context.Context, sum *Summary) error {
	if sum.DBSkipped {
		return nil
	}
	if err := s.interrupted(ctx, sum); err != nil {
		return err
	}
	if s.store == nil {
		sum.DBErr = catalog.Errorf(catalog.CodeStorage, "versionsync.database", "", "no database configured")
		return nil
	}
	known := make(map[catalog.LibraryID]string, len(sum.Versions))
	for id, v := range sum.Versions {
		if v != catalog.UnknownVersion {
			known[id] = v
		}
	}
	n, err := s.store.SetLibraryVersions(ctx, known)
	if err != nil {
		sum.DBErr = err
		s.log.Error("Library table not updated", "error", err)
		return nil
	}
	sum.LibrariesUpdated = n
	return nil
}

func (s *Synchronizer) logIgnored(ignored []layout.Skipped, sum *Summary) {
	for _, sk := range ignored {
		sum.Ignored++
		s.log.Debug("Ignoring file", "path", sk.Path, "reason", sk.Reason)
	}
}

// Direction classifies a version change for the run log: "upgrade",
// "downgrade", or "set" when either side is not a semantic version.
func Direction(from, to string) string {
	a, errA := semver.NewVersion(from)
	b, errB := semver.NewVersion(to)
	if errA != nil || errB != nil {
		return "set"
	}
	switch a.Compare(b) {
	case -1:
		return "upgrade"
	case 1:
		return "downgrade"
	}
	return "same"
}
