// Package layout knows where catalog files live under the plots/ tree:
//
//	plots/<spec-id>/implementations/<library-id>.py
//	plots/<spec-id>/metadata/<library-id>.yaml
//
// Variants other than "default" append "_<variant>" to the basename.
package layout

import (
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
)

const (
	PlotsDir           = "plots"
	ImplementationsDir = "implementations"
	MetadataDir        = "metadata"
	ScriptExt          = ".py"
	MetadataExt        = ".yaml"

	variantSep = "_"
)

const (
	ScriptGlob   = PlotsDir + "/*/" + ImplementationsDir + "/*" + ScriptExt
	MetadataGlob = PlotsDir + "/*/" + MetadataDir + "/*" + MetadataExt
)

// Entry identifies one catalog file by its position in the tree.
type Entry struct {
	// Path is slash-separated and relative to the catalog root.
	Path      string
	SpecID    string
	LibraryID catalog.LibraryID
	Variant   string
}

func (e Entry) Key() catalog.Key {
	return catalog.Key{SpecID: e.SpecID, LibraryID: e.LibraryID, Variant: e.Variant}
}

// Stem is the basename without extension: the library id, with
// "_<variant>" appended for non-default variants.
func Stem(libraryID catalog.LibraryID, variant string) string {
	if variant == "" || variant == catalog.DefaultVariant {
		return string(libraryID)
	}
	return string(libraryID) + variantSep + variant
}

// ScriptPath returns the root-relative path of an implementation script.
func ScriptPath(specID string, libraryID catalog.LibraryID, variant string) string {
	return path.Join(PlotsDir, specID, ImplementationsDir, Stem(libraryID, variant)+ScriptExt)
}

// MetadataPath returns the root-relative path of a metadata sidecar.
func MetadataPath(specID string, libraryID catalog.LibraryID, variant string) string {
	return path.Join(PlotsDir, specID, MetadataDir, Stem(libraryID, variant)+MetadataExt)
}

// MetadataPathFor maps a script path to the sidecar that mirrors it.
func MetadataPathFor(scriptPath string) (string, bool) {
	e, ok := ParseScriptPath(scriptPath)
	if !ok {
		return "", false
	}
	return MetadataPath(e.SpecID, e.LibraryID, e.Variant), true
}

// ParseStem splits a basename without extension into library id and variant.
func ParseStem(name string) (catalog.LibraryID, string, bool) {
	libPart, variant, hasVariant := strings.Cut(name, variantSep)
	lib, ok := catalog.ParseLibraryID(libPart)
	if !ok || string(lib) != libPart {
		return "", "", false
	}
	if !hasVariant {
		return lib, catalog.DefaultVariant, true
	}
	if variant == "" {
		return "", "", false
	}
	return lib, variant, true
}

func parse(p, dir, ext string) (Entry, bool) {
	clean := path.Clean(strings.ReplaceAll(p, `\`, "/"))
	parts := strings.Split(clean, "/")
	if len(parts) < 4 {
		return Entry{}, false
	}
	parts = parts[len(parts)-4:]
	if parts[0] != PlotsDir || parts[2] != dir || !strings.HasSuffix(parts[3], ext) {
		return Entry{}, false
	}
	specID := parts[1]
	if !catalog.ValidSlug(specID) {
		return Entry{}, false
	}
	lib, variant, ok := ParseStem(strings.TrimSuffix(parts[3], ext))
	if !ok {
		return Entry{}, false
	}
	return Entry{Path: clean, SpecID: specID, LibraryID: lib, Variant: variant}, true
}

// ParseScriptPath extracts (spec, library, variant) from a script path. The
// path may carry a prefix before "plots/".
func ParseScriptPath(p string) (Entry, bool) {
	return parse(p, ImplementationsDir, ScriptExt)
}

// ParseMetadataPath extracts (spec, library, variant) from a sidecar path.
func ParseMetadataPath(p string) (Entry, bool) {
	return parse(p, MetadataDir, MetadataExt)
}

// Skipped is a file that matched a traversal glob but does not name a
// catalog entry (unknown library, bad slug).
type Skipped struct {
	Path   string
	Reason string
}

func walk(fsys fs.FS, glob string, parseFn func(string) (Entry, bool)) ([]Entry, []Skipped, error) {
	matches, err := doublestar.Glob(fsys, glob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(matches)
	var (
		entries []Entry
		skipped []Skipped
	)
	for _, m := range matches {
		e, ok := parseFn(m)
		if !ok {
			skipped = append(skipped, Skipped{Path: m, Reason: "basename is not a library id or spec id is not kebab-case"})
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped, nil
}

// Scripts lists plots/*/implementations/*.py in lexical order.
func Scripts(fsys fs.FS) ([]Entry, []Skipped, error) {
	return walk(fsys, ScriptGlob, ParseScriptPath)
}

// MetadataFiles lists plots/*/metadata/*.yaml in lexical order.
func MetadataFiles(fsys fs.FS) ([]Entry, []Skipped, error) {
	return walk(fsys, MetadataGlob, ParseMetadataPath)
}
