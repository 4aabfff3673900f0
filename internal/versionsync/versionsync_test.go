package versionsync

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/pyplots-catalog/internal/data/repos/testutil"
	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
	"github.com/yungbote/pyplots-catalog/internal/platform/pkgquery"
	"github.com/yungbote/pyplots-catalog/internal/registry"
)

func script(spec, lib, version string) string {
	return `""" pyplots.ai
` + spec + `: Example Plot
Library: ` + lib + ` ` + version + ` | Python 3.13
Quality: 90/100 | Created: 2025-01-10
"""

import numpy as np

np.random.seed(42)
`
}

func sidecar(spec, lib, version string) string {
	return "spec_id: " + spec + "\nlibrary: " + lib + "\nlibrary_version: " + version +
		"\npython_version: \"3.13\"\nquality_score: 90\ntags:\n  - basic\ncreated_at: \"2025-01-10\"\n"
}

type tree struct {
	t    *testing.T
	root string
}

func newTree(t *testing.T) *tree {
	return &tree{t: t, root: t.TempDir()}
}

func (tr *tree) write(rel, content string) {
	tr.t.Helper()
	full := filepath.Join(tr.root, filepath.FromSlash(rel))
	require.NoError(tr.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(tr.t, os.WriteFile(full, []byte(content), 0o644))
}

func (tr *tree) read(rel string) string {
	tr.t.Helper()
	b, err := os.ReadFile(filepath.Join(tr.root, filepath.FromSlash(rel)))
	require.NoError(tr.t, err)
	return string(b)
}

func (tr *tree) implementation(spec, lib, version string) {
	tr.write("plots/"+spec+"/implementations/"+lib+".py", script(spec, lib, version))
	tr.write("plots/"+spec+"/metadata/"+lib+".yaml", sidecar(spec, lib, version))
}

type recordingStore struct {
	calls int
	got   map[catalog.LibraryID]string
}

func (r *recordingStore) SetLibraryVersions(_ context.Context, v map[catalog.LibraryID]string) (int64, error) {
	r.calls++
	r.got = v
	return int64(len(v)), nil
}

func run(t *testing.T, q pkgquery.Querier, store Store, opts Options) *Summary {
	t.Helper()
	sum, err := New(q, store, logger.Nop(), opts).Run(context.Background())
	require.NoError(t, err)
	return sum
}

func TestSyncUnknownToKnown(t *testing.T) {
	ctx := context.Background()
	tr := newTree(t)
	tr.implementation("scatter-basic", "matplotlib", "unknown")

	reg := registry.New(testutil.DB(t), logger.Nop(), registry.Options{Root: tr.root})
	_, err := reg.CreateSpec(ctx, &catalog.Spec{ID: "scatter-basic", Title: "Basic Scatter Plot", DataRequirements: datatypes.JSON(`{"shape":"xy"}`)})
	require.NoError(t, err)
	_, err = reg.RegisterImplementation(ctx, &catalog.Implementation{
		SpecID: "scatter-basic", LibraryID: catalog.LibraryMatplotlib, Variant: "default",
		FilePath: "plots/scatter-basic/implementations/matplotlib.py", PythonVersion: "3.13",
	})
	require.NoError(t, err)

	q := pkgquery.Static{catalog.LibraryMatplotlib: "3.9.0"}
	sum := run(t, q, reg, Options{Root: tr.root})

	assert.Equal(t, ExitOK, sum.ExitCode())
	assert.Equal(t, 1, sum.MetadataChanged)
	assert.Equal(t, 1, sum.ImplementationsChanged)
	assert.Equal(t, int64(1), sum.LibrariesUpdated)
	assert.Contains(t, tr.read("plots/scatter-basic/implementations/matplotlib.py"), "Library: matplotlib 3.9.0 | Python 3.13\n")
	assert.Contains(t, tr.read("plots/scatter-basic/metadata/matplotlib.yaml"), "library_version: 3.9.0\n")

	libs, err := reg.ListLibraries(ctx, false)
	require.NoError(t, err)
	for _, l := range libs {
		if l.ID == catalog.LibraryMatplotlib {
			assert.Equal(t, "3.9.0", l.Version)
		} else {
			assert.Equal(t, catalog.UnknownVersion, l.Version)
		}
	}

	scriptBefore := tr.read("plots/scatter-basic/implementations/matplotlib.py")
	yamlBefore := tr.read("plots/scatter-basic/metadata/matplotlib.yaml")
	again := run(t, q, reg, Options{Root: tr.root})
	assert.Equal(t, 0, again.Writes())
	assert.Equal(t, int64(0), again.LibrariesUpdated)
	assert.Equal(t, ExitOK, again.ExitCode())
	assert.Equal(t, scriptBefore, tr.read("plots/scatter-basic/implementations/matplotlib.py"))
	assert.Equal(t, yamlBefore, tr.read("plots/scatter-basic/metadata/matplotlib.yaml"))
}

func TestPartialFailureSurvival(t *testing.T) {
	tr := newTree(t)
	tr.implementation("box-basic", "matplotlib", "3.8.0")
	tr.write("plots/box-basic/implementations/seaborn.py", "import seaborn as sns\n# no header here\n")
	store := &recordingStore{}

	q := pkgquery.Static{catalog.LibraryMatplotlib: "3.9.0", catalog.LibrarySeaborn: "0.13.2"}
	sum := run(t, q, store, Options{Root: tr.root})

	assert.Equal(t, ExitFileFailed, sum.ExitCode())
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, "plots/box-basic/implementations/seaborn.py", sum.Failures[0].Path)
	assert.Equal(t, catalog.CodeHeaderParse, sum.Failures[0].Code)
	assert.Equal(t, map[catalog.ErrorCode]int{catalog.CodeHeaderParse: 1}, sum.FailuresByCategory())

	assert.Equal(t, 1, sum.ImplementationsChanged)
	assert.Contains(t, tr.read("plots/box-basic/implementations/matplotlib.py"), "Library: matplotlib 3.9.0 |")
	assert.Equal(t, "import seaborn as sns\n# no header here\n", tr.read("plots/box-basic/implementations/seaborn.py"))

	assert.Equal(t, 1, store.calls)
	assert.Equal(t, map[catalog.LibraryID]string{catalog.LibraryMatplotlib: "3.9.0", catalog.LibrarySeaborn: "0.13.2"}, store.got)

	var out bytes.Buffer
	sum.Print(&out)
	assert.Contains(t, out.String(), "failures: 1 (header_parse=1)")
	assert.Contains(t, out.String(), "implementation files: 1 changed of 2")
}

func TestUnknownSkipsRewrites(t *testing.T) {
	tr := newTree(t)
	tr.implementation("area-basic", "matplotlib", "3.8.0")
	tr.implementation("area-basic", "plotly", "5.0.0")
	before := tr.read("plots/area-basic/implementations/matplotlib.py")
	beforeYAML := tr.read("plots/area-basic/metadata/matplotlib.yaml")
	store := &recordingStore{}

	sum := run(t, pkgquery.Static{catalog.LibraryPlotly: "5.24.1"}, store, Options{Root: tr.root})

	assert.Equal(t, ExitOK, sum.ExitCode())
	assert.Equal(t, before, tr.read("plots/area-basic/implementations/matplotlib.py"))
	assert.Equal(t, beforeYAML, tr.read("plots/area-basic/metadata/matplotlib.yaml"))
	assert.Contains(t, tr.read("plots/area-basic/implementations/plotly.py"), "Library: plotly 5.24.1 |")
	assert.NotContains(t, store.got, catalog.LibraryMatplotlib)
	assert.Contains(t, sum.SkippedLibraries(), catalog.LibraryMatplotlib)
}

func TestAllQueriesFailed(t *testing.T) {
	tr := newTree(t)
	tr.implementation("area-basic", "matplotlib", "3.8.0")
	before := tr.read("plots/area-basic/implementations/matplotlib.py")
	store := &recordingStore{}

	sum := run(t, failingQuerier{}, store, Options{Root: tr.root})

	assert.Equal(t, ExitQueryFailed, sum.ExitCode())
	assert.Error(t, sum.QueryErr)
	assert.Equal(t, 0, store.calls)
	assert.Equal(t, before, tr.read("plots/area-basic/implementations/matplotlib.py"))
}

type failingQuerier struct{}

func (failingQuerier) Versions(context.Context) (map[catalog.LibraryID]string, error) {
	return pkgquery.Unknown(), catalog.Errorf(catalog.CodeEnvironmentQuery, "test", "pip", "timed out")
}

// sharedQuerier hands out the same map on every call.
type sharedQuerier map[catalog.LibraryID]string

func (q sharedQuerier) Versions(context.Context) (map[catalog.LibraryID]string, error) {
	return q, nil
}

func TestRunLeavesQuerierAnswerUntouched(t *testing.T) {
	tr := newTree(t)
	tr.implementation("area-basic", "matplotlib", "3.8.0")
	answer := sharedQuerier{catalog.LibraryMatplotlib: "3.9.0"}

	sum := run(t, answer, &recordingStore{}, Options{Root: tr.root})

	assert.Equal(t, ExitOK, sum.ExitCode())
	assert.Equal(t, sharedQuerier{catalog.LibraryMatplotlib: "3.9.0"}, answer)
	assert.Equal(t, catalog.UnknownVersion, sum.Versions[catalog.LibraryPlotly])
}

func TestDatabaseUnavailable(t *testing.T) {
	tr := newTree(t)
	tr.implementation("area-basic", "bokeh", "unknown")

	sum := run(t, pkgquery.Static{catalog.LibraryBokeh: "3.6.2"}, Unavailable(errors.New("connection refused")), Options{Root: tr.root})

	assert.Equal(t, ExitDBFailed, sum.ExitCode())
	assert.True(t, catalog.IsCode(sum.DBErr, catalog.CodeStorage))
	assert.Contains(t, tr.read("plots/area-basic/implementations/bokeh.py"), "Library: bokeh 3.6.2 |")
	assert.Contains(t, tr.read("plots/area-basic/metadata/bokeh.yaml"), "library_version: 3.6.2\n")
}

func TestDryRunWritesNothing(t *testing.T) {
	tr := newTree(t)
	tr.implementation("pie-basic", "altair", "5.0.0")
	before := tr.read("plots/pie-basic/implementations/altair.py")
	beforeYAML := tr.read("plots/pie-basic/metadata/altair.yaml")
	store := &recordingStore{}

	sum := run(t, pkgquery.Static{catalog.LibraryAltair: "5.4.1"}, store, Options{Root: tr.root, DryRun: true})

	assert.Equal(t, 2, sum.Writes())
	assert.True(t, sum.DBSkipped)
	assert.Equal(t, 0, store.calls)
	assert.Equal(t, before, tr.read("plots/pie-basic/implementations/altair.py"))
	assert.Equal(t, beforeYAML, tr.read("plots/pie-basic/metadata/altair.yaml"))

	var out bytes.Buffer
	sum.Print(&out)
	assert.Contains(t, out.String(), "metadata files: 1 would change of 1")
}

func TestSkipDB(t *testing.T) {
	tr := newTree(t)
	tr.implementation("pie-basic", "pygal", "3.0.0")
	store := &recordingStore{}

	sum := run(t, pkgquery.Static{catalog.LibraryPygal: "3.0.5"}, store, Options{Root: tr.root, SkipDB: true})

	assert.Equal(t, ExitOK, sum.ExitCode())
	assert.Equal(t, 2, sum.Writes())
	assert.Equal(t, 0, store.calls)
}

func TestInconsistentFilesAreReported(t *testing.T) {
	tr := newTree(t)
	tr.implementation("line-basic", "plotnine", "0.13.0")
	// header claims a different library than the file name
	tr.write("plots/line-basic/implementations/plotnine.py", script("line-basic", "matplotlib", "0.13.0"))
	// sidecar sits under the wrong spec directory
	tr.write("plots/line-other/metadata/plotnine.yaml", sidecar("line-basic", "plotnine", "0.13.0"))
	tr.write("plots/line-basic/metadata/notalib.yaml", "spec_id: line-basic\n")
	// header names another spec than its directory
	misplaced := script("line-basic", "plotnine", "0.13.0")
	tr.write("plots/area-basic/implementations/plotnine.py", misplaced)
	store := &recordingStore{}

	sum := run(t, pkgquery.Static{catalog.LibraryPlotnine: "0.14.1"}, store, Options{Root: tr.root})

	assert.Equal(t, ExitFileFailed, sum.ExitCode())
	assert.Equal(t, map[catalog.ErrorCode]int{catalog.CodeValidation: 3}, sum.FailuresByCategory())
	assert.Zero(t, sum.ImplementationsChanged)
	assert.Equal(t, misplaced, tr.read("plots/area-basic/implementations/plotnine.py"))
	assert.Equal(t, 1, sum.MetadataChanged)
	assert.Equal(t, 1, sum.Ignored)
	assert.Equal(t, 1, store.calls)
}

func TestDirection(t *testing.T) {
	assert.Equal(t, "upgrade", Direction("3.8.0", "3.9.0"))
	assert.Equal(t, "downgrade", Direction("5.24.1", "5.9"))
	assert.Equal(t, "set", Direction("unknown", "3.9.0"))
	assert.Equal(t, "same", Direction("3.9", "3.9.0"))
}
