package audit

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/pyplots-catalog/internal/data/repos/testutil"
	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
	"github.com/yungbote/pyplots-catalog/internal/registry"
)

func script(spec, lib, version string) string {
	return `""" pyplots.ai
` + spec + `: Example Plot
Library: ` + lib + ` ` + version + ` | Python 3.13
Quality: 90/100 | Created: 2025-01-10
"""
`
}

type fixture struct {
	t    *testing.T
	ctx  context.Context
	root string
	reg  *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	root := t.TempDir()
	f := &fixture{
		t:    t,
		ctx:  context.Background(),
		root: root,
		reg:  registry.New(testutil.DB(t), logger.Nop(), registry.Options{Root: root, PageSize: 2}),
	}
	_, err := f.reg.SetLibraryVersions(f.ctx, map[catalog.LibraryID]string{
		catalog.LibraryMatplotlib: "3.9.0",
		catalog.LibraryPlotly:     "5.24.1",
	})
	require.NoError(t, err)
	_, err = f.reg.CreateSpec(f.ctx, &catalog.Spec{
		ID:               "scatter-basic",
		Title:            "Basic Scatter Plot",
		DataRequirements: datatypes.JSON([]byte(`{"shape":"xy"}`)),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) write(rel, content string) {
	f.t.Helper()
	full := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(f.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(f.t, os.WriteFile(full, []byte(content), 0o644))
}

func (f *fixture) register(lib catalog.LibraryID, version string) string {
	f.t.Helper()
	rel := "plots/scatter-basic/implementations/" + string(lib) + ".py"
	f.write(rel, script("scatter-basic", string(lib), version))
	f.write("plots/scatter-basic/metadata/"+string(lib)+".yaml",
		"spec_id: scatter-basic\nlibrary: "+string(lib)+"\nlibrary_version: "+version+"\n")
	_, err := f.reg.RegisterImplementation(f.ctx, &catalog.Implementation{
		SpecID:        "scatter-basic",
		LibraryID:     lib,
		FilePath:      rel,
		PythonVersion: "3.13",
	})
	require.NoError(f.t, err)
	return rel
}

func (f *fixture) run() *Report {
	f.t.Helper()
	rep, err := New(f.reg, logger.Nop(), Options{Root: f.root, Concurrency: 2}).Run(f.ctx)
	require.NoError(f.t, err)
	return rep
}

func TestRunConsistentCatalog(t *testing.T) {
	f := newFixture(t)
	f.register(catalog.LibraryMatplotlib, "3.9.0")
	f.register(catalog.LibraryPlotly, "5.24.1")
	f.register(catalog.LibrarySeaborn, "0.13.2")

	rep := f.run()
	assert.True(t, rep.OK(), "violations: %+v", rep.Violations)
	assert.Equal(t, 3, rep.Checked)
	assert.Zero(t, rep.Unregistered)
}

func TestRunReportsVersionDrift(t *testing.T) {
	f := newFixture(t)
	rel := f.register(catalog.LibraryMatplotlib, "3.8.0")
	f.write("plots/scatter-basic/metadata/matplotlib.yaml",
		"spec_id: scatter-basic\nlibrary: matplotlib\nlibrary_version: 3.9.0\n")

	rep := f.run()
	require.Len(t, rep.Violations, 2)
	assert.Equal(t, "plots/scatter-basic/implementations/matplotlib.py", rep.Violations[0].Subject)
	assert.Equal(t, rel, rep.Violations[0].Subject)
	assert.Contains(t, rep.Violations[0].Message, "3.8.0 is behind library version 3.9.0")
	assert.Equal(t, "plots/scatter-basic/metadata/matplotlib.yaml", rep.Violations[1].Subject)
	assert.Contains(t, rep.Violations[1].Message, "3.9.0 is ahead of header version 3.8.0")
}

func TestRunReportsBrokenFiles(t *testing.T) {
	f := newFixture(t)
	missing := f.register(catalog.LibraryMatplotlib, "3.9.0")
	broken := f.register(catalog.LibraryPlotly, "5.24.1")
	require.NoError(t, os.Remove(filepath.Join(f.root, filepath.FromSlash(missing))))
	f.write(broken, "import plotly.express as px\n")
	f.write("plots/scatter-basic/implementations/bokeh.py", script("scatter-basic", "bokeh", "3.6.0"))
	noSidecar := f.register(catalog.LibrarySeaborn, "0.13.2")
	require.NoError(t, os.Remove(filepath.Join(f.root, "plots", "scatter-basic", "metadata", "seaborn.yaml")))

	rep := f.run()
	codes := map[string]catalog.ErrorCode{}
	for _, v := range rep.Violations {
		codes[v.Subject] = v.Code
	}
	assert.Equal(t, map[string]catalog.ErrorCode{
		missing: catalog.CodeMissingFile,
		broken:  catalog.CodeHeaderParse,
		"plots/scatter-basic/implementations/bokeh.py": catalog.CodeNotFound,
		"plots/scatter-basic/metadata/seaborn.yaml":     catalog.CodeMissingFile,
	}, codes)
	assert.NotContains(t, codes, noSidecar)
	assert.Equal(t, 1, rep.Unregistered)
	assert.False(t, rep.OK())

	var buf bytes.Buffer
	rep.Print(&buf)
	assert.Contains(t, buf.String(), "checked 3 implementations, 1 unregistered scripts, 4 violations")
}

func TestRunFilterSkipsUnregisteredScan(t *testing.T) {
	f := newFixture(t)
	f.register(catalog.LibraryMatplotlib, "3.9.0")
	f.write("plots/scatter-basic/implementations/bokeh.py", script("scatter-basic", "bokeh", "3.6.0"))

	rep, err := New(f.reg, logger.Nop(), Options{
		Root:   f.root,
		Filter: catalog.ImplementationFilter{LibraryID: catalog.LibraryMatplotlib},
	}).Run(f.ctx)
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Equal(t, 1, rep.Checked)
}
