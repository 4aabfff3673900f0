package layout

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
)

func TestPaths(t *testing.T) {
	assert.Equal(t, "plots/scatter-basic/implementations/matplotlib.py", ScriptPath("scatter-basic", catalog.LibraryMatplotlib, "default"))
	assert.Equal(t, "plots/scatter-basic/implementations/matplotlib_dark.py", ScriptPath("scatter-basic", catalog.LibraryMatplotlib, "dark"))
	assert.Equal(t, "plots/scatter-basic/metadata/plotly.yaml", MetadataPath("scatter-basic", catalog.LibraryPlotly, ""))

	meta, ok := MetadataPathFor("plots/box-basic/implementations/seaborn_horizontal.py")
	require.True(t, ok)
	assert.Equal(t, "plots/box-basic/metadata/seaborn_horizontal.yaml", meta)
}

func TestParseScriptPath(t *testing.T) {
	e, ok := ParseScriptPath("/repo/plots/manhattan-gwas/implementations/letsplot.py")
	require.True(t, ok)
	assert.Equal(t, "manhattan-gwas", e.SpecID)
	assert.Equal(t, catalog.LibraryLetsPlot, e.LibraryID)
	assert.Equal(t, catalog.DefaultVariant, e.Variant)

	for _, bad := range []string{
		"plots/scatter-basic/implementations/ggplot.py",
		"plots/Scatter/implementations/matplotlib.py",
		"plots/scatter-basic/metadata/matplotlib.py",
		"plots/scatter-basic/implementations/matplotlib_.py",
		"plots/scatter-basic/implementations/Matplotlib.py",
		"implementations/matplotlib.py",
	} {
		_, ok := ParseScriptPath(bad)
		assert.False(t, ok, bad)
	}
}

func TestScriptsAndMetadataTraversal(t *testing.T) {
	fsys := fstest.MapFS{
		"plots/scatter-basic/implementations/matplotlib.py": {Data: []byte("x")},
		"plots/scatter-basic/implementations/plotly.py":     {Data: []byte("x")},
		"plots/scatter-basic/implementations/helpers.py":    {Data: []byte("x")},
		"plots/scatter-basic/metadata/matplotlib.yaml":      {Data: []byte("x")},
		"plots/area-basic/implementations/bokeh_stacked.py": {Data: []byte("x")},
		"plots/area-basic/README.md":                        {Data: []byte("x")},
	}

	scripts, skipped, err := Scripts(fsys)
	require.NoError(t, err)
	require.Len(t, scripts, 3)
	assert.Equal(t, "plots/area-basic/implementations/bokeh_stacked.py", scripts[0].Path)
	assert.Equal(t, "stacked", scripts[0].Variant)
	require.Len(t, skipped, 1)
	assert.Equal(t, "plots/scatter-basic/implementations/helpers.py", skipped[0].Path)

	metas, skipped, err := MetadataFiles(fsys)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, metas, 1)
	assert.Equal(t, catalog.Key{SpecID: "scatter-basic", LibraryID: catalog.LibraryMatplotlib, Variant: "default"}, metas[0].Key())
}
