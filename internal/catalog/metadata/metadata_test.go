package metadata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
)

const canonical = `spec_id: scatter-basic
library: matplotlib
library_version: unknown
python_version: "3.13"
variant: default
quality_score: 92
tags:
  - basic
  - scatter
created_at: "2025-01-10"
notes: Dispersión básica – ✓ 散布図
`

func TestRoundTripIsByteIdentical(t *testing.T) {
	f, err := Parse([]byte(canonical))
	require.NoError(t, err)

	out, err := f.Marshal()
	require.NoError(t, err)
	assert.Equal(t, canonical, string(out))
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(canonical))
	require.NoError(t, err)

	assert.Equal(t, "scatter-basic", f.SpecID)
	assert.Equal(t, "matplotlib", f.Library)
	assert.Equal(t, "unknown", f.LibraryVersion)
	assert.Equal(t, "3.13", f.PythonVersion)
	assert.Equal(t, "default", f.VariantOrDefault())
	require.NotNil(t, f.QualityScore)
	assert.Equal(t, 92.0, *f.QualityScore)
	assert.Equal(t, []string{"basic", "scatter"}, f.Tags)
	assert.Equal(t, "2025-01-10", f.CreatedAt)
	assert.Equal(t, []string{"notes"}, f.Extra())
}

func TestParse_Permissive(t *testing.T) {
	src := `extra_b: 1
library_version: 3.10
library: seaborn
spec_id: box-basic
extra_a:
  nested: true
`
	f, err := Parse([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, "3.10", f.LibraryVersion, "numeric-looking versions are kept as written")
	assert.Equal(t, catalog.DefaultVariant, f.VariantOrDefault())
	assert.Nil(t, f.QualityScore)
	assert.Equal(t, []string{"extra_b", "extra_a"}, f.Extra())

	out, err := f.Marshal()
	require.NoError(t, err)
	got := string(out)
	// Known keys first, in canonical order, then unknown keys in read order.
	assert.Less(t, strings.Index(got, "spec_id:"), strings.Index(got, "library:"))
	assert.Less(t, strings.Index(got, "library:"), strings.Index(got, "library_version:"))
	assert.Less(t, strings.Index(got, "library_version:"), strings.Index(got, "extra_b:"))
	assert.Less(t, strings.Index(got, "extra_b:"), strings.Index(got, "extra_a:"))
	assert.Contains(t, got, "  nested: true\n")

	again, err := Parse(out)
	require.NoError(t, err)
	out2, err := again.Marshal()
	require.NoError(t, err)
	assert.Equal(t, got, string(out2), "canonical output is a fixed point")
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"not a mapping":  "- a\n- b\n",
		"malformed":      "spec_id: [unterminated\n",
		"tags not list":  "spec_id: a\ntags: basic\n",
		"bad score":      "spec_id: a\nquality_score: high\n",
		"nested version": "library_version:\n  major: 3\n",
		"duplicate key":  "spec_id: a\nspec_id: b\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			require.Error(t, err)
			assert.True(t, catalog.IsCode(err, catalog.CodeValidation), "got %v", err)
		})
	}
}

func TestSetLibraryVersion(t *testing.T) {
	f, err := Parse([]byte(canonical))
	require.NoError(t, err)

	assert.False(t, f.SetLibraryVersion("unknown"))
	assert.True(t, f.SetLibraryVersion("3.9.0"))

	out, err := f.Marshal()
	require.NoError(t, err)
	want := canonical[:strings.Index(canonical, "library_version:")] + "library_version: 3.9.0\n" +
		canonical[strings.Index(canonical, "python_version:"):]
	assert.Equal(t, want, string(out))
}

func TestSetLibraryVersion_KeepsNullValues(t *testing.T) {
	src := "spec_id: scatter-basic\nlibrary: matplotlib\nlibrary_version: unknown\nquality_score: null\ntags: null\ncreated_at: '2025-01-01'\n"
	f, err := Parse([]byte(src))
	require.NoError(t, err)
	assert.Nil(t, f.QualityScore)
	assert.True(t, f.SetLibraryVersion("3.9.0"))

	out, err := f.Marshal()
	require.NoError(t, err)
	assert.Equal(t, strings.Replace(src, "library_version: unknown", "library_version: 3.9.0", 1), string(out))
}

func TestSetLibraryVersion_QuotesAmbiguousValues(t *testing.T) {
	f, err := Parse([]byte("spec_id: box-basic\nlibrary: seaborn\nlibrary_version: unknown\n"))
	require.NoError(t, err)
	f.SetLibraryVersion("0.13")

	out, err := f.Marshal()
	require.NoError(t, err)
	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "0.13", again.LibraryVersion)
}

func TestNewFileIsStable(t *testing.T) {
	score := 88.5
	f := &File{
		SpecID:         "area-basic",
		Library:        "plotly",
		LibraryVersion: "5.24.1",
		PythonVersion:  "3.12",
		QualityScore:   &score,
		Tags:           []string{"area", "basic"},
		CreatedAt:      "2025-03-04",
	}
	out, err := f.Marshal()
	require.NoError(t, err)

	parsed, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "3.12", parsed.PythonVersion)
	assert.Equal(t, "2025-03-04", parsed.CreatedAt)
	require.NotNil(t, parsed.QualityScore)
	assert.Equal(t, 88.5, *parsed.QualityScore)

	out2, err := parsed.Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(out), string(out2))
}

func TestWriteAndValidate(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "plots", "scatter-basic", "metadata")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, "matplotlib.yaml")
	require.NoError(t, os.WriteFile(p, []byte(canonical), 0o644))

	f, err := ReadValid(p)
	require.NoError(t, err)
	f.SetLibraryVersion("3.9.0")
	require.NoError(t, Write(p, f))

	back, err := Read(p)
	require.NoError(t, err)
	assert.Equal(t, "3.9.0", back.LibraryVersion)

	misplaced := filepath.Join(dir, "seaborn.yaml")
	require.NoError(t, os.WriteFile(misplaced, []byte(canonical), 0o644))
	_, err = ReadValid(misplaced)
	assert.True(t, catalog.IsCode(err, catalog.CodeValidation), "got %v", err)

	variant := filepath.Join(dir, "matplotlib_dark.yaml")
	require.NoError(t, os.WriteFile(variant, []byte(canonical), 0o644))
	_, err = ReadValid(variant)
	assert.True(t, catalog.IsCode(err, catalog.CodeValidation), "got %v", err)

	_, err = Read(filepath.Join(dir, "missing.yaml"))
	assert.True(t, catalog.IsCode(err, catalog.CodeMissingFile))
}
