package catalog

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidSlug(t *testing.T) {
	good := []string{"scatter-basic", "area-basic", "manhattan-gwas", "box2d", "a"}
	bad := []string{"", "Scatter-basic", "scatter_basic", "-scatter", "scatter-", "scatter--basic", "scatter basic"}
	for _, s := range good {
		if !ValidSlug(s) {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	for _, s := range bad {
		if ValidSlug(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
}

func TestParseLibraryID(t *testing.T) {
	if id, ok := ParseLibraryID(" Matplotlib "); !ok || id != LibraryMatplotlib {
		t.Fatalf("ParseLibraryID: got %q ok=%v", id, ok)
	}
	if _, ok := ParseLibraryID("ggplot"); ok {
		t.Fatalf("expected ggplot to be outside the closed set")
	}
	if got := len(LibraryIDs()); got != 9 {
		t.Fatalf("expected 9 libraries, got %d", got)
	}
	if got := len(SeedLibraries()); got != 9 {
		t.Fatalf("expected 9 seed rows, got %d", got)
	}
}

func TestSpecTags(t *testing.T) {
	var s Spec
	s.SetTags([]string{"basic", " scatter ", "basic", ""})
	tags := s.TagList()
	if len(tags) != 2 || tags[0] != "basic" || tags[1] != "scatter" {
		t.Fatalf("unexpected tags: %v", tags)
	}
}

func TestHasDataRequirements(t *testing.T) {
	s := &Spec{}
	if s.HasDataRequirements() {
		t.Fatalf("empty requirements accepted")
	}
	s.DataRequirements = []byte("null")
	if s.HasDataRequirements() {
		t.Fatalf("null requirements accepted")
	}
	s.DataRequirements = []byte(`{"shape":"xy"}`)
	if !s.HasDataRequirements() {
		t.Fatalf("object requirements rejected")
	}
}

func TestImplementationNormalize(t *testing.T) {
	impl := &Implementation{SpecID: "scatter-basic", LibraryID: LibraryPlotly, FilePath: `plots\scatter-basic\implementations\plotly.py`}
	impl.Normalize()
	if impl.Variant != DefaultVariant || impl.PlotFunction != DefaultPlotFunction {
		t.Fatalf("defaults not applied: %+v", impl)
	}
	if impl.FilePath != "plots/scatter-basic/implementations/plotly.py" {
		t.Fatalf("unexpected path %q", impl.FilePath)
	}
}

func TestErrorMatching(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewError(CodeDuplicateVariant, "registry.register", "scatter-basic/matplotlib/default", "already registered", nil))
	if !errors.Is(err, CodeDuplicateVariant) {
		t.Fatalf("errors.Is did not match code")
	}
	if errors.Is(err, CodeDuplicateID) {
		t.Fatalf("errors.Is matched the wrong code")
	}
	if CodeOf(err) != CodeDuplicateVariant {
		t.Fatalf("CodeOf: got %q", CodeOf(err))
	}
	if SubjectOf(err) != "scatter-basic/matplotlib/default" {
		t.Fatalf("SubjectOf: got %q", SubjectOf(err))
	}
	want := "outer: registry.register: scatter-basic/matplotlib/default: already registered (duplicate_variant)"
	if err.Error() != want {
		t.Fatalf("Error(): got %q want %q", err.Error(), want)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(CodeStorage, "op", "x", nil) != nil {
		t.Fatalf("Wrap(nil) should be nil")
	}
}
