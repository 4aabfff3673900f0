package versionsync

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
)

// Exit codes of the synchronizer command.
const (
	ExitOK          = 0
	ExitFileFailed  = 1
	ExitDBFailed    = 2
	ExitQueryFailed = 3
	// ExitSetupFailed means the run never started: bad flags, config or
	// overrides.
	ExitSetupFailed = 4
)

// Failure is one file that could not be synchronized.
type Failure struct {
	Path string
	Code catalog.ErrorCode
	Err  error
}

type Summary struct {
	DryRun bool
	// Versions holds the authoritative version of every library,
	// catalog.UnknownVersion where the query had no answer.
	Versions map[catalog.LibraryID]string
	QueryErr error

	MetadataChecked        int
	MetadataChanged        int
	ImplementationsChecked int
	ImplementationsChanged int
	// Ignored counts files under plots/ that do not name a library.
	Ignored int

	DBSkipped        bool
	LibrariesUpdated int64
	DBErr            error

	Interrupted bool
	Failures    []Failure
}

// SkippedLibraries lists the libraries whose version is unknown.
func (s *Summary) SkippedLibraries() []catalog.LibraryID {
	var out []catalog.LibraryID
	for _, id := range catalog.LibraryIDs() {
		if v, ok := s.Versions[id]; !ok || v == catalog.UnknownVersion {
			out = append(out, id)
		}
	}
	return out
}

// FailuresByCategory counts failures per error code.
func (s *Summary) FailuresByCategory() map[catalog.ErrorCode]int {
	out := map[catalog.ErrorCode]int{}
	for _, f := range s.Failures {
		out[f.Code]++
	}
	return out
}

// Writes is the number of files rewritten, or that would be in a dry run.
func (s *Summary) Writes() int {
	return s.MetadataChanged + s.ImplementationsChanged
}

func (s *Summary) ExitCode() int {
	switch {
	case len(s.SkippedLibraries()) == len(catalog.LibraryIDs()):
		return ExitQueryFailed
	case s.DBErr != nil:
		return ExitDBFailed
	case len(s.Failures) > 0 || s.Interrupted:
		return ExitFileFailed
	}
	return ExitOK
}

// Print writes the compact run report.
func (s *Summary) Print(w io.Writer) {
	verb := "changed"
	if s.DryRun {
		verb = "would change"
	}
	known := len(catalog.LibraryIDs()) - len(s.SkippedLibraries())
	fmt.Fprintf(w, "libraries: %d known", known)
	if skipped := s.SkippedLibraries(); len(skipped) > 0 {
		names := make([]string, 0, len(skipped))
		for _, id := range skipped {
			names = append(names, string(id))
		}
		fmt.Fprintf(w, ", %d unknown (%s)", len(skipped), strings.Join(names, ", "))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "metadata files: %d %s of %d\n", s.MetadataChanged, verb, s.MetadataChecked)
	fmt.Fprintf(w, "implementation files: %d %s of %d\n", s.ImplementationsChanged, verb, s.ImplementationsChecked)
	switch {
	case s.DBErr != nil:
		fmt.Fprintf(w, "database: unavailable: %v\n", s.DBErr)
	case s.DBSkipped:
		fmt.Fprintln(w, "database: skipped")
	default:
		fmt.Fprintf(w, "database: %d library rows updated\n", s.LibrariesUpdated)
	}

	byCode := s.FailuresByCategory()
	if len(byCode) == 0 {
		fmt.Fprintln(w, "failures: none")
		return
	}
	codes := make([]string, 0, len(byCode))
	for c := range byCode {
		codes = append(codes, string(c))
	}
	sort.Strings(codes)
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, fmt.Sprintf("%s=%d", c, byCode[catalog.ErrorCode(c)]))
	}
	fmt.Fprintf(w, "failures: %d (%s)\n", len(s.Failures), strings.Join(parts, " "))
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  %s: %v\n", f.Path, f.Err)
	}
}
