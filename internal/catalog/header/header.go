// Package header reads and rewrites the four-line docstring at the top of
// every rendering script:
//
//	pyplots.ai
//	<spec_id>: <Title>
//	Library: <library_id> <library_version> | Python <python_version>
//	Quality: <score>/100 | Created: <YYYY-MM-DD>
package header

import (
	"bytes"
	"errors"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
	"github.com/yungbote/pyplots-catalog/internal/pkg/fsutil"
)

const (
	Marker     = "pyplots.ai"
	DateLayout = "2006-01-02"
)

var (
	libraryLine = regexp.MustCompile(`Library:\s+(\S+)\s+(\S+)\s+\|\s+Python\s+(\S+)`)
	qualityLine = regexp.MustCompile(`^Quality:\s*(\S+?)\s*/\s*100(?:\s*\|\s*Created:\s*(\S+))?`)
	utf8BOM     = []byte{0xEF, 0xBB, 0xBF}
	defLine     = regexp.MustCompile(`(?m)^def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
)

type Header struct {
	SpecID         string
	Title          string
	Library        string
	LibraryVersion string
	PythonVersion  string
	// Quality is nil when the score is not a number ("pending").
	Quality *float64
	Created string

	// byte range of LibraryVersion in the parsed source
	versionStart int
	versionEnd   int
}

// LibraryID maps the declared library token to the closed set.
func (h *Header) LibraryID() (catalog.LibraryID, bool) {
	return catalog.ParseLibraryID(h.Library)
}

// CreatedAt parses the Created date.
func (h *Header) CreatedAt() (time.Time, bool) {
	t, err := time.Parse(DateLayout, h.Created)
	return t, err == nil
}

type line struct {
	text []byte
	off  int
}

// Parse extracts the header from a script's source.
func Parse(src []byte) (*Header, error) {
	return parse(src, "")
}

// ParseFile reads and parses the header of the script at path.
func ParseFile(path string) (*Header, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, catalog.Wrap(catalog.CodeMissingFile, "header.parse", path, err)
	}
	return parse(src, path)
}

func parse(src []byte, subject string) (*Header, error) {
	const op = "header.parse"
	lines, err := docstringLines(src)
	if err != nil {
		return nil, catalog.Errorf(catalog.CodeHeaderParse, op, subject, "%s", err.Error())
	}
	if len(lines) < 4 {
		return nil, catalog.Errorf(catalog.CodeHeaderParse, op, subject, "docstring holds %d of the four header lines", len(lines))
	}

	if got := string(bytes.TrimSpace(lines[0].text)); got != Marker {
		return nil, catalog.Errorf(catalog.CodeHeaderParse, op, subject, "first header line is %q, want %q", got, Marker)
	}

	h := &Header{}
	idLine := string(lines[1].text)
	colon := strings.IndexByte(idLine, ':')
	if colon < 0 {
		return nil, catalog.Errorf(catalog.CodeHeaderParse, op, subject, "second header line has no colon")
	}
	h.SpecID = strings.TrimSpace(idLine[:colon])
	h.Title = strings.TrimSpace(idLine[colon+1:])
	if !catalog.ValidSlug(h.SpecID) {
		return nil, catalog.Errorf(catalog.CodeHeaderParse, op, subject, "spec id %q is not lowercase kebab-case", h.SpecID)
	}

	m := libraryLine.FindSubmatchIndex(lines[2].text)
	if m == nil {
		return nil, catalog.Errorf(catalog.CodeHeaderParse, op, subject, "third header line does not match \"Library: <id> <version> | Python <version>\"")
	}
	text := lines[2].text
	h.Library = string(text[m[2]:m[3]])
	h.LibraryVersion = string(text[m[4]:m[5]])
	h.PythonVersion = string(text[m[6]:m[7]])
	h.versionStart = lines[2].off + m[4]
	h.versionEnd = lines[2].off + m[5]

	q := qualityLine.FindSubmatch(bytes.TrimSpace(lines[3].text))
	if q == nil {
		return nil, catalog.Errorf(catalog.CodeHeaderParse, op, subject, "fourth header line does not match \"Quality: <score>/100 | Created: <date>\"")
	}
	if score, err := strconv.ParseFloat(string(q[1]), 64); err == nil {
		h.Quality = &score
	}
	h.Created = string(q[2])
	return h, nil
}

// docstringLines returns up to four non-blank lines of the docstring that
// opens on the first non-blank line of src. Text following the opening
// quotes on the same line counts as a line.
func docstringLines(src []byte) ([]line, error) {
	pos := 0
	if bytes.HasPrefix(src, utf8BOM) {
		pos = len(utf8BOM)
	}

	var delim []byte
	var out []line
	for pos < len(src) && len(out) < 4 {
		end := bytes.IndexByte(src[pos:], '\n')
		if end < 0 {
			end = len(src)
		} else {
			end += pos
		}
		raw := src[pos:end]
		off := pos
		pos = end + 1

		if delim == nil {
			trimmed := bytes.TrimLeft(raw, " \t")
			if len(bytes.TrimSpace(trimmed)) == 0 {
				continue
			}
			switch {
			case bytes.HasPrefix(trimmed, []byte(`"""`)):
				delim = []byte(`"""`)
			case bytes.HasPrefix(trimmed, []byte(`'''`)):
				delim = []byte(`'''`)
			default:
				return nil, errNoDocstring
			}
			skip := len(raw) - len(trimmed) + len(delim)
			raw = raw[skip:]
			off += skip
		}

		closed := false
		if i := bytes.Index(raw, delim); i >= 0 {
			raw = raw[:i]
			closed = true
		}
		raw = bytes.TrimSuffix(raw, []byte("\r"))
		if len(bytes.TrimSpace(raw)) > 0 {
			out = append(out, line{text: raw, off: off})
		}
		if closed {
			break
		}
	}
	if delim == nil {
		return nil, errNoDocstring
	}
	return out, nil
}

var errNoDocstring = errors.New("first non-blank line does not open a docstring")

// RewriteVersion replaces the library version token of the header with
// version, leaving every other byte of src in place. It reports whether
// anything changed; an equal token returns src untouched.
func RewriteVersion(src []byte, version string) ([]byte, bool, error) {
	return rewrite(src, version, "")
}

// RewriteFile applies RewriteVersion to the script at path and writes the
// result atomically when the token changed.
func RewriteFile(path, version string) (bool, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return false, catalog.Wrap(catalog.CodeMissingFile, "header.rewrite", path, err)
	}
	out, changed, err := rewrite(src, version, path)
	if err != nil || !changed {
		return false, err
	}
	if err := fsutil.WriteFileAtomic(path, out, 0o644); err != nil {
		return false, catalog.Wrap(catalog.CodeStorage, "header.rewrite", path, err)
	}
	return true, nil
}

func rewrite(src []byte, version, subject string) ([]byte, bool, error) {
	if version == "" || strings.ContainsAny(version, " \t\r\n") {
		return nil, false, catalog.Errorf(catalog.CodeValidation, "header.rewrite", subject, "version %q is not a single token", version)
	}
	h, err := parse(src, subject)
	if err != nil {
		return nil, false, err
	}
	if h.LibraryVersion == version {
		return src, false, nil
	}
	out := make([]byte, 0, len(src)-len(h.LibraryVersion)+len(version))
	out = append(out, src[:h.versionStart]...)
	out = append(out, version...)
	out = append(out, src[h.versionEnd:]...)
	return out, true, nil
}

// PlotFunction returns the first top-level function a script defines, or
// catalog.DefaultPlotFunction when the script runs at module level.
func PlotFunction(src []byte) string {
	if m := defLine.FindSubmatch(src); m != nil {
		return string(m[1])
	}
	return catalog.DefaultPlotFunction
}
