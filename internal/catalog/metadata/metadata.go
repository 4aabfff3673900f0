// Package metadata reads and writes the YAML sidecar that mirrors each
// implementation's header. Reading is permissive. Writing emits the known
// keys in a fixed order with two-space indentation, followed by any other
// keys in the order they were read.
package metadata

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/pyplots-catalog/internal/catalog/layout"
	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
	"github.com/yungbote/pyplots-catalog/internal/pkg/fsutil"
)

const (
	KeySpecID         = "spec_id"
	KeyLibrary        = "library"
	KeyLibraryVersion = "library_version"
	KeyPythonVersion  = "python_version"
	KeyVariant        = "variant"
	KeyQualityScore   = "quality_score"
	KeyTags           = "tags"
	KeyCreatedAt      = "created_at"
)

// KeyOrder is the order in which known keys are written.
var KeyOrder = []string{
	KeySpecID,
	KeyLibrary,
	KeyLibraryVersion,
	KeyPythonVersion,
	KeyVariant,
	KeyQualityScore,
	KeyTags,
	KeyCreatedAt,
}

type pair struct {
	key   *yaml.Node
	value *yaml.Node
}

type File struct {
	SpecID         string
	Library        string
	LibraryVersion string
	PythonVersion  string
	Variant        string
	QualityScore   *float64
	Tags           []string
	CreatedAt      string

	doc   *yaml.Node
	root  *yaml.Node
	known map[string]pair
	extra []pair
}

// VariantOrDefault returns the variant, "default" when unset.
func (f *File) VariantOrDefault() string {
	if strings.TrimSpace(f.Variant) == "" {
		return catalog.DefaultVariant
	}
	return f.Variant
}

// Extra returns the keys outside the known set, in file order.
func (f *File) Extra() []string {
	out := make([]string, 0, len(f.extra))
	for _, p := range f.extra {
		out = append(out, p.key.Value)
	}
	return out
}

// SetLibraryVersion sets library_version and reports whether it changed.
func (f *File) SetLibraryVersion(v string) bool {
	if f.LibraryVersion == v {
		return false
	}
	f.LibraryVersion = v
	return true
}

// Parse decodes a sidecar. Values are taken as written: a version of 3.10
// stays "3.10".
func Parse(data []byte) (*File, error) {
	return parse(data, "")
}

// Read parses the sidecar at path.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, catalog.Wrap(catalog.CodeMissingFile, "metadata.read", path, err)
	}
	return parse(data, path)
}

func parse(data []byte, subject string) (*File, error) {
	const op = "metadata.parse"
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, catalog.NewError(catalog.CodeValidation, op, subject, "malformed YAML: "+err.Error(), err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, catalog.Errorf(catalog.CodeValidation, op, subject, "file is empty")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, catalog.Errorf(catalog.CodeValidation, op, subject, "top level must be a mapping")
	}

	f := &File{doc: &doc, root: root, known: map[string]pair{}}
	seen := map[string]bool{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if seen[k.Value] {
			return nil, catalog.Errorf(catalog.CodeValidation, op, subject, "duplicate key %q", k.Value)
		}
		seen[k.Value] = true
		if !isKnown(k.Value) {
			f.extra = append(f.extra, pair{key: k, value: v})
			continue
		}
		f.known[k.Value] = pair{key: k, value: v}
		if err := f.assign(k.Value, v); err != nil {
			return nil, catalog.Errorf(catalog.CodeValidation, op, subject, "%s: %s", k.Value, err.Error())
		}
	}
	return f, nil
}

func isKnown(key string) bool {
	for _, k := range KeyOrder {
		if k == key {
			return true
		}
	}
	return false
}

func isNull(v *yaml.Node) bool {
	return v.Kind == yaml.ScalarNode && v.ShortTag() == "!!null"
}

func (f *File) assign(key string, v *yaml.Node) error {
	if key == KeyTags {
		if isNull(v) {
			return nil
		}
		if v.Kind != yaml.SequenceNode {
			return fmt.Errorf("must be a list of strings")
		}
		f.Tags = make([]string, 0, len(v.Content))
		for _, item := range v.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("must be a list of strings")
			}
			f.Tags = append(f.Tags, item.Value)
		}
		return nil
	}

	if v.Kind != yaml.ScalarNode {
		return fmt.Errorf("must be a scalar")
	}
	if isNull(v) {
		return nil
	}
	switch key {
	case KeySpecID:
		f.SpecID = v.Value
	case KeyLibrary:
		f.Library = v.Value
	case KeyLibraryVersion:
		f.LibraryVersion = v.Value
	case KeyPythonVersion:
		f.PythonVersion = v.Value
	case KeyVariant:
		f.Variant = v.Value
	case KeyCreatedAt:
		f.CreatedAt = v.Value
	case KeyQualityScore:
		score, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			return fmt.Errorf("%q is not a number", v.Value)
		}
		f.QualityScore = &score
	}
	return nil
}

// Marshal renders the file in canonical form. Values that did not change
// since Parse keep their original node, so comments and quoting survive.
func (f *File) Marshal() ([]byte, error) {
	mapping := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	doc := &yaml.Node{Kind: yaml.DocumentNode}
	if f.root != nil {
		mapping.HeadComment = f.root.HeadComment
		mapping.LineComment = f.root.LineComment
		mapping.FootComment = f.root.FootComment
	}
	if f.doc != nil {
		doc.HeadComment = f.doc.HeadComment
		doc.FootComment = f.doc.FootComment
	}

	for _, key := range KeyOrder {
		value := f.node(key)
		orig, had := f.known[key]
		if value == nil {
			if had {
				// null or empty in the source; written back as it was
				mapping.Content = append(mapping.Content, orig.key, orig.value)
			}
			continue
		}
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
		if had {
			keyNode = orig.key
			if sameValue(orig.value, value) {
				value = orig.value
			} else if value.Kind == yaml.ScalarNode && orig.value.Kind == yaml.ScalarNode {
				value.LineComment = orig.value.LineComment
				if orig.value.ShortTag() == "!!str" {
					value.Style = orig.value.Style
				}
			}
		}
		mapping.Content = append(mapping.Content, keyNode, value)
	}
	for _, p := range f.extra {
		mapping.Content = append(mapping.Content, p.key, p.value)
	}
	doc.Content = []*yaml.Node{mapping}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, catalog.Wrap(catalog.CodeValidation, "metadata.marshal", f.SpecID, err)
	}
	if err := enc.Close(); err != nil {
		return nil, catalog.Wrap(catalog.CodeValidation, "metadata.marshal", f.SpecID, err)
	}
	return buf.Bytes(), nil
}

// node builds the value node for key from the struct fields, nil when the
// key is to be left out.
func (f *File) node(key string) *yaml.Node {
	str := func(v string) *yaml.Node {
		if v == "" {
			return nil
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
	}
	switch key {
	case KeySpecID:
		return str(f.SpecID)
	case KeyLibrary:
		return str(f.Library)
	case KeyLibraryVersion:
		return str(f.LibraryVersion)
	case KeyPythonVersion:
		return str(f.PythonVersion)
	case KeyVariant:
		return str(f.Variant)
	case KeyCreatedAt:
		return str(f.CreatedAt)
	case KeyQualityScore:
		if f.QualityScore == nil {
			return nil
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatFloat(*f.QualityScore, 'f', -1, 64)}
	case KeyTags:
		if f.Tags == nil {
			return nil
		}
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if len(f.Tags) == 0 {
			seq.Style = yaml.FlowStyle
		}
		for _, t := range f.Tags {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t})
		}
		return seq
	}
	return nil
}

func sameValue(a, b *yaml.Node) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case yaml.ScalarNode:
		if a.Value == b.Value {
			return true
		}
		// 92 and 92.0 are the same score.
		x, errA := strconv.ParseFloat(a.Value, 64)
		y, errB := strconv.ParseFloat(b.Value, 64)
		return errA == nil && errB == nil && b.Tag == "" && x == y
	case yaml.SequenceNode:
		if len(a.Content) != len(b.Content) {
			return false
		}
		for i := range a.Content {
			if !sameValue(a.Content[i], b.Content[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Write renders f canonically and replaces path atomically.
func Write(path string, f *File) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return catalog.Wrap(catalog.CodeStorage, "metadata.write", path, err)
	}
	return nil
}

// Validate checks that spec_id, library and variant agree with the
// sidecar's position in the plots tree.
func Validate(path string, f *File) error {
	const op = "metadata.validate"
	entry, ok := layout.ParseMetadataPath(filepath.ToSlash(path))
	if !ok {
		return catalog.Errorf(catalog.CodeValidation, op, path, "not a plots/<spec>/metadata/<library>.yaml path")
	}
	if f.SpecID != entry.SpecID {
		return catalog.Errorf(catalog.CodeValidation, op, path, "spec_id %q does not match directory %q", f.SpecID, entry.SpecID)
	}
	lib, ok := catalog.ParseLibraryID(f.Library)
	if !ok {
		return catalog.Errorf(catalog.CodeUnknownLibrary, op, path, "library %q is not one of the supported libraries", f.Library)
	}
	if lib != entry.LibraryID {
		return catalog.Errorf(catalog.CodeValidation, op, path, "library %q does not match file name %q", f.Library, entry.LibraryID)
	}
	if f.VariantOrDefault() != entry.Variant {
		return catalog.Errorf(catalog.CodeValidation, op, path, "variant %q does not match file name variant %q", f.VariantOrDefault(), entry.Variant)
	}
	if f.QualityScore != nil && !catalog.ValidQualityScore(*f.QualityScore) {
		return catalog.Errorf(catalog.CodeValidation, op, path, "quality_score %v is outside [0, 100]", *f.QualityScore)
	}
	return nil
}

// ReadValid reads the sidecar at path and validates it against its position.
func ReadValid(path string) (*File, error) {
	f, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(path, f); err != nil {
		return nil, err
	}
	return f, nil
}
