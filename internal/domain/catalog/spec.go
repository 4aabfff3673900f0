package catalog

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"gorm.io/datatypes"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidSlug reports whether s is a lowercase kebab-case spec id.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

type Spec struct {
	ID               string         `gorm:"column:id;type:varchar(128);primaryKey" json:"id"`
	Title            string         `gorm:"column:title;not null" json:"title"`
	Description      *string        `gorm:"column:description;type:text" json:"description,omitempty"`
	DataRequirements datatypes.JSON `gorm:"column:data_requirements;type:jsonb;not null" json:"data_requirements"`
	OptionalParams   datatypes.JSON `gorm:"column:optional_params;type:jsonb" json:"optional_params,omitempty"`
	Tags             datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags,omitempty"`
	CreatedAt        time.Time      `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;not null;autoUpdateTime" json:"updated_at"`
}

func (Spec) TableName() string { return "specs" }

// TagList decodes the persisted tags. Malformed JSON yields nil.
func (s *Spec) TagList() []string {
	if s == nil || len(s.Tags) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(s.Tags, &tags); err != nil {
		return nil
	}
	return tags
}

// SetTags stores tags as an ordered set: blanks dropped, first occurrence wins.
func (s *Spec) SetTags(tags []string) {
	norm := NormalizeTags(tags)
	b, _ := json.Marshal(norm)
	s.Tags = datatypes.JSON(b)
}

func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// HasDataRequirements reports whether data_requirements holds a JSON object.
func (s *Spec) HasDataRequirements() bool {
	if s == nil {
		return false
	}
	raw := strings.TrimSpace(string(s.DataRequirements))
	if raw == "" || raw == "null" {
		return false
	}
	var obj map[string]any
	return json.Unmarshal([]byte(raw), &obj) == nil
}
