package catalog

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// DefaultVariant is the variant of the canonical realization of a (spec, library) pair.
	DefaultVariant = "default"
	// DefaultPlotFunction is recorded for scripts that expose no entry function.
	DefaultPlotFunction = "<module>"
)

type Implementation struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SpecID        string    `gorm:"column:spec_id;type:varchar(128);not null;index" json:"spec_id"`
	LibraryID     LibraryID `gorm:"column:library_id;type:varchar(32);not null;index" json:"library_id"`
	PlotFunction  string    `gorm:"column:plot_function;not null" json:"plot_function"`
	Variant       string    `gorm:"column:variant;type:varchar(64);not null" json:"variant"`
	FilePath      string    `gorm:"column:file_path;not null" json:"file_path"`
	PreviewURL    *string   `gorm:"column:preview_url" json:"preview_url,omitempty"`
	PythonVersion string    `gorm:"column:python_version;type:varchar(32);not null" json:"python_version"`
	Tested        bool      `gorm:"column:tested;not null" json:"tested"`
	QualityScore  *float64  `gorm:"column:quality_score" json:"quality_score,omitempty"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null;autoUpdateTime" json:"updated_at"`
}

func (Implementation) TableName() string { return "implementations" }

func (i *Implementation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Normalize fills defaults: variant "default", conventional plot function,
// forward-slash file path.
func (i *Implementation) Normalize() {
	i.SpecID = strings.TrimSpace(i.SpecID)
	i.Variant = strings.TrimSpace(i.Variant)
	if i.Variant == "" {
		i.Variant = DefaultVariant
	}
	if strings.TrimSpace(i.PlotFunction) == "" {
		i.PlotFunction = DefaultPlotFunction
	}
	if fp := strings.TrimSpace(i.FilePath); fp != "" {
		i.FilePath = path.Clean(strings.ReplaceAll(fp, `\`, "/"))
	}
}

// Key is the natural identity of an implementation.
type Key struct {
	SpecID    string
	LibraryID LibraryID
	Variant   string
}

func (i *Implementation) Key() Key {
	return Key{SpecID: i.SpecID, LibraryID: i.LibraryID, Variant: i.Variant}
}

func (k Key) String() string {
	return k.SpecID + "/" + string(k.LibraryID) + "/" + k.Variant
}

// ImplementationFilter narrows a listing. Zero fields do not filter.
type ImplementationFilter struct {
	SpecID     string
	LibraryID  LibraryID
	Tested     *bool
	MinQuality *float64
}

// ValidQualityScore reports whether score lies in [0, 100].
func ValidQualityScore(score float64) bool {
	return score >= 0 && score <= 100
}
