package catalog

import (
	"strings"
	"time"
)

// LibraryID is the canonical short name of a supported plotting library.
// The set is closed: adding a library is a schema migration.
type LibraryID string

const (
	LibraryMatplotlib LibraryID = "matplotlib"
	LibrarySeaborn    LibraryID = "seaborn"
	LibraryPlotly     LibraryID = "plotly"
	LibraryBokeh      LibraryID = "bokeh"
	LibraryAltair     LibraryID = "altair"
	LibraryPlotnine   LibraryID = "plotnine"
	LibraryPygal      LibraryID = "pygal"
	LibraryHighcharts LibraryID = "highcharts"
	LibraryLetsPlot   LibraryID = "letsplot"
)

// UnknownVersion is the version token used when the installed version of a
// library cannot be determined.
const UnknownVersion = "unknown"

// LibraryInfo carries the seed facts for one member of the closed set.
type LibraryInfo struct {
	ID               LibraryID
	Name             string
	PackageName      string
	DocumentationURL string
}

var libraries = []LibraryInfo{
	{ID: LibraryMatplotlib, Name: "Matplotlib", PackageName: "matplotlib", DocumentationURL: "https://matplotlib.org/stable/"},
	{ID: LibrarySeaborn, Name: "Seaborn", PackageName: "seaborn", DocumentationURL: "https://seaborn.pydata.org/"},
	{ID: LibraryPlotly, Name: "Plotly", PackageName: "plotly", DocumentationURL: "https://plotly.com/python/"},
	{ID: LibraryBokeh, Name: "Bokeh", PackageName: "bokeh", DocumentationURL: "https://docs.bokeh.org/"},
	{ID: LibraryAltair, Name: "Altair", PackageName: "altair", DocumentationURL: "https://altair-viz.github.io/"},
	{ID: LibraryPlotnine, Name: "plotnine", PackageName: "plotnine", DocumentationURL: "https://plotnine.org/"},
	{ID: LibraryPygal, Name: "Pygal", PackageName: "pygal", DocumentationURL: "https://www.pygal.org/"},
	{ID: LibraryHighcharts, Name: "Highcharts", PackageName: "highcharts-core", DocumentationURL: "https://www.highcharts.com/docs/"},
	{ID: LibraryLetsPlot, Name: "Lets-Plot", PackageName: "lets-plot", DocumentationURL: "https://lets-plot.org/"},
}

// Libraries returns the closed library set in seed order.
func Libraries() []LibraryInfo {
	out := make([]LibraryInfo, len(libraries))
	copy(out, libraries)
	return out
}

// LibraryIDs returns the ids of the closed library set in seed order.
func LibraryIDs() []LibraryID {
	out := make([]LibraryID, 0, len(libraries))
	for _, l := range libraries {
		out = append(out, l.ID)
	}
	return out
}

// LookupLibrary returns the seed facts for id.
func LookupLibrary(id LibraryID) (LibraryInfo, bool) {
	for _, l := range libraries {
		if l.ID == id {
			return l, true
		}
	}
	return LibraryInfo{}, false
}

// ParseLibraryID maps a raw string (file basename, YAML value, header token)
// to a member of the closed set.
func ParseLibraryID(raw string) (LibraryID, bool) {
	id := LibraryID(strings.ToLower(strings.TrimSpace(raw)))
	return id, id.Valid()
}

func (id LibraryID) Valid() bool {
	_, ok := LookupLibrary(id)
	return ok
}

func (id LibraryID) String() string { return string(id) }

type Library struct {
	ID               LibraryID `gorm:"column:id;type:varchar(32);primaryKey" json:"id"`
	Name             string    `gorm:"column:name;not null" json:"name"`
	Version          string    `gorm:"column:version;type:varchar(64);not null" json:"version"`
	DocumentationURL *string   `gorm:"column:documentation_url" json:"documentation_url,omitempty"`
	Active           bool      `gorm:"column:active;not null" json:"active"`
	CreatedAt        time.Time `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
}

func (Library) TableName() string { return "libraries" }

// SeedLibraries builds the rows inserted by the initial migration.
func SeedLibraries() []*Library {
	out := make([]*Library, 0, len(libraries))
	for _, l := range libraries {
		docURL := l.DocumentationURL
		out = append(out, &Library{
			ID:               l.ID,
			Name:             l.Name,
			Version:          UnknownVersion,
			DocumentationURL: &docURL,
			Active:           true,
		})
	}
	return out
}
