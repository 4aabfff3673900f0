package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
)

var migrations = []Migration{
	{Version: 1, Name: "create_catalog_tables", Up: createCatalogTables},
}

func createCatalogTables(tx *gorm.DB, d Dialect) error {
	err := execAll(tx,
		fmt.Sprintf(`
		CREATE TABLE specs (
			id VARCHAR(128) PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			data_requirements %[1]s NOT NULL,
			optional_params %[1]s,
			tags %[1]s,
			created_at %[2]s NOT NULL,
			updated_at %[2]s NOT NULL
		)`, d.JSON, d.Time),
		fmt.Sprintf(`
		CREATE TABLE libraries (
			id VARCHAR(32) PRIMARY KEY,
			name TEXT NOT NULL,
			version VARCHAR(64) NOT NULL DEFAULT 'unknown',
			documentation_url TEXT,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at %s NOT NULL
		)`, d.Time),
		fmt.Sprintf(`
		CREATE TABLE implementations (
			id %[1]s PRIMARY KEY,
			spec_id VARCHAR(128) NOT NULL REFERENCES specs(id) ON DELETE CASCADE,
			library_id VARCHAR(32) NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
			plot_function TEXT NOT NULL DEFAULT '',
			variant VARCHAR(64) NOT NULL DEFAULT 'default',
			file_path TEXT NOT NULL,
			preview_url TEXT,
			python_version VARCHAR(32) NOT NULL DEFAULT '',
			tested BOOLEAN NOT NULL DEFAULT FALSE,
			quality_score %[2]s CHECK (quality_score IS NULL OR (quality_score >= 0 AND quality_score <= 100)),
			created_at %[3]s NOT NULL,
			updated_at %[3]s NOT NULL
		)`, d.UUID, d.Real, d.Time),
		`CREATE UNIQUE INDEX idx_implementations_spec_library_variant ON implementations (spec_id, library_id, variant)`,
		`CREATE INDEX idx_implementations_spec_id ON implementations (spec_id)`,
		`CREATE INDEX idx_implementations_library_id ON implementations (library_id)`,
	)
	if err != nil {
		return err
	}
	return tx.Create(catalog.SeedLibraries()).Error
}
