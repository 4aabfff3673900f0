package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
)

// Migration is one numbered schema step. Up runs inside the transaction
// that also records the version.
type Migration struct {
	Version int
	Name    string
	Up      func(tx *gorm.DB, d Dialect) error
}

// SchemaMigration is a row of the migrations bookkeeping table.
type SchemaMigration struct {
	Version   int       `gorm:"column:version;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	AppliedAt time.Time `gorm:"column:applied_at;not null"`
}

func (SchemaMigration) TableName() string { return "schema_migrations" }

// Dialect holds the column types that differ between drivers.
type Dialect struct {
	Name string
	JSON string
	UUID string
	Time string
	Real string
}

func DialectFor(db *gorm.DB) Dialect {
	switch db.Dialector.Name() {
	case DriverPostgres:
		return Dialect{Name: DriverPostgres, JSON: "JSONB", UUID: "UUID", Time: "TIMESTAMPTZ", Real: "DOUBLE PRECISION"}
	default:
		return Dialect{Name: db.Dialector.Name(), JSON: "TEXT", UUID: "VARCHAR(36)", Time: "DATETIME", Real: "REAL"}
	}
}

// Migrations returns the ordered migration list.
func Migrations() []Migration {
	out := make([]Migration, len(migrations))
	copy(out, migrations)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

func ensureMigrationsTable(ctx context.Context, db *gorm.DB) error {
	d := DialectFor(db)
	return db.WithContext(ctx).Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at %s NOT NULL
		)`, d.Time)).Error
}

// CurrentVersion returns the highest applied migration, 0 on a fresh database.
func CurrentVersion(ctx context.Context, db *gorm.DB) (int, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}
	var version sql.NullInt64
	row := db.WithContext(ctx).Raw("SELECT MAX(version) FROM schema_migrations").Row()
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(version.Int64), nil
}

// Migrate applies every pending migration in order, one transaction each,
// and returns the versions it applied.
func Migrate(ctx context.Context, db *gorm.DB, logg *logger.Logger) ([]int, error) {
	current, err := CurrentVersion(ctx, db)
	if err != nil {
		return nil, err
	}
	d := DialectFor(db)
	var applied []int
	for _, m := range Migrations() {
		if m.Version <= current {
			continue
		}
		m := m
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := m.Up(tx, d); err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{
				Version:   m.Version,
				Name:      m.Name,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			logg.Error("Migration failed", "version", m.Version, "name", m.Name, "error", err)
			return applied, fmt.Errorf("migration %04d_%s: %w", m.Version, m.Name, err)
		}
		logg.Info("Migration applied", "version", m.Version, "name", m.Name)
		applied = append(applied, m.Version)
	}
	return applied, nil
}

func (s *Service) Migrate(ctx context.Context) ([]int, error) {
	return Migrate(ctx, s.db, s.log)
}

func execAll(tx *gorm.DB, stmts ...string) error {
	for _, stmt := range stmts {
		if err := tx.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
