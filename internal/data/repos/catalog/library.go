package catalog

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/pyplots-catalog/internal/domain/catalog"
	"github.com/yungbote/pyplots-catalog/internal/pkg/dbctx"
	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
)

type LibraryRepo interface {
	Upsert(dbc dbctx.Context, rows []*types.Library) ([]*types.Library, error)
	GetByIDs(dbc dbctx.Context, ids []types.LibraryID) ([]*types.Library, error)
	GetByID(dbc dbctx.Context, id types.LibraryID) (*types.Library, error)
	List(dbc dbctx.Context, activeOnly bool) ([]*types.Library, error)
	UpdateVersions(dbc dbctx.Context, versions map[types.LibraryID]string) (int64, error)
}

type libraryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLibraryRepo(db *gorm.DB, baseLog *logger.Logger) LibraryRepo {
	return &libraryRepo{db: db, log: baseLog.With("repo", "LibraryRepo")}
}

func (r *libraryRepo) Upsert(dbc dbctx.Context, rows []*types.Library) ([]*types.Library, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Library{}, nil
	}
	err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "version", "documentation_url", "active"}),
		}).
		Create(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *libraryRepo) GetByIDs(dbc dbctx.Context, ids []types.LibraryID) ([]*types.Library, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Library
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *libraryRepo) GetByID(dbc dbctx.Context, id types.LibraryID) (*types.Library, error) {
	if id == "" {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []types.LibraryID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *libraryRepo) List(dbc dbctx.Context, activeOnly bool) ([]*types.Library, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(dbc.Ctx).Order("id")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var out []*types.Library
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateVersions sets version per library, touching only rows whose stored
// version differs. Returns the number of rows changed.
func (r *libraryRepo) UpdateVersions(dbc dbctx.Context, versions map[types.LibraryID]string) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var changed int64
	for id, version := range versions {
		res := t.WithContext(dbc.Ctx).
			Model(&types.Library{}).
			Where("id = ? AND version <> ?", id, version).
			Update("version", version)
		if res.Error != nil {
			return changed, res.Error
		}
		changed += res.RowsAffected
	}
	return changed, nil
}
