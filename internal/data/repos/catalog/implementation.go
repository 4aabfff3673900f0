package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/pyplots-catalog/internal/domain/catalog"
	"github.com/yungbote/pyplots-catalog/internal/pkg/dbctx"
	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
)

type ImplementationRepo interface {
	Create(dbc dbctx.Context, rows []*types.Implementation) ([]*types.Implementation, error)

	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Implementation, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Implementation, error)
	GetByKey(dbc dbctx.Context, key types.Key) (*types.Implementation, error)
	GetBySpecIDs(dbc dbctx.Context, specIDs []string) ([]*types.Implementation, error)

	// ListPage returns up to limit rows matching filter ordered by
	// (spec_id, library_id, variant), strictly after the cursor key. A zero
	// cursor starts from the beginning.
	ListPage(dbc dbctx.Context, filter types.ImplementationFilter, after types.Key, limit int) ([]*types.Implementation, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type implementationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImplementationRepo(db *gorm.DB, baseLog *logger.Logger) ImplementationRepo {
	return &implementationRepo{db: db, log: baseLog.With("repo", "ImplementationRepo")}
}

func (r *implementationRepo) Create(dbc dbctx.Context, rows []*types.Implementation) ([]*types.Implementation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Implementation{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *implementationRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Implementation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Implementation
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *implementationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Implementation, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *implementationRepo) GetByKey(dbc dbctx.Context, key types.Key) (*types.Implementation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Implementation
	err := t.WithContext(dbc.Ctx).
		Where("spec_id = ? AND library_id = ? AND variant = ?", key.SpecID, key.LibraryID, key.Variant).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *implementationRepo) GetBySpecIDs(dbc dbctx.Context, specIDs []string) ([]*types.Implementation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Implementation
	if len(specIDs) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("spec_id IN ?", specIDs).
		Order("spec_id, library_id, variant").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *implementationRepo) ListPage(dbc dbctx.Context, filter types.ImplementationFilter, after types.Key, limit int) ([]*types.Implementation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	q := t.WithContext(dbc.Ctx).Model(&types.Implementation{})
	if filter.SpecID != "" {
		q = q.Where("spec_id = ?", filter.SpecID)
	}
	if filter.LibraryID != "" {
		q = q.Where("library_id = ?", filter.LibraryID)
	}
	if filter.Tested != nil {
		q = q.Where("tested = ?", *filter.Tested)
	}
	if filter.MinQuality != nil {
		q = q.Where("quality_score IS NOT NULL AND quality_score >= ?", *filter.MinQuality)
	}
	if after != (types.Key{}) {
		q = q.Where(
			"((spec_id > ?) OR (spec_id = ? AND library_id > ?) OR (spec_id = ? AND library_id = ? AND variant > ?))",
			after.SpecID,
			after.SpecID, after.LibraryID,
			after.SpecID, after.LibraryID, after.Variant,
		)
	}
	var out []*types.Implementation
	if err := q.Order("spec_id, library_id, variant").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *implementationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.Implementation{}).
		Where("id = ?", id).
		Updates(updates).Error
}
