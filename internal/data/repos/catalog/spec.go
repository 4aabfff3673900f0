package catalog

import (
	"gorm.io/gorm"

	types "github.com/yungbote/pyplots-catalog/internal/domain/catalog"
	"github.com/yungbote/pyplots-catalog/internal/pkg/dbctx"
	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
)

type SpecRepo interface {
	Create(dbc dbctx.Context, rows []*types.Spec) ([]*types.Spec, error)
	GetByIDs(dbc dbctx.Context, ids []string) ([]*types.Spec, error)
	GetByID(dbc dbctx.Context, id string) (*types.Spec, error)
	List(dbc dbctx.Context) ([]*types.Spec, error)
	DeleteByIDs(dbc dbctx.Context, ids []string) (int64, error)
}

type specRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSpecRepo(db *gorm.DB, baseLog *logger.Logger) SpecRepo {
	return &specRepo{db: db, log: baseLog.With("repo", "SpecRepo")}
}

func (r *specRepo) Create(dbc dbctx.Context, rows []*types.Spec) ([]*types.Spec, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Spec{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *specRepo) GetByIDs(dbc dbctx.Context, ids []string) ([]*types.Spec, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Spec
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *specRepo) GetByID(dbc dbctx.Context, id string) (*types.Spec, error) {
	if id == "" {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []string{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *specRepo) List(dbc dbctx.Context) ([]*types.Spec, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Spec
	if err := t.WithContext(dbc.Ctx).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteByIDs removes specs; implementation rows go with them through the
// ON DELETE CASCADE foreign key.
func (r *specRepo) DeleteByIDs(dbc dbctx.Context, ids []string) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Delete(&types.Spec{})
	return res.RowsAffected, res.Error
}
