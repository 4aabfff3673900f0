package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/pyplots-catalog/internal/data/repos/catalog"
	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
)

type SpecRepo = catalog.SpecRepo
type LibraryRepo = catalog.LibraryRepo
type ImplementationRepo = catalog.ImplementationRepo

func NewSpecRepo(db *gorm.DB, baseLog *logger.Logger) SpecRepo {
	return catalog.NewSpecRepo(db, baseLog)
}
func NewLibraryRepo(db *gorm.DB, baseLog *logger.Logger) LibraryRepo {
	return catalog.NewLibraryRepo(db, baseLog)
}
func NewImplementationRepo(db *gorm.DB, baseLog *logger.Logger) ImplementationRepo {
	return catalog.NewImplementationRepo(db, baseLog)
}

// Catalog bundles the three catalog repos over one handle.
type Catalog struct {
	Specs           SpecRepo
	Libraries       LibraryRepo
	Implementations ImplementationRepo
}

func NewCatalog(db *gorm.DB, baseLog *logger.Logger) Catalog {
	return Catalog{
		Specs:           NewSpecRepo(db, baseLog),
		Libraries:       NewLibraryRepo(db, baseLog),
		Implementations: NewImplementationRepo(db, baseLog),
	}
}
