package testutil

import (
	"context"
	"testing"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
)

func SeedSpec(tb testing.TB, ctx context.Context, tx *gorm.DB, id string) *catalog.Spec {
	tb.Helper()
	s := &catalog.Spec{
		ID:               id,
		Title:            "Spec " + id,
		DataRequirements: datatypes.JSON([]byte(`{"shape":"xy"}`)),
		OptionalParams:   datatypes.JSON([]byte("{}")),
	}
	s.SetTags([]string{"test"})
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed spec: %v", err)
	}
	return s
}

func SeedImplementation(tb testing.TB, ctx context.Context, tx *gorm.DB, specID string, lib catalog.LibraryID, variant string) *catalog.Implementation {
	tb.Helper()
	impl := &catalog.Implementation{
		SpecID:        specID,
		LibraryID:     lib,
		Variant:       variant,
		FilePath:      "plots/" + specID + "/implementations/" + string(lib) + ".py",
		PythonVersion: "3.12+",
	}
	impl.Normalize()
	if err := tx.WithContext(ctx).Create(impl).Error; err != nil {
		tb.Fatalf("seed implementation: %v", err)
	}
	return impl
}
