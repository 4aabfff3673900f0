package registry

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
)

// MapError maps storage failures into catalog error codes. conflict is the
// code used for unique violations, which differs per operation
// (duplicate_id for specs, duplicate_variant for implementations).
func MapError(op, subject string, conflict catalog.ErrorCode, err error) error {
	if err == nil {
		return nil
	}
	var catErr *catalog.Error
	if errors.As(err, &catErr) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return catalog.NewError(conflict, op, subject, "already exists", err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return catalog.NewError(catalog.CodeMissingParent, op, subject, "referenced spec or library does not exist", err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return catalog.NewError(catalog.CodeNotFound, op, subject, "not found", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return catalog.NewError(catalog.CodeStorage, op, subject, "interrupted", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return catalog.NewError(conflict, op, subject, "already exists", err) // unique_violation
		case "23503":
			return catalog.NewError(catalog.CodeMissingParent, op, subject, "referenced spec or library does not exist", err) // foreign_key_violation
		case "23514":
			return catalog.NewError(catalog.CodeValidation, op, subject, "check constraint failed", err)
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint"), strings.Contains(msg, "duplicate key"):
		return catalog.NewError(conflict, op, subject, "already exists", err)
	case strings.Contains(msg, "foreign key constraint"):
		return catalog.NewError(catalog.CodeMissingParent, op, subject, "referenced spec or library does not exist", err)
	case strings.Contains(msg, "check constraint"):
		return catalog.NewError(catalog.CodeValidation, op, subject, "check constraint failed", err)
	default:
		return catalog.Wrap(catalog.CodeStorage, op, subject, err)
	}
}
