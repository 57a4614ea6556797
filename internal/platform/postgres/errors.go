package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/owl-api/internal/task"
)

// SQLSTATE codes mapped by MapError.
const (
	uniqueViolationCode  = "23505"
	checkViolationCode   = "23514"
	notNullViolationCode = "23502"
)

// ErrInvalidEntity means a task row broke a table constraint.
var ErrInvalidEntity = errors.New("task row violates a constraint")

// MapError translates driver errors into task sentinels. The driver error stays
// in the message for logs; callers match with errors.Is.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", task.ErrTaskNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return fmt.Errorf("%w: %v", task.ErrDuplicateTask, err)
		case checkViolationCode:
			return fmt.Errorf("%w: check %s: %v", ErrInvalidEntity, pgErr.ConstraintName, err)
		case notNullViolationCode:
			return fmt.Errorf("%w: column %s is null: %v", ErrInvalidEntity, pgErr.ColumnName, err)
		}
	}

	return err
}

// expectOneRow reports task.ErrTaskNotFound for a statement that matched
// nothing.
func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	switch {
	case err != nil:
		return fmt.Errorf("rows affected: %w", err)
	case n == 0:
		return task.ErrTaskNotFound
	}
	return nil
}
