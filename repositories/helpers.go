package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// SQLExecutor is satisfied by *sqlx.DB and *sqlx.Tx so repository calls can
// take part in a caller's transaction.
type SQLExecutor interface {
	sqlx.ExtContext
}

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func checkAffectedRows(result sql.Result, notFoundError error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFoundError
	}
	return nil
}

// forUpdate returns the row-locking clause supported by the executor's driver.
// SQLite serializes writers itself.
func forUpdate(exec SQLExecutor) string {
	if exec.DriverName() == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

// isUniqueViolation reports whether err is a unique/primary key violation,
// optionally restricted to a postgres constraint name.
func isUniqueViolation(err error, pqConstraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation && (pqConstraint == "" || pqErr.Constraint == pqConstraint)
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqForeignKeyViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
