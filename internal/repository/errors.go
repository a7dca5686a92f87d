// Package repository implements MySQL persistence for partners,
// experiences, bookings, per-date capacity counters and the SMS log. All
// statements are parameterized; every multi-statement write runs inside a
// transaction that is rolled back unless it was committed.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/experience-booking/internal/apperr"
)

// ErrStaleState is returned by compare-and-set updates when the row no
// longer holds the state the caller read. Callers reload and decide again.
var ErrStaleState = errors.New("row changed concurrently")

// mysqlDuplicateEntry is the server error number for unique key violations.
const mysqlDuplicateEntry = 1062

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// notFound maps sql.ErrNoRows onto the shared taxonomy.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %w", what, apperr.ErrNotFound)
	}
	return err
}

// queryer is satisfied by *sql.DB and *sql.Tx so lookups can run inside or
// outside a transaction.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
