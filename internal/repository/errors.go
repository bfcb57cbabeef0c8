package repository

import (
	"context"
	"errors"

	"possales/internal/apierror"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrNotFound is returned by lookups that match no row. It is gorm's sentinel
// so callers can use errors.Is against either name.
var ErrNotFound = gorm.ErrRecordNotFound

// errStockGuard is returned when a conditional stock decrement matched no
// row. The row is locked, so this only happens if a caller skipped the
// availability check.
var errStockGuard = apierror.Conflict("stock changed during sale", nil)

// Postgres SQLSTATE codes.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
)

// MySQL server error numbers.
const (
	myDeadlock        = 1213
	myLockWaitTimeout = 1205
	myDuplicateEntry  = 1062
	myRowIsReferenced = 1451
	myNoReferencedRow = 1452
	myCheckViolated   = 3819
)

// ClassifyError maps a driver error onto the apierror taxonomy. Errors that
// are already classified pass through unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apierror.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apierror.NotFound("record not found")
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apierror.Timeout(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return apierror.Retryable("concurrent update, retry", err)
		case pgUniqueViolation:
			return apierror.Conflict("duplicate value", err)
		case pgForeignKeyViolation:
			return apierror.Conflict("record is referenced by other records", err)
		case pgCheckViolation:
			return apierror.Conflict("constraint violated", err)
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case myDeadlock, myLockWaitTimeout:
			return apierror.Retryable("concurrent update, retry", err)
		case myDuplicateEntry:
			return apierror.Conflict("duplicate value", err)
		case myRowIsReferenced, myNoReferencedRow:
			return apierror.Conflict("record is referenced by other records", err)
		case myCheckViolated:
			return apierror.Conflict("constraint violated", err)
		}
	}

	return apierror.StorageFailure(err)
}
