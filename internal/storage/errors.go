package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"debtbook/internal/core"
)

// storeErr classifies an infrastructure failure as core.ErrStoreUnavailable
// while keeping the driver error inspectable. Context cancellation is passed
// through unclassified since the caller abandoned the request. A sum that left
// the int64 range is a data condition, reported as core.ErrAmountOverflow.
func storeErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if isIntegerOverflow(err) {
		return fmt.Errorf("%s: %w: %w", op, core.ErrAmountOverflow, err)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrStoreUnavailable, err)
}

func isIntegerOverflow(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "integer overflow")
}

func constraintCode(err error) (int, string, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return 0, "", false
	}
	return se.Code(), se.Error(), true
}

func isUniqueViolation(err error) bool {
	code, msg, ok := constraintCode(err)
	if !ok {
		return false
	}
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(msg, "UNIQUE")
}

func isForeignKeyViolation(err error) bool {
	code, msg, ok := constraintCode(err)
	if !ok {
		return false
	}
	if code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(msg, "FOREIGN KEY")
}

// isAlreadyExists reports whether a create statement lost a race against
// another runner that created the same object.
func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column name")
}
