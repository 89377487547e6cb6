// Package txn runs a unit of work inside one LMS database transaction and
// classifies the failures worth retrying.
package txn

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// MySQL error numbers that indicate the transaction can be replayed.
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// Run executes fn inside a transaction. fn must use the *gorm.DB it is
// given; anything written through another handle is not rolled back.
func Run(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(fn)
}

// IsTransient reports whether err is a lock conflict or deadlock that a
// later attempt may not hit.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout
	}

	// PostgreSQL (serialization_failure, deadlock_detected) and SQLite
	// surface these as text through their drivers.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "sqlstate 40001"),
		strings.Contains(msg, "sqlstate 40p01"),
		strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "database is locked"):
		return true
	}
	return false
}
