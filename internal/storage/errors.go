package storage

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/dkeye/Consult/internal/apperr"
)

func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if hasPGCode(err, "23505") || hasMySQLNumber(err, 1062) {
		return true
	}
	// SQLite (extended code 2067)
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsLockTimeout reports lock-wait expiry, deadlock victims and serialization
// failures: everything where re-running the transaction may succeed.
func IsLockTimeout(err error) bool {
	if err == nil {
		return false
	}
	if hasPGCode(err, "55P03") || hasPGCode(err, "40001") || hasPGCode(err, "40P01") {
		return true
	}
	if hasMySQLNumber(err, 1205) || hasMySQLNumber(err, 1213) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func hasMySQLNumber(err error, number uint16) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == number
	}
	return false
}

// Classify maps a raw storage error onto the application taxonomy.
// AppErrors pass through untouched.
func Classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		return err
	}
	if IsLockTimeout(err) {
		return apperr.Transient(op+": lock wait exceeded", err)
	}
	if IsDuplicateKey(err) {
		return apperr.Conflict(op+": duplicate key", err)
	}
	return apperr.Internal(op, err)
}
