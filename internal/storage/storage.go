// Package storage opens the relational store and owns the schema.
package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/domain"
)

const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

func dialect(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case DriverMySQL:
		dsn, err := mysqlDSN(cfg.DSN, cfg.LockTimeout)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	case DriverPostgres:
		return postgres.Open(cfg.DSN), nil
	case DriverSQLite, "":
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported %s driver", cfg.Driver)
	}
}

// mysqlDSN pins innodb_lock_wait_timeout as a connection parameter so every
// pooled connection starts with the same bound.
func mysqlDSN(dsn string, lockWait time.Duration) (string, error) {
	if lockWait <= 0 {
		return dsn, nil
	}
	c, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	if c.Params == nil {
		c.Params = map[string]string{}
	}
	c.Params["innodb_lock_wait_timeout"] = strconv.Itoa(lockWaitSeconds(lockWait))
	return c.FormatDSN(), nil
}

func lockWaitSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

type gormWriter struct{}

func (gormWriter) Printf(format string, args ...any) {
	log.Warn().Str("module", "storage.gorm").Msgf(format, args...)
}

func newLogger() logger.Interface {
	return logger.New(gormWriter{}, logger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	d, err := dialect(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{
		Logger: newLogger(),
		// The sqlite dialector has no error translator; IsDuplicateKey covers it.
		TranslateError: d.Name() != DriverSQLite,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if db.Dialector.Name() == DriverSQLite {
		// One writer connection; waiters queue on the pool and on busy_timeout.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		if err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.LockTimeout.Milliseconds())).Error; err != nil {
			return nil, fmt.Errorf("sqlite busy_timeout: %w", err)
		}
		_ = db.Exec("PRAGMA journal_mode = WAL").Error
	} else {
		maxOpen := cfg.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 10
		}
		sqlDB.SetMaxOpenConns(maxOpen)
		sqlDB.SetMaxIdleConns(maxOpen / 2)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.Info().Str("module", "storage").Str("driver", db.Dialector.Name()).Msg("database connected")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Room{},
		&domain.ClinicalNote{},
		&domain.BillingConfig{},
		&domain.Consultation{},
		&domain.Closure{},
	)
}

// BoundLockWait caps how long statements in tx wait for row locks.
// SQLite gets its bound from busy_timeout and MySQL from the DSN, both at open time.
func BoundLockWait(tx *gorm.DB, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	switch tx.Dialector.Name() {
	case DriverPostgres:
		return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())).Error
	}
	return nil
}

// ResetCounts reports how many rows the full reset removed per table.
type ResetCounts map[string]int64

// Reset deletes every ledger, closure, billing, note and room row in one transaction.
// Identities live in the auth module and are untouched.
func Reset(ctx context.Context, db *gorm.DB) (ResetCounts, error) {
	counts := ResetCounts{}
	models := []interface{ TableName() string }{
		&domain.Closure{},
		&domain.Consultation{},
		&domain.ClinicalNote{},
		&domain.BillingConfig{},
		&domain.Room{},
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range models {
			res := tx.Where("1 = 1").Delete(m)
			if res.Error != nil {
				return res.Error
			}
			counts[m.TableName()] = res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return nil, Classify(err, "reset")
	}
	log.Warn().Str("module", "storage").Interface("deleted", counts).Msg("full data reset")
	return counts, nil
}
