package billing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dkeye/Consult/internal/apperr"
	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/storage"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := storage.Open(config.DatabaseConfig{
		Driver:      storage.DriverSQLite,
		DSN:         filepath.Join(t.TempDir(), "billing.db"),
		LockTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))
	return db
}

func TestGetOrCreateDefaultInsertsOnce(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, StandardDefaults)

	var first, second *domain.BillingConfig
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		first, err = svc.GetOrCreateDefault(tx, 7)
		return err
	}))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		second, err = svc.GetOrCreateDefault(tx, 7)
		return err
	}))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 150.0, second.Price)
	assert.Equal(t, 70.0, second.DoctorPercent)
	assert.Equal(t, 30.0, second.PlatformPercent)

	var n int64
	require.NoError(t, db.Model(&domain.BillingConfig{}).Where("doctor_id = ?", 7).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestGetDoesNotCreate(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, StandardDefaults)

	cfg, err := svc.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.Zero(t, cfg.ID)
	assert.Equal(t, 150.0, cfg.Price)

	var n int64
	require.NoError(t, db.Model(&domain.BillingConfig{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestUpdateUpserts(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, StandardDefaults)
	ctx := context.Background()

	cfg, err := svc.Update(ctx, 4, 200, 80, 20)
	require.NoError(t, err)
	assert.Equal(t, 200.0, cfg.Price)

	cfg, err = svc.Update(ctx, 4, 120, 60, 40)
	require.NoError(t, err)
	assert.Equal(t, 120.0, cfg.Price)
	assert.Equal(t, 60.0, cfg.DoctorPercent)

	var n int64
	require.NoError(t, db.Model(&domain.BillingConfig{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestUpdateRejectsInvalid(t *testing.T) {
	svc := NewService(newTestDB(t), StandardDefaults)

	_, err := svc.Update(context.Background(), 4, 100, 50, 40)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
