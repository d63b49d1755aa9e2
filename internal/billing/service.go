package billing

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dkeye/Consult/internal/apperr"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/storage"
)

type Defaults struct {
	Price           float64
	DoctorPercent   float64
	PlatformPercent float64
}

var StandardDefaults = Defaults{Price: 150, DoctorPercent: 70, PlatformPercent: 30}

type Service struct {
	db       *gorm.DB
	defaults Defaults
}

func NewService(db *gorm.DB, defaults Defaults) *Service {
	return &Service{db: db, defaults: defaults}
}

func (s *Service) defaultFor(doctorID uint) domain.BillingConfig {
	return domain.BillingConfig{
		DoctorID:        doctorID,
		Price:           s.defaults.Price,
		DoctorPercent:   s.defaults.DoctorPercent,
		PlatformPercent: s.defaults.PlatformPercent,
	}
}

// GetOrCreateDefault returns the doctor's configuration, inserting the
// defaults first when none exists. It runs on the caller's transaction.
func (s *Service) GetOrCreateDefault(tx *gorm.DB, doctorID uint) (*domain.BillingConfig, error) {
	var cfg domain.BillingConfig
	err := tx.Where("doctor_id = ?", doctorID).First(&cfg).Error
	if err == nil {
		return &cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cfg = s.defaultFor(doctorID)
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "doctor_id"}},
		DoNothing: true,
	}).Create(&cfg)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		cfg = domain.BillingConfig{}
		if err := tx.Where("doctor_id = ?", doctorID).First(&cfg).Error; err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	log.Info().Str("module", "billing").Uint("doctor_id", doctorID).Msg("default billing config created")
	return &cfg, nil
}

// Get reads the configuration without creating one; absent rows read as defaults.
func (s *Service) Get(ctx context.Context, doctorID uint) (*domain.BillingConfig, error) {
	var cfg domain.BillingConfig
	err := s.db.WithContext(ctx).Where("doctor_id = ?", doctorID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = s.defaultFor(doctorID)
		return &cfg, nil
	}
	if err != nil {
		return nil, storage.Classify(err, "get billing config")
	}
	return &cfg, nil
}

func (s *Service) Update(ctx context.Context, doctorID uint, price, doctorPct, platformPct float64) (*domain.BillingConfig, error) {
	if doctorID == 0 {
		return nil, apperr.Validation("doctor id is required")
	}
	if err := ValidateConfig(price, doctorPct, platformPct); err != nil {
		return nil, err
	}
	cfg := domain.BillingConfig{
		DoctorID:        doctorID,
		Price:           price,
		DoctorPercent:   doctorPct,
		PlatformPercent: platformPct,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "doctor_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "doctor_percent", "platform_percent", "updated_at"}),
	}).Create(&cfg).Error
	if err != nil {
		return nil, storage.Classify(err, "update billing config")
	}
	log.Info().Str("module", "billing").Uint("doctor_id", doctorID).
		Float64("price", price).Float64("doctor_pct", doctorPct).Float64("platform_pct", platformPct).
		Msg("billing config updated")
	return s.Get(ctx, doctorID)
}
