// Package closure aggregates a doctor's month of consultations and tracks the
// platform and doctor payout confirmations on the result.
package closure

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dkeye/Consult/internal/apperr"
	"github.com/dkeye/Consult/internal/billing"
	"github.com/dkeye/Consult/internal/clock"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/ledger"
	"github.com/dkeye/Consult/internal/storage"
)

const minYear = 2000

type Service struct {
	db    *gorm.DB
	clock clock.Clock
	loc   *time.Location
}

func NewService(db *gorm.DB, c clock.Clock, loc *time.Location) *Service {
	if c == nil {
		c = clock.Real{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{db: db, clock: c, loc: loc}
}

// MonthPeriod is [first day of month, first day of next month) in loc.
func MonthPeriod(month, year int, loc *time.Location) ledger.Period {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, 0)
	return ledger.Period{From: &from, To: &to}
}

func validatePeriod(doctorID uint, month, year int) error {
	if doctorID == 0 {
		return apperr.Validation("doctor id is required")
	}
	if month < 1 || month > 12 {
		return apperr.Validation("month must be between 1 and 12, got %d", month)
	}
	if year < minYear || year > 9999 {
		return apperr.Validation("year must be between %d and 9999, got %d", minYear, year)
	}
	return nil
}

// Compute aggregates the doctor's consultations created in month/year and
// stores them as the closure of that period in one upsert. Recomputing
// replaces the figures and clears both confirmations.
func (s *Service) Compute(ctx context.Context, doctorID uint, month, year int) (*domain.Closure, error) {
	if err := validatePeriod(doctorID, month, year); err != nil {
		return nil, err
	}

	var out domain.Closure
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sum, err := ledger.Aggregate(tx, doctorID, MonthPeriod(month, year, s.loc))
		if err != nil {
			return err
		}

		var prev domain.Closure
		err = tx.Where("doctor_id = ? AND month = ? AND year = ?", doctorID, month, year).First(&prev).Error
		switch {
		case err == nil:
			if prev.PlatformConfirmed || prev.DoctorConfirmed {
				log.Warn().
					Str("module", "closure").
					Uint("closure_id", prev.ID).
					Bool("platform_confirmed", prev.PlatformConfirmed).
					Bool("doctor_confirmed", prev.DoctorConfirmed).
					Msg("recompute replaces a confirmed closure")
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		row := domain.Closure{
			DoctorID:      doctorID,
			Month:         month,
			Year:          year,
			Count:         sum.Count,
			Gross:         billing.Round2(sum.Gross),
			DoctorShare:   billing.Round2(sum.DoctorShare),
			PlatformShare: billing.Round2(sum.PlatformShare),
			ComputedAt:    s.clock.Now().UTC(),
		}
		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "doctor_id"}, {Name: "month"}, {Name: "year"}},
			DoUpdates: clause.Assignments(map[string]any{
				"count":                 row.Count,
				"gross":                 row.Gross,
				"doctor_share":          row.DoctorShare,
				"platform_share":        row.PlatformShare,
				"computed_at":           row.ComputedAt,
				"platform_confirmed":    false,
				"platform_confirmed_at": nil,
				"platform_note":         "",
				"doctor_confirmed":      false,
				"doctor_confirmed_at":   nil,
				"doctor_note":           "",
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		// The upserted id is not reported on every dialect.
		return tx.Where("doctor_id = ? AND month = ? AND year = ?", doctorID, month, year).First(&out).Error
	})
	if err != nil {
		return nil, storage.Classify(err, "compute closure")
	}

	log.Info().
		Str("module", "closure").
		Uint("doctor_id", doctorID).
		Int("month", month).
		Int("year", year).
		Int64("count", out.Count).
		Float64("gross", out.Gross).
		Msg("closure computed")
	return &out, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*domain.Closure, error) {
	var c domain.Closure
	err := s.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("closure %d not found", id)
	}
	if err != nil {
		return nil, storage.Classify(err, "get closure")
	}
	return &c, nil
}

// List returns closures newest period first; doctorID 0 lists every doctor.
func (s *Service) List(ctx context.Context, doctorID uint) ([]domain.Closure, error) {
	q := s.db.WithContext(ctx)
	if doctorID != 0 {
		q = q.Where("doctor_id = ?", doctorID)
	}
	var out []domain.Closure
	if err := q.Order("year DESC, month DESC, doctor_id").Find(&out).Error; err != nil {
		return nil, storage.Classify(err, "list closures")
	}
	return out, nil
}

func (s *Service) ConfirmPlatformPayment(ctx context.Context, id uint, note string) (*domain.Closure, error) {
	return s.confirm(ctx, id, "platform", nil, note)
}

// ConfirmDoctorReceipt is only accepted from the doctor the closure belongs to.
func (s *Service) ConfirmDoctorReceipt(ctx context.Context, id uint, caller domain.Identity, note string) (*domain.Closure, error) {
	return s.confirm(ctx, id, "doctor", &caller, note)
}

func (s *Service) confirm(ctx context.Context, id uint, side string, caller *domain.Identity, note string) (*domain.Closure, error) {
	flag, at, noteCol := "platform_confirmed", "platform_confirmed_at", "platform_note"
	if side == "doctor" {
		flag, at, noteCol = "doctor_confirmed", "doctor_confirmed_at", "doctor_note"
	}

	var c domain.Closure
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("closure %d not found", id)
			}
			return err
		}
		if caller != nil && (caller.Role != domain.RoleDoctor || caller.ProfileID != c.DoctorID) {
			return apperr.PermissionDenied("closure %d does not belong to %s %d", id, caller.Role, caller.ProfileID)
		}
		if (side == "doctor" && c.DoctorConfirmed) || (side == "platform" && c.PlatformConfirmed) {
			return nil
		}

		now := s.clock.Now().UTC()
		res := tx.Model(&domain.Closure{}).
			Where("id = ? AND "+flag+" = ?", id, false).
			Updates(map[string]any{flag: true, at: now, noteCol: note})
		if res.Error != nil {
			return res.Error
		}
		return tx.First(&c, id).Error
	})
	if err != nil {
		return nil, storage.Classify(err, "confirm closure")
	}

	log.Info().Str("module", "closure").Uint("closure_id", id).Str("side", side).Msg("closure confirmed")
	return &c, nil
}
