package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/dkeye/Consult/internal/apperr"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/storage"
)

// Period is a half-open [From, To) filter on the record timestamp. Nil bounds are open.
type Period struct {
	From *time.Time
	To   *time.Time
}

func (p Period) apply(q *gorm.DB) *gorm.DB {
	if p.From != nil {
		q = q.Where("created_at >= ?", p.From.UTC())
	}
	if p.To != nil {
		q = q.Where("created_at < ?", p.To.UTC())
	}
	return q
}

func (l *Ledger) Find(ctx context.Context, roomID uint, day string) (*domain.Consultation, error) {
	rec, err := findByRoomDay(l.db.WithContext(ctx), roomID, day)
	if err != nil {
		return nil, storage.Classify(err, "find consultation")
	}
	if rec == nil {
		return nil, apperr.NotFound("no consultation for room %d on %s", roomID, day)
	}
	return rec, nil
}

func (l *Ledger) ListByDoctor(ctx context.Context, doctorID uint, p Period) ([]domain.Consultation, error) {
	var out []domain.Consultation
	q := p.apply(l.db.WithContext(ctx).Where("doctor_id = ?", doctorID))
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, storage.Classify(err, "list consultations")
	}
	return out, nil
}

func (l *Ledger) Summary(ctx context.Context, doctorID uint, p Period) (*domain.BillingSummary, error) {
	sum, err := Aggregate(l.db.WithContext(ctx), doctorID, p)
	if err != nil {
		return nil, storage.Classify(err, "billing summary")
	}
	return sum, nil
}

// Aggregate totals a doctor's consultations over p on the given handle,
// which may be a transaction.
func Aggregate(tx *gorm.DB, doctorID uint, p Period) (*domain.BillingSummary, error) {
	var row struct {
		Count         int64
		Gross         float64
		DoctorShare   float64
		PlatformShare float64
		Paid          int64
	}
	q := p.apply(tx.Model(&domain.Consultation{}).Where("doctor_id = ?", doctorID))
	err := q.Select(
		"COUNT(*) AS count, "+
			"COALESCE(SUM(total), 0) AS gross, "+
			"COALESCE(SUM(doctor_share), 0) AS doctor_share, "+
			"COALESCE(SUM(platform_share), 0) AS platform_share, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS paid",
		domain.PaymentPaid,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &domain.BillingSummary{
		DoctorID:      doctorID,
		Count:         row.Count,
		Gross:         row.Gross,
		DoctorShare:   row.DoctorShare,
		PlatformShare: row.PlatformShare,
		Paid:          row.Paid,
		Pending:       row.Count - row.Paid,
	}, nil
}

func (l *Ledger) MarkPaid(ctx context.Context, id uint) (*domain.Consultation, error) {
	var rec domain.Consultation
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rec, id).Error; err != nil {
			return err
		}
		if rec.Status == domain.PaymentPaid {
			return nil
		}
		rec.Status = domain.PaymentPaid
		return tx.Model(&domain.Consultation{}).Where("id = ?", id).UpdateColumn("status", domain.PaymentPaid).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("consultation %d not found", id)
	}
	if err != nil {
		return nil, storage.Classify(err, "mark paid")
	}
	log.Info().Str("module", "ledger").Uint("consultation_id", id).Msg("consultation marked paid")
	return &rec, nil
}
