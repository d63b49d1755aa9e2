// Package ledger keeps at most one billable consultation per room and calendar day.
//
// Two triggers record consultations: the call-start event from the signaling
// channel and the clinical-note save from the notes module. They may race from
// different goroutines or processes. Each call runs in one transaction that
// locks the room row, reads the (room, day) record and inserts it with
// ON CONFLICT DO NOTHING. The unique index on (room_id, day) is the final
// arbiter: a caller whose insert affects no row re-reads the winner's record
// and attaches its note to it.
package ledger

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
	"github.com/dkeye/Consult/internal/storage"
)

type Trigger string

const (
	TriggerCallStart Trigger = "call_start"
	TriggerNote      Trigger = "note"
)

// Outcome labels how a record call was resolved.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeExisting Outcome = "existing"
	OutcomeRaceLost Outcome = "race_lost"
)

// Recorder receives one observation per successful record call.
type Recorder interface {
	ConsultationRecorded(trigger Trigger, outcome Outcome)
}

type nopRecorder struct{}

func (nopRecorder) ConsultationRecorded(Trigger, Outcome) {}

type Result struct {
	Consultation *domain.Consultation
	Created      bool
	Outcome      Outcome
}

type Options struct {
	Clock    clock.Clock
	Location *time.Location
	LockWait time.Duration
	Metrics  Recorder
}

type Ledger struct {
	db       *gorm.DB
	billing  *billing.Service
	clock    clock.Clock
	loc      *time.Location
	lockWait time.Duration
	metrics  Recorder
}

func New(db *gorm.DB, billingSvc *billing.Service, opts Options) *Ledger {
	l := &Ledger{
		db:       db,
		billing:  billingSvc,
		clock:    opts.Clock,
		loc:      opts.Location,
		lockWait: opts.LockWait,
		metrics:  opts.Metrics,
	}
	if l.clock == nil {
		l.clock = clock.Real{}
	}
	if l.loc == nil {
		l.loc = time.Local
	}
	if l.metrics == nil {
		l.metrics = nopRecorder{}
	}
	return l
}

// dayOf is the calendar-day key of t in the ledger's location.
func (l *Ledger) dayOf(t time.Time) string {
	return t.In(l.loc).Format(domain.DayLayout)
}

func (l *Ledger) RecordConsultationStart(ctx context.Context, code domain.RoomCode, caller domain.Identity) (Result, error) {
	room, err := l.authorize(ctx, code, caller)
	if err != nil {
		return Result{}, err
	}
	return l.record(ctx, room, nil, TriggerCallStart)
}

// RecordConsultationFromNote bills the day if needed and points the day's record at noteID.
func (l *Ledger) RecordConsultationFromNote(ctx context.Context, code domain.RoomCode, noteID uint, caller domain.Identity) (Result, error) {
	if noteID == 0 {
		return Result{}, apperr.Validation("note id is required")
	}
	if caller.Role != domain.RoleDoctor {
		return Result{}, apperr.PermissionDenied("only the room's doctor can file notes for room %s", code)
	}
	room, err := l.authorize(ctx, code, caller)
	if err != nil {
		return Result{}, err
	}
	return l.record(ctx, room, &noteID, TriggerNote)
}

// AttachNote points the record of the day noteAt falls on at noteID without
// ever creating one. It is for notes already billed by another process: an
// older note never replaces a newer one, and a missing record stays missing.
func (l *Ledger) AttachNote(ctx context.Context, code domain.RoomCode, noteID uint, noteAt time.Time, caller domain.Identity) (*domain.Consultation, bool, error) {
	if noteID == 0 {
		return nil, false, apperr.Validation("note id is required")
	}
	if caller.Role != domain.RoleDoctor {
		return nil, false, apperr.PermissionDenied("only the room's doctor can file notes for room %s", code)
	}
	room, err := l.authorize(ctx, code, caller)
	if err != nil {
		return nil, false, err
	}
	day := l.dayOf(noteAt)

	var (
		rec      *domain.Consultation
		attached bool
	)
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upd := tx.Model(&domain.Consultation{}).
			Where("room_id = ? AND day = ?", room.ID, day).
			Where("note_id IS NULL OR note_id < ?", noteID).
			UpdateColumn("note_id", noteID)
		if upd.Error != nil {
			return upd.Error
		}
		attached = upd.RowsAffected > 0
		rec, err = findByRoomDay(tx, room.ID, day)
		return err
	})
	if err != nil {
		return nil, false, storage.Classify(err, "attach note")
	}
	log.Debug().
		Str("module", "ledger").
		Str("room", string(code)).
		Str("day", day).
		Uint("note_id", noteID).
		Bool("attached", attached).
		Msg("remote note applied")
	return rec, attached, nil
}

func (l *Ledger) authorize(ctx context.Context, code domain.RoomCode, caller domain.Identity) (*domain.Room, error) {
	var room domain.Room
	err := l.db.WithContext(ctx).Where("code = ?", code).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("room %s not found", code)
	}
	if err != nil {
		return nil, storage.Classify(err, "load room")
	}
	if !caller.ParticipatesIn(&room) {
		return nil, apperr.PermissionDenied("%s %d is not a participant of room %s", caller.Role, caller.ProfileID, code)
	}
	return &room, nil
}

func (l *Ledger) record(ctx context.Context, room *domain.Room, noteID *uint, trigger Trigger) (Result, error) {
	now := l.clock.Now()
	day := l.dayOf(now)

	var res Result
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := storage.BoundLockWait(tx, l.lockWait); err != nil {
			return err
		}
		// Write first: takes the room row lock (the database write lock on sqlite)
		// so concurrent calls for the same room serialize here.
		if err := tx.Model(&domain.Room{}).Where("id = ?", room.ID).UpdateColumn("updated_at", now.UTC()).Error; err != nil {
			return err
		}

		existing, err := findByRoomDay(tx, room.ID, day)
		if err != nil {
			return err
		}
		if existing != nil {
			rec, err := attachNote(tx, existing, noteID)
			res = Result{Consultation: rec, Outcome: OutcomeExisting}
			return err
		}

		cfg, err := l.billing.GetOrCreateDefault(tx, room.DoctorID)
		if err != nil {
			return err
		}
		doctorShare, platformShare := billing.Split(cfg.Price, cfg.DoctorPercent, cfg.PlatformPercent)
		candidate := &domain.Consultation{
			RoomID:        room.ID,
			Day:           day,
			DoctorID:      room.DoctorID,
			PatientID:     room.PatientID,
			NoteID:        noteID,
			Total:         cfg.Price,
			DoctorShare:   doctorShare,
			PlatformShare: platformShare,
			Status:        domain.PaymentPending,
			CreatedAt:     now.UTC(),
		}
		res, err = insertOrAttach(tx, candidate, noteID)
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("module", "ledger").Str("room", string(room.Code)).Str("trigger", string(trigger)).Msg("record consultation failed")
		return Result{}, storage.Classify(err, "record consultation")
	}

	l.metrics.ConsultationRecorded(trigger, res.Outcome)
	log.Info().
		Str("module", "ledger").
		Str("room", string(room.Code)).
		Str("day", day).
		Str("trigger", string(trigger)).
		Str("outcome", string(res.Outcome)).
		Uint("consultation_id", res.Consultation.ID).
		Msg("consultation recorded")
	return res, nil
}

// insertOrAttach inserts candidate unless (room, day) already exists; on a lost
// race it returns the stored record with noteID attached.
func insertOrAttach(tx *gorm.DB, candidate *domain.Consultation, noteID *uint) (Result, error) {
	ins := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "day"}},
		DoNothing: true,
	}).Create(candidate)
	if ins.Error != nil && !storage.IsDuplicateKey(ins.Error) {
		return Result{}, ins.Error
	}
	if ins.Error == nil && ins.RowsAffected > 0 {
		return Result{Consultation: candidate, Created: true, Outcome: OutcomeCreated}, nil
	}

	existing, err := findByRoomDay(tx, candidate.RoomID, candidate.Day)
	if err != nil {
		return Result{}, err
	}
	if existing == nil {
		return Result{}, apperr.Conflict("consultation vanished after conflicting insert", ins.Error)
	}
	rec, err := attachNote(tx, existing, noteID)
	return Result{Consultation: rec, Outcome: OutcomeRaceLost}, err
}

func findByRoomDay(tx *gorm.DB, roomID uint, day string) (*domain.Consultation, error) {
	var rec domain.Consultation
	err := tx.Where("room_id = ? AND day = ?", roomID, day).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// attachNote points rec at noteID. The latest non-nil note wins.
func attachNote(tx *gorm.DB, rec *domain.Consultation, noteID *uint) (*domain.Consultation, error) {
	if noteID == nil {
		return rec, nil
	}
	if rec.NoteID != nil && *rec.NoteID == *noteID {
		return rec, nil
	}
	if err := tx.Model(&domain.Consultation{}).Where("id = ?", rec.ID).UpdateColumn("note_id", *noteID).Error; err != nil {
		return nil, err
	}
	id := *noteID
	rec.NoteID = &id
	return rec, nil
}
