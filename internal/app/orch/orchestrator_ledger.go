package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/events"
	"github.com/dkeye/Consult/internal/ledger"
)

// StartConsultation bills the call for today, retrying while the ledger is busy.
func (o *Orchestrator) StartConsultation(ctx context.Context, caller domain.Identity, code domain.RoomCode) (ledger.Result, error) {
	return o.withRetry(ctx, code, func() (ledger.Result, error) {
		return o.Ledger.RecordConsultationStart(ctx, code, caller)
	})
}

// NoteSaved records the note against today's consultation and announces it to
// other processes.
func (o *Orchestrator) NoteSaved(ctx context.Context, ev events.NoteSaved) (ledger.Result, error) {
	res, err := o.withRetry(ctx, ev.RoomCode, func() (ledger.Result, error) {
		return o.Ledger.RecordConsultationFromNote(ctx, ev.RoomCode, ev.NoteID, ev.Identity())
	})
	if err != nil {
		return res, err
	}
	if o.Bus != nil {
		ev.Origin = o.Origin
		if ev.SavedAt.IsZero() {
			ev.SavedAt = time.Now().UTC()
		}
		if perr := o.Bus.Publish(ctx, ev); perr != nil {
			log.Warn().Err(perr).Str("module", "app.orch").Uint("note_id", ev.NoteID).Msg("note event not published")
		}
	}
	return res, nil
}

// applyRemoteNote attaches a note billed by another process to the record of
// the day it was saved. The origin already billed it, so nothing is inserted.
func (o *Orchestrator) applyRemoteNote(ctx context.Context, ev events.NoteSaved) error {
	if ev.SavedAt.IsZero() {
		log.Warn().Str("module", "app.orch").Str("origin", ev.Origin).Uint("note_id", ev.NoteID).Msg("note event without save time skipped")
		return nil
	}
	_, err := o.withRetry(ctx, ev.RoomCode, func() (ledger.Result, error) {
		rec, _, err := o.Ledger.AttachNote(ctx, ev.RoomCode, ev.NoteID, ev.SavedAt, ev.Identity())
		return ledger.Result{Consultation: rec, Outcome: ledger.OutcomeExisting}, err
	})
	return err
}

// ConsumeNotes applies note events from other processes until ctx is done.
func (o *Orchestrator) ConsumeNotes(ctx context.Context) error {
	if o.Bus == nil {
		return nil
	}
	ch, err := o.Bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.Origin == o.Origin {
				continue
			}
			if err := o.applyRemoteNote(ctx, ev); err != nil {
				log.Error().Err(err).Str("module", "app.orch").Str("room", string(ev.RoomCode)).Uint("note_id", ev.NoteID).Msg("note event not applied")
				continue
			}
			log.Debug().Str("module", "app.orch").Str("origin", ev.Origin).Uint("note_id", ev.NoteID).Msg("note event applied")
		}
	}
}
