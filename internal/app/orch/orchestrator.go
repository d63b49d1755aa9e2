package orch

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/apperr"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/events"
	"github.com/dkeye/Consult/internal/ledger"
)

type RoomAuthorizer interface {
	Authorize(ctx context.Context, code domain.RoomCode, caller domain.Identity) (*domain.Room, error)
}

type Ledger interface {
	RecordConsultationStart(ctx context.Context, code domain.RoomCode, caller domain.Identity) (ledger.Result, error)
	RecordConsultationFromNote(ctx context.Context, code domain.RoomCode, noteID uint, caller domain.Identity) (ledger.Result, error)
	AttachNote(ctx context.Context, code domain.RoomCode, noteID uint, noteAt time.Time, caller domain.Identity) (*domain.Consultation, bool, error)
}

// Observer is the slice of metrics the orchestrator reports to.
type Observer interface {
	LedgerRetried()
	LedgerFailed(kind string)
	SetConnections(n int)
	SignalRelayed()
	Kicked()
}

type nopObserver struct{}

func (nopObserver) LedgerRetried()      {}
func (nopObserver) LedgerFailed(string) {}
func (nopObserver) SetConnections(int)  {}
func (nopObserver) SignalRelayed()      {}
func (nopObserver) Kicked()             {}

// Retry bounds how often a transient ledger failure is re-run.
type Retry struct {
	Attempts uint
	Initial  time.Duration
	Max      time.Duration
}

type Orchestrator struct {
	Registry *app.Registry
	Policy   app.Policy
	Rooms    RoomAuthorizer
	Ledger   Ledger
	Bus      events.Bus
	Metrics  Observer
	Retry    Retry
	// Origin tags events published by this process so its own consumer skips them.
	Origin string
}

func (o *Orchestrator) observer() Observer {
	if o.Metrics == nil {
		return nopObserver{}
	}
	return o.Metrics
}

// applyPolicy closes every connection whose buffer overflowed during a fan-out.
// The adapter's read loop then ends and runs Disconnect for it.
func (o *Orchestrator) applyPolicy(code domain.RoomCode, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(code, slow) {
		case app.KickMember:
			log.Warn().Str("module", "app.orch").Str("room", string(code)).Str("name", slow.Meta().DisplayName).Msg("slow member kicked")
			o.observer().Kicked()
			slow.Signal().Close()
		case app.NoAction:
		}
	}
}

// withRetry runs op until it succeeds, fails with a non-transient error or the
// attempts run out.
func (o *Orchestrator) withRetry(ctx context.Context, code domain.RoomCode, op func() (ledger.Result, error)) (ledger.Result, error) {
	attempts := o.Retry.Attempts
	if attempts == 0 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	if o.Retry.Initial > 0 {
		b.InitialInterval = o.Retry.Initial
	}
	if o.Retry.Max > 0 {
		b.MaxInterval = o.Retry.Max
	}

	res, err := backoff.Retry(ctx, func() (ledger.Result, error) {
		res, err := op()
		if err != nil && !apperr.IsTransient(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			o.observer().LedgerRetried()
			log.Warn().Err(err).Str("module", "app.orch").Str("room", string(code)).Dur("next", next).Msg("ledger busy, retrying")
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		o.observer().LedgerFailed(string(apperr.KindOf(err)))
	}
	return res, err
}
