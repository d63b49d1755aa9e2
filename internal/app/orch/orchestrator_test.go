package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/apperr"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/events"
	"github.com/dkeye/Consult/internal/ledger"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	cap    int
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || (c.cap > 0 && len(c.frames) >= c.cap) {
		return errors.New("full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeRooms struct{ room domain.Room }

func (f *fakeRooms) Authorize(_ context.Context, code domain.RoomCode, caller domain.Identity) (*domain.Room, error) {
	if code != f.room.Code {
		return nil, apperr.NotFound("room %s not found", code)
	}
	if !caller.ParticipatesIn(&f.room) {
		return nil, apperr.PermissionDenied("not a participant of room %s", code)
	}
	r := f.room
	return &r, nil
}

// fakeLedger fails with errs in order, then succeeds.
type fakeLedger struct {
	mu    sync.Mutex
	errs  []error
	calls    int
	notes    []uint
	attached []uint
}

func (f *fakeLedger) next() (ledger.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return ledger.Result{}, err
	}
	return ledger.Result{Consultation: &domain.Consultation{ID: 1, Total: 150}, Created: f.calls == 1, Outcome: ledger.OutcomeCreated}, nil
}

func (f *fakeLedger) RecordConsultationStart(context.Context, domain.RoomCode, domain.Identity) (ledger.Result, error) {
	return f.next()
}

func (f *fakeLedger) RecordConsultationFromNote(_ context.Context, _ domain.RoomCode, noteID uint, _ domain.Identity) (ledger.Result, error) {
	f.mu.Lock()
	f.notes = append(f.notes, noteID)
	f.mu.Unlock()
	return f.next()
}

func (f *fakeLedger) AttachNote(_ context.Context, _ domain.RoomCode, noteID uint, _ time.Time, _ domain.Identity) (*domain.Consultation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = append(f.attached, noteID)
	return &domain.Consultation{ID: 1}, true, nil
}

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var (
	doctor  = domain.Identity{UserID: 10, Role: domain.RoleDoctor, ProfileID: 7}
	patient = domain.Identity{UserID: 20, Role: domain.RolePatient, ProfileID: 3}
)

func newOrch(l *fakeLedger) *Orchestrator {
	return &Orchestrator{
		Registry: app.NewRegistry(app.NewRoomManager()),
		Policy:   app.SimplePolicy{},
		Rooms:    &fakeRooms{room: domain.Room{ID: 1, Code: "ABC123", DoctorID: 7, PatientID: 3, Active: true}},
		Ledger:   l,
		Retry:    Retry{Attempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond},
		Origin:   "node-a",
	}
}

func TestJoinChecksParticipant(t *testing.T) {
	o := newOrch(&fakeLedger{})
	ctx := context.Background()

	_, err := o.Join(ctx, "s1", patient, "ABC123", "Pat", &fakeConn{})
	require.NoError(t, err)

	stranger := domain.Identity{UserID: 99, Role: domain.RolePatient, ProfileID: 42}
	_, err = o.Join(ctx, "s2", stranger, "ABC123", "X", &fakeConn{})
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied))

	_, err = o.Join(ctx, "s3", doctor, "NOPE00", "Doc", &fakeConn{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = o.Join(ctx, "s4", doctor, "ABC123", "", &fakeConn{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	peers, err := o.Join(ctx, "s5", doctor, "ABC123", "Doc", &fakeConn{})
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, domain.RolePatient, peers[0].Role)
}

func TestJoinRejectsFinishedRoom(t *testing.T) {
	o := newOrch(&fakeLedger{})
	o.Rooms.(*fakeRooms).room.Active = false
	_, err := o.Join(context.Background(), "s1", patient, "ABC123", "Pat", &fakeConn{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestRelayKicksSlowPeer(t *testing.T) {
	o := newOrch(&fakeLedger{})
	ctx := context.Background()

	slow := &fakeConn{cap: 1}
	_, err := o.Join(ctx, "pat", patient, "ABC123", "Pat", slow)
	require.NoError(t, err)
	_, err = o.Join(ctx, "doc", doctor, "ABC123", "Doc", &fakeConn{})
	require.NoError(t, err)
	// slow now holds peerJoined; the relay overflows it.
	require.NoError(t, o.Relay("doc", "ABC123", json.RawMessage(`{"sdp":"x"}`)))
	assert.True(t, slow.isClosed())

	o.Disconnect("pat")
	assert.Len(t, o.Registry.Peers("ABC123"), 1)

	assert.ErrorIs(t, o.Relay("pat", "ABC123", json.RawMessage(`{}`)), app.ErrNotInRoom)
}

func TestLeaveAndDisconnectAreIdempotent(t *testing.T) {
	o := newOrch(&fakeLedger{})
	_, err := o.Join(context.Background(), "s1", patient, "ABC123", "Pat", &fakeConn{})
	require.NoError(t, err)

	assert.True(t, o.Leave("s1", "ABC123"))
	assert.False(t, o.Leave("s1", "ABC123"))
	o.Disconnect("s1")
	o.Disconnect("never")
	assert.Empty(t, o.Registry.Snapshot())
}

func TestStartConsultationRetriesTransient(t *testing.T) {
	l := &fakeLedger{errs: []error{
		apperr.Transient("record consultation", errors.New("database is locked")),
		apperr.Transient("record consultation", errors.New("database is locked")),
	}}
	o := newOrch(l)

	res, err := o.StartConsultation(context.Background(), doctor, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, uint(1), res.Consultation.ID)
	assert.Equal(t, 3, l.callCount())
}

func TestStartConsultationGivesUp(t *testing.T) {
	busy := apperr.Transient("record consultation", errors.New("database is locked"))
	l := &fakeLedger{errs: []error{busy, busy, busy, busy}}
	o := newOrch(l)

	_, err := o.StartConsultation(context.Background(), doctor, "ABC123")
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))
	assert.Equal(t, 3, l.callCount())
}

func TestStartConsultationTerminalErrorNotRetried(t *testing.T) {
	l := &fakeLedger{errs: []error{apperr.PermissionDenied("not a participant of room ABC123")}}
	o := newOrch(l)

	_, err := o.StartConsultation(context.Background(), patient, "ABC123")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied))
	assert.Equal(t, 1, l.callCount())
}

func TestNoteEventsAcrossProcesses(t *testing.T) {
	bus := events.NewLocalBus()
	defer bus.Close()

	la, lb := &fakeLedger{}, &fakeLedger{}
	a, b := newOrch(la), newOrch(lb)
	a.Bus, b.Bus = bus, bus
	b.Origin = "node-b"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.ConsumeNotes(ctx)
	}()
	// Let the consumer subscribe before publishing.
	time.Sleep(50 * time.Millisecond)

	_, err := a.NoteSaved(ctx, events.NoteSaved{RoomCode: "ABC123", NoteID: 5, DoctorID: 7, UserID: 10})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		lb.mu.Lock()
		defer lb.mu.Unlock()
		return len(lb.attached) == 1 && lb.attached[0] == 5
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []uint{5}, la.notes)
	lb.mu.Lock()
	assert.Empty(t, lb.notes)
	lb.mu.Unlock()

	cancel()
	<-done
}
