// Package events carries "clinical note saved" notifications between the notes
// module and the ledger, in process or over Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Consult/internal/domain"
)

type NoteSaved struct {
	Origin   string          `json:"origin"`
	RoomCode domain.RoomCode `json:"room_code"`
	NoteID   uint            `json:"note_id"`
	DoctorID uint            `json:"doctor_id"`
	UserID   uint            `json:"user_id"`
	SavedAt  time.Time       `json:"saved_at"`
}

func (e NoteSaved) Validate() error {
	if e.RoomCode == "" || e.NoteID == 0 || e.DoctorID == 0 {
		return fmt.Errorf("incomplete note event: room=%q note=%d doctor=%d", e.RoomCode, e.NoteID, e.DoctorID)
	}
	return nil
}

// Identity is the doctor the note was filed by.
func (e NoteSaved) Identity() domain.Identity {
	return domain.Identity{UserID: e.UserID, Role: domain.RoleDoctor, ProfileID: e.DoctorID}
}

func Encode(e NoteSaved) ([]byte, error) { return json.Marshal(e) }

func Decode(b []byte) (NoteSaved, error) {
	var e NoteSaved
	if err := json.Unmarshal(b, &e); err != nil {
		return NoteSaved{}, fmt.Errorf("decode note event: %w", err)
	}
	return e, e.Validate()
}

type Bus interface {
	Publish(ctx context.Context, e NoteSaved) error
	Subscribe(ctx context.Context) (<-chan NoteSaved, error)
	Close() error
}

const subscriberBuffer = 100

// LocalBus fans events out to in-process subscribers.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[chan NoteSaved]struct{}
	closed bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[chan NoteSaved]struct{})}
}

func (b *LocalBus) Publish(_ context.Context, e NoteSaved) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			log.Warn().Str("module", "events.local").Uint("note_id", e.NoteID).Msg("subscriber full, event skipped")
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context) (<-chan NoteSaved, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("bus closed")
	}
	ch := make(chan NoteSaved, subscriberBuffer)
	b.subs[ch] = struct{}{}
	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()
	return ch, nil
}

func (b *LocalBus) remove(ch chan NoteSaved) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	return nil
}
