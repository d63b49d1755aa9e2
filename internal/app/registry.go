package app

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNotInRoom = errors.New("connection is not in that room")

// Registry is the process-wide presence table: room -> connections.
// Every mutation and fan-out runs under one mutex; sends never block.
type Registry struct {
	mu    sync.Mutex
	rooms core.RoomManager
	bySID map[core.SessionID]domain.RoomCode
}

func NewRegistry(rooms core.RoomManager) *Registry {
	return &Registry{
		rooms: rooms,
		bySID: make(map[core.SessionID]domain.RoomCode),
	}
}

// Join registers sid in code and returns the peers that were already there.
//
// Order matters: the joiner gets peerPresent for every current occupant
// before it is registered, and only then do the occupants get peerJoined.
// A connection still in another room leaves it first.
func (r *Registry) Join(code domain.RoomCode, sid core.SessionID, ms core.MemberSession) ([]core.MemberDTO, core.PublishResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res core.PublishResult
	if prev, ok := r.bySID[sid]; ok {
		res.Merge(r.leaveLocked(prev, sid))
	}

	room := r.rooms.GetOrCreate(code)
	peers := room.MembersSnapshot()
	for _, p := range peers {
		peer, _ := room.Member(p.SID)
		if err := ms.Signal().TrySend(core.PeerFrame(core.EventPeerPresent, code, peer.Meta())); err != nil {
			res.Dropped = append(res.Dropped, ms)
			break
		}
		res.SendTo++
	}

	room.AddMember(sid, ms)
	r.bySID[sid] = code

	res.Merge(room.Broadcast(sid, core.PeerFrame(core.EventPeerJoined, code, ms.Meta())))
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(code)).Int("peers", len(peers)).Msg("joined")
	return peers, res
}

// Leave removes sid from code. It is a no-op unless sid is in that room.
func (r *Registry) Leave(code domain.RoomCode, sid core.SessionID) (bool, core.PublishResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.bySID[sid]; !ok || cur != code {
		return false, core.PublishResult{}
	}
	return true, r.leaveLocked(code, sid)
}

// OnDisconnect releases whatever room sid is in. Unknown sids are ignored.
func (r *Registry) OnDisconnect(sid core.SessionID) core.PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.bySID[sid]
	if !ok {
		log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Msg("disconnect without presence")
		return core.PublishResult{}
	}
	return r.leaveLocked(code, sid)
}

func (r *Registry) leaveLocked(code domain.RoomCode, sid core.SessionID) core.PublishResult {
	delete(r.bySID, sid)
	room, ok := r.rooms.Get(code)
	if !ok {
		return core.PublishResult{}
	}
	ms, ok := room.RemoveMember(sid)
	var res core.PublishResult
	if ok {
		res = room.Broadcast(sid, core.PeerFrame(core.EventPeerLeft, code, ms.Meta()))
	}
	if room.MemberCount() == 0 {
		r.rooms.StopRoom(code)
		log.Info().Str("module", "app.registry").Str("room", string(code)).Msg("room emptied")
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(code)).Msg("left")
	return res
}

// Relay forwards payload to every other member of code. The sender must be in code.
func (r *Registry) Relay(code domain.RoomCode, from core.SessionID, payload json.RawMessage) (core.PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.bySID[from]; !ok || cur != code {
		return core.PublishResult{}, ErrNotInRoom
	}
	room, ok := r.rooms.Get(code)
	if !ok {
		return core.PublishResult{}, ErrNotInRoom
	}
	sender, _ := room.Member(from)
	frame, err := core.SignalFrame(code, sender.Meta().DisplayName, payload)
	if err != nil {
		return core.PublishResult{}, err
	}
	return room.Broadcast(from, frame), nil
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomCode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.bySID[sid]
	return code, ok
}

func (r *Registry) Peers(code domain.RoomCode) []core.MemberDTO {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms.Get(code)
	if !ok {
		return nil
	}
	return room.MembersSnapshot()
}

func (r *Registry) Snapshot() []core.RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms.List()
}

func (r *Registry) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bySID)
}
