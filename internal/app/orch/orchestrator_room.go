package orch

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Consult/internal/apperr"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
)

// Join admits sid into code after checking the caller owns the room.
// The presence role is always the authenticated one.
func (o *Orchestrator) Join(ctx context.Context, sid core.SessionID, caller domain.Identity, code domain.RoomCode, displayName string, conn core.SignalConnection) ([]core.MemberDTO, error) {
	if err := domain.ValidateDisplayName(displayName); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	room, err := o.Rooms.Authorize(ctx, code, caller)
	if err != nil {
		return nil, err
	}
	if !room.Active {
		return nil, apperr.Validation("room %s is finished", code)
	}

	ms := core.NewMemberSession(domain.NewMember(displayName, caller.Role, caller), conn)
	peers, res := o.Registry.Join(code, sid, ms)
	o.applyPolicy(code, res)
	o.observer().SetConnections(o.Registry.ConnectionCount())
	return peers, nil
}

func (o *Orchestrator) Leave(sid core.SessionID, code domain.RoomCode) bool {
	left, res := o.Registry.Leave(code, sid)
	o.applyPolicy(code, res)
	o.observer().SetConnections(o.Registry.ConnectionCount())
	return left
}

// Disconnect releases sid's presence. Safe to call for never-joined sessions.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	code, _ := o.Registry.RoomOf(sid)
	res := o.Registry.OnDisconnect(sid)
	o.applyPolicy(code, res)
	o.observer().SetConnections(o.Registry.ConnectionCount())
	log.Debug().Str("module", "app.orch").Str("sid", string(sid)).Msg("disconnected")
}

func (o *Orchestrator) Relay(sid core.SessionID, code domain.RoomCode, payload json.RawMessage) error {
	res, err := o.Registry.Relay(code, sid, payload)
	if err != nil {
		return err
	}
	o.observer().SignalRelayed()
	o.applyPolicy(code, res)
	return nil
}
