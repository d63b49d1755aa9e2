package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
)

// roomPayload covers every room-scoped inbound message. Role is accepted but
// ignored: presence uses the authenticated role.
type roomPayload struct {
	Type        string          `json:"type"`
	Room        domain.RoomCode `json:"room"`
	DisplayName string          `json:"displayName,omitempty"`
	Role        domain.Role     `json:"role,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func decodeRoom(conn core.SignalConnection, data []byte) (roomPayload, bool) {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		sendError(conn, "bad_payload")
		return p, false
	}
	return p, true
}

func (ctl *SignalWSController) handleJoin(ctx context.Context, cl *client, data []byte) {
	p, ok := decodeRoom(cl.conn, data)
	if !ok {
		return
	}
	if !ctl.opts.Limiter.Allow(limiterKey(cl.ident)) {
		log.Warn().Str("module", "signal").Str("sid", string(cl.sid)).Str("room", string(p.Room)).Msg("join rate limited")
		sendError(cl.conn, "too_many_joins")
		return
	}

	peers, err := ctl.Orch.Join(ctx, cl.sid, cl.ident, p.Room, p.DisplayName, cl.conn)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Str("room", string(p.Room)).Msg("join refused")
		sendAppError(cl.conn, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Str("room", string(p.Room)).Int("peers", len(peers)).Msg("join")
}

// handleLeave exits the room; the connection stays open.
func (ctl *SignalWSController) handleLeave(cl *client, data []byte) {
	p, ok := decodeRoom(cl.conn, data)
	if !ok {
		return
	}
	if !ctl.Orch.Leave(cl.sid, p.Room) {
		log.Debug().Str("module", "signal").Str("sid", string(cl.sid)).Str("room", string(p.Room)).Msg("leave without presence")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Str("room", string(p.Room)).Msg("leave")
}

func (ctl *SignalWSController) handleRelay(cl *client, data []byte) {
	p, ok := decodeRoom(cl.conn, data)
	if !ok {
		return
	}
	if err := ctl.Orch.Relay(cl.sid, p.Room, p.Payload); err != nil {
		if errors.Is(err, app.ErrNotInRoom) {
			sendError(cl.conn, "not_in_room")
			return
		}
		log.Error().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("relay")
		sendError(cl.conn, "bad_payload")
	}
}
