package core

import (
	"encoding/json"

	"github.com/dkeye/Consult/internal/domain"
)

// Outbound event types on the signaling channel.
const (
	EventPeerPresent            = "peerPresent"
	EventPeerJoined             = "peerJoined"
	EventPeerLeft               = "peerLeft"
	EventSignal                 = "signal"
	EventConsultationRegistered = "consultationRegistered"
	EventConsultationError      = "consultationError"
)

type PeerEvent struct {
	Type string          `json:"type"`
	Room domain.RoomCode `json:"room"`
	Name string          `json:"name"`
	Role domain.Role     `json:"role"`
}

type SignalEvent struct {
	Type    string          `json:"type"`
	Room    domain.RoomCode `json:"room"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

func PeerFrame(typ string, room domain.RoomCode, m *domain.Member) Frame {
	// Marshal of a struct of strings cannot fail.
	b, _ := json.Marshal(PeerEvent{Type: typ, Room: room, Name: m.DisplayName, Role: m.Role})
	return b
}

func SignalFrame(room domain.RoomCode, from string, payload json.RawMessage) (Frame, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return json.Marshal(SignalEvent{Type: EventSignal, Room: room, From: from, Payload: payload})
}
