package signal

import (
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
)

func (ctl *SignalWSController) handleWhoAmI(cl *client) {
	resp := struct {
		Type      string          `json:"type"`
		SID       core.SessionID  `json:"sid"`
		UserID    uint            `json:"userId"`
		Role      domain.Role     `json:"role"`
		ProfileID uint            `json:"profileId"`
		Room      domain.RoomCode `json:"room,omitempty"`
	}{
		Type:      "whoami",
		SID:       cl.sid,
		UserID:    cl.ident.UserID,
		Role:      cl.ident.Role,
		ProfileID: cl.ident.ProfileID,
	}
	if code, ok := ctl.Orch.Registry.RoomOf(cl.sid); ok {
		resp.Room = code
	}
	sendJSON(cl.conn, resp)
}
