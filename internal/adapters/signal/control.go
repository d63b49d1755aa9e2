package signal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Consult/internal/apperr"
	"github.com/dkeye/Consult/internal/core"
)

func (ctl *SignalWSController) handlePing(cl *client) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	sendJSON(cl.conn, resp)
}

// handleStartConsultation bills today's call. Failures go back as
// consultationError; the call itself continues.
func (ctl *SignalWSController) handleStartConsultation(ctx context.Context, cl *client, data []byte) {
	p, ok := decodeRoom(cl.conn, data)
	if !ok {
		return
	}
	res, err := ctl.Orch.StartConsultation(ctx, cl.ident, p.Room)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Str("room", string(p.Room)).Str("kind", string(apperr.KindOf(err))).Msg("start consultation failed")
		sendJSON(cl.conn, struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}{core.EventConsultationError, apperr.Message(err)})
		return
	}
	sendJSON(cl.conn, struct {
		Type           string  `json:"type"`
		ConsultationID uint    `json:"consultationId"`
		Total          float64 `json:"total"`
		Created        bool    `json:"created"`
	}{core.EventConsultationRegistered, res.Consultation.ID, res.Consultation.Total, res.Created})
}
