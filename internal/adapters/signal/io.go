package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Consult/internal/apperr"
	"github.com/dkeye/Consult/internal/core"
)

// Inbound message types.
const (
	msgJoin              = "join"
	msgLeave             = "leave"
	msgSignal            = "signal"
	msgStartConsultation = "startConsultation"
	msgPing              = "ping"
	msgWhoAmI            = "whoami"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	var ping <-chan time.Time
	if ctl.opts.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.opts.PingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cl *client, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump closing")
		ctl.Orch.Disconnect(cl.sid)
		c.Close()
	}()

	if ctl.opts.PingPeriod > 0 {
		wait := ctl.opts.PingPeriod * 2
		_ = c.conn.SetReadDeadline(time.Now().Add(wait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump read error")
				}
				return
			}
			ctl.dispatch(ctx, cl, data)
		}
	}
}

func (ctl *SignalWSController) dispatch(ctx context.Context, cl *client, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("bad json")
		sendError(cl.conn, "bad_payload")
		return
	}

	switch env.Type {
	case msgJoin:
		ctl.handleJoin(ctx, cl, data)
	case msgLeave:
		ctl.handleLeave(cl, data)
	case msgSignal:
		ctl.handleRelay(cl, data)
	case msgStartConsultation:
		ctl.handleStartConsultation(ctx, cl, data)
	case msgPing:
		ctl.handlePing(cl)
	case msgWhoAmI:
		ctl.handleWhoAmI(cl)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		sendError(cl.conn, "unknown_type")
	}
}

func sendJSON(conn core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = conn.TrySend(b)
}

func sendError(conn core.SignalConnection, msg string) {
	sendJSON(conn, map[string]any{
		"type":  "error",
		"error": msg,
	})
}

func sendAppError(conn core.SignalConnection, err error) {
	sendError(conn, apperr.Message(err))
}
