package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/streamloop/streamloop/internal/core"
	"github.com/streamloop/streamloop/internal/domain"
	"github.com/streamloop/streamloop/internal/protocol"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "ws").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, sid domain.SessionID, c *wsConn) {
	defer log.Info().Str("module", "ws").Str("sid", string(sid)).Msg("readPump closing")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			msgType, data, err := c.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "ws").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			if msgType == websocket.BinaryMessage {
				ctl.Relay.Chunk(sid, data)
				continue
			}
			ctl.dispatch(sid, c, data)
		}
	}
}

func (ctl *Controller) dispatch(sid domain.SessionID, c *wsConn, data []byte) {
	m, err := protocol.Unmarshal(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("sid", string(sid)).Msg("bad json, dropped")
		return
	}
	if err := m.Validate(); err != nil {
		log.Warn().Str("module", "ws").Str("sid", string(sid)).Str("type", m.Type).Msg("malformed message, dropped")
		return
	}

	switch m.Type {
	case protocol.TypeJoinStream:
		ctl.Relay.Join(sid, domain.StreamID(m.StreamID))
	case protocol.TypeLeaveStream:
		ctl.Relay.Leave(sid, domain.StreamID(m.StreamID))
	case protocol.TypeChatMessage:
		if err := ctl.Relay.Chat(sid, domain.StreamID(m.StreamID), m.Text); err != nil {
			if errors.Is(err, core.ErrNotMember) {
				ctl.sendJSON(c, protocol.NewErrorEvent("not a member of this stream"))
			}
		}
	case protocol.TypeStartStream:
		ctl.Relay.StartJob(sid)
	case protocol.TypeStopStream:
		ctl.Relay.StopJob(sid)
	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICE:
		ctl.Relay.Signal(sid, m)
	}
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(core.Frame(b))
}
