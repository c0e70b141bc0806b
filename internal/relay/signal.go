package relay

import (
	"github.com/rs/zerolog/log"

	"github.com/streamloop/streamloop/internal/core"
	"github.com/streamloop/streamloop/internal/domain"
	"github.com/streamloop/streamloop/internal/protocol"
)

// Signal forwards one negotiation envelope. The relay stamps the
// sender id, then delivers to the declared target session; an envelope
// without a target falls back to broadcasting to every other session
// (legacy two-party mode, kept for old clients). Envelopes naming an
// unknown or disconnected target are dropped with no error to the
// sender. Payloads are never inspected beyond the presence checks the
// adapter already ran.
func (r *Relay) Signal(from domain.SessionID, m *protocol.Message) {
	m.From = string(from)
	frame, err := m.Marshal()
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("signal marshal")
		return
	}

	if m.To != "" {
		conn, ok := r.Registry.Conn(domain.SessionID(m.To))
		if !ok {
			log.Debug().Str("module", "relay").Str("from", string(from)).Str("to", m.To).Str("kind", m.Type).Msg("signal target gone, dropped")
			return
		}
		if err := conn.TrySend(core.Frame(frame)); err != nil {
			log.Debug().Str("module", "relay").Str("to", m.To).Msg("signal dropped, slow target")
		}
		return
	}

	for _, snap := range r.Registry.Snapshot(from) {
		if err := snap.Conn.TrySend(core.Frame(frame)); err != nil {
			log.Debug().Str("module", "relay").Str("to", string(snap.SID)).Msg("signal dropped, slow target")
		}
	}
}
