// Package relay is the control-plane orchestrator: it ties the session
// registry, the room bus, and the transcode manager together and owns
// the disconnect teardown path.
package relay

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/streamloop/streamloop/internal/core"
	"github.com/streamloop/streamloop/internal/domain"
	"github.com/streamloop/streamloop/internal/protocol"
	"github.com/streamloop/streamloop/internal/transcode"
)

// Bookkeeper records stream statistics. Best-effort: the relay calls
// it off the delivery path and ignores failures beyond logging.
type Bookkeeper interface {
	AddMessage(id domain.StreamID) error
	RecordViewers(id domain.StreamID, count int) error
}

type Relay struct {
	Registry *core.Registry
	Rooms    *core.Rooms
	Jobs     *transcode.Manager
	Books    Bookkeeper
}

// Connect registers a new session. The cancel func belongs to the
// adapter's connection context and is fired if the server needs to
// evict the session.
func (r *Relay) Connect(sid domain.SessionID, role domain.Role, conn core.SignalConnection, cancel context.CancelFunc) {
	r.Registry.Bind(sid, role, conn, cancel)
}

// Disconnect releases everything the session owns: room memberships,
// the transcode job and its process, and the registry entry. By the
// time it returns no resource of the session is live.
func (r *Relay) Disconnect(sid domain.SessionID) {
	left := r.Rooms.LeaveAll(sid)
	r.Jobs.Stop(sid)
	r.Registry.Unbind(sid)
	log.Info().Str("module", "relay").Str("sid", string(sid)).Int("rooms_left", len(left)).Msg("session torn down")
}

func (r *Relay) Join(sid domain.SessionID, id domain.StreamID) {
	conn, ok := r.Registry.Conn(sid)
	if !ok {
		return
	}
	r.Rooms.Join(sid, conn, id)
	if r.Books != nil {
		count := r.Rooms.MemberCount(id)
		go func() {
			if err := r.Books.RecordViewers(id, count); err != nil {
				log.Warn().Err(err).Str("module", "relay").Str("stream", string(id)).Msg("viewer bookkeeping")
			}
		}()
	}
}

func (r *Relay) Leave(sid domain.SessionID, id domain.StreamID) {
	r.Rooms.Leave(sid, id)
}

// Chat relays one room message. The caller surfaces ErrNotMember back
// to the sender as an error event.
func (r *Relay) Chat(sid domain.SessionID, id domain.StreamID, text string) error {
	if _, err := r.Rooms.Chat(sid, id, text); err != nil {
		return err
	}
	if r.Books != nil {
		go func() {
			if err := r.Books.AddMessage(id); err != nil {
				log.Warn().Err(err).Str("module", "relay").Str("stream", string(id)).Msg("message bookkeeping")
			}
		}()
	}
	return nil
}

// Chunk feeds one media chunk to the session's transcode job. Chunks
// from viewers are dropped; chunks after job failure are dropped until
// the broadcaster restarts.
func (r *Relay) Chunk(sid domain.SessionID, data []byte) {
	role, ok := r.Registry.Role(sid)
	if !ok || role != domain.RoleBroadcaster {
		log.Warn().Str("module", "relay").Str("sid", string(sid)).Msg("chunk from non-broadcaster dropped")
		return
	}
	if err := r.Jobs.Write(sid, data); err != nil {
		log.Debug().Err(err).Str("module", "relay").Str("sid", string(sid)).Msg("chunk dropped")
	}
}

// StartJob handles the explicit startStream control message. If the
// previous job failed it is discarded first, so startStream doubles as
// the restart path.
func (r *Relay) StartJob(sid domain.SessionID) {
	role, ok := r.Registry.Role(sid)
	if !ok || role != domain.RoleBroadcaster {
		return
	}
	if state, ok := r.Jobs.State(sid); ok && state == transcode.StateFailed {
		r.Jobs.Restart(sid)
	}
	r.Jobs.Start(sid)
}

// StopJob handles the explicit stopStream control message.
func (r *Relay) StopJob(sid domain.SessionID) {
	r.Jobs.Stop(sid)
	r.sendState(sid, transcode.StateIdle, nil)
}

// OnJobState is the transcode.Notify hook: it surfaces job transitions
// to the owning broadcaster.
func (r *Relay) OnJobState(sid domain.SessionID, state transcode.State, cause error) {
	r.sendState(sid, state, cause)
}

func (r *Relay) sendState(sid domain.SessionID, state transcode.State, cause error) {
	conn, ok := r.Registry.Conn(sid)
	if !ok {
		return
	}
	ev := protocol.StreamStateEvent{Type: protocol.TypeStreamState, State: state.String()}
	if cause != nil {
		ev.Error = cause.Error()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := conn.TrySend(core.Frame(b)); err != nil {
		log.Debug().Str("module", "relay").Str("sid", string(sid)).Msg("state event dropped")
	}
}
