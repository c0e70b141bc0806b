package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/streamloop/streamloop/internal/domain"
)

type sessionEntry struct {
	Role   domain.Role
	Conn   SignalConnection
	Cancel context.CancelFunc
}

// Registry is the source of truth for session lifetime. Every other
// component keys its per-session state off the ids handed out here and
// tears it down when the registry says the session is gone.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.SessionID]*sessionEntry)}
}

func (r *Registry) Bind(sid domain.SessionID, role domain.Role, conn SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Role: role, Conn: conn, Cancel: cancel}
	log.Info().Str("module", "core.registry").Str("sid", string(sid)).Str("role", string(role)).Msg("bound session")
}

func (r *Registry) Conn(sid domain.SessionID) (SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) Role(sid domain.SessionID) (domain.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Role, true
	}
	return "", false
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Unbind(sid domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "core.registry").Str("sid", string(sid)).Msg("unbind session")
}

type SessionSnap struct {
	SID  domain.SessionID
	Conn SignalConnection
}

// Snapshot returns all sessions except the excluded one. Used for the
// legacy broadcast-to-all-others signaling fallback.
func (r *Registry) Snapshot(except domain.SessionID) []SessionSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if sid == except {
			continue
		}
		out = append(out, SessionSnap{SID: sid, Conn: e.Conn})
	}
	return out
}

// Cancel fires the session's context cancel func, if any. The adapter
// owning the connection reacts by closing it, which in turn drives the
// disconnect path.
func (r *Registry) Cancel(sid domain.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "core.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
