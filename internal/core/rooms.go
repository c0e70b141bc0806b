package core

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/streamloop/streamloop/internal/domain"
	"github.com/streamloop/streamloop/internal/protocol"
)

var ErrNotMember = errors.New("not a room member")

// Rooms is the broadcast bus: membership plus chat fan-out. One mutex
// serializes every operation, so messages entering the same room are
// delivered to all member send queues in processing order. Rooms are
// created implicitly on first join and removed when the last member
// leaves.
type Rooms struct {
	mu     sync.Mutex
	rooms  map[domain.StreamID]map[domain.SessionID]SignalConnection
	joined map[domain.SessionID]map[domain.StreamID]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		rooms:  make(map[domain.StreamID]map[domain.SessionID]SignalConnection),
		joined: make(map[domain.SessionID]map[domain.StreamID]struct{}),
	}
}

// Join is idempotent: joining a room twice is a no-op.
func (rs *Rooms) Join(sid domain.SessionID, conn SignalConnection, id domain.StreamID) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	room, ok := rs.rooms[id]
	if !ok {
		room = make(map[domain.SessionID]SignalConnection)
		rs.rooms[id] = room
	}
	if _, ok := room[sid]; ok {
		return
	}
	room[sid] = conn
	if rs.joined[sid] == nil {
		rs.joined[sid] = make(map[domain.StreamID]struct{})
	}
	rs.joined[sid][id] = struct{}{}
	log.Info().Str("module", "core.rooms").Str("sid", string(sid)).Str("stream", string(id)).Msg("joined room")
}

// Leave is idempotent: leaving a room the session is not in is a no-op.
func (rs *Rooms) Leave(sid domain.SessionID, id domain.StreamID) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.leaveLocked(sid, id)
}

// LeaveAll removes the session from every room it belongs to and
// returns the rooms left. Called on disconnect.
func (rs *Rooms) LeaveAll(sid domain.SessionID) []domain.StreamID {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]domain.StreamID, 0, len(rs.joined[sid]))
	for id := range rs.joined[sid] {
		rs.leaveLocked(sid, id)
		out = append(out, id)
	}
	return out
}

func (rs *Rooms) leaveLocked(sid domain.SessionID, id domain.StreamID) {
	room, ok := rs.rooms[id]
	if !ok {
		return
	}
	if _, ok := room[sid]; !ok {
		return
	}
	delete(room, sid)
	if len(room) == 0 {
		delete(rs.rooms, id)
	}
	delete(rs.joined[sid], id)
	if len(rs.joined[sid]) == 0 {
		delete(rs.joined, sid)
	}
	log.Info().Str("module", "core.rooms").Str("sid", string(sid)).Str("stream", string(id)).Msg("left room")
}

func (rs *Rooms) IsMember(sid domain.SessionID, id domain.StreamID) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	_, ok := rs.rooms[id][sid]
	return ok
}

func (rs *Rooms) MemberCount(id domain.StreamID) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.rooms[id])
}

func (rs *Rooms) Members(id domain.StreamID) []domain.SessionID {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]domain.SessionID, 0, len(rs.rooms[id]))
	for sid := range rs.rooms[id] {
		out = append(out, sid)
	}
	return out
}

// Chat stamps a server timestamp on the message and fans it out to
// every current member of the room, sender included. Returns
// ErrNotMember without fanning out if the sender is not in the room.
// Slow members lose the frame (their send queue is full); delivery is
// never retried.
func (rs *Rooms) Chat(from domain.SessionID, id domain.StreamID, text string) (domain.ChatMessage, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	room, ok := rs.rooms[id]
	if !ok {
		return domain.ChatMessage{}, ErrNotMember
	}
	if _, ok := room[from]; !ok {
		return domain.ChatMessage{}, ErrNotMember
	}

	msg := domain.ChatMessage{Stream: id, From: from, Text: text, SentAt: time.Now()}
	frame, err := marshalChat(msg)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	dropped := 0
	for sid, conn := range room {
		if err := conn.TrySend(frame); err != nil {
			dropped++
			log.Warn().Str("module", "core.rooms").Str("sid", string(sid)).Str("stream", string(id)).Msg("chat fan-out dropped")
		}
	}
	log.Debug().Str("module", "core.rooms").Str("stream", string(id)).Int("members", len(room)).Int("dropped", dropped).Msg("chat fan-out")
	return msg, nil
}

func marshalChat(msg domain.ChatMessage) (Frame, error) {
	b, err := json.Marshal(protocol.NewChatEvent(msg))
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}
