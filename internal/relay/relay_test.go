package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/streamloop/streamloop/internal/core"
	"github.com/streamloop/streamloop/internal/domain"
	"github.com/streamloop/streamloop/internal/protocol"
	"github.com/streamloop/streamloop/internal/transcode"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) received() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// hasState reports whether a streamState event with the given state
// has arrived.
func (c *fakeConn) hasState(state string) bool {
	for _, f := range c.received() {
		var ev protocol.StreamStateEvent
		if json.Unmarshal(f, &ev) == nil && ev.Type == protocol.TypeStreamState && ev.State == state {
			return true
		}
	}
	return false
}

type fakeProc struct {
	mu     sync.Mutex
	killed bool
	done   chan struct{}
}

func (p *fakeProc) Write([]byte) error { return nil }

func (p *fakeProc) Kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.killed {
		p.killed = true
		close(p.done)
	}
}

func (p *fakeProc) Done() <-chan struct{} { return p.done }
func (p *fakeProc) Err() error            { return nil }

func (p *fakeProc) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

type fakeStarter struct {
	mu    sync.Mutex
	procs []*fakeProc
}

func (s *fakeStarter) start(context.Context) (transcode.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &fakeProc{done: make(chan struct{})}
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeStarter) spawned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

func (s *fakeStarter) proc(i int) *fakeProc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[i]
}

func newTestRelay(starter *fakeStarter) *Relay {
	r := &Relay{Registry: core.NewRegistry(), Rooms: core.NewRooms()}
	r.Jobs = transcode.NewManager(8, starter.start, r.OnJobState)
	return r
}

func connect(r *Relay, sid domain.SessionID, role domain.Role) *fakeConn {
	conn := &fakeConn{}
	r.Connect(sid, role, conn, func() {})
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestChatReachesRoomMembers(t *testing.T) {
	r := newTestRelay(&fakeStarter{})
	a := connect(r, "a", domain.RoleViewer)
	b := connect(r, "b", domain.RoleViewer)
	r.Join("a", "s1")
	r.Join("b", "s1")

	if err := r.Chat("a", "s1", "hi"); err != nil {
		t.Fatalf("chat: %v", err)
	}

	for name, conn := range map[string]*fakeConn{"a": a, "b": b} {
		frames := conn.received()
		if len(frames) != 1 {
			t.Fatalf("%s: expected 1 frame, got %d", name, len(frames))
		}
		var ev protocol.ChatEvent
		if err := json.Unmarshal(frames[0], &ev); err != nil {
			t.Fatalf("%s: bad frame: %v", name, err)
		}
		if ev.Message.Text != "hi" {
			t.Errorf("%s: expected %q, got %q", name, "hi", ev.Message.Text)
		}
	}
}

func TestChatOutsideRoomRejected(t *testing.T) {
	r := newTestRelay(&fakeStarter{})
	connect(r, "a", domain.RoleViewer)

	if err := r.Chat("a", "s1", "hi"); !errors.Is(err, core.ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestSignalTargeted(t *testing.T) {
	r := newTestRelay(&fakeStarter{})
	a := connect(r, "a", domain.RoleViewer)
	b := connect(r, "b", domain.RoleViewer)
	c := connect(r, "c", domain.RoleViewer)

	r.Signal("a", &protocol.Message{Type: protocol.TypeOffer, To: "b", SDP: "v=0"})

	if len(b.received()) != 1 {
		t.Fatalf("target should receive the envelope, got %d frames", len(b.received()))
	}
	var m protocol.Message
	if err := json.Unmarshal(b.received()[0], &m); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}
	if m.From != "a" || m.SDP != "v=0" {
		t.Errorf("envelope not stamped/forwarded correctly: %+v", m)
	}
	if len(a.received()) != 0 || len(c.received()) != 0 {
		t.Error("targeted envelope leaked to other sessions")
	}
}

func TestSignalBroadcastFallback(t *testing.T) {
	r := newTestRelay(&fakeStarter{})
	a := connect(r, "a", domain.RoleViewer)
	b := connect(r, "b", domain.RoleViewer)
	c := connect(r, "c", domain.RoleViewer)

	r.Signal("a", &protocol.Message{Type: protocol.TypeAnswer, SDP: "v=0"})

	if len(a.received()) != 0 {
		t.Error("sender must not receive its own envelope")
	}
	if len(b.received()) != 1 || len(c.received()) != 1 {
		t.Error("broadcast fallback should reach all other sessions")
	}
}

// An envelope naming a disconnected target is dropped outright: no
// delivery anywhere, no error back to the sender.
func TestSignalUnknownTargetDropped(t *testing.T) {
	r := newTestRelay(&fakeStarter{})
	a := connect(r, "a", domain.RoleViewer)
	b := connect(r, "b", domain.RoleViewer)

	r.Signal("a", &protocol.Message{
		Type:      protocol.TypeICE,
		To:        "ghost",
		Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:1 1 UDP 2122252543 10.0.0.1 50000 typ host"},
	})

	if len(a.received()) != 0 || len(b.received()) != 0 {
		t.Error("envelope for a dead target must not be delivered anywhere")
	}
}

func TestChunkSpawnsAndNotifiesBroadcaster(t *testing.T) {
	starter := &fakeStarter{}
	r := newTestRelay(starter)
	a := connect(r, "a", domain.RoleBroadcaster)

	r.Chunk("a", []byte("chunk"))
	waitFor(t, "running notification", func() bool { return a.hasState("running") })
	if !a.hasState("starting") {
		t.Error("broadcaster should see the starting transition")
	}

	// Encoder dies externally; broadcaster is told, relay survives.
	starter.proc(0).Kill()
	waitFor(t, "failed notification", func() bool { return a.hasState("failed") })
	r.Chunk("a", []byte("after-crash")) // must not panic or respawn
	if starter.spawned() != 1 {
		t.Errorf("failed job must not respawn implicitly, got %d spawns", starter.spawned())
	}
}

func TestChunkFromViewerDropped(t *testing.T) {
	starter := &fakeStarter{}
	r := newTestRelay(starter)
	connect(r, "a", domain.RoleViewer)

	r.Chunk("a", []byte("chunk"))
	time.Sleep(20 * time.Millisecond)
	if starter.spawned() != 0 {
		t.Error("viewer chunks must never spawn an encoder")
	}
}

func TestStartStreamRestartsFailedJob(t *testing.T) {
	starter := &fakeStarter{}
	r := newTestRelay(starter)
	a := connect(r, "a", domain.RoleBroadcaster)

	r.Chunk("a", []byte("c1"))
	waitFor(t, "running", func() bool { return a.hasState("running") })
	starter.proc(0).Kill()
	waitFor(t, "failed", func() bool { return a.hasState("failed") })

	r.StartJob("a")
	waitFor(t, "fresh encoder", func() bool { return starter.spawned() == 2 })
}

func TestStopStreamEmitsIdle(t *testing.T) {
	starter := &fakeStarter{}
	r := newTestRelay(starter)
	a := connect(r, "a", domain.RoleBroadcaster)

	r.Chunk("a", []byte("c1"))
	waitFor(t, "running", func() bool { return a.hasState("running") })

	r.StopJob("a")
	if !a.hasState("idle") {
		t.Error("explicit stop should surface the idle state")
	}
	if !starter.proc(0).wasKilled() {
		t.Error("encoder should be gone after stopStream")
	}
}

func TestDisconnectReleasesEverything(t *testing.T) {
	starter := &fakeStarter{}
	r := newTestRelay(starter)
	a := connect(r, "a", domain.RoleBroadcaster)
	connect(r, "b", domain.RoleViewer)
	r.Join("a", "s1")
	r.Join("a", "s2")
	r.Chunk("a", []byte("c1"))
	waitFor(t, "running", func() bool { return a.hasState("running") })

	r.Disconnect("a")

	if r.Rooms.IsMember("a", "s1") || r.Rooms.IsMember("a", "s2") {
		t.Error("disconnected session still in rooms")
	}
	if !starter.proc(0).wasKilled() {
		t.Error("encoder outlived its session")
	}
	if _, ok := r.Registry.Conn("a"); ok {
		t.Error("registry entry outlived the session")
	}
	if _, ok := r.Jobs.State("a"); ok {
		t.Error("job entry outlived the session")
	}
}
