package store

import (
	"errors"
	"testing"

	"github.com/streamloop/streamloop/internal/domain"
)

func openTest(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStreamLifecycle(t *testing.T) {
	s := openTest(t)

	st, err := domain.NewStream("alice", "first stream", "hello world")
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	if err := s.CreateStream(st); err != nil {
		t.Fatalf("create: %v", err)
	}

	active, err := s.ActiveStreams()
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 || active[0].ID != st.ID || active[0].Title != "first stream" {
		t.Fatalf("unexpected active list: %+v", active)
	}

	ended, err := s.EndStream("alice")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.EndTime == nil {
		t.Error("ended stream missing end time")
	}

	active, err = s.ActiveStreams()
	if err != nil {
		t.Fatalf("active after end: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active streams, got %d", len(active))
	}

	if _, err := s.EndStream("alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for second end, got %v", err)
	}
}

func TestBookkeepingCounters(t *testing.T) {
	s := openTest(t)

	st, _ := domain.NewStream("bob", "counting", "")
	if err := s.CreateStream(st); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.AddMessage(st.ID); err != nil {
			t.Fatalf("add message: %v", err)
		}
	}
	// Peak viewers only ever grows.
	if err := s.RecordViewers(st.ID, 5); err != nil {
		t.Fatalf("record viewers: %v", err)
	}
	if err := s.RecordViewers(st.ID, 3); err != nil {
		t.Fatalf("record viewers: %v", err)
	}

	got, err := s.getStream(st.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MessageCount != 3 {
		t.Errorf("expected 3 messages, got %d", got.MessageCount)
	}
	if got.PeakViewers != 5 {
		t.Errorf("expected peak 5, got %d", got.PeakViewers)
	}

	// Counters on unknown streams are silently ignored.
	if err := s.AddMessage("ghost"); err != nil {
		t.Errorf("bookkeeping on unknown stream should not fail: %v", err)
	}
}
