package transcode

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/streamloop/streamloop/internal/domain"
)

// State is the lifecycle of one transcode job.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

var ErrJobFailed = errors.New("transcode job failed")

// Notify reports state transitions to the owner. Called outside the
// job lock; cause is non-nil only for StateFailed.
type Notify func(sid domain.SessionID, state State, cause error)

// Job feeds one broadcaster's chunk stream into one encoder process.
//
// The first chunk triggers the guarded Idle→Starting transition:
// exactly one spawn per job, with chunks arriving mid-spawn queued
// into the buffer. The buffer is bounded; when full the oldest chunk
// is evicted before the newest is inserted, keeping latency ahead of
// completeness. Any process exit moves the job to Failed without
// touching the rest of the server.
type Job struct {
	sid    domain.SessionID
	start  Starter
	notify Notify
	limit  int

	mu      sync.Mutex
	state   State
	buf     [][]byte
	dropped uint64
	proc    Process
	stopped bool
	started bool

	wake   chan struct{}
	stopCh chan struct{}
	done   chan struct{}
}

func NewJob(sid domain.SessionID, limit int, start Starter, notify Notify) *Job {
	if limit < 1 {
		limit = 1
	}
	return &Job{
		sid:    sid,
		start:  start,
		notify: notify,
		limit:  limit,
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Dropped returns how many chunks were evicted under backpressure.
func (j *Job) Dropped() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Start triggers the guarded Idle→Starting transition without queuing
// a chunk. No-op unless the job is Idle.
func (j *Job) Start() {
	j.mu.Lock()
	if j.stopped || j.state != StateIdle {
		j.mu.Unlock()
		return
	}
	j.state = StateStarting
	j.started = true
	j.mu.Unlock()
	j.notify(j.sid, StateStarting, nil)
	go j.run()
}

// Write queues one chunk. It never blocks: under backpressure the
// oldest buffered chunk is evicted. After failure chunks are rejected
// until the owner builds a fresh job.
func (j *Job) Write(chunk []byte) error {
	j.mu.Lock()
	if j.stopped || j.state == StateFailed {
		j.mu.Unlock()
		return ErrJobFailed
	}
	evicted := j.push(chunk)
	if j.state == StateIdle {
		j.state = StateStarting
		j.started = true
		j.mu.Unlock()
		j.notify(j.sid, StateStarting, nil)
		go j.run()
		return nil
	}
	j.mu.Unlock()

	if evicted {
		log.Warn().Str("module", "transcode").Str("sid", string(j.sid)).Msg("buffer full, dropped oldest chunk")
	}
	select {
	case j.wake <- struct{}{}:
	default:
	}
	return nil
}

// push appends under the lock, evicting the oldest entry when the
// buffer is at capacity. Reports whether an eviction happened.
func (j *Job) push(chunk []byte) bool {
	evicted := false
	if len(j.buf) == j.limit {
		j.buf = j.buf[1:]
		j.dropped++
		evicted = true
	}
	j.buf = append(j.buf, chunk)
	return evicted
}

func (j *Job) pop() ([]byte, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.buf) == 0 {
		return nil, false
	}
	chunk := j.buf[0]
	j.buf = j.buf[1:]
	return chunk, true
}

func (j *Job) run() {
	defer close(j.done)

	proc, err := j.start(context.Background())
	if err != nil {
		j.fail(fmt.Errorf("spawn encoder: %w", err))
		return
	}

	j.mu.Lock()
	if j.stopped {
		j.mu.Unlock()
		proc.Kill()
		<-proc.Done()
		return
	}
	j.proc = proc
	j.state = StateRunning
	j.mu.Unlock()
	j.notify(j.sid, StateRunning, nil)

	for {
		chunk, ok := j.pop()
		if !ok {
			select {
			case <-j.wake:
				continue
			case <-j.stopCh:
				return
			case <-proc.Done():
				j.fail(fmt.Errorf("encoder exited: %w", exitError(proc)))
				return
			}
		}
		if err := proc.Write(chunk); err != nil {
			proc.Kill()
			j.fail(fmt.Errorf("encoder write: %w", err))
			return
		}
	}
}

func exitError(p Process) error {
	if err := p.Err(); err != nil {
		return err
	}
	return errors.New("clean exit")
}

func (j *Job) fail(cause error) {
	j.mu.Lock()
	if j.stopped || j.state == StateFailed {
		j.mu.Unlock()
		return
	}
	j.state = StateFailed
	j.buf = nil
	proc := j.proc
	j.proc = nil
	j.mu.Unlock()

	if proc != nil {
		proc.Kill()
	}
	log.Error().Err(cause).Str("module", "transcode").Str("sid", string(j.sid)).Msg("job failed")
	j.notify(j.sid, StateFailed, cause)
}

// Stop tears the job down synchronously: by the time it returns the
// encoder has been killed, the writer goroutine has exited, and the
// buffer is released. Safe to call more than once.
func (j *Job) Stop() {
	j.mu.Lock()
	if j.stopped {
		j.mu.Unlock()
		return
	}
	j.stopped = true
	started := j.started
	proc := j.proc
	j.proc = nil
	j.buf = nil
	j.state = StateIdle
	j.mu.Unlock()

	close(j.stopCh)
	if proc != nil {
		proc.Kill()
		<-proc.Done()
	}
	if started {
		<-j.done
	}
	log.Info().Str("module", "transcode").Str("sid", string(j.sid)).Msg("job stopped")
}
