package transcode

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/streamloop/streamloop/internal/domain"
)

// Manager owns at most one Job per broadcaster session. Jobs are
// created lazily on the first chunk and removed on Stop, so a session
// can never hold two live encoder processes. A failed job stays in the
// map (rejecting chunks) until Restart or Stop replaces it, which
// keeps failure visible to the owner instead of silently respawning.
type Manager struct {
	start  Starter
	notify Notify
	limit  int

	mu   sync.Mutex
	jobs map[domain.SessionID]*Job
}

func NewManager(limit int, start Starter, notify Notify) *Manager {
	return &Manager{
		start:  start,
		notify: notify,
		limit:  limit,
		jobs:   make(map[domain.SessionID]*Job),
	}
}

// Write routes one chunk to the session's job, creating the job on
// first use.
func (m *Manager) Write(sid domain.SessionID, chunk []byte) error {
	m.mu.Lock()
	job, ok := m.jobs[sid]
	if !ok {
		job = NewJob(sid, m.limit, m.start, m.notify)
		m.jobs[sid] = job
	}
	m.mu.Unlock()
	return job.Write(chunk)
}

// Start spawns the session's encoder ahead of the first chunk,
// creating the job if needed.
func (m *Manager) Start(sid domain.SessionID) {
	m.mu.Lock()
	job, ok := m.jobs[sid]
	if !ok {
		job = NewJob(sid, m.limit, m.start, m.notify)
		m.jobs[sid] = job
	}
	m.mu.Unlock()
	job.Start()
}

// State reports the session's job state; false if it has no job.
func (m *Manager) State(sid domain.SessionID) (State, bool) {
	m.mu.Lock()
	job, ok := m.jobs[sid]
	m.mu.Unlock()
	if !ok {
		return StateIdle, false
	}
	return job.State(), true
}

// Restart discards a failed job so the next chunk spawns a fresh
// encoder. No-op unless the current job is in Failed state.
func (m *Manager) Restart(sid domain.SessionID) {
	m.mu.Lock()
	job, ok := m.jobs[sid]
	failed := ok && job.State() == StateFailed
	if failed {
		delete(m.jobs, sid)
	}
	m.mu.Unlock()
	if failed {
		job.Stop()
	}
}

// Stop tears down the session's job synchronously. Idempotent.
func (m *Manager) Stop(sid domain.SessionID) {
	m.mu.Lock()
	job, ok := m.jobs[sid]
	delete(m.jobs, sid)
	m.mu.Unlock()
	if ok {
		job.Stop()
		log.Info().Str("module", "transcode").Str("sid", string(sid)).Msg("job torn down")
	}
}

// StopAll tears down every live job. Called on server shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.jobs = make(map[domain.SessionID]*Job)
	m.mu.Unlock()
	for _, job := range jobs {
		job.Stop()
	}
}
