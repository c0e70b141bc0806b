package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/streamloop/streamloop/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS streams (
	id            TEXT PRIMARY KEY,
	owner         TEXT NOT NULL,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	start_time    TIMESTAMP NOT NULL,
	end_time      TIMESTAMP,
	peak_viewers  INTEGER NOT NULL DEFAULT 0,
	message_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_streams_owner_active ON streams(owner) WHERE end_time IS NULL;
`

type SQLite struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the sqlite database at path.
// Use ":memory:" for tests.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) CreateStream(st *domain.Stream) error {
	query := `INSERT INTO streams (id, owner, title, description, start_time) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.Exec(query, string(st.ID), st.Owner, st.Title, st.Description, st.StartTime); err != nil {
		return fmt.Errorf("failed to insert stream '%s': %w", st.ID, err)
	}
	return nil
}

func (s *SQLite) EndStream(owner string) (*domain.Stream, error) {
	query := `SELECT id FROM streams WHERE owner = ? AND end_time IS NULL ORDER BY start_time DESC LIMIT 1`
	var id string
	if err := s.db.QueryRow(query, owner).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error querying active stream: %w", err)
	}

	now := time.Now()
	if _, err := s.db.Exec(`UPDATE streams SET end_time = ? WHERE id = ?`, now, id); err != nil {
		return nil, fmt.Errorf("failed to end stream '%s': %w", id, err)
	}
	return s.getStream(domain.StreamID(id))
}

func (s *SQLite) getStream(id domain.StreamID) (*domain.Stream, error) {
	query := `SELECT id, owner, title, description, start_time, end_time, peak_viewers, message_count
		FROM streams WHERE id = ?`
	var st domain.Stream
	var rawID string
	var endTime sql.NullTime
	err := s.db.QueryRow(query, string(id)).Scan(
		&rawID, &st.Owner, &st.Title, &st.Description, &st.StartTime, &endTime, &st.PeakViewers, &st.MessageCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error querying stream '%s': %w", id, err)
	}
	st.ID = domain.StreamID(rawID)
	if endTime.Valid {
		st.EndTime = &endTime.Time
	}
	return &st, nil
}

func (s *SQLite) ActiveStreams() ([]domain.Stream, error) {
	query := `SELECT id, owner, title, description, start_time, peak_viewers, message_count
		FROM streams WHERE end_time IS NULL ORDER BY start_time DESC`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active streams: %w", err)
	}
	defer rows.Close()

	var out []domain.Stream
	for rows.Next() {
		var st domain.Stream
		var rawID string
		if err := rows.Scan(&rawID, &st.Owner, &st.Title, &st.Description, &st.StartTime, &st.PeakViewers, &st.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan stream row: %w", err)
		}
		st.ID = domain.StreamID(rawID)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active streams: %w", err)
	}
	return out, nil
}

func (s *SQLite) AddMessage(id domain.StreamID) error {
	query := `UPDATE streams SET message_count = message_count + 1 WHERE id = ? AND end_time IS NULL`
	if _, err := s.db.Exec(query, string(id)); err != nil {
		return fmt.Errorf("failed to count message for '%s': %w", id, err)
	}
	return nil
}

func (s *SQLite) RecordViewers(id domain.StreamID, count int) error {
	query := `UPDATE streams SET peak_viewers = ? WHERE id = ? AND end_time IS NULL AND peak_viewers < ?`
	if _, err := s.db.Exec(query, count, string(id), count); err != nil {
		return fmt.Errorf("failed to record viewers for '%s': %w", id, err)
	}
	return nil
}
