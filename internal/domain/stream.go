package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const MaxTitleLen = 140

var (
	ErrTitleEmpty   = errors.New("title empty")
	ErrTitleTooLong = errors.New("title too long")
)

// Stream is the persisted metadata record for one broadcast. The relay
// never reads it on the media path; it exists for bookkeeping only.
type Stream struct {
	ID           StreamID   `json:"id"`
	Owner        string     `json:"owner"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	StartTime    time.Time  `json:"startTime"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	PeakViewers  int        `json:"peakViewers"`
	MessageCount int        `json:"messageCount"`
}

// NewStream avoids ad-hoc struct literals in adapters and keeps
// validation in one place.
func NewStream(owner, title, description string) (*Stream, error) {
	if len(title) == 0 {
		return nil, ErrTitleEmpty
	}
	if len(title) > MaxTitleLen {
		return nil, ErrTitleTooLong
	}
	return &Stream{
		ID:          StreamID(uuid.NewString()),
		Owner:       owner,
		Title:       title,
		Description: description,
		StartTime:   time.Now(),
	}, nil
}
