// Package store persists stream metadata. It is bookkeeping only: the
// relay never consults it on the media or chat delivery paths.
package store

import (
	"errors"

	"github.com/streamloop/streamloop/internal/domain"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	CreateStream(s *domain.Stream) error
	// EndStream closes the owner's active stream and returns the
	// updated record. ErrNotFound if nothing is live.
	EndStream(owner string) (*domain.Stream, error)
	ActiveStreams() ([]domain.Stream, error)

	AddMessage(id domain.StreamID) error
	RecordViewers(id domain.StreamID, count int) error

	Close() error
}
