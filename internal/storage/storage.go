package storage

import (
	"errors"

	"github.com/bher20/carparkmanager/internal/carparks"
)

// ErrNilSnapshot is returned when publishing a nil snapshot.
var ErrNilSnapshot = errors.New("storage: nil snapshot")

// Storage holds the current car park snapshot.
type Storage interface {
	// Current returns the latest published snapshot. It never blocks on a
	// concurrent Publish; ok is false until the first Publish.
	Current() (snap *carparks.Snapshot, ok bool)

	// Publish atomically replaces the current snapshot.
	Publish(snap *carparks.Snapshot) error

	// Close releases any resources (no-op for in-memory).
	Close() error
}
