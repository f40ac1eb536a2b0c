package carparks

import "time"

// SnapshotSource yields the most recently published snapshot, if any.
type SnapshotSource interface {
	Current() (*Snapshot, bool)
}

// Service answers read-only queries against the current snapshot. It never
// triggers or waits for a refresh.
type Service struct {
	src SnapshotSource
}

// NewService returns a Service reading from src.
func NewService(src SnapshotSource) *Service {
	return &Service{src: src}
}

// FindByName returns the first record whose name matches name, ignoring case,
// along with the fetch time of the snapshot it came from.
func (s *Service) FindByName(name string) (Record, time.Time, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return Record{}, time.Time{}, err
	}
	r, ok := snap.Find(name)
	if !ok {
		return Record{}, snap.FetchedAt, ErrNotFound
	}
	return r, snap.FetchedAt, nil
}

// ListAll returns a copy of every record of the current snapshot in feed
// order, duplicates included, along with the snapshot's fetch time.
func (s *Service) ListAll() ([]Record, time.Time, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, time.Time{}, err
	}
	out := make([]Record, len(snap.Records))
	for i, r := range snap.Records {
		out[i] = r.clone()
	}
	return out, snap.FetchedAt, nil
}

// Snapshot returns the current snapshot or ErrNoSnapshot.
func (s *Service) Snapshot() (*Snapshot, error) {
	snap, ok := s.src.Current()
	if !ok || snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}
