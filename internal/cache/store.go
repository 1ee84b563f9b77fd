package cache

import (
	"sync/atomic"
	"time"
)

// Status reports the last successful refresh. CacheTimestamp is nil
// until the first refresh completes.
type Status struct {
	CacheTimestamp *time.Time `json:"cache_timestamp"`
}

// Store holds the currently published snapshot. Replace is a single
// atomic pointer swap, so Snapshot is safe to call concurrently with an
// in-progress replace without locking. When two refreshes race, the
// last replace wins; snapshots are never merged.
type Store struct {
	snapshot  atomic.Pointer[Snapshot]
	timestamp atomic.Pointer[time.Time]
}

// NewStore creates a store holding an empty snapshot.
func NewStore() *Store {
	s := &Store{}
	s.snapshot.Store(NewSnapshot())
	return s
}

// Snapshot returns the currently published snapshot. Never nil.
func (s *Store) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Replace publishes a new snapshot and records the refresh time.
func (s *Store) Replace(snapshot *Snapshot) {
	now := time.Now().UTC()
	s.snapshot.Store(snapshot)
	s.timestamp.Store(&now)
}

// Status returns the last-refresh status.
func (s *Store) Status() Status {
	return Status{CacheTimestamp: s.timestamp.Load()}
}
