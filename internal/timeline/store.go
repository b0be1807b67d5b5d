package timeline

import (
	"sync"

	"github.com/sike25/chronicle-poc/internal/chronicle"
)

// Store is the single "currently displayed" slot. Each published set is
// tagged with the sequence number of the run that produced it, and a set
// from an older run never replaces one from a newer run.
type Store struct {
	mu  sync.Mutex
	seq uint64
	set *chronicle.EnrichedPeriodSet
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Publish replaces the displayed set if seq is newer than the one shown.
// It reports whether the set was accepted.
func (s *Store) Publish(seq uint64, set chronicle.EnrichedPeriodSet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.seq {
		return false
	}
	s.seq = seq
	s.set = &set
	return true
}

// Current returns the displayed set and its run sequence.
func (s *Store) Current() (chronicle.EnrichedPeriodSet, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set == nil {
		return chronicle.EnrichedPeriodSet{}, 0, false
	}
	return *s.set, s.seq, true
}

// Points presents the displayed set; empty when nothing is displayed.
func (s *Store) Points() []Point {
	set, _, ok := s.Current()
	if !ok {
		return []Point{}
	}
	return Present(set)
}

// Bucket returns bucket i of the displayed set.
func (s *Store) Bucket(i int) (chronicle.Bucket, bool) {
	set, _, ok := s.Current()
	if !ok || i < 0 || i >= len(set.Buckets) {
		return chronicle.Bucket{}, false
	}
	return set.Buckets[i], true
}
