package memory

import (
	"context"
	"sync"
	"time"
)

type AlertStore struct {
	mu   sync.RWMutex
	last time.Time
}

// NewAlertStore seeds the last alert time with start, normally the process
// start time, so clients that begin polling later see nothing new.
func NewAlertStore(start time.Time) *AlertStore {
	return &AlertStore{last: start}
}

func (s *AlertStore) RaiseAlert(_ context.Context, at time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at.After(s.last) {
		s.last = at
	}
	return s.last, nil
}

func (s *AlertStore) LastAlert(_ context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, nil
}
