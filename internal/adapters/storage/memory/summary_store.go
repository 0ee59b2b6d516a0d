package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/clara-companion/internal/domain"
)

// SummaryStore is a simple in-memory implementation of domain.SummaryStore.
// It is NOT persistent and is only suitable for development / local mode.
type SummaryStore struct {
	mu        sync.RWMutex
	summaries []*domain.Summary
}

func NewSummaryStore() *SummaryStore {
	return &SummaryStore{}
}

func (s *SummaryStore) AppendSummary(_ context.Context, sum *domain.Summary) error {
	if sum == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *sum
	s.summaries = append(s.summaries, &c)
	return nil
}

// ListSummaries returns the last `limit` summaries, oldest first.
// If limit <= 0, returns all.
func (s *SummaryStore) ListSummaries(_ context.Context, limit int) ([]*domain.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.summaries) {
		limit = len(s.summaries)
	}
	selected := s.summaries[len(s.summaries)-limit:]

	out := make([]*domain.Summary, 0, len(selected))
	for _, sum := range selected {
		c := *sum
		out = append(out, &c)
	}
	return out, nil
}
