package summary

import (
	"context"

	"github.com/PabloGalante/clara-companion/internal/domain"
	"github.com/PabloGalante/clara-companion/internal/observability"
)

const defaultListLimit = 20

// Service proxies conversation summarization and reads back the summaries
// recorded on agent-to-caregiver handoffs.
type Service struct {
	summarizer domain.Summarizer
	store      domain.SummaryStore
	metrics    *observability.Metrics
}

func NewService(summarizer domain.Summarizer, store domain.SummaryStore, metrics *observability.Metrics) *Service {
	return &Service{summarizer: summarizer, store: store, metrics: metrics}
}

// Summarize forwards lines to the configured summarizer.
func (s *Service) Summarize(ctx context.Context, lines []domain.SummaryLine) (string, error) {
	if len(lines) == 0 {
		return "", domain.Invalid("Valid messages array is required")
	}
	if s.summarizer == nil {
		return "", domain.Unconfigured("summarizer is not configured on the server")
	}

	text, err := s.summarizer.Summarize(ctx, lines)
	if err != nil {
		s.metrics.UpstreamFailed("summarizer")
		observability.LoggerFromContext(ctx).Error("summarization failed", "error", err, "lines", len(lines))
		return "", err
	}
	return text, nil
}

// List returns the last limit summaries, oldest first. If limit <= 0 a
// default is used.
func (s *Service) List(ctx context.Context, limit int) ([]*domain.Summary, error) {
	if s.store == nil {
		return []*domain.Summary{}, nil
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.store.ListSummaries(ctx, limit)
}
