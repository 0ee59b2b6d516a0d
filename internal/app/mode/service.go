package mode

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/clara-companion/internal/domain"
	"github.com/PabloGalante/clara-companion/internal/observability"
)

const DefaultSideEffectTimeout = 15 * time.Second

// Service is the single writer of the responder mode.
//
// Set is authoritative once the store write succeeds. Forwarding the mode to
// the relay and summarizing the history on an agent-to-caregiver handoff run
// afterwards on detached goroutines; their errors are logged, never returned.
type Service struct {
	mu sync.Mutex

	store      domain.ModeStore
	messages   domain.MessageStore
	summaries  domain.SummaryStore
	forwarder  domain.ModeForwarder
	summarizer domain.Summarizer
	metrics    *observability.Metrics

	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

type Deps struct {
	Store      domain.ModeStore
	Messages   domain.MessageStore
	Summaries  domain.SummaryStore
	Forwarder  domain.ModeForwarder
	Summarizer domain.Summarizer
	Metrics    *observability.Metrics
	Timeout    time.Duration
}

func NewService(d Deps) *Service {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultSideEffectTimeout
	}
	return &Service{
		store:      d.Store,
		messages:   d.Messages,
		summaries:  d.Summaries,
		forwarder:  d.Forwarder,
		summarizer: d.Summarizer,
		metrics:    d.Metrics,
		timeout:    timeout,
		now:        time.Now,
	}
}

func (s *Service) Get(ctx context.Context) (domain.Mode, error) {
	return s.store.GetMode(ctx)
}

func (s *Service) Set(ctx context.Context, agent bool) (domain.Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := observability.LoggerFromContext(ctx).With("agent", agent)

	prev, err := s.store.GetMode(ctx)
	if err != nil {
		log.Error("failed to read current mode", "error", err)
		return domain.Mode{}, err
	}

	next := domain.Mode{Agent: agent}
	if err := s.store.SetMode(ctx, next); err != nil {
		log.Error("failed to set mode", "error", err)
		return domain.Mode{}, err
	}
	s.metrics.ModeChanged(agent)
	log.Info("mode set", "previous_agent", prev.Agent)

	reqID := observability.RequestID(ctx)

	if s.forwarder != nil {
		s.detach(reqID, "forward_mode", func(ctx context.Context) error {
			return s.forwarder.ForwardMode(ctx, next)
		})
	}

	if prev.Agent && !agent && s.summarizer != nil {
		s.detach(reqID, "handoff_summary", s.summarizeHandoff)
	}

	return next, nil
}

// Wait blocks until every detached side effect has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) detach(reqID, name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx := context.Background()
		if reqID != "" {
			ctx = observability.WithRequestID(ctx, reqID)
		}
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		log := observability.LoggerFromContext(ctx).With("side_effect", name)

		err := fn(ctx)
		s.metrics.SideEffectDone(name, err)
		if err != nil {
			log.Warn("mode side effect failed", "error", err)
			return
		}
		log.Info("mode side effect done")
	}()
}

func (s *Service) summarizeHandoff(ctx context.Context) error {
	if s.messages == nil {
		return nil
	}
	msgs, err := s.messages.ListMessages(ctx)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	lines := make([]domain.SummaryLine, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, domain.SummaryLine{Text: m.Content, Role: string(m.Role)})
	}

	text, err := s.summarizer.Summarize(ctx, lines)
	if err != nil {
		return err
	}
	if s.summaries == nil {
		return nil
	}

	return s.summaries.AppendSummary(ctx, &domain.Summary{
		ID:           domain.SummaryID(uuid.Must(uuid.NewV7()).String()),
		Text:         text,
		MessageCount: len(msgs),
		CreatedAt:    s.now().UTC(),
	})
}
