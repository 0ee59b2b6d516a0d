package alert

import (
	"context"
	"time"

	"github.com/PabloGalante/clara-companion/internal/domain"
	"github.com/PabloGalante/clara-companion/internal/observability"
)

// Service owns the last-alert timestamp. The value only ever moves forward;
// the store enforces that atomically.
type Service struct {
	store   domain.AlertStore
	metrics *observability.Metrics
	now     func() time.Time
}

func NewService(store domain.AlertStore, metrics *observability.Metrics) *Service {
	return &Service{store: store, metrics: metrics, now: time.Now}
}

// Raise records an alert at the current time and returns the stored value.
func (s *Service) Raise(ctx context.Context) (time.Time, error) {
	at, err := s.store.RaiseAlert(ctx, s.now().UTC())
	if err != nil {
		observability.LoggerFromContext(ctx).Error("failed to raise alert", "error", err)
		return time.Time{}, err
	}
	s.metrics.AlertRaised()
	observability.LoggerFromContext(ctx).Info("alert raised", "last_alert", at)
	return at, nil
}

// Status returns the last alert time without side effects.
func (s *Service) Status(ctx context.Context) (time.Time, error) {
	return s.store.LastAlert(ctx)
}

// Now is the server clock used in status responses.
func (s *Service) Now() time.Time {
	return s.now().UTC()
}
