package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/clara-companion/internal/domain"
	"github.com/PabloGalante/clara-companion/internal/observability"
)

// Service owns the shared chat log and the outbound SMS path.
type Service struct {
	store   domain.MessageStore
	sms     domain.SMSSender
	metrics *observability.Metrics
	now     func() time.Time
	newID   func() domain.MessageID
}

func NewService(store domain.MessageStore, sms domain.SMSSender, metrics *observability.Metrics) *Service {
	return &Service{
		store:   store,
		sms:     sms,
		metrics: metrics,
		now:     time.Now,
		newID:   generateID,
	}
}

type AppendInput struct {
	Text string
	Role string
}

// Append records an inbound message. Role defaults to contact.
func (s *Service) Append(ctx context.Context, in AppendInput) (*domain.Message, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, domain.Invalid("Message text is required and must be a string")
	}
	role, err := domain.ParseRole(in.Role, domain.RoleContact)
	if err != nil {
		return nil, err
	}

	return s.appendMessage(ctx, in.Text, role)
}

// List returns every stored message in insertion order.
func (s *Service) List(ctx context.Context) ([]*domain.Message, error) {
	msgs, err := s.store.ListMessages(ctx)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("failed to list messages", "error", err)
		return nil, err
	}
	return msgs, nil
}

type SendInput struct {
	Recipient string
	Message   string
	Role      string
}

type SendOutput struct {
	Message *domain.Message
	// Relay holds the relay's own response fields.
	Relay map[string]any
}

// Send forwards the text to the relay and stores it only once the relay
// accepted it. Role defaults to user.
func (s *Service) Send(ctx context.Context, in SendInput) (*SendOutput, error) {
	if in.Recipient == "" || in.Message == "" {
		return nil, domain.Invalid("Recipient and message are required")
	}
	role, err := domain.ParseRole(in.Role, domain.RoleUser)
	if err != nil {
		return nil, err
	}

	log := observability.LoggerFromContext(ctx).With("recipient", in.Recipient, "role", role)

	relayResp, err := s.sms.SendSMS(ctx, in.Recipient, in.Message)
	if err != nil {
		s.metrics.UpstreamFailed("relay_sms")
		log.Error("relay rejected message, not storing it", "error", err)
		return nil, err
	}

	msg, err := s.appendMessage(ctx, in.Message, role)
	if err != nil {
		return nil, err
	}

	log.Info("message sent through relay", "message_id", msg.ID)
	return &SendOutput{Message: msg, Relay: relayResp}, nil
}

// Relay texts the recipient without recording anything in the chat log.
func (s *Service) Relay(ctx context.Context, recipient, message string) (map[string]any, error) {
	if recipient == "" || message == "" {
		return nil, domain.Invalid("Recipient and message are required")
	}
	resp, err := s.sms.SendSMS(ctx, recipient, message)
	if err != nil {
		s.metrics.UpstreamFailed("relay_sms")
		observability.LoggerFromContext(ctx).Error("relay rejected direct message", "recipient", recipient, "error", err)
		return nil, err
	}
	return resp, nil
}

func (s *Service) appendMessage(ctx context.Context, text string, role domain.Role) (*domain.Message, error) {
	msg := &domain.Message{
		ID:        s.newID(),
		Content:   text,
		Role:      role,
		Timestamp: s.now().UTC(),
	}

	if err := s.store.AppendMessage(ctx, msg); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to append message", "error", err)
		return nil, fmt.Errorf("append message: %w", err)
	}

	s.metrics.MessageAppended(string(role))
	return msg, nil
}

// generateID returns a UUIDv7: unique and ordered by creation time.
func generateID() domain.MessageID {
	return domain.MessageID(uuid.Must(uuid.NewV7()).String())
}
