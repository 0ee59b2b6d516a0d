package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/PabloGalante/clara-companion/internal/domain"
)

// MessageStore is the process-local chat log. Nothing survives a restart.
type MessageStore struct {
	mu       sync.RWMutex
	messages []*domain.Message
	ids      map[domain.MessageID]struct{}
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		ids: make(map[domain.MessageID]struct{}),
	}
}

func (s *MessageStore) AppendMessage(_ context.Context, msg *domain.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[msg.ID]; exists {
		return errors.New("message already exists")
	}

	stored := *msg
	s.messages = append(s.messages, &stored)
	s.ids[msg.ID] = struct{}{}
	return nil
}

// ListMessages returns copies in insertion order.
func (s *MessageStore) ListMessages(_ context.Context) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Message, 0, len(s.messages))
	for _, m := range s.messages {
		c := *m
		out = append(out, &c)
	}
	return out, nil
}
