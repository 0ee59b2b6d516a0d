package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/clara-companion/internal/domain"
)

type ModeStore struct {
	mu   sync.RWMutex
	mode domain.Mode
}

// NewModeStore starts in caregiver mode.
func NewModeStore() *ModeStore {
	return &ModeStore{}
}

func (s *ModeStore) SetMode(_ context.Context, mode domain.Mode) error {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	return nil
}

func (s *ModeStore) GetMode(_ context.Context) (domain.Mode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode, nil
}
