package llm

import (
	"context"
	"fmt"

	"github.com/PabloGalante/clara-companion/internal/domain"
)

type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

// Complete echoes the last user turn, enough to exercise the chat proxy
// without a provider.
func (m *MockLLM) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return fmt.Sprintf("I hear you. You said %q.", req.Messages[i].Content), nil
		}
	}
	return "No response generated.", nil
}
