package assistant

import (
	"context"
	"strings"

	"github.com/PabloGalante/clara-companion/internal/domain"
	"github.com/PabloGalante/clara-companion/internal/observability"
)

const (
	temperature  = 0.7
	maxTokens    = 1000
	emptyReply   = "No response generated."
	roleSystem   = "system"
	missingModel = "OpenAI API key is not configured on the server"
)

// Service is the /gptchat proxy: it prepends a fixed system prompt and
// forwards the conversation to the configured provider.
type Service struct {
	completer    domain.ChatCompleter
	systemPrompt string
	metrics      *observability.Metrics
}

// NewService accepts a nil completer; every call then fails as unconfigured.
func NewService(completer domain.ChatCompleter, systemPrompt string, metrics *observability.Metrics) *Service {
	return &Service{completer: completer, systemPrompt: systemPrompt, metrics: metrics}
}

func (s *Service) Chat(ctx context.Context, msgs []domain.ChatMessage) (string, error) {
	if len(msgs) == 0 {
		return "", domain.Invalid("Messages are required and must be an array")
	}
	if s.completer == nil {
		return "", domain.Unconfigured(missingModel)
	}

	prompt := make([]domain.ChatMessage, 0, len(msgs)+1)
	prompt = append(prompt, domain.ChatMessage{Role: roleSystem, Content: s.systemPrompt})
	prompt = append(prompt, msgs...)

	log := observability.LoggerFromContext(ctx).With("turns", len(msgs))

	text, err := s.completer.Complete(ctx, domain.CompletionRequest{
		Messages:    prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		s.metrics.UpstreamFailed("llm")
		log.Error("chat completion failed", "error", err)
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return emptyReply, nil
	}
	return text, nil
}
