package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/PabloGalante/clara-companion/internal/domain"
)

// Summarizer asks a ChatCompleter for the handoff note instead of the relay.
type Summarizer struct {
	completer domain.ChatCompleter
}

func NewSummarizer(c domain.ChatCompleter) *Summarizer {
	return &Summarizer{completer: c}
}

func (s *Summarizer) Summarize(ctx context.Context, lines []domain.SummaryLine) (string, error) {
	if s.completer == nil {
		return "", domain.Unconfigured("no language model configured for summarization")
	}

	text, err := s.completer.Complete(ctx, domain.CompletionRequest{
		Messages: []domain.ChatMessage{
			{Role: "system", Content: summarizeSystemPrompt},
			{Role: "user", Content: "Conversation:\n" + BuildTranscript(lines)},
		},
		Temperature: 0.2,
		MaxTokens:   300,
	})
	if err != nil {
		return "", fmt.Errorf("llm summarize: %w", err)
	}
	return strings.TrimSpace(text), nil
}
