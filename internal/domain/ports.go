package domain

import (
	"context"
	"time"
)

// MessageStore keeps the append-only chat log.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context) ([]*Message, error)
}

// ModeStore holds the process-wide responder flag.
type ModeStore interface {
	SetMode(ctx context.Context, mode Mode) error
	GetMode(ctx context.Context) (Mode, error)
}

// AlertStore holds the latest alert time. RaiseAlert must never move the
// stored value backwards and returns the value now stored.
type AlertStore interface {
	RaiseAlert(ctx context.Context, at time.Time) (time.Time, error)
	LastAlert(ctx context.Context) (time.Time, error)
}

// SummaryStore persists handoff summaries.
type SummaryStore interface {
	AppendSummary(ctx context.Context, s *Summary) error
	ListSummaries(ctx context.Context, limit int) ([]*Summary, error)
}

// SMSSender delivers a text through the external relay and returns the
// relay's decoded JSON response (possibly empty).
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) (map[string]any, error)
}

// ModeForwarder tells the external relay which responder is active.
type ModeForwarder interface {
	ForwardMode(ctx context.Context, mode Mode) error
}

// Summarizer condenses a conversation into plain text.
type Summarizer interface {
	Summarize(ctx context.Context, lines []SummaryLine) (string, error)
}

// ChatCompleter is a language-model provider.
type ChatCompleter interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest carries the full prompt, system turn included.
type CompletionRequest struct {
	Messages    []ChatMessage
	Temperature float32
	MaxTokens   int
}
