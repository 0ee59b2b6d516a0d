package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/PabloGalante/clara-companion/internal/domain"
)

func TestOpenAIClientSendsRequestShape(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", srv.URL, "")
	text, err := c.Complete(context.Background(), domain.CompletionRequest{
		Messages: []domain.ChatMessage{
			{Role: "system", Content: AssistantSystemPrompt},
			{Role: "user", Content: "hello"},
		},
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "hi there" {
		t.Fatalf("unexpected text %q", text)
	}
	if got.Model != DefaultModel || got.MaxTokens != 1000 || got.Temperature != 0.7 {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[0].Content != AssistantSystemPrompt {
		t.Fatalf("system prompt not prepended: %+v", got.Messages)
	}
}

func TestOpenAIClientPassesThroughClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient("bad", srv.URL, "").Complete(context.Background(), domain.CompletionRequest{})

	var de *domain.Error
	if !errors.As(err, &de) {
		t.Fatalf("expected domain error, got %v", err)
	}
	if de.Status != http.StatusUnauthorized || de.Message != "Incorrect API key provided" {
		t.Fatalf("unexpected error %+v", de)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", n)
	}
}

func TestOpenAIClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"recovered"}}]}`))
	}))
	defer srv.Close()

	text, err := NewOpenAIClient("k", srv.URL, "").Complete(context.Background(), domain.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "recovered" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestMockEchoesLastUserTurn(t *testing.T) {
	text, _ := NewMockLLM().Complete(context.Background(), domain.CompletionRequest{
		Messages: []domain.ChatMessage{
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "ok"},
			{Role: "user", Content: "second"},
		},
	})
	if !strings.Contains(text, "second") {
		t.Fatalf("expected echo of last user turn, got %q", text)
	}
}

type recordingCompleter struct {
	req domain.CompletionRequest
}

func (r *recordingCompleter) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	r.req = req
	return "  handoff note  ", nil
}

func TestSummarizerBuildsTranscript(t *testing.T) {
	rc := &recordingCompleter{}
	got, err := NewSummarizer(rc).Summarize(context.Background(), []domain.SummaryLine{
		{Text: "I need my pills", Role: "contact"},
		{Text: "Reminder set", Role: "agent"},
	})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if got != "handoff note" {
		t.Fatalf("expected trimmed summary, got %q", got)
	}
	user := rc.req.Messages[len(rc.req.Messages)-1].Content
	if !strings.Contains(user, "contact: I need my pills") || !strings.Contains(user, "agent: Reminder set") {
		t.Fatalf("transcript missing lines: %q", user)
	}
}
