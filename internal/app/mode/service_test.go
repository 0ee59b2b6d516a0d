package mode_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PabloGalante/clara-companion/internal/adapters/storage/memory"
	"github.com/PabloGalante/clara-companion/internal/app/mode"
	"github.com/PabloGalante/clara-companion/internal/domain"
)

type fakeForwarder struct {
	mu    sync.Mutex
	modes []domain.Mode
	err   error
	block chan struct{}
}

func (f *fakeForwarder) ForwardMode(ctx context.Context, m domain.Mode) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, m)
	return f.err
}

type fakeSummarizer struct {
	mu    sync.Mutex
	calls int
	lines []domain.SummaryLine
	err   error
}

func (f *fakeSummarizer) Summarize(_ context.Context, lines []domain.SummaryLine) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lines = lines
	if f.err != nil {
		return "", f.err
	}
	return "patient asked about dinner", nil
}

type fixture struct {
	svc        *mode.Service
	messages   *memory.MessageStore
	summaries  *memory.SummaryStore
	forwarder  *fakeForwarder
	summarizer *fakeSummarizer
}

func newFixture(fw *fakeForwarder, sum *fakeSummarizer) fixture {
	f := fixture{
		messages:   memory.NewMessageStore(),
		summaries:  memory.NewSummaryStore(),
		forwarder:  fw,
		summarizer: sum,
	}
	f.svc = mode.NewService(mode.Deps{
		Store:      memory.NewModeStore(),
		Messages:   f.messages,
		Summaries:  f.summaries,
		Forwarder:  fw,
		Summarizer: sum,
		Timeout:    time.Second,
	})
	return f
}

func TestSetThenGetReturnsLatest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&fakeForwarder{}, &fakeSummarizer{})

	got, _ := f.svc.Get(ctx)
	if got.Agent {
		t.Fatalf("expected caregiver mode at start")
	}

	for _, agent := range []bool{true, true, false, true} {
		set, err := f.svc.Set(ctx, agent)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, _ := f.svc.Get(ctx)
		if set.Agent != agent || got.Agent != agent {
			t.Fatalf("read-after-write violated: set=%v got=%v want=%v", set.Agent, got.Agent, agent)
		}
	}
	f.svc.Wait()
}

func TestEverySetIsForwarded(t *testing.T) {
	ctx := context.Background()
	fw := &fakeForwarder{}
	f := newFixture(fw, &fakeSummarizer{})

	_, _ = f.svc.Set(ctx, true)
	_, _ = f.svc.Set(ctx, false)
	f.svc.Wait()

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if len(fw.modes) != 2 {
		t.Fatalf("expected 2 forwarded modes, got %d", len(fw.modes))
	}
}

func TestHandoffSummarizesHistory(t *testing.T) {
	ctx := context.Background()
	sum := &fakeSummarizer{}
	f := newFixture(&fakeForwarder{}, sum)

	_ = f.messages.AppendMessage(ctx, &domain.Message{ID: "1", Content: "what's for dinner?", Role: domain.RoleContact})
	_ = f.messages.AppendMessage(ctx, &domain.Message{ID: "2", Content: "soup", Role: domain.RoleAgent})

	_, _ = f.svc.Set(ctx, true)
	_, _ = f.svc.Set(ctx, false)
	f.svc.Wait()

	if sum.calls != 1 {
		t.Fatalf("expected exactly one summarization, got %d", sum.calls)
	}
	if len(sum.lines) != 2 || sum.lines[0].Role != "contact" {
		t.Fatalf("unexpected summary lines %+v", sum.lines)
	}

	stored, _ := f.summaries.ListSummaries(ctx, 0)
	if len(stored) != 1 || stored[0].MessageCount != 2 {
		t.Fatalf("expected one stored summary covering 2 messages, got %+v", stored)
	}
}

func TestNoSummaryWithoutAgentToCaregiverTransition(t *testing.T) {
	ctx := context.Background()
	sum := &fakeSummarizer{}
	f := newFixture(&fakeForwarder{}, sum)
	_ = f.messages.AppendMessage(ctx, &domain.Message{ID: "1", Content: "hi", Role: domain.RoleContact})

	_, _ = f.svc.Set(ctx, false)
	_, _ = f.svc.Set(ctx, true)
	f.svc.Wait()

	if sum.calls != 0 {
		t.Fatalf("expected no summarization, got %d", sum.calls)
	}
}

func TestSideEffectFailuresDoNotFailSet(t *testing.T) {
	ctx := context.Background()
	fw := &fakeForwarder{err: errors.New("relay down")}
	sum := &fakeSummarizer{err: errors.New("summarizer down")}
	f := newFixture(fw, sum)
	_ = f.messages.AppendMessage(ctx, &domain.Message{ID: "1", Content: "hi", Role: domain.RoleContact})

	if _, err := f.svc.Set(ctx, true); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := f.svc.Set(ctx, false)
	if err != nil {
		t.Fatalf("Set failed despite side effects: %v", err)
	}
	if got.Agent {
		t.Fatalf("expected caregiver mode")
	}
	f.svc.Wait()

	now, _ := f.svc.Get(ctx)
	if now.Agent {
		t.Fatalf("mode change was rolled back")
	}
}

func TestSetDoesNotWaitForSideEffects(t *testing.T) {
	ctx := context.Background()
	fw := &fakeForwarder{block: make(chan struct{})}
	f := newFixture(fw, &fakeSummarizer{})

	done := make(chan struct{})
	go func() {
		_, _ = f.svc.Set(ctx, true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("Set blocked on the relay forward")
	}

	close(fw.block)
	f.svc.Wait()
}

func TestSideEffectsOutliveRequestContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fw := &fakeForwarder{block: make(chan struct{})}
	f := newFixture(fw, &fakeSummarizer{})

	_, _ = f.svc.Set(ctx, true)
	cancel()
	close(fw.block)
	f.svc.Wait()

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if len(fw.modes) != 1 {
		t.Fatalf("forward should complete after the request context is cancelled")
	}
}
