package console

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/clara-companion/internal/client/chat"
	"github.com/PabloGalante/clara-companion/internal/domain"
	"github.com/PabloGalante/clara-companion/internal/speech"
)

type fakeChat struct {
	snap      chat.Snapshot
	submitted []string
	shared    []string
	roles     []domain.Role
	submitErr error
}

func (f *fakeChat) Submit(_ context.Context, text string) error {
	f.submitted = append(f.submitted, text)
	if f.submitErr != nil {
		f.snap.Err = f.submitErr
	}
	return f.submitErr
}

func (f *fakeChat) SetRole(_ context.Context, role domain.Role) error {
	f.roles = append(f.roles, role)
	f.snap.Role = role
	return nil
}

func (f *fakeChat) ShareContext(_ context.Context, text string) error {
	f.shared = append(f.shared, text)
	return nil
}

func (f *fakeChat) DismissAlert()           { f.snap.Alert = false }
func (f *fakeChat) DismissError()           { f.snap.Err = nil }
func (f *fakeChat) Snapshot() chat.Snapshot { return f.snap }

type fakeAlerts struct{ calls int }

func (f *fakeAlerts) Simulate(context.Context) error {
	f.calls++
	return nil
}

type fakeDictation struct {
	tr speech.Transcript
}

func (f *fakeDictation) Start(context.Context) error {
	f.tr.Listening = true
	f.tr.Text = "mom had a good morning"
	return nil
}

func (f *fakeDictation) Stop() error {
	f.tr.Listening = false
	return nil
}

func (f *fakeDictation) Reset()                        { f.tr = speech.Transcript{} }
func (f *fakeDictation) Transcript() speech.Transcript { return f.tr }

// press feeds a key to the model and runs the resulting command, if any.
func press(t *testing.T, m Model, key tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(key)
	m = next.(Model)
	if cmd != nil {
		if msg, ok := cmd().(opDoneMsg); ok {
			next, _ = m.Update(msg)
			m = next.(Model)
		}
	}
	return m
}

func typeText(m Model, s string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return next.(Model)
}

func TestEnterSubmitsInput(t *testing.T) {
	fc := &fakeChat{snap: chat.Snapshot{Role: domain.RoleUser}}
	m := New(context.Background(), fc, nil, nil)

	m = typeText(m, "on my way")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	require.Equal(t, []string{"on my way"}, fc.submitted)
	assert.Empty(t, m.input.Value())
}

func TestSubmitErrorIsShownAndDismissed(t *testing.T) {
	fc := &fakeChat{snap: chat.Snapshot{Role: domain.RoleUser}, submitErr: errors.New("carrier rejected")}
	m := New(context.Background(), fc, nil, nil)

	m = typeText(m, "hi")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Contains(t, m.View(), "carrier rejected")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.NotContains(t, m.View(), "carrier rejected")
}

func TestHandoffSharesDictatedContext(t *testing.T) {
	fc := &fakeChat{snap: chat.Snapshot{Role: domain.RoleUser}}
	dict := &fakeDictation{}
	m := New(context.Background(), fc, nil, dict)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	require.True(t, m.handoff)
	assert.Contains(t, m.View(), "share context")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlV})
	assert.True(t, dict.tr.Listening)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.handoff)
	assert.False(t, dict.tr.Listening, "dictation stops on confirm")
	assert.Equal(t, []string{"mom had a good morning"}, fc.shared)
	assert.Equal(t, []domain.Role{domain.RoleAgent}, fc.roles)
	assert.Contains(t, m.View(), "AGENT ANSWERING")

	// From agent mode the switch goes straight back.
	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.False(t, m.handoff)
	assert.Equal(t, domain.RoleUser, fc.roles[len(fc.roles)-1])
}

func TestHandoffCancel(t *testing.T) {
	fc := &fakeChat{snap: chat.Snapshot{Role: domain.RoleUser}}
	m := New(context.Background(), fc, nil, nil)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	assert.False(t, m.handoff)
	assert.Empty(t, fc.roles)
}

func TestAlertBannerAndSimulate(t *testing.T) {
	fc := &fakeChat{}
	alerts := &fakeAlerts{}
	m := New(context.Background(), fc, alerts, nil)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlA})
	assert.Equal(t, 1, alerts.calls)

	fc.snap.Alert = true
	next, _ := m.Update(SnapshotMsg(fc.snap))
	m = next.(Model)
	assert.Contains(t, m.View(), "ALERT")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.NotContains(t, m.View(), "ALERT")
}

func TestRenderEntries(t *testing.T) {
	out := renderEntries([]chat.Entry{
		{Content: "are you coming?", Role: domain.RoleContact, Status: chat.StatusDelivered},
		{Content: "yes", Role: domain.RoleUser, Status: chat.StatusPending},
		{Content: "retry me", Role: domain.RoleUser, Status: chat.StatusFailed},
	}, 0)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "are you coming?")
	assert.Contains(t, lines[1], "(sending)")
	assert.Contains(t, lines[2], "(failed)")

	assert.Contains(t, renderEntries(nil, 0), "No messages yet.")
}
