// Package console is the caregiver's terminal UI: the shared conversation,
// the responder switch, the alert banner and spoken handoff context.
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/PabloGalante/clara-companion/internal/client/chat"
	"github.com/PabloGalante/clara-companion/internal/domain"
	"github.com/PabloGalante/clara-companion/internal/speech"
)

// Chat is the conversation state the console drives.
type Chat interface {
	Submit(ctx context.Context, text string) error
	SetRole(ctx context.Context, role domain.Role) error
	ShareContext(ctx context.Context, text string) error
	DismissAlert()
	DismissError()
	Snapshot() chat.Snapshot
}

// Alerts raises a test alert.
type Alerts interface {
	Simulate(ctx context.Context) error
}

// Dictation records spoken context before handing off to the agent.
type Dictation interface {
	Start(ctx context.Context) error
	Stop() error
	Reset()
	Transcript() speech.Transcript
}

// SnapshotMsg carries a new conversation state into the program.
type SnapshotMsg chat.Snapshot

// TranscriptMsg carries a new dictation state into the program.
type TranscriptMsg speech.Transcript

type opDoneMsg struct {
	op  string
	err error
}

type Model struct {
	ctx       context.Context
	chat      Chat
	alerts    Alerts
	dictation Dictation

	input textinput.Model
	view  viewport.Model

	snap       chat.Snapshot
	transcript speech.Transcript
	handoff    bool
	status     string
	width      int
	height     int
}

// New builds the model. dictation may be nil when no speech-to-text
// source is configured.
func New(ctx context.Context, c Chat, alerts Alerts, dictation Dictation) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a reply and press enter"
	ti.CharLimit = 1600
	ti.Focus()

	return Model{
		ctx:       ctx,
		chat:      c,
		alerts:    alerts,
		dictation: dictation,
		input:     ti,
		view:      viewport.New(80, 20),
		snap:      c.Snapshot(),
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = msg.Width - 4
		m.resize()
		return m, nil

	case SnapshotMsg:
		m.snap = chat.Snapshot(msg)
		m.refreshView()
		return m, nil

	case TranscriptMsg:
		m.transcript = speech.Transcript(msg)
		return m, nil

	case opDoneMsg:
		m.snap = m.chat.Snapshot()
		m.status = ""
		if msg.err != nil && !errors.Is(msg.err, chat.ErrEmptyMessage) {
			m.status = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
		}
		m.refreshView()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.stopDictation()
			return m, tea.Quit
		}
		if m.handoff {
			return m.updateHandoff(msg)
		}
		return m.updateChat(msg)
	}

	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		text := m.input.Value()
		m.input.Reset()
		return m, m.run("send", func(ctx context.Context) error { return m.chat.Submit(ctx, text) })

	case tea.KeyCtrlT:
		if m.snap.Role == domain.RoleAgent {
			return m, m.run("switch to caregiver", func(ctx context.Context) error {
				return m.chat.SetRole(ctx, domain.RoleUser)
			})
		}
		m.handoff = true
		m.transcript = speech.Transcript{}
		if m.dictation != nil {
			m.dictation.Reset()
		}
		return m, nil

	case tea.KeyCtrlA:
		if m.alerts == nil {
			return m, nil
		}
		return m, m.run("simulate alert", m.alerts.Simulate)

	case tea.KeyEsc:
		switch {
		case m.snap.Alert:
			m.chat.DismissAlert()
		case m.snap.Err != nil:
			m.chat.DismissError()
		}
		m.snap = m.chat.Snapshot()
		m.status = ""
		m.refreshView()
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// updateHandoff handles the panel shown before the agent takes over: the
// caregiver may dictate context, then confirms or cancels.
func (m Model) updateHandoff(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlV:
		if m.dictation == nil {
			return m, nil
		}
		if m.dictation.Transcript().Listening {
			_ = m.dictation.Stop()
		} else if err := m.dictation.Start(m.ctx); err != nil {
			m.status = fmt.Sprintf("dictation failed: %v", err)
		}
		m.transcript = m.dictation.Transcript()
		return m, nil

	case tea.KeyEnter:
		m.stopDictation()
		note := m.transcript.Text
		if m.dictation != nil {
			note = m.dictation.Transcript().Text
		}
		note = strings.TrimSpace(note)
		m.handoff = false
		return m, m.run("switch to agent", func(ctx context.Context) error {
			if note != "" {
				if err := m.chat.ShareContext(ctx, note); err != nil {
					return err
				}
			}
			return m.chat.SetRole(ctx, domain.RoleAgent)
		})

	case tea.KeyEsc:
		m.stopDictation()
		m.handoff = false
		return m, nil
	}
	return m, nil
}

func (m Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m *Model) stopDictation() {
	if m.dictation != nil && m.dictation.Transcript().Listening {
		_ = m.dictation.Stop()
	}
}

func (m *Model) resize() {
	// header, alert banner, status line, input box
	reserved := 6
	h := m.height - reserved
	if h < 3 {
		h = 3
	}
	m.view.Width = m.width
	m.view.Height = h
	m.refreshView()
}

func (m *Model) refreshView() {
	m.view.SetContent(renderEntries(m.snap.Entries, m.view.Width))
	m.view.GotoBottom()
}

func (m Model) View() string {
	var b strings.Builder

	badge := caregiverBadge.Render("CAREGIVER")
	if m.snap.Role == domain.RoleAgent {
		badge = agentBadge.Render("AGENT ANSWERING")
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, titleStyle.Render("Clara"), badge))
	b.WriteString("\n")

	if m.snap.Alert {
		b.WriteString(alertBanner.Render("ALERT: your contact needs attention. Press esc to dismiss."))
		b.WriteString("\n")
	}

	b.WriteString(m.view.View())
	b.WriteString("\n")

	switch {
	case m.snap.Err != nil:
		b.WriteString(errorStyle.Render("Error: " + m.snap.Err.Error() + " (esc to dismiss)"))
	case m.status != "":
		b.WriteString(errorStyle.Render(m.status))
	}
	b.WriteString("\n")

	if m.handoff {
		b.WriteString(m.handoffView())
	} else {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("enter send | ctrl+t switch responder | ctrl+a test alert | esc dismiss | ctrl+c quit"))
	}
	return b.String()
}

func (m Model) handoffView() string {
	var b strings.Builder
	b.WriteString("Agent mode: share context about today before the agent takes over.\n")
	if m.dictation != nil {
		state := "ctrl+v to speak"
		if m.transcript.Listening {
			state = "Listening... ctrl+v to stop"
		}
		b.WriteString(mutedStyle.Render(state))
		b.WriteString("\n")
	}
	if m.transcript.Text != "" {
		b.WriteString("Your context: " + m.transcript.Text + "\n")
	}
	if m.transcript.Err != nil {
		b.WriteString(errorStyle.Render(m.transcript.Err.Error()) + "\n")
	}
	b.WriteString(mutedStyle.Render("enter start | esc cancel"))
	return dictationStyle.Render(b.String())
}

func renderEntries(entries []chat.Entry, width int) string {
	if len(entries) == 0 {
		return mutedStyle.Render("No messages yet.")
	}

	var b strings.Builder
	for _, e := range entries {
		ts := ""
		if !e.Timestamp.IsZero() {
			ts = e.Timestamp.Local().Format("15:04") + " "
		}
		line := mutedStyle.Render(ts) + roleStyle(string(e.Role)).Render(roleLabel(e.Role)+":") + " " + e.Content
		switch e.Status {
		case chat.StatusPending:
			line += mutedStyle.Render(" (sending)")
		case chat.StatusFailed:
			line += errorStyle.Render(" (failed)")
		}
		if width > 0 {
			line = lipgloss.NewStyle().Width(width).Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func roleLabel(r domain.Role) string {
	switch r {
	case domain.RoleUser, domain.RoleCaregiver:
		return "You"
	case domain.RoleAgent:
		return "Agent"
	case domain.RoleContact:
		return "Contact"
	default:
		return string(r)
	}
}
