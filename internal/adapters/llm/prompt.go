package llm

import (
	"strings"

	"github.com/PabloGalante/clara-companion/internal/domain"
)

// AssistantSystemPrompt is prepended to every /gptchat conversation.
const AssistantSystemPrompt = "You are a helpful assistant that provides clear and concise responses."

const summarizeSystemPrompt = `
You summarize a text-message conversation between a patient ("contact") and
the people answering for their caregiver ("agent" is an AI stand-in,
"user" and "caregiver" are the human caregiver).

The caregiver is taking over from the AI agent and needs a handoff note:
- What the patient asked for or was worried about.
- What the agent promised or already did.
- Anything that still needs an answer, first.

Keep it under 120 words, plain text, no greetings.
`

// BuildTranscript renders summary lines as "role: text" rows.
func BuildTranscript(lines []domain.SummaryLine) string {
	var b strings.Builder
	for _, l := range lines {
		role := l.Role
		if role == "" {
			role = string(domain.RoleContact)
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(l.Text)
		b.WriteString("\n")
	}
	return b.String()
}
