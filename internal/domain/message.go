package domain

// Message is one entry of the shared chat log. It is immutable once stored.
type Message struct {
	ID        MessageID `json:"id"`
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	Timestamp Timestamp `json:"timestamp"`
}

// Mode selects who answers the contact: the caregiver (Agent == false) or
// the AI agent standing in for them.
type Mode struct {
	Agent bool `json:"agent"`
}

// Summary is the digest produced when the caregiver takes over from the agent.
type Summary struct {
	ID           SummaryID `json:"id"`
	Text         string    `json:"text"`
	MessageCount int       `json:"message_count"`
	CreatedAt    Timestamp `json:"created_at"`
}

// SummaryLine is the wire shape the summarization endpoint expects.
type SummaryLine struct {
	Text string `json:"text"`
	Role string `json:"role"`
}

// ChatMessage is a single turn sent to a language-model provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
