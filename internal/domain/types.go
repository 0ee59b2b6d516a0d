package domain

import "time"

type MessageID string
type SummaryID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAgent     Role = "agent"
	RoleContact   Role = "contact"
	RoleCaregiver Role = "caregiver"
)

// Valid reports whether r is one of the known message roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleContact, RoleCaregiver:
		return true
	}
	return false
}

// ParseRole returns def for an empty string and an InvalidArgument error for
// anything outside the role enumeration.
func ParseRole(s string, def Role) (Role, error) {
	if s == "" {
		return def, nil
	}
	r := Role(s)
	if !r.Valid() {
		return "", Invalid("role must be one of user, agent, contact, caregiver")
	}
	return r, nil
}

type Timestamp = time.Time
