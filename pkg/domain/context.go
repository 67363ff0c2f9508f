package domain

import (
	"fmt"
)

// SessionContext holds the identity and attempt state of one conversation.
// It is exclusively owned by a single ConversationSession and mutated only by the
// orchestrator when it applies a Transition.
type SessionContext struct {
	SessionID string `json:"session_id"`
	Role      Role   `json:"role"`

	// Identity. Empty strings mean "not known".
	UserID          string `json:"user_id,omitempty"`
	UserName        string `json:"user_name,omitempty"`
	UserMobile      string `json:"user_mobile,omitempty"`
	IsAuthenticated bool   `json:"is_authenticated"`

	// AuthAttempts counts failed verification calls in the current episode.
	AuthAttempts int `json:"auth_attempts"`

	// CodeIssued is set once the identity store reported a pending (OTP issued)
	// verification for UserMobile.
	CodeIssued bool `json:"code_issued,omitempty"`

	// Handshake hints. Never treated as proof of identity.
	DisplayNameHint string `json:"display_name_hint,omitempty"`
	IdentifierHint  string `json:"identifier_hint,omitempty"`

	// Advisory is the note handed to the Helpline role on escalation.
	Advisory string `json:"advisory,omitempty"`

	LastUserMessage  string `json:"last_user_message,omitempty"`
	LastAgentMessage string `json:"last_agent_message,omitempty"`
}

// NewSessionContext creates a clean context in the Greeting role.
func NewSessionContext(sessionID string) *SessionContext {
	return &SessionContext{
		SessionID: sessionID,
		Role:      RoleGreeting,
	}
}

// Clone returns a copy of the context. All fields are values, so a shallow copy suffices.
func (c *SessionContext) Clone() *SessionContext {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Validate checks the invariants every committed context must hold.
func (c *SessionContext) Validate() error {
	if !c.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvariant, c.Role)
	}
	if c.IsAuthenticated && c.UserID == "" {
		return fmt.Errorf("%w: authenticated without user id", ErrInvariant)
	}
	if c.IsAuthenticated && !c.Role.Authenticated() {
		return fmt.Errorf("%w: authenticated while in role %s", ErrInvariant, c.Role)
	}
	if c.Role == RoleMain && !c.IsAuthenticated {
		return fmt.Errorf("%w: main role without verified caller", ErrInvariant)
	}
	if c.AuthAttempts < 0 || c.AuthAttempts > MaxAuthAttempts {
		return fmt.Errorf("%w: auth attempts %d out of range", ErrInvariant, c.AuthAttempts)
	}
	if c.AuthAttempts == MaxAuthAttempts && c.Role != RoleLocked {
		return fmt.Errorf("%w: attempts exhausted outside locked role", ErrInvariant)
	}
	return nil
}
