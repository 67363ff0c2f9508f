package domain

import "errors"

// ContextPatch describes the changes a Transition applies to a SessionContext.
// Resets run first, then the non-nil field assignments.
type ContextPatch struct {
	UserID          *string `json:"user_id,omitempty"`
	UserName        *string `json:"user_name,omitempty"`
	UserMobile      *string `json:"user_mobile,omitempty"`
	IsAuthenticated *bool   `json:"is_authenticated,omitempty"`
	AuthAttempts    *int    `json:"auth_attempts,omitempty"`
	CodeIssued      *bool   `json:"code_issued,omitempty"`
	Advisory        *string `json:"advisory,omitempty"`

	// ResetIdentity clears UserID, UserName, IsAuthenticated, CodeIssued and Advisory.
	ResetIdentity bool `json:"reset_identity,omitempty"`
	// ResetAttempts sets AuthAttempts back to zero.
	ResetAttempts bool `json:"reset_attempts,omitempty"`
	// ClearMobile forgets the collected identifier.
	ClearMobile bool `json:"clear_mobile,omitempty"`
}

// Apply returns a copy of c with the patch applied. c is not modified.
func (p ContextPatch) Apply(c *SessionContext) *SessionContext {
	out := c.Clone()

	if p.ResetIdentity {
		out.UserID = ""
		out.UserName = ""
		out.IsAuthenticated = false
		out.CodeIssued = false
		out.Advisory = ""
	}
	if p.ResetAttempts {
		out.AuthAttempts = 0
	}
	if p.ClearMobile {
		out.UserMobile = ""
		out.CodeIssued = false
	}

	if p.UserID != nil {
		out.UserID = *p.UserID
	}
	if p.UserName != nil {
		out.UserName = *p.UserName
	}
	if p.UserMobile != nil {
		out.UserMobile = *p.UserMobile
	}
	if p.IsAuthenticated != nil {
		out.IsAuthenticated = *p.IsAuthenticated
	}
	if p.AuthAttempts != nil {
		out.AuthAttempts = *p.AuthAttempts
	}
	if p.CodeIssued != nil {
		out.CodeIssued = *p.CodeIssued
	}
	if p.Advisory != nil {
		out.Advisory = *p.Advisory
	}
	return out
}

// IsZero reports whether the patch changes nothing.
func (p ContextPatch) IsZero() bool {
	return p == ContextPatch{}
}

// Transition is the value a role handler returns to request a role change.
type Transition struct {
	// Action is the named action that produced the transition. The orchestrator
	// checks (current role, Action, Next) against its transition table.
	Action Action `json:"action"`

	// Next is the role that becomes active once the transition is applied.
	Next Role `json:"next"`

	// Patch is applied to the session context together with the role change.
	Patch ContextPatch `json:"patch"`

	// Reply is spoken before the entered role's entry line.
	Reply string `json:"reply,omitempty"`

	// Silent marks a silent handoff: the triggering turn produces no output of its
	// own and the entered role's entry line is the only thing spoken.
	Silent bool `json:"silent,omitempty"`
}

// ErrSilentWithReply is returned by Validate for a silent transition that carries a reply.
var ErrSilentWithReply = errors.New("silent transition must not carry a reply")

// Validate checks the transition is well formed.
func (t Transition) Validate() error {
	if !t.Next.Valid() {
		return ErrInvalidRole
	}
	if t.Silent && t.Reply != "" {
		return ErrSilentWithReply
	}
	return nil
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
