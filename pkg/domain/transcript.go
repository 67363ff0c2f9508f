package domain

import "time"

// TranscriptEntry is one spoken line of a conversation.
type TranscriptEntry struct {
	Speaker string    `json:"speaker"`
	Role    Role      `json:"role"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// TurnResult is what a single processed turn produced.
type TurnResult struct {
	// Replies are the lines to speak, in order. Empty for a turn with no output.
	Replies []string `json:"replies"`
	// Role is the active role after the turn.
	Role Role `json:"role"`
	// Changes lists the context fields the turn modified.
	Changes *ContextDiff `json:"changes,omitempty"`
}

// Text joins the replies with a space.
func (r TurnResult) Text() string {
	out := ""
	for i, s := range r.Replies {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}
