package domain

// VerifyStatus is the outcome class reported by an identity store.
type VerifyStatus string

const (
	VerifySuccess VerifyStatus = "success"
	// VerifyPending means a one-time code was issued and must be verified next.
	VerifyPending VerifyStatus = "pending"
	VerifyFailure VerifyStatus = "failure"
)

// VerifyResult is the identity store's answer to a verification call.
type VerifyResult struct {
	Status VerifyStatus `json:"status"`
	UserID string       `json:"user_id,omitempty"`
	Name   string       `json:"name,omitempty"`
	Mobile string       `json:"mobile,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// Handshake is the participant payload delivered by the transport when a session
// opens. Its fields are cache hints only.
type Handshake struct {
	UserName  string `json:"userName,omitempty"`
	UserID    string `json:"userId,omitempty"`
	AuthBased bool   `json:"is_auth_based,omitempty"`
}
