package domain

import (
	"fmt"
	"strings"
)

// Action names an operation a role handler can perform.
type Action string

const (
	// ActionNone marks free-form conversation with no dedicated action.
	ActionNone Action = ""

	ActionProvideIdentifier Action = "provide_identifier"
	ActionConfirmIdentifier Action = "confirm_identifier"

	ActionVerify       Action = "verify"
	ActionResendCode   Action = "resend_code"
	ActionChangeNumber Action = "change_number"

	ActionGetProfile   Action = "get_profile"
	ActionGetBilling   Action = "get_billing"
	ActionGetContact   Action = "get_contact"
	ActionGetLastLogin Action = "get_last_login"
	ActionGetActivity  Action = "get_activity"
	ActionEscalate     Action = "escalate"

	ActionEndSession          Action = "end_session"
	ActionRestartVerification Action = "restart_verification"
)

// ParseAction converts a transport-supplied action name.
func ParseAction(s string) (Action, error) {
	a := Action(strings.TrimSpace(s))
	switch a {
	case ActionProvideIdentifier, ActionConfirmIdentifier, ActionVerify, ActionResendCode,
		ActionChangeNumber, ActionGetProfile, ActionGetBilling, ActionGetContact,
		ActionGetLastLogin, ActionGetActivity, ActionEscalate, ActionEndSession,
		ActionRestartVerification:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// DataKind returns the data-retrieval kind behind a get_* action.
func (a Action) DataKind() (DataKind, bool) {
	switch a {
	case ActionGetProfile:
		return DataProfile, true
	case ActionGetBilling:
		return DataBilling, true
	case ActionGetContact:
		return DataContact, true
	case ActionGetLastLogin:
		return DataLastLogin, true
	case ActionGetActivity:
		return DataActivity, true
	}
	return "", false
}

// Intent is the reading of one utterance: which action it asks for and with what
// arguments. Text always carries the original utterance.
type Intent struct {
	Action Action         `json:"action" mapstructure:"action"`
	Args   map[string]any `json:"args,omitempty" mapstructure:"args"`
	Text   string         `json:"text" mapstructure:"-"`
}

// Arg returns a string argument, or "" when absent.
func (i Intent) Arg(key string) string {
	if i.Args == nil {
		return ""
	}
	switch v := i.Args[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Argument keys shared by detectors and handlers.
const (
	ArgIdentifier = "identifier"
	ArgCredential = "credential"
	ArgUserID     = "user_id"
	ArgReason     = "reason"
)
