package domain

import (
	"fmt"
	"time"
)

// EscalationPolicy decides what escalation to Helpline does with identity state.
type EscalationPolicy string

const (
	// EscalationPreserve carries UserID/UserName and AuthAttempts into Helpline.
	EscalationPreserve EscalationPolicy = "preserve"
	// EscalationReset clears identity and attempts when entering Helpline.
	EscalationReset EscalationPolicy = "reset"
)

// DefaultExternalCallTimeout bounds identity and data store calls.
const DefaultExternalCallTimeout = 10 * time.Second

// Policy holds the product-policy knobs of the state machine.
type Policy struct {
	Escalation EscalationPolicy `yaml:"escalation" json:"escalation"`

	// EndSessionRole is where end_session lands: Greeting, or Authenticating to
	// force a fresh OTP for the same identifier.
	EndSessionRole Role `yaml:"end_session_role" json:"end_session_role"`

	// LockoutMentionsAttempts adds the attempt count to the lockout notice.
	LockoutMentionsAttempts bool `yaml:"lockout_mentions_attempts" json:"lockout_mentions_attempts"`

	// AllowUserRestart lets a locked caller say "start over" to trigger
	// restart_verification. Off by default: restart is an operator action.
	AllowUserRestart bool `yaml:"allow_user_restart" json:"allow_user_restart"`

	// KeepAttemptsOnNumberChange carries AuthAttempts across change_number.
	// Off by default: changing number resets the count.
	KeepAttemptsOnNumberChange bool `yaml:"keep_attempts_on_number_change" json:"keep_attempts_on_number_change"`

	ExternalCallTimeout time.Duration `yaml:"external_call_timeout" json:"external_call_timeout"`
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		Escalation:          EscalationPreserve,
		EndSessionRole:      RoleGreeting,
		ExternalCallTimeout: DefaultExternalCallTimeout,
	}
}

// WithDefaults fills zero fields from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	def := DefaultPolicy()
	if p.Escalation == "" {
		p.Escalation = def.Escalation
	}
	if p.EndSessionRole == "" {
		p.EndSessionRole = def.EndSessionRole
	}
	if p.ExternalCallTimeout <= 0 {
		p.ExternalCallTimeout = def.ExternalCallTimeout
	}
	return p
}

// Validate rejects unknown policy values.
func (p Policy) Validate() error {
	switch p.Escalation {
	case EscalationPreserve, EscalationReset:
	default:
		return fmt.Errorf("unknown escalation policy %q", p.Escalation)
	}
	switch p.EndSessionRole {
	case RoleGreeting, RoleAuthenticating:
	default:
		return fmt.Errorf("end_session_role must be %s or %s, got %q", RoleGreeting, RoleAuthenticating, p.EndSessionRole)
	}
	if p.ExternalCallTimeout < 0 {
		return fmt.Errorf("external_call_timeout must not be negative")
	}
	return nil
}
