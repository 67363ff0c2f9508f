package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionContext(t *testing.T) {
	c := NewSessionContext("s1")

	assert.Equal(t, RoleGreeting, c.Role)
	assert.Empty(t, c.UserID)
	assert.False(t, c.IsAuthenticated)
	assert.Zero(t, c.AuthAttempts)
	require.NoError(t, c.Validate())
}

func TestSessionContext_Validate(t *testing.T) {
	tests := []struct {
		name string
		ctx  SessionContext
		ok   bool
	}{
		{"greeting clean", SessionContext{Role: RoleGreeting}, true},
		{"main verified", SessionContext{Role: RoleMain, UserID: "u1", IsAuthenticated: true}, true},
		{"helpline after reset escalation", SessionContext{Role: RoleHelpline}, true},
		{"locked exhausted", SessionContext{Role: RoleLocked, AuthAttempts: MaxAuthAttempts}, true},
		{"unknown role", SessionContext{Role: "lobby"}, false},
		{"authenticated without id", SessionContext{Role: RoleMain, IsAuthenticated: true}, false},
		{"authenticated in greeting", SessionContext{Role: RoleGreeting, UserID: "u1", IsAuthenticated: true}, false},
		{"authenticated in locked", SessionContext{Role: RoleLocked, UserID: "u1", IsAuthenticated: true}, false},
		{"main unverified", SessionContext{Role: RoleMain, UserID: "u1"}, false},
		{"negative attempts", SessionContext{Role: RoleAuthenticating, AuthAttempts: -1}, false},
		{"exhausted outside locked", SessionContext{Role: RoleAuthenticating, AuthAttempts: MaxAuthAttempts}, false},
		{"over limit", SessionContext{Role: RoleLocked, AuthAttempts: MaxAuthAttempts + 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ctx.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvariant), "got %v", err)
		})
	}
}

func TestContextPatch_Apply(t *testing.T) {
	base := &SessionContext{
		SessionID: "s1", Role: RoleHelpline, UserID: "u1", UserName: "Ada",
		UserMobile: "155", IsAuthenticated: true, AuthAttempts: 2, Advisory: "billing",
	}

	t.Run("resets run before assignments", func(t *testing.T) {
		p := ContextPatch{ResetIdentity: true, ResetAttempts: true, UserName: Ptr("Grace")}
		out := p.Apply(base)

		assert.Empty(t, out.UserID)
		assert.Equal(t, "Grace", out.UserName)
		assert.False(t, out.IsAuthenticated)
		assert.Zero(t, out.AuthAttempts)
		assert.Empty(t, out.Advisory)
		assert.Equal(t, "155", out.UserMobile)
	})

	t.Run("source untouched", func(t *testing.T) {
		_ = ContextPatch{ClearMobile: true, AuthAttempts: Ptr(0)}.Apply(base)
		assert.Equal(t, "155", base.UserMobile)
		assert.Equal(t, 2, base.AuthAttempts)
	})

	t.Run("zero patch", func(t *testing.T) {
		assert.True(t, ContextPatch{}.IsZero())
		assert.Equal(t, base, ContextPatch{}.Apply(base))
	})
}

func TestTransition_Validate(t *testing.T) {
	assert.NoError(t, Transition{Next: RoleMain, Silent: true}.Validate())
	assert.ErrorIs(t, Transition{Next: RoleMain, Silent: true, Reply: "hi"}.Validate(), ErrSilentWithReply)
	assert.ErrorIs(t, Transition{Next: "nowhere"}.Validate(), ErrInvalidRole)
}

func TestPolicy(t *testing.T) {
	p := Policy{}.WithDefaults()
	require.NoError(t, p.Validate())
	assert.Equal(t, EscalationPreserve, p.Escalation)
	assert.Equal(t, RoleGreeting, p.EndSessionRole)
	assert.Equal(t, DefaultExternalCallTimeout, p.ExternalCallTimeout)

	p.EndSessionRole = RoleMain
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.Escalation = "forget"
	assert.Error(t, p.Validate())
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction(" restart_verification ")
	require.NoError(t, err)
	assert.Equal(t, ActionRestartVerification, a)

	_, err = ParseAction("delete_account")
	assert.Error(t, err)

	kind, ok := ActionGetBilling.DataKind()
	assert.True(t, ok)
	assert.Equal(t, DataBilling, kind)
	_, ok = ActionEscalate.DataKind()
	assert.False(t, ok)
}

func TestRecord_Speak(t *testing.T) {
	r := Record{"due_date": "2026-11-01", "amount": "42.10"}
	assert.Equal(t, "amount 42.10, due date 2026-11-01", r.Speak())
}
