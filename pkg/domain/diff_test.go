package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDiff(t *testing.T) {
	mainRole := RoleMain
	greeting := RoleGreeting

	tests := []struct {
		name     string
		old      *SessionContext
		new      *SessionContext
		wantDiff *ContextDiff // nil means we expect no diff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new:  &SessionContext{SessionID: "sess-1", Role: RoleGreeting},
			wantDiff: &ContextDiff{
				SessionID: "sess-1",
				Role:      &greeting,
				Changes:   map[string]any{"is_authenticated": false, "auth_attempts": float64(0)},
			},
		},
		{
			name:     "No Changes",
			old:      &SessionContext{SessionID: "sess-1", Role: RoleAuthenticating, UserMobile: "155"},
			new:      &SessionContext{SessionID: "sess-1", Role: RoleAuthenticating, UserMobile: "155"},
			wantDiff: nil,
		},
		{
			name: "Silent Handoff To Main",
			old:  &SessionContext{SessionID: "sess-1", Role: RoleAuthenticating, UserMobile: "155", AuthAttempts: 1},
			new: &SessionContext{
				SessionID: "sess-1", Role: RoleMain, UserMobile: "155", AuthAttempts: 1,
				UserID: "u1", UserName: "Ada", IsAuthenticated: true,
			},
			wantDiff: &ContextDiff{
				SessionID: "sess-1",
				Role:      &mainRole,
				Changes:   map[string]any{"user_id": "u1", "user_name": "Ada", "is_authenticated": true},
			},
		},
		{
			name: "Identity Cleared",
			old: &SessionContext{
				SessionID: "sess-1", Role: RoleHelpline, UserID: "u1", UserName: "Ada", IsAuthenticated: true,
			},
			new: &SessionContext{SessionID: "sess-1", Role: RoleGreeting},
			wantDiff: &ContextDiff{
				SessionID: "sess-1",
				Role:      &greeting,
				Changes:   map[string]any{"user_id": "", "user_name": "", "is_authenticated": false},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if tt.wantDiff == nil {
				if got != nil {
					t.Errorf("Diff() = %v, want nil", got)
				}
				return
			}

			if got == nil {
				t.Fatalf("Diff() = nil, want %v", tt.wantDiff)
			}

			if got.SessionID != tt.wantDiff.SessionID {
				t.Errorf("Diff().SessionID = %v, want %v", got.SessionID, tt.wantDiff.SessionID)
			}
			if !reflect.DeepEqual(got.Changes, tt.wantDiff.Changes) {
				t.Errorf("Diff().Changes = %v, want %v", got.Changes, tt.wantDiff.Changes)
			}
			if !equalPtr(got.Role, tt.wantDiff.Role) {
				t.Errorf("Diff().Role = %v, want %v", got.Role, tt.wantDiff.Role)
			}
		})
	}
}

func TestDiffJSONSerialization(t *testing.T) {
	t.Run("Role Omitted When Unchanged", func(t *testing.T) {
		c1 := &SessionContext{SessionID: "s", Role: RoleAuthenticating, UserMobile: "155"}
		c2 := &SessionContext{SessionID: "s", Role: RoleAuthenticating, UserMobile: "155", AuthAttempts: 1}
		diff := Diff(c1, c2)

		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}
		bytes, _ := json.Marshal(diff)
		if strings.Contains(string(bytes), `"role"`) {
			t.Errorf("JSON should not contain 'role' when unchanged, got: %s", string(bytes))
		}
		if !strings.Contains(string(bytes), `"auth_attempts":1`) {
			t.Errorf("JSON should contain the new attempt count, got: %s", string(bytes))
		}
	})
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
