package domain

import (
	"encoding/json"
	"reflect"
)

// ContextDiff represents the changes between two session contexts.
// It is designed to be serialized to JSON for partial updates on the client.
type ContextDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	// Role is set when the active role changed.
	Role *Role `json:"role,omitempty"`

	// Changes contains only changed fields, keyed by their JSON name.
	// Cleared fields are present with their zero value.
	Changes map[string]any `json:"changes,omitempty"`
}

// Diff calculates the difference between oldCtx and newCtx.
// If oldCtx is nil, it returns a diff representing the entire newCtx (initial load).
// It returns nil when nothing changed.
func Diff(oldCtx, newCtx *SessionContext) *ContextDiff {
	if newCtx == nil {
		return nil
	}

	diff := &ContextDiff{SessionID: newCtx.SessionID}
	if oldCtx == nil || oldCtx.Role != newCtx.Role {
		r := newCtx.Role
		diff.Role = &r
	}

	newFields := fields(newCtx)
	var oldFields map[string]any
	if oldCtx != nil {
		oldFields = fields(oldCtx)
	}

	delta := make(map[string]any)
	for k, nv := range newFields {
		if k == "role" || k == "session_id" {
			continue
		}
		ov, ok := oldFields[k]
		if !ok || !reflect.DeepEqual(ov, nv) {
			delta[k] = nv
		}
	}
	// omitempty fields that were cleared disappear from newFields.
	for k, ov := range oldFields {
		if _, ok := newFields[k]; ok {
			continue
		}
		if k == "role" || k == "session_id" {
			continue
		}
		delta[k] = zeroOf(ov)
	}
	if len(delta) > 0 {
		diff.Changes = delta
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *ContextDiff) IsEmpty() bool {
	return d == nil || (d.Role == nil && len(d.Changes) == 0)
}

func fields(c *SessionContext) map[string]any {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func zeroOf(v any) any {
	switch v.(type) {
	case string:
		return ""
	case bool:
		return false
	case float64:
		return float64(0)
	}
	return nil
}
