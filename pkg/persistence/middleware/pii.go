package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/ports"
)

// DefaultPIIPatterns match the snapshot fields that carry caller data.
var DefaultPIIPatterns = []string{
	`mobile`,
	`^user_name$`,
	`_hint$`,
	`^last_(user|agent)_message$`,
}

type piiMiddleware struct {
	next     ports.SnapshotStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks string fields whose JSON name
// matches one of the patterns before they reach the store.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, sc *domain.SessionContext) error {
	masked, err := Mask(sc, m.patterns)
	if err != nil {
		return err
	}
	return m.next.Save(ctx, sessionID, masked)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.SessionContext, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// Mask returns a copy of sc with matching string fields masked. Values with more
// than four digits keep their last four.
func Mask(sc *domain.SessionContext, patterns []*regexp.Regexp) (*domain.SessionContext, error) {
	raw, err := json.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session context: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session context: %w", err)
	}

	for k, v := range fields {
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		for _, p := range patterns {
			if p.MatchString(k) {
				fields[k] = maskValue(s)
				break
			}
		}
	}

	raw, err = json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal masked context: %w", err)
	}
	var out domain.SessionContext
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal masked context: %w", err)
	}
	return &out, nil
}

// MustCompile compiles patterns, panicking on a bad one.
func MustCompile(patternStrings []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func maskValue(s string) string {
	digits := domain.DigitsOf(s)
	if len(digits) > 4 {
		return "***" + digits[len(digits)-4:]
	}
	return "***"
}
