package security

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/gocare/internal/logging"
	"github.com/aretw0/gocare/pkg/ports"
	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var keywordPolicy []byte

// Policy is the sensitive-data vocabulary and the refusal spoken on a match.
type Policy struct {
	Keywords []string `yaml:"keywords"`
	Refusal  string   `yaml:"refusal"`
}

// ParsePolicy decodes a keyword policy document.
func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("failed to unmarshal keyword policy: %w", err)
	}
	if len(p.Keywords) == 0 {
		return Policy{}, fmt.Errorf("keyword policy has no keywords")
	}
	if strings.TrimSpace(p.Refusal) == "" {
		return Policy{}, fmt.Errorf("keyword policy has no refusal message")
	}
	for i, k := range p.Keywords {
		p.Keywords[i] = strings.ToLower(strings.TrimSpace(k))
	}
	return p, nil
}

var builtin = mustParse(keywordPolicy)

func mustParse(data []byte) Policy {
	p, err := ParsePolicy(data)
	if err != nil {
		panic(err)
	}
	return p
}

// Keywords returns a copy of the built-in keyword set.
func Keywords() []string {
	return append([]string(nil), builtin.Keywords...)
}

// Classify reports whether text is a sensitive-data request.
func Classify(text string) bool {
	_, ok := builtin.match(text)
	return ok
}

// Match returns the first keyword found in text.
func Match(text string) (string, bool) {
	return builtin.match(text)
}

// RefusalMessage is the fixed decline-and-redirect reply.
func RefusalMessage() string {
	return builtin.Refusal
}

func (p Policy) match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, k := range p.Keywords {
		if k != "" && strings.Contains(lower, k) {
			return k, true
		}
	}
	return "", false
}

// Filter pairs the keyword policy with an audit sink.
type Filter struct {
	policy Policy
	audit  ports.AuditSink
	logger *slog.Logger
}

// NewFilter returns a filter using the built-in policy. audit may be nil.
func NewFilter(audit ports.AuditSink, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Filter{policy: builtin, audit: audit, logger: logger}
}

// WithPolicy returns a copy of f using p instead of the built-in policy.
func (f *Filter) WithPolicy(p Policy) *Filter {
	cp := *f
	cp.policy = p
	return &cp
}

// Classify reports whether text is a sensitive-data request.
func (f *Filter) Classify(text string) bool {
	_, ok := f.policy.match(text)
	return ok
}

// Match returns the first keyword found in text.
func (f *Filter) Match(text string) (string, bool) {
	return f.policy.match(text)
}

// RefusalMessage is the fixed decline-and-redirect reply.
func (f *Filter) RefusalMessage() string {
	return f.policy.Refusal
}

// LogAttempt records a warning-level audit entry for a sensitive-data request.
// Sink failures are logged and dropped; the turn is never blocked.
func (f *Filter) LogAttempt(ctx context.Context, userID, text string) {
	keyword, _ := f.policy.match(text)
	attrs := []slog.Attr{
		slog.String("user_id", userID),
		slog.String("keyword", keyword),
		slog.String("text", truncate(text, 120)),
	}
	if f.audit == nil {
		f.logger.LogAttrs(ctx, slog.LevelWarn, "sensitive-data request", attrs...)
		return
	}
	if err := f.audit.Log(ctx, slog.LevelWarn, "sensitive-data request", attrs...); err != nil {
		f.logger.Error("audit sink failed", "err", err, "user_id", userID)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
