package intent

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/ports"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule maps phrases (or any digits) to an action for one role.
type Rule struct {
	Role    domain.Role   `yaml:"role"`
	Action  domain.Action `yaml:"action"`
	Phrases []string      `yaml:"phrases"`
	Digits  bool          `yaml:"digits"`
	Arg     string        `yaml:"arg"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Rules is a keyword intent detector. It is deterministic and needs no network.
type Rules struct {
	byRole map[domain.Role][]Rule
}

// NewRules returns the detector with the built-in rule set.
func NewRules() *Rules {
	r, err := ParseRules(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("built-in intent rules: %v", err))
	}
	return r
}

// ParseRules builds a detector from a YAML rule document.
func ParseRules(data []byte) (*Rules, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal intent rules: %w", err)
	}
	r := &Rules{byRole: make(map[domain.Role][]Rule)}
	for i, rule := range f.Rules {
		if !rule.Role.Valid() {
			return nil, fmt.Errorf("rule %d: unknown role %q", i, rule.Role)
		}
		if _, err := domain.ParseAction(string(rule.Action)); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if len(rule.Phrases) == 0 && !rule.Digits {
			return nil, fmt.Errorf("rule %d: needs phrases or digits", i)
		}
		for j, p := range rule.Phrases {
			rule.Phrases[j] = fold(p)
		}
		r.byRole[rule.Role] = append(r.byRole[rule.Role], rule)
	}
	return r, nil
}

// Detect returns the first rule of role that matches text and whose action is offered.
func (r *Rules) Detect(_ context.Context, role domain.Role, actions []domain.ActionSpec, text string) (domain.Intent, error) {
	folded := fold(text)
	for _, rule := range r.byRole[role] {
		if !offered(actions, rule.Action) {
			continue
		}
		if rule.Digits && hasDigit(text) {
			in := domain.Intent{Action: rule.Action, Text: text}
			if rule.Arg != "" {
				in.Args = map[string]any{rule.Arg: text}
			}
			return in, nil
		}
		for _, p := range rule.Phrases {
			if matchPhrase(folded, p) {
				return domain.Intent{Action: rule.Action, Text: text}, nil
			}
		}
	}
	return domain.Intent{Text: text}, nil
}

// fold lower-cases, drops apostrophes and turns punctuation into spaces.
func fold(s string) string {
	var b strings.Builder
	b.WriteByte(' ')
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	b.WriteByte(' ')
	return strings.Join(strings.Fields(b.String()), " ")
}

// matchPhrase matches whole words so "bye" does not fire on "byelaw".
func matchPhrase(folded, phrase string) bool {
	return strings.Contains(" "+folded+" ", " "+phrase+" ")
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func offered(specs []domain.ActionSpec, a domain.Action) bool {
	for _, s := range specs {
		if s.Action == a {
			return true
		}
	}
	return false
}

// Chain tries each detector in order and returns the first intent that names
// an action. Errors are skipped so a failing remote detector falls through to
// the next one; the last error is returned only when no detector matched.
type Chain []ports.IntentDetector

// Detect implements ports.IntentDetector.
func (c Chain) Detect(ctx context.Context, role domain.Role, actions []domain.ActionSpec, text string) (domain.Intent, error) {
	var lastErr error
	matched := false
	for _, d := range c {
		in, err := d.Detect(ctx, role, actions, text)
		if err != nil {
			lastErr = err
			continue
		}
		matched = true
		if in.Action != domain.ActionNone {
			return in, nil
		}
	}
	if !matched && lastErr != nil {
		return domain.Intent{}, lastErr
	}
	return domain.Intent{Text: text}, nil
}
