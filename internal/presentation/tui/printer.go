package tui

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aretw0/gocare/pkg/domain"
	"github.com/muesli/termenv"
)

var roleColors = map[domain.Role]string{
	domain.RoleGreeting:       "#38bdf8",
	domain.RoleAuthenticating: "#fbbf24",
	domain.RoleMain:           "#4ade80",
	domain.RoleHelpline:       "#c084fc",
	domain.RoleLocked:         "#f87171",
}

// Printer renders a conversation on a terminal. Colours follow the
// detected profile, so piping to a file gives plain text.
type Printer struct {
	w       io.Writer
	profile termenv.Profile
}

// NewPrinter detects the colour profile of w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, profile: termenv.NewOutput(w).EnvColorProfile()}
}

// NewPlainPrinter never emits escape codes.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{w: w, profile: termenv.Ascii}
}

func (p *Printer) role(r domain.Role) termenv.Style {
	return p.profile.String(fmt.Sprintf("[%s]", r)).Foreground(p.profile.Color(roleColors[r])).Bold()
}

// Reply prints one agent line.
func (p *Printer) Reply(r domain.Role, text string) {
	fmt.Fprintf(p.w, "%s %s\n", p.role(r), text)
}

// Prompt prints the input prompt for the active role.
func (p *Printer) Prompt(r domain.Role) {
	fmt.Fprintf(p.w, "%s > ", p.role(r))
}

// Changes prints the context diff of a turn, sorted by field.
func (p *Printer) Changes(diff *domain.ContextDiff) {
	if diff.IsEmpty() {
		return
	}
	var parts []string
	if diff.Role != nil {
		parts = append(parts, "role: "+string(*diff.Role))
	}
	keys := make([]string, 0, len(diff.Changes))
	for k := range diff.Changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, diff.Changes[k]))
	}
	fmt.Fprintln(p.w, p.profile.String("  ~ "+strings.Join(parts, ", ")).Faint())
}

// Actions lists what the active role accepts.
func (p *Printer) Actions(specs []domain.ActionSpec) {
	for _, s := range specs {
		fmt.Fprintf(p.w, "  %s  %s\n", p.profile.String(string(s.Action)).Bold(), s.Description)
	}
}

// System prints a dimmed notice that is not part of the conversation.
func (p *Printer) System(format string, args ...any) {
	fmt.Fprintln(p.w, p.profile.String(fmt.Sprintf(format, args...)).Faint())
}

// Error prints err in red.
func (p *Printer) Error(err error) {
	fmt.Fprintln(p.w, p.profile.String("error: "+err.Error()).Foreground(p.profile.Color("#f87171")))
}
