package graph

import (
	"fmt"
	"strings"
)

// Edge is one permitted role change: From --Action--> To.
type Edge struct {
	From   string
	Action string
	To     string
}

// FromTriples converts (from, action, to) triples into edges.
func FromTriples(triples [][3]string) []Edge {
	out := make([]Edge, len(triples))
	for i, t := range triples {
		out[i] = Edge{From: t[0], Action: t[1], To: t[2]}
	}
	return out
}

// GraphOverlay contains session state to visualize on the graph.
type GraphOverlay struct {
	VisitedRoles []string
	CurrentRole  string
}

// GenerateMermaid produces a Mermaid flowchart of the role transition table.
// Shapes:
// - greeting (entry): ((Circle))
// - locked (terminal until restart): {{Hexagon}}
// - others: [Rectangle]
// Self edges are drawn dotted since they patch context without a role change.
func GenerateMermaid(edges []Edge, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	seen := make(map[string]bool)
	var roles []string
	for _, e := range edges {
		for _, r := range []string{e.From, e.To} {
			if !seen[r] {
				seen[r] = true
				roles = append(roles, r)
			}
		}
	}

	for _, r := range roles {
		opener, closer := "[", "]"
		switch r {
		case "greeting":
			opener, closer = "((", "))"
		case "locked":
			opener, closer = "{{", "}}"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", sanitizeMermaidID(r), opener, r, closer))
	}

	for _, e := range edges {
		arrow := fmt.Sprintf("-- \"%s\" -->", strings.ReplaceAll(e.Action, "\"", "'"))
		if e.From == e.To {
			arrow = fmt.Sprintf("-. \"%s\" .->", strings.ReplaceAll(e.Action, "\"", "'"))
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", sanitizeMermaidID(e.From), arrow, sanitizeMermaidID(e.To)))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, r := range overlay.VisitedRoles {
			safeID := sanitizeMermaidID(r)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}

		if overlay.CurrentRole != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentRole)))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
