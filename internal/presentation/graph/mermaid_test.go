package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/gocare/internal/presentation/graph"
	"github.com/aretw0/gocare/internal/runtime"
	"github.com/stretchr/testify/assert"
)

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		edges    []graph.Edge
		overlay  *graph.GraphOverlay
		contains []string
		excludes []string
	}{
		{
			name:  "Role Shapes",
			edges: []graph.Edge{{From: "greeting", Action: "provide_identifier", To: "authenticating"}, {From: "authenticating", Action: "verify", To: "locked"}},
			contains: []string{
				"greeting((\"greeting\"))",
				"authenticating[\"authenticating\"]",
				"locked{{\"locked\"}}",
			},
		},
		{
			name:     "Labelled Transition",
			edges:    []graph.Edge{{From: "main", Action: "escalate", To: "helpline"}},
			contains: []string{"main -- \"escalate\" --> helpline"},
		},
		{
			name:     "Self Edge Is Dotted",
			edges:    []graph.Edge{{From: "authenticating", Action: "resend_code", To: "authenticating"}},
			contains: []string{"authenticating -. \"resend_code\" .-> authenticating"},
		},
		{
			name:     "No Overlay",
			edges:    []graph.Edge{{From: "main", Action: "escalate", To: "helpline"}},
			excludes: []string{"classDef"},
		},
		{
			name:  "Overlay",
			edges: []graph.Edge{{From: "main", Action: "escalate", To: "helpline"}},
			overlay: &graph.GraphOverlay{
				VisitedRoles: []string{"greeting", "main", "main"},
				CurrentRole:  "helpline",
			},
			contains: []string{
				"classDef visited",
				"class main visited;",
				"class helpline current;",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := graph.GenerateMermaid(tt.edges, tt.overlay)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, out, unwanted)
			}
			if tt.overlay != nil {
				assert.Equal(t, 1, strings.Count(out, "class main visited;"))
			}
		})
	}
}

func TestGenerateMermaid_DefaultTable(t *testing.T) {
	out := graph.GenerateMermaid(graph.FromTriples(runtime.DefaultTable().Edges()), nil)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "locked -- \"restart_verification\" --> greeting")
	assert.Contains(t, out, "helpline -- \"end_session\" --> authenticating")
}
