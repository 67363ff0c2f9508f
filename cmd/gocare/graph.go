package main

import (
	"fmt"

	"github.com/aretw0/gocare"
	"github.com/aretw0/gocare/internal/config"
	"github.com/aretw0/gocare/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the role transition graph",
	Long: `Outputs a Mermaid diagram (graph TD) of the role transition table.
With --session the stored snapshot's role is highlighted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")

		var overlay *graph.GraphOverlay
		if sessionID != "" {
			app, err := buildApp(cmd.Context(), cmd, func(c *config.Config) {
				c.Metrics.Enabled = false
			})
			if err != nil {
				return err
			}
			defer app.Close()
			if app.Store == nil {
				return fmt.Errorf("store backend %q keeps no snapshots", app.Config.Store.Backend)
			}
			sc, err := app.Store.Load(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("failed to load session %q: %w", sessionID, err)
			}
			overlay = &graph.GraphOverlay{CurrentRole: sc.Role.String()}
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		line := gocare.New(nil, gocare.WithPolicy(cfg.Policy.Domain()))
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(graph.FromTriples(line.Transitions()), overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("session", "", "Highlight the role of a stored session")
}
