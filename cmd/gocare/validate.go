package main

import (
	"fmt"

	"github.com/aretw0/gocare"
	"github.com/aretw0/gocare/internal/presentation/graph"
	"github.com/aretw0/gocare/internal/validator"
	"github.com/aretw0/gocare/pkg/domain"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config, seed files and transition table",
	Long: `Loads the config, parses the users and intent rules files it references and
crawls the role transition table from 'greeting', reporting roles that are
unreachable or can never lead back to the start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runValidate(cmd); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := validator.ValidateFiles(cfg); err != nil {
		return err
	}

	line := gocare.New(nil, gocare.WithPolicy(cfg.Policy.Domain()))
	roles := make([]string, 0, len(domain.Roles))
	for _, r := range domain.Roles {
		roles = append(roles, r.String())
	}
	return validator.ValidateTable(graph.FromTriples(line.Transitions()), domain.RoleGreeting.String(), roles)
}
