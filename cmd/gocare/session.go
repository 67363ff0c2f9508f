package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/gocare/internal/cli"
	"github.com/aretw0/gocare/internal/config"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage stored session snapshots",
	Long: `List, inspect and remove snapshots kept by the configured store backend.
Only the redis and sql backends outlive the process.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ids, err := app.Store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing sessions: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No stored sessions found.")
			return nil
		}
		fmt.Fprintln(out, "Stored Sessions:")
		for _, id := range ids {
			fmt.Fprintln(out, "- "+id)
		}
		return nil
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Print the snapshot of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		sc, err := app.Store.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading session '%s': %w", args[0], err)
		}
		data, err := json.MarshalIndent(sc, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		var errs []error
		for _, id := range args {
			if err := app.Store.Delete(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("error removing '%s': %w", id, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed session '%s'\n", id)
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
}

func openStore(cmd *cobra.Command) (*cli.App, error) {
	app, err := buildApp(cmd.Context(), cmd, func(c *config.Config) {
		c.Metrics.Enabled = false
	})
	if err != nil {
		return nil, err
	}
	if app.Store == nil {
		app.Close()
		return nil, fmt.Errorf("store backend %q keeps no snapshots", app.Config.Store.Backend)
	}
	return app, nil
}
