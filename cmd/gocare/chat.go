package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/gocare"
	"github.com/aretw0/gocare/internal/cli"
	"github.com/aretw0/gocare/internal/config"
	"github.com/aretw0/gocare/internal/presentation/tui"
	"github.com/aretw0/gocare/pkg/domain"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Play a support call in the terminal",
	Long: `Opens one session and reads utterances from stdin, one per line.
Replies are printed with the active role. Piped input runs without prompts or colours,
which makes chat usable for scripted call replays.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := buildApp(ctx, cmd, func(c *config.Config) {
			// Keep the chat screen free of info logs unless asked.
			if !cmd.Flags().Changed("log-level") && c.Log.Level == "info" {
				c.Log.Level = "warn"
			}
		})
		if err != nil {
			return err
		}
		defer app.Close()

		sessionID, _ := cmd.Flags().GetString("session")
		name, _ := cmd.Flags().GetString("name")
		hint, _ := cmd.Flags().GetString("mobile-hint")
		diff, _ := cmd.Flags().GetBool("diff")

		interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
		if interactive {
			tui.PrintBanner(os.Stdout, gocare.Version)
		}

		return cli.RunChat(ctx, app.Manager, os.Stdin, os.Stdout, cli.ChatOptions{
			SessionID:   sessionID,
			Handshake:   domain.Handshake{UserName: name, UserID: hint, AuthBased: hint != ""},
			Interactive: interactive,
			ShowChanges: diff,
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("session", "", "Session ID (generated when empty)")
	chatCmd.Flags().String("name", "", "Caller display name from the handshake")
	chatCmd.Flags().String("mobile-hint", "", "Mobile number already known for this call")
	chatCmd.Flags().Bool("diff", false, "Print the context changes of every turn")
}
