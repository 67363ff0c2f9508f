package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/gocare/internal/config"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the user-record MCP server",
	Long: `Exposes the configured directory as Model Context Protocol tools:
authenticate_user plus get_user_info, get_user_bill, get_user_contact,
get_user_last_login and get_user_activity.
A second gocare instance can use it with directory.backend=mcp.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Logs go to stderr.
- http: Streamable HTTP on --addr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := buildApp(ctx, cmd, func(c *config.Config) {
			// The directory is the only thing served here.
			c.Store.Backend = config.BackendNone
			c.Metrics.Enabled = false
		})
		if err != nil {
			return err
		}
		defer app.Close()

		srv := app.MCPServer()
		switch transport {
		case "stdio":
			app.Logger.Info("starting MCP server", "transport", "stdio")
			return srv.ServeStdio()
		case "http":
			if err := srv.ServeHTTP(ctx, addr); err != nil {
				return err
			}
			app.Logger.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport %q (supported: stdio, http)", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'http'")
	mcpCmd.Flags().String("addr", ":8090", "Address to listen on (only for http)")
}
