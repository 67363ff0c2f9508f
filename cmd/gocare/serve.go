package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/gocare/internal/cli"
	"github.com/aretw0/gocare/internal/config"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and websocket server",
	Long: `Starts the support line as a server: REST endpoints under /sessions, a
websocket per call at /sessions/{id}/ws, /metrics and /healthz. With --mcp the
user-record MCP server is mounted at /mcp.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr, _ := cmd.Flags().GetString("addr")
		withMCP, _ := cmd.Flags().GetBool("mcp")

		app, err := buildApp(ctx, cmd, func(c *config.Config) {
			if addr != "" {
				c.Server.Addr = addr
			}
			if withMCP {
				c.Server.MCP = true
			}
		})
		if err != nil {
			return err
		}
		defer app.Close()

		err = cli.ListenAndServe(ctx, app, app.Config.Server.Addr)
		if err == nil {
			app.Logger.Info("gocare server stopped gracefully")
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (overrides server.addr)")
	serveCmd.Flags().Bool("mcp", false, "Mount the user-record MCP server at /mcp")
}
