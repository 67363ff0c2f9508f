package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/gocare/internal/logging"
	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Tool names exposed by the user-record server.
const (
	ToolAuthenticate = "authenticate_user"
	ToolUserInfo     = "get_user_info"
	ToolUserBill     = "get_user_bill"
	ToolUserContact  = "get_user_contact"
	ToolLastLogin    = "get_user_last_login"
	ToolActivity     = "get_user_activity"
)

// errTextNotFound marks a tool error that means "no such record".
const errTextNotFound = "not found"

var fetchTools = map[string]domain.DataKind{
	ToolUserInfo:    domain.DataProfile,
	ToolUserBill:    domain.DataBilling,
	ToolUserContact: domain.DataContact,
	ToolLastLogin:   domain.DataLastLogin,
	ToolActivity:    domain.DataActivity,
}

// AuthResponse is the structured result of authenticate_user.
type AuthResponse struct {
	Status domain.VerifyStatus `json:"status" jsonschema_description:"success, pending or failure"`
	UserID string              `json:"user_id,omitempty"`
	Name   string              `json:"name,omitempty"`
	Mobile string              `json:"mobile,omitempty"`
	Reason string              `json:"reason,omitempty"`
}

// Server exposes a ports.Directory as an MCP tool server.
type Server struct {
	dir       ports.Directory
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance over dir.
func NewServer(dir ports.Directory, version string, opts ...ServerOption) *Server {
	s := &Server{
		dir:       dir,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("gocare-users", version, server.WithToolCapabilities(false)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying server, e.g. for an in-process client.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Handler returns a streamable-HTTP handler for mounting on a router.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(server.NewStreamableHTTPServer(s.mcpServer))
}

// ServeHTTP listens on addr until ctx is done.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(ToolAuthenticate,
		mcp.WithDescription("Verify a user's one-time code. Omit otp to have a code sent."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Mobile number or user id")),
		mcp.WithString("otp", mcp.Description("The one-time code the user read back")),
		mcp.WithOutputSchema[AuthResponse](),
	), s.handleAuthenticate)

	for name, kind := range fetchTools {
		s.mcpServer.AddTool(mcp.NewTool(name,
			mcp.WithDescription(fmt.Sprintf("Get the %s of a verified user.", kind.Label())),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("Verified user id")),
		), s.fetchHandler(kind))
	}
}

func (s *Server) handleAuthenticate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	otp := request.GetString("otp", "")

	res, err := s.dir.Verify(ctx, id, otp)
	if err != nil {
		s.logger.Warn("authenticate_user failed", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("verification unavailable: %v", err)), nil
	}
	out := AuthResponse{Status: res.Status, UserID: res.UserID, Name: res.Name, Mobile: res.Mobile, Reason: res.Reason}
	text, _ := json.Marshal(out)
	return mcp.NewToolResultStructured(out, string(text)), nil
}

func (s *Server) fetchHandler(kind domain.DataKind) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := request.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		rec, err := s.dir.Fetch(ctx, kind, userID)
		if errors.Is(err, domain.ErrNotFound) {
			return mcp.NewToolResultError(errTextNotFound), nil
		}
		if err != nil {
			s.logger.Warn("fetch failed", "kind", kind, "err", err)
			return mcp.NewToolResultError(fmt.Sprintf("fetch failed: %v", err)), nil
		}
		text, _ := json.Marshal(rec)
		return mcp.NewToolResultStructured(rec, string(text)), nil
	}
}
