package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/gocare/pkg/domain"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Client implements ports.IdentityStore and ports.DataStore by calling a remote
// user-record MCP server.
type Client struct {
	c *client.Client
}

// NewInProcess connects to srv without a network hop.
func NewInProcess(ctx context.Context, srv *Server) (*Client, error) {
	c, err := client.NewInProcessClient(srv.MCPServer())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-process client: %w", err)
	}
	return start(ctx, c)
}

// Dial connects to a streamable-HTTP MCP server at url.
func Dial(ctx context.Context, url string) (*Client, error) {
	c, err := client.NewStreamableHttpClient(url)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client for %s: %w", url, err)
	}
	return start(ctx, c)
}

func start(ctx context.Context, c *client.Client) (*Client, error) {
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "gocare", Version: "1"}
	if _, err := c.Initialize(ctx, req); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("MCP initialize failed: %w", err)
	}
	return &Client{c: c}, nil
}

// Close ends the MCP session.
func (c *Client) Close() error {
	return c.c.Close()
}

func (c *Client) call(ctx context.Context, tool string, args map[string]any, out any) error {
	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	res, err := c.c.CallTool(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", tool, err)
	}
	text := resultText(res)
	if res.IsError {
		if text == errTextNotFound {
			return domain.ErrNotFound
		}
		return fmt.Errorf("%s: %s", tool, text)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("%s: bad result: %w", tool, err)
	}
	return nil
}

func resultText(res *mcp.CallToolResult) string {
	for _, content := range res.Content {
		switch tc := content.(type) {
		case mcp.TextContent:
			return tc.Text
		case *mcp.TextContent:
			return tc.Text
		}
	}
	return ""
}

func (c *Client) Verify(ctx context.Context, identifier, credential string) (domain.VerifyResult, error) {
	var out AuthResponse
	args := map[string]any{"user_id": identifier}
	if credential != "" {
		args["otp"] = credential
	}
	if err := c.call(ctx, ToolAuthenticate, args, &out); err != nil {
		return domain.VerifyResult{}, err
	}
	switch out.Status {
	case domain.VerifySuccess, domain.VerifyPending, domain.VerifyFailure:
	default:
		return domain.VerifyResult{}, fmt.Errorf("%s: unknown status %q", ToolAuthenticate, out.Status)
	}
	return domain.VerifyResult{Status: out.Status, UserID: out.UserID, Name: out.Name, Mobile: out.Mobile, Reason: out.Reason}, nil
}

func (c *Client) Fetch(ctx context.Context, kind domain.DataKind, userID string) (domain.Record, error) {
	tool := ""
	for name, k := range fetchTools {
		if k == kind {
			tool = name
		}
	}
	if tool == "" {
		return nil, fmt.Errorf("unknown data kind %q", kind)
	}
	var rec domain.Record
	if err := c.call(ctx, tool, map[string]any{"user_id": userID}, &rec); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(rec) == 0 {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}
