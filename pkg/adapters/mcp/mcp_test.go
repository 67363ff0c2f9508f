package mcp_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/aretw0/gocare/pkg/adapters/mcp"
	"github.com/aretw0/gocare/pkg/adapters/memory"
	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixture = tests.DirectoryFixture{
	Identifier: "15551234567",
	Code:       "1234",
	UserID:     "u-1001",
	Name:       "Ada Lovelace",
}

func TestClient_InProcessContract(t *testing.T) {
	ctx := context.Background()
	srv := mcp.NewServer(memory.NewDirectory(memory.DemoUsers()...), "test")

	c, err := mcp.NewInProcess(ctx, srv)
	require.NoError(t, err)
	defer c.Close()

	tests.DirectoryContractTest(t, c, fixture)
}

func TestClient_StreamableHTTPContract(t *testing.T) {
	ctx := context.Background()
	srv := mcp.NewServer(memory.NewDirectory(memory.DemoUsers()...), "test")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	c, err := mcp.Dial(ctx, ts.URL+"/mcp")
	require.NoError(t, err)
	defer c.Close()

	tests.DirectoryContractTest(t, c, fixture)
}

type brokenDirectory struct{}

func (brokenDirectory) Verify(context.Context, string, string) (domain.VerifyResult, error) {
	return domain.VerifyResult{}, errors.New("database down")
}

func (brokenDirectory) Fetch(context.Context, domain.DataKind, string) (domain.Record, error) {
	return nil, errors.New("database down")
}

func TestClient_ServerErrorsSurface(t *testing.T) {
	ctx := context.Background()
	c, err := mcp.NewInProcess(ctx, mcp.NewServer(brokenDirectory{}, "test"))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Verify(ctx, "15551234567", "1234")
	assert.Error(t, err)

	_, err = c.Fetch(ctx, domain.DataBilling, "u-1001")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}
