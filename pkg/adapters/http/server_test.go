package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/gocare/internal/runtime"
	gchttp "github.com/aretw0/gocare/pkg/adapters/http"
	"github.com/aretw0/gocare/pkg/adapters/memory"
	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/observability"
	"github.com/aretw0/gocare/pkg/session"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts ...gchttp.Option) (*httptest.Server, *session.Manager) {
	t.Helper()
	dir := memory.NewDirectory(memory.DemoUsers()...)
	mgr := session.NewManager(runtime.NewEngine(dir, dir), session.WithStore(memory.NewStore()))
	ts := httptest.NewServer(gchttp.NewHandler(mgr, opts...))
	t.Cleanup(func() {
		ts.Close()
		mgr.Shutdown(context.Background())
	})
	return ts, mgr
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestREST_FullCall(t *testing.T) {
	ts, _ := newTestServer(t)

	var opened gchttp.TurnResponse
	code := do(t, "POST", ts.URL+"/sessions", gchttp.OpenRequest{SessionID: "rest-1"}, &opened)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "rest-1", opened.SessionID)
	assert.Equal(t, domain.RoleGreeting, opened.Role)
	assert.NotEmpty(t, opened.Replies)

	var turn gchttp.TurnResponse
	do(t, "POST", ts.URL+"/sessions/rest-1/utterances", gchttp.UtteranceRequest{Text: "15551234567"}, &turn)
	assert.Equal(t, domain.RoleAuthenticating, turn.Role)

	do(t, "POST", ts.URL+"/sessions/rest-1/utterances", gchttp.UtteranceRequest{Text: "1234"}, &turn)
	assert.Equal(t, domain.RoleMain, turn.Role)
	require.NotNil(t, turn.Changes)
	assert.Contains(t, turn.Changes.Changes, "is_authenticated")

	code = do(t, "POST", ts.URL+"/sessions/rest-1/actions/get_contact", nil, &turn)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, strings.Join(turn.Replies, " "), "ada@example.com")

	var sc domain.SessionContext
	code = do(t, "GET", ts.URL+"/sessions/rest-1", nil, &sc)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "u-1001", sc.UserID)

	var transcript []domain.TranscriptEntry
	do(t, "GET", ts.URL+"/sessions/rest-1/transcript", nil, &transcript)
	assert.NotEmpty(t, transcript)

	code = do(t, "DELETE", ts.URL+"/sessions/rest-1", nil, nil)
	assert.Equal(t, http.StatusNoContent, code)

	code = do(t, "GET", ts.URL+"/sessions/rest-1", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestREST_Errors(t *testing.T) {
	ts, _ := newTestServer(t)

	code := do(t, "POST", ts.URL+"/sessions/nope/utterances", gchttp.UtteranceRequest{Text: "hi"}, nil)
	assert.Equal(t, http.StatusNotFound, code)

	do(t, "POST", ts.URL+"/sessions", gchttp.OpenRequest{SessionID: "dup"}, nil)
	code = do(t, "POST", ts.URL+"/sessions", gchttp.OpenRequest{SessionID: "dup"}, nil)
	assert.Equal(t, http.StatusConflict, code)

	var turn gchttp.TurnResponse
	code = do(t, "POST", ts.URL+"/sessions/dup/actions/get_billing", nil, &turn)
	assert.Equal(t, http.StatusConflict, code, "data actions are not offered before verification")
	assert.NotEmpty(t, turn.Error)

	code = do(t, "POST", ts.URL+"/sessions/dup/actions/wire_money", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestREST_OperatorRestart(t *testing.T) {
	ts, _ := newTestServer(t)
	do(t, "POST", ts.URL+"/sessions", gchttp.OpenRequest{SessionID: "lock"}, nil)
	do(t, "POST", ts.URL+"/sessions/lock/utterances", gchttp.UtteranceRequest{Text: "15551234567"}, nil)

	var turn gchttp.TurnResponse
	for _, c := range []string{"1111", "2222", "3333"} {
		do(t, "POST", ts.URL+"/sessions/lock/utterances", gchttp.UtteranceRequest{Text: c}, &turn)
	}
	require.Equal(t, domain.RoleLocked, turn.Role)

	code := do(t, "POST", ts.URL+"/sessions/lock/actions/restart_verification", nil, &turn)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.RoleGreeting, turn.Role)
}

func TestHealthzAndMetrics(t *testing.T) {
	m := observability.NewMetrics("")
	ts, _ := newTestServer(t,
		gchttp.WithMetrics(m.Handler()),
		gchttp.WithActiveGauge(m.SessionsActive.Add),
	)

	var health map[string]any
	assert.Equal(t, http.StatusOK, do(t, "GET", ts.URL+"/healthz", nil, &health))
	assert.Equal(t, "ok", health["status"])

	do(t, "POST", ts.URL+"/sessions", gchttp.OpenRequest{SessionID: "m"}, nil)
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), "gocare_sessions_active 1")
}

func TestHealthz_Unavailable(t *testing.T) {
	ts, _ := newTestServer(t, gchttp.WithHealthCheck(func(context.Context) error {
		return errors.New("redis down")
	}))
	assert.Equal(t, http.StatusServiceUnavailable, do(t, "GET", ts.URL+"/healthz", nil, nil))
}

func readUntilTurn(t *testing.T, ws *websocket.Conn) ([]gchttp.WSMessage, gchttp.WSMessage) {
	t.Helper()
	var replies []gchttp.WSMessage
	for {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg gchttp.WSMessage
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Type != "reply" {
			return replies, msg
		}
		replies = append(replies, msg)
	}
}

func TestWebSocket_Call(t *testing.T) {
	ts, mgr := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/ws-1/ws"

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(gchttp.WSMessage{
		Type:      "hello",
		Handshake: &domain.Handshake{UserName: "Ada", UserID: "15551234567"},
	}))
	replies, turn := readUntilTurn(t, ws)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "4567")
	assert.Equal(t, domain.RoleGreeting, turn.Role)

	require.NoError(t, ws.WriteJSON(gchttp.WSMessage{Type: "utterance", Text: "yes"}))
	replies, turn = readUntilTurn(t, ws)
	assert.Equal(t, domain.RoleAuthenticating, turn.Role)
	require.NotEmpty(t, replies)
	assert.Equal(t, domain.RoleAuthenticating, replies[0].Role)

	require.NoError(t, ws.WriteJSON(gchttp.WSMessage{Type: "utterance", Text: "1 2 3 4"}))
	_, turn = readUntilTurn(t, ws)
	assert.Equal(t, domain.RoleMain, turn.Role)

	require.NoError(t, ws.WriteJSON(gchttp.WSMessage{Type: "utterance", Text: "what's my pin"}))
	replies, _ = readUntilTurn(t, ws)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "can't help with passwords")

	assert.Contains(t, mgr.List(), "ws-1")
	require.NoError(t, ws.Close())

	assert.Eventually(t, func() bool {
		return len(mgr.List()) == 0
	}, 2*time.Second, 20*time.Millisecond, "closing the socket tears the session down")
}

func TestWebSocket_RequiresHello(t *testing.T) {
	ts, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/ws-2/ws"

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(gchttp.WSMessage{Type: "utterance", Text: "hi"}))
	var msg gchttp.WSMessage
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
}

func TestWebSocket_CallerCannotLiftLockout(t *testing.T) {
	ts, mgr := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/ws-lock/ws"

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(gchttp.WSMessage{Type: "hello"}))
	readUntilTurn(t, ws)

	var turn gchttp.WSMessage
	for _, text := range []string{"15551234567", "1111", "2222", "3333", "start over"} {
		require.NoError(t, ws.WriteJSON(gchttp.WSMessage{Type: "utterance", Text: text}))
		_, turn = readUntilTurn(t, ws)
	}
	require.Equal(t, domain.RoleLocked, turn.Role)

	require.NoError(t, ws.WriteJSON(gchttp.WSMessage{Type: "action", Action: domain.ActionRestartVerification}))
	_, turn = readUntilTurn(t, ws)
	assert.Equal(t, domain.RoleLocked, turn.Role)
	assert.Contains(t, turn.Error, "not available")

	sc, err := mgr.Inspect(context.Background(), "ws-lock")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleLocked, sc.Role)
}
