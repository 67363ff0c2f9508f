package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// WSMessage is the websocket frame in both directions.
//
// Client frames: {"type":"hello","handshake":{...}}, {"type":"utterance","text":"..."},
// {"type":"action","action":"...","args":{...}}.
// Server frames: {"type":"reply","text":"...","role":"..."}, {"type":"turn","role":"...","changes":{...}},
// {"type":"error","error":"..."}.
type WSMessage struct {
	Type      string              `json:"type"`
	Text      string              `json:"text,omitempty"`
	Role      domain.Role         `json:"role,omitempty"`
	Action    domain.Action       `json:"action,omitempty"`
	Args      map[string]any      `json:"args,omitempty"`
	Handshake *domain.Handshake   `json:"handshake,omitempty"`
	Changes   *domain.ContextDiff `json:"changes,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// wsConn serialises writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(msg)
}

// serveWS runs one call over a websocket. The session is opened by the client's
// hello frame and torn down when the socket closes. Frames for one turn are sent
// before the next client frame is read, so replies keep their order.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.mgr.Get(id); err == nil {
		s.writeError(w, fmt.Errorf("%w: %s", session.ErrSessionExists, id))
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade the websocket", "err", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(wsMaxMessageSize)
	conn := &wsConn{conn: ws}
	logger := s.logger.With("session_id", id)

	var hello WSMessage
	if err := ws.ReadJSON(&hello); err != nil || hello.Type != "hello" {
		_ = conn.send(WSMessage{Type: "error", Error: "expected hello"})
		return
	}
	hs := domain.Handshake{}
	if hello.Handshake != nil {
		hs = *hello.Handshake
	}

	ctx := context.WithoutCancel(r.Context())
	_, res, err := s.mgr.Open(ctx, id, hs, nil)
	if err != nil {
		_ = conn.send(WSMessage{Type: "error", Error: err.Error()})
		return
	}
	s.active(1)
	defer func() {
		if err := s.mgr.Close(ctx, id); err != nil {
			logger.Debug("websocket session close", "err", err)
		}
		s.active(-1)
	}()
	if err := sendTurn(conn, res, nil); err != nil {
		return
	}
	logger.Info("websocket session started")

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			logger.Info("websocket client disconnected", "err", err)
			return
		}

		var (
			turn domain.TurnResult
			err  error
		)
		switch msg.Type {
		case "utterance":
			turn, err = s.mgr.HandleUtterance(r.Context(), id, msg.Text)
		case "action":
			// Caller actions only; operator actions go through the REST route.
			turn, err = s.mgr.Invoke(r.Context(), id, domain.ToolCall{Action: msg.Action, Args: msg.Args})
		default:
			err = conn.send(WSMessage{Type: "error", Error: "unknown message type " + msg.Type})
			if err != nil {
				return
			}
			continue
		}
		if err := sendTurn(conn, turn, err); err != nil {
			return
		}
	}
}

// sendTurn writes each reply, then a turn frame closing the exchange.
func sendTurn(conn *wsConn, res domain.TurnResult, turnErr error) error {
	for _, line := range res.Replies {
		if err := conn.send(WSMessage{Type: "reply", Text: line, Role: res.Role}); err != nil {
			return err
		}
	}
	out := WSMessage{Type: "turn", Role: res.Role, Changes: res.Changes}
	if turnErr != nil {
		out.Error = turnErr.Error()
	}
	return conn.send(out)
}
