package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/gocare/internal/logging"
	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server exposes a session.Manager over REST and websockets.
type Server struct {
	mgr     *session.Manager
	logger  *slog.Logger
	metrics http.Handler
	mcp     http.Handler
	health  func(context.Context) error
	mask    func(*domain.SessionContext) *domain.SessionContext
	active  func(delta float64)
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithMCP mounts an MCP streamable-HTTP handler at /mcp.
func WithMCP(h http.Handler) Option {
	return func(s *Server) {
		s.mcp = h
	}
}

// WithHealthCheck adds a dependency check to /healthz.
func WithHealthCheck(fn func(context.Context) error) Option {
	return func(s *Server) {
		s.health = fn
	}
}

// WithSnapshotMask masks live contexts returned by GET /sessions/{id}.
func WithSnapshotMask(fn func(*domain.SessionContext) *domain.SessionContext) Option {
	return func(s *Server) {
		s.mask = fn
	}
}

// WithActiveGauge reports opened (+1) and closed (-1) sessions.
func WithActiveGauge(fn func(delta float64)) Option {
	return func(s *Server) {
		s.active = fn
	}
}

// NewHandler creates a new HTTP handler for mgr.
func NewHandler(mgr *session.Manager, opts ...Option) http.Handler {
	s := &Server{
		mgr:    mgr,
		logger: logging.NewNop(),
		active: func(float64) {},
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	if s.mcp != nil {
		r.Handle("/mcp", s.mcp)
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.openSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.closeSession)
			r.Get("/transcript", s.getTranscript)
			r.Post("/utterances", s.postUtterance)
			r.Post("/actions/{action}", s.postAction)
			r.Get("/ws", s.serveWS)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Mcp-Session-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OpenRequest is the body of POST /sessions.
type OpenRequest struct {
	SessionID string           `json:"session_id,omitempty"`
	Handshake domain.Handshake `json:"handshake"`
}

// TurnResponse is returned for every turn.
type TurnResponse struct {
	SessionID string              `json:"session_id"`
	Role      domain.Role         `json:"role"`
	Replies   []string            `json:"replies"`
	Changes   *domain.ContextDiff `json:"changes,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// UtteranceRequest is the body of POST /sessions/{id}/utterances.
type UtteranceRequest struct {
	Text string `json:"text"`
}

// ActionRequest is the optional body of POST /sessions/{id}/actions/{action}.
type ActionRequest struct {
	Args map[string]any `json:"args,omitempty"`
}

func turnResponse(id string, res domain.TurnResult) TurnResponse {
	replies := res.Replies
	if replies == nil {
		replies = []string{}
	}
	return TurnResponse{SessionID: id, Role: res.Role, Replies: replies, Changes: res.Changes}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			s.logger.Warn("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": len(s.mgr.List())})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.mgr.ListSnapshots(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"live": s.mgr.List(), "snapshots": ids})
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	var body OpenRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			s.logger.Warn("open session: invalid request body", "err", err)
			return
		}
	}
	conv, res, err := s.mgr.Open(r.Context(), body.SessionID, body.Handshake, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.active(1)
	writeJSON(w, http.StatusCreated, turnResponse(conv.ID(), res))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sc, err := s.mgr.Inspect(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.mask != nil {
		sc = s.mask(sc)
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.mgr.Close(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.active(-1)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getTranscript(w http.ResponseWriter, r *http.Request) {
	conv, err := s.mgr.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv.Transcript())
}

func (s *Server) postUtterance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body UtteranceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("utterance: invalid request body", "err", err)
		return
	}
	res, err := s.mgr.HandleUtterance(r.Context(), id, body.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse(id, res))
}

func (s *Server) postAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	action, err := domain.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body ActionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	res, err := s.mgr.InvokeAsOperator(r.Context(), id, domain.ToolCall{
		ID:     middleware.GetReqID(r.Context()),
		Action: action,
		Args:   body.Args,
	})
	if errors.Is(err, domain.ErrActionUnavailable) {
		resp := turnResponse(id, res)
		resp.Error = err.Error()
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse(id, res))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionExists), errors.Is(err, domain.ErrActionUnavailable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
