package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/supportflow-io/supportflow/internal/auth"
	"github.com/supportflow-io/supportflow/internal/feed"
	"github.com/supportflow-io/supportflow/internal/logbuf"
	"github.com/supportflow-io/supportflow/internal/metrics"
	"github.com/supportflow-io/supportflow/pkg/protocol"
)

const maxRequestBody = 64 << 10

// LogQuerier abstracts log entry querying to avoid coupling to logbuf directly.
type LogQuerier interface {
	Query(f logbuf.Filter) []logbuf.Entry
}

// TokenVerifier turns a bearer token into the caller's profile.
type TokenVerifier interface {
	Verify(token string) (*protocol.Profile, error)
}

// TicketService is what the API server needs from the lifecycle controller.
type TicketService interface {
	Create(ctx context.Context, ownerID, title, description string) (*protocol.Ticket, error)
	Get(ctx context.Context, ticketID, ownerID string) (*protocol.Ticket, error)
	List(ctx context.Context, ownerID string, status *protocol.TicketStatus, limit int) ([]*protocol.Ticket, error)
	Stats(ctx context.Context, ownerID string) (protocol.StatusCounts, error)
	Resolve(ctx context.Context, ticketID, ownerID string) (*protocol.Ticket, error)
	Subscribe(ownerID string, fn feed.Handler) (*feed.Subscription, error)
}

// Config holds API server configuration.
type Config struct {
	Host     string
	Port     int
	AdminKey string // Bearer key for operator endpoints; empty disables them
	// PollInterval is advertised to clients on /api/health.
	PollInterval time.Duration
}

// Server is the supportflow REST API server.
type Server struct {
	svc    TicketService
	auth   TokenVerifier
	cfg    Config
	logger *slog.Logger
	logs   LogQuerier
	mux    *http.ServeMux
	srv    *http.Server

	// closing is closed when shutdown begins. Hijacked feed connections are
	// not tracked by http.Server, so their handlers watch it instead.
	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer creates a new API server. logs may be nil.
func NewServer(svc TicketService, verifier TokenVerifier, cfg Config, logger *slog.Logger, logs LogQuerier) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:     svc,
		auth:    verifier,
		cfg:     cfg,
		logger:  logger,
		logs:    logs,
		mux:     http.NewServeMux(),
		closing: make(chan struct{}),
	}
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/me", s.requireUser(s.handleMe))
	s.mux.HandleFunc("GET /api/tickets", s.requireUser(s.handleListTickets))
	s.mux.HandleFunc("GET /api/tickets/stats", s.requireUser(s.handleStats))
	s.mux.HandleFunc("POST /api/tickets", s.requireUser(s.handleCreateTicket))
	s.mux.HandleFunc("GET /api/tickets/{id}", s.requireUser(s.handleGetTicket))
	s.mux.HandleFunc("POST /api/tickets/{id}/resolve", s.requireUser(s.handleResolveTicket))
	s.mux.HandleFunc("GET /api/feed", s.requireFeedUser(s.handleFeed))
	s.mux.HandleFunc("GET /api/logs", s.requireAdmin(s.handleGetLogs))
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(s.instrument(s.mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.srv.RegisterOnShutdown(func() {
		s.closeOnce.Do(func() { close(s.closing) })
	})
	return s
}

// MountWebhook serves h at POST /api/webhook/{name}. The handler does its
// own per-endpoint authentication.
func (s *Server) MountWebhook(h http.Handler) {
	s.mux.Handle("POST /api/webhook/{name}", h)
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Hub-Signature-256")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack hands the connection over for the WebSocket feed.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("api: response writer cannot hijack")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return s.authenticate(false, next)
}

// requireFeedUser also accepts the token as an access_token query parameter,
// since browsers cannot set headers on a WebSocket handshake.
func (s *Server) requireFeedUser(next http.HandlerFunc) http.HandlerFunc {
	return s.authenticate(true, next)
}

func (s *Server) authenticate(allowQuery bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if allowQuery {
			token = auth.RequestToken(r)
		}
		profile, err := s.auth.Verify(token)
		if err != nil {
			s.logger.Debug("authentication failed", "path", r.URL.Path, "error", err)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
			return
		}
		next(w, r.WithContext(auth.WithProfile(r.Context(), profile)))
	}
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminKey == "" {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin endpoints are disabled"})
			return
		}
		if auth.BearerToken(r.Header.Get("Authorization")) != s.cfg.AdminKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]string{"status": "ok"}
	if s.cfg.PollInterval > 0 {
		resp["poll_interval"] = s.cfg.PollInterval.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	profile, _ := auth.FromContext(r.Context())
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	var status *protocol.TicketStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		ts, err := protocol.ParseTicketStatus(raw)
		if err != nil {
			s.writeError(w, err)
			return
		}
		status = &ts
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	tickets, err := s.svc.List(r.Context(), auth.UserID(r.Context()), status, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.svc.Stats(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

type createTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	t, err := s.svc.Create(r.Context(), auth.UserID(r.Context()), req.Title, req.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Get(r.Context(), r.PathValue("id"), auth.UserID(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleResolveTicket(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Resolve(r.Context(), r.PathValue("id"), auth.UserID(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	q := r.URL.Query()
	f := logbuf.Filter{
		Limit:    200,
		MinLevel: slog.LevelDebug,
		Ticket:   q.Get("ticket"),
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if lvl := q.Get("level"); lvl != "" {
		f.MinLevel = logbuf.ParseLevel(lvl)
	}
	if since := q.Get("since"); since != "" {
		if ms, err := strconv.ParseInt(since, 10, 64); err == nil {
			f.Since = time.UnixMilli(ms)
		} else if t, err := time.Parse(time.RFC3339, since); err == nil {
			f.Since = t
		}
	}

	writeJSON(w, http.StatusOK, s.logs.Query(f))
}

// --- Helpers ---

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, protocol.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, protocol.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrTransientStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		s.logger.Warn("store unavailable", "error", err)
		msg = "temporarily unavailable, retry"
	case http.StatusInternalServerError:
		s.logger.Error("request failed", "error", err)
		msg = "internal error"
	case http.StatusNotFound:
		msg = protocol.ErrNotFound.Error()
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
