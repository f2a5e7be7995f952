// Package webhook lets external systems (helpdesk automations, CI bots)
// act on tickets through authenticated HTTP callbacks.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/supportflow-io/supportflow/internal/config"
	"github.com/supportflow-io/supportflow/pkg/protocol"
)

const maxBody = 1 << 20

// Resolver resolves a ticket on behalf of its owner.
type Resolver interface {
	Resolve(ctx context.Context, ticketID, ownerID string) (*protocol.Ticket, error)
}

// Payload is the expected JSON body for webhook requests.
type Payload struct {
	Action   string `json:"action,omitempty"` // only "resolve"; empty means resolve
	TicketID string `json:"ticket_id"`
	UserID   string `json:"user_id"`
}

// Handler serves POST /api/webhook/{name}.
type Handler struct {
	endpoints map[string]config.WebhookConfig
	resolver  Resolver
	logger    *slog.Logger
}

// New creates a new webhook handler.
func New(endpoints map[string]config.WebhookConfig, resolver Resolver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		endpoints: endpoints,
		resolver:  resolver,
		logger:    logger,
	}
}

// ServeHTTP authenticates the caller for the named endpoint and applies the
// requested action.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	name := r.PathValue("name")
	if name == "" {
		name = extractName(r.URL.Path)
	}
	endpoint, ok := h.endpoints[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown webhook endpoint: " + name})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}

	if !authenticate(r, endpoint, body) {
		h.logger.Warn("webhook rejected", "endpoint", name, "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})
		return
	}
	if p.Action != "" && p.Action != "resolve" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported action: " + p.Action})
		return
	}
	if p.TicketID == "" || p.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ticket_id and user_id are required"})
		return
	}

	t, err := h.resolver.Resolve(r.Context(), p.TicketID, p.UserID)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("webhook resolve failed", "endpoint", name, "ticket", p.TicketID, "error", err)
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	h.logger.Info("ticket resolved via webhook", "endpoint", name, "ticket", t.ID, "owner", t.OwnerID)
	writeJSON(w, http.StatusOK, t)
}

func authenticate(r *http.Request, endpoint config.WebhookConfig, body []byte) bool {
	if endpoint.Secret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if sig == "" {
			sig = r.Header.Get("X-Signature-256")
		}
		return verifyHMAC(body, endpoint.Secret, sig)
	}
	if endpoint.BearerToken != "" {
		given := []byte(r.Header.Get("Authorization"))
		want := []byte("Bearer " + endpoint.BearerToken)
		return hmac.Equal(given, want)
	}
	// Ticket mutations are never accepted unauthenticated.
	return false
}

// verifyHMAC checks an HMAC-SHA256 signature.
// Signature format: "sha256=<hex>"
func verifyHMAC(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}
	expectedMAC, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expectedMAC)
}

// extractName gets the last path segment from /api/webhook/{name}.
func extractName(path string) string {
	path = strings.TrimSuffix(path, "/")
	return path[strings.LastIndex(path, "/")+1:]
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, protocol.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrValidation), errors.Is(err, protocol.ErrUnauthenticated):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrTransientStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ComputeSignature generates an HMAC-SHA256 signature for callers and tests.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
