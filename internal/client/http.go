// Package client is the Go client for the supportd API: a REST client, a
// change-feed client, a reconciling ticket view, and a watcher that falls
// back to polling while a ticket awaits its automated response.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/supportflow-io/supportflow/pkg/protocol"
)

// HTTPClient talks to the supportd REST API on behalf of one user.
type HTTPClient struct {
	baseURL string
	token   string
	rc      *resty.Client
}

type errorBody struct {
	Error string `json:"error"`
}

// NewHTTPClient creates a client for baseURL authenticated with token.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	baseURL = strings.TrimRight(baseURL, "/")
	rc := resty.New().
		SetBaseURL(baseURL).
		SetHeader("User-Agent", "supportflow-client/1.0").
		SetHeader("Accept", "application/json").
		SetTimeout(15 * time.Second).
		SetError(&errorBody{})
	if token != "" {
		rc.SetAuthToken(token)
	}
	return &HTTPClient{baseURL: baseURL, token: token, rc: rc}
}

// BaseURL returns the API base URL.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

// Health checks that the daemon is reachable.
func (c *HTTPClient) Health(ctx context.Context) error {
	resp, err := c.rc.R().SetContext(ctx).Get("/api/health")
	return check("health", resp, err)
}

// Me returns the caller's profile.
func (c *HTTPClient) Me(ctx context.Context) (*protocol.Profile, error) {
	var p protocol.Profile
	resp, err := c.rc.R().SetContext(ctx).SetResult(&p).Get("/api/me")
	if err := check("me", resp, err); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListTickets returns the caller's tickets, newest first. An empty status
// lists all of them; limit 0 means no limit.
func (c *HTTPClient) ListTickets(ctx context.Context, status string, limit int) ([]*protocol.Ticket, error) {
	var out []*protocol.Ticket
	req := c.rc.R().SetContext(ctx).SetResult(&out)
	if status != "" {
		req.SetQueryParam("status", status)
	}
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	resp, err := req.Get("/api/tickets")
	if err := check("list tickets", resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats returns the caller's ticket counts by status.
func (c *HTTPClient) Stats(ctx context.Context) (protocol.StatusCounts, error) {
	var counts protocol.StatusCounts
	resp, err := c.rc.R().SetContext(ctx).SetResult(&counts).Get("/api/tickets/stats")
	return counts, check("stats", resp, err)
}

// CreateTicket files a new ticket.
func (c *HTTPClient) CreateTicket(ctx context.Context, title, description string) (*protocol.Ticket, error) {
	var t protocol.Ticket
	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"title": title, "description": description}).
		SetResult(&t).
		Post("/api/tickets")
	if err := check("create ticket", resp, err); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTicket fetches one ticket.
func (c *HTTPClient) GetTicket(ctx context.Context, id string) (*protocol.Ticket, error) {
	var t protocol.Ticket
	resp, err := c.rc.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&t).
		Get("/api/tickets/{id}")
	if err := check("get ticket", resp, err); err != nil {
		return nil, err
	}
	return &t, nil
}

// ResolveTicket marks a pending ticket resolved.
func (c *HTTPClient) ResolveTicket(ctx context.Context, id string) (*protocol.Ticket, error) {
	var t protocol.Ticket
	resp, err := c.rc.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&t).
		Post("/api/tickets/{id}/resolve")
	if err := check("resolve ticket", resp, err); err != nil {
		return nil, err
	}
	return &t, nil
}

// check turns a transport failure or an error status into an error that
// wraps the matching protocol sentinel.
func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("client: %s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}
	msg := strings.TrimSpace(resp.String())
	if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
		msg = body.Error
	}
	if sentinel := statusError(resp.StatusCode()); sentinel != nil {
		return fmt.Errorf("client: %s: %w: %s", op, sentinel, msg)
	}
	return fmt.Errorf("client: %s: status %d: %s", op, resp.StatusCode(), msg)
}

func statusError(code int) error {
	switch code {
	case http.StatusUnauthorized:
		return protocol.ErrUnauthenticated
	case http.StatusBadRequest:
		return protocol.ErrValidation
	case http.StatusNotFound:
		return protocol.ErrNotFound
	case http.StatusConflict:
		return protocol.ErrInvalidTransition
	case http.StatusServiceUnavailable:
		return protocol.ErrTransientStore
	}
	return nil
}
