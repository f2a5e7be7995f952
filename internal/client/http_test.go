package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/supportflow-io/supportflow/pkg/protocol"
)

func TestHTTPClient_CreateAndGet(t *testing.T) {
	var gotAuth string
	var created map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/tickets":
			json.NewDecoder(r.Body).Decode(&created)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(tk("t1", protocol.TicketOpen, 0))
		case r.Method == http.MethodGet && r.URL.Path == "/api/tickets/t1":
			json.NewEncoder(w).Encode(tk("t1", protocol.TicketOpen, 0))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"ticket not found"}`))
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "tok")
	ctx := context.Background()

	tkt, err := c.CreateTicket(ctx, "Login broken", "details")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tkt.ID != "t1" || tkt.Status != protocol.TicketOpen {
		t.Errorf("ticket = %+v", tkt)
	}
	if created["title"] != "Login broken" {
		t.Errorf("body = %v", created)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("auth = %q", gotAuth)
	}

	if _, err := c.GetTicket(ctx, "t1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := c.GetTicket(ctx, "missing"); !errors.Is(err, protocol.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestHTTPClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, protocol.ErrUnauthenticated},
		{http.StatusBadRequest, protocol.ErrValidation},
		{http.StatusConflict, protocol.ErrInvalidTransition},
		{http.StatusServiceUnavailable, protocol.ErrTransientStore},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"error":"nope"}`))
		}))
		_, err := NewHTTPClient(srv.URL, "tok").ResolveTicket(context.Background(), "t1")
		srv.Close()
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestHTTPClient_ListQuery(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	list, err := NewHTTPClient(srv.URL, "tok").ListTickets(context.Background(), "pending", 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("len = %d", len(list))
	}
	if query != "limit=5&status=pending" {
		t.Errorf("query = %q", query)
	}
}
