package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/supportflow-io/supportflow/pkg/protocol"
)

func sampleNotice(kind Kind) Notice {
	resp := "**Immediate Steps:**\n- Log out"
	return Notice{Kind: kind, Ticket: &protocol.Ticket{
		ID: "t1", Title: "Login broken", Status: protocol.TicketPending, AIResponse: &resp,
	}}
}

func TestFormat(t *testing.T) {
	got := Format(sampleNotice(ResponseReady))
	if !strings.Contains(got, `"Login broken"`) || !strings.Contains(got, "Immediate Steps:") {
		t.Errorf("format = %q", got)
	}
	if strings.Contains(got, "**") {
		t.Errorf("markdown not stripped: %q", got)
	}

	got = Format(sampleNotice(Resolved))
	if !strings.Contains(got, "resolved") {
		t.Errorf("format = %q", got)
	}
}

type fakeNotifier struct {
	name string
	err  error
	got  []Notice
}

func (f *fakeNotifier) Name() string { return f.name }
func (f *fakeNotifier) Notify(_ context.Context, n Notice) error {
	f.got = append(f.got, n)
	return f.err
}

func TestMulti_TriesEveryNotifier(t *testing.T) {
	boom := errors.New("boom")
	a := &fakeNotifier{name: "a", err: boom}
	b := &fakeNotifier{name: "b"}

	err := Multi{a, b}.Notify(context.Background(), sampleNotice(Resolved))
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error to wrap boom, got %v", err)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Errorf("deliveries a=%d b=%d", len(a.got), len(b.got))
	}
}

func TestSlack_PostsWebhook(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	s, err := NewSlack(SlackConfig{WebhookURL: srv.URL, Channel: "#support"})
	if err != nil {
		t.Fatalf("NewSlack: %v", err)
	}
	if err := s.Notify(context.Background(), sampleNotice(ResponseReady)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if body["channel"] != "#support" {
		t.Errorf("channel = %v", body["channel"])
	}
	if text, _ := body["text"].(string); !strings.Contains(text, "Login broken") {
		t.Errorf("text = %q", text)
	}
}

func TestSlack_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s, _ := NewSlack(SlackConfig{WebhookURL: srv.URL})
	if err := s.Notify(context.Background(), sampleNotice(Resolved)); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewSlack_RequiresURL(t *testing.T) {
	if _, err := NewSlack(SlackConfig{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestTelegram_SendsToStaffChat(t *testing.T) {
	var sent url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Support","username":"support_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			raw, _ := io.ReadAll(r.Body)
			sent, _ = url.ParseQuery(string(raw))
			w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"group"}}}`))
		default:
			w.Write([]byte(`{"ok":false,"error_code":404,"description":"not found"}`))
		}
	}))
	defer srv.Close()

	tg, err := NewTelegram(TelegramConfig{
		Token:       "123:abc",
		ChatID:      42,
		APIEndpoint: srv.URL + "/bot%s/%s",
	}, nil)
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	if err := tg.Notify(context.Background(), sampleNotice(Resolved)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if sent.Get("chat_id") != "42" {
		t.Errorf("chat_id = %q", sent.Get("chat_id"))
	}
	if !strings.Contains(sent.Get("text"), "Login broken") {
		t.Errorf("text = %q", sent.Get("text"))
	}
	if sent.Get("parse_mode") != "HTML" {
		t.Errorf("parse_mode = %q", sent.Get("parse_mode"))
	}
}

func TestNewTelegram_RequiresChat(t *testing.T) {
	if _, err := NewTelegram(TelegramConfig{Token: "x"}, nil); err == nil {
		t.Fatal("expected error")
	}
}
