package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/supportflow-io/supportflow/pkg/protocol"
)

func TestIssueAndVerify(t *testing.T) {
	v, err := NewVerifier("secret", "https://id.example.com")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	tok, err := v.Issue("user-1", "jane@example.com", "Jane Doe", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	p, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.ID != "user-1" || p.Email != "jane@example.com" || p.Name != "Jane Doe" {
		t.Errorf("profile = %+v", p)
	}
}

func TestVerify_Rejects(t *testing.T) {
	v, _ := NewVerifier("secret", "https://id.example.com")
	other, _ := NewVerifier("other-secret", "https://id.example.com")
	wrongIss, _ := NewVerifier("secret", "https://evil.example.com")

	expired, _ := v.Issue("user-1", "", "", -2*time.Hour)
	forged, _ := other.Issue("user-1", "", "", time.Hour)
	badIssuer, _ := wrongIss.Issue("user-1", "", "", time.Hour)
	noSubject, _ := v.Issue("", "", "", time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"empty":      "",
		"garbage":    "not-a-jwt",
		"expired":    expired,
		"forged":     forged,
		"bad issuer": badIssuer,
		"no subject": noSubject,
		"alg none":   none,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(tok); !errors.Is(err, protocol.ErrUnauthenticated) {
				t.Errorf("err = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	if _, err := NewVerifier("", ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		email string
		meta  map[string]any
		want  string
	}{
		{"jane@example.com", map[string]any{"name": "Jane Doe"}, "Jane Doe"},
		{"jane@example.com", map[string]any{"name": "  "}, "jane"},
		{"jane@example.com", nil, "jane"},
		{"", nil, "User"},
		{"no-at-sign", map[string]any{"name": 42}, "User"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.email, tt.meta); got != tt.want {
			t.Errorf("DisplayName(%q, %v) = %q, want %q", tt.email, tt.meta, got, tt.want)
		}
	}
}

func TestRequestToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/feed?access_token=q", nil)
	if got := RequestToken(r); got != "q" {
		t.Errorf("query token = %q", got)
	}
	r.Header.Set("Authorization", "bearer h")
	if got := RequestToken(r); got != "h" {
		t.Errorf("header token = %q", got)
	}
	r.Header.Set("Authorization", "Basic abc")
	if got := BearerToken(r.Header.Get("Authorization")); got != "" {
		t.Errorf("basic auth treated as bearer: %q", got)
	}
}

func TestContextProfile(t *testing.T) {
	ctx := context.Background()
	if UserID(ctx) != "" {
		t.Error("anonymous context has a user")
	}
	ctx = WithProfile(ctx, &protocol.Profile{ID: "user-1"})
	if UserID(ctx) != "user-1" {
		t.Errorf("UserID = %q", UserID(ctx))
	}
}
