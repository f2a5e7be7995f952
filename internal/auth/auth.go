// Package auth verifies the HS256 access tokens issued by the identity
// provider and carries the caller's profile through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/supportflow-io/supportflow/pkg/protocol"
)

const defaultLeeway = time.Minute

// Claims are the access-token claims we read.
type Claims struct {
	Email        string         `json:"email,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates access tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewVerifier creates a Verifier. An empty issuer accepts any issuer.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, leeway: defaultLeeway}, nil
}

// Verify parses token and returns the caller's profile. Every failure wraps
// protocol.ErrUnauthenticated.
func (v *Verifier) Verify(token string) (*protocol.Profile, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", protocol.ErrUnauthenticated)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", protocol.ErrUnauthenticated)
	}
	return &protocol.Profile{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  DisplayName(claims.Email, claims.UserMetadata),
	}, nil
}

// Issue mints a token for userID. It exists for development and tests; in
// production tokens come from the identity provider.
func (v *Verifier) Issue(userID, email, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if name != "" {
		claims.UserMetadata = map[string]any{"name": name}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// DisplayName picks the name shown for a user: user_metadata.name, else the
// local part of the email address, else "User".
func DisplayName(email string, meta map[string]any) string {
	if name, ok := meta["name"].(string); ok && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	return "User"
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequestToken returns the bearer token of r. Browsers cannot set headers on
// a WebSocket handshake, so the access_token query parameter is accepted as
// a fallback.
func RequestToken(r *http.Request) string {
	if tok := BearerToken(r.Header.Get("Authorization")); tok != "" {
		return tok
	}
	return r.URL.Query().Get("access_token")
}

type ctxKey struct{}

// WithProfile returns a context carrying p.
func WithProfile(ctx context.Context, p *protocol.Profile) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the profile stored by WithProfile.
func FromContext(ctx context.Context) (*protocol.Profile, bool) {
	p, ok := ctx.Value(ctxKey{}).(*protocol.Profile)
	return p, ok && p != nil
}

// UserID returns the caller's id, or "" when the context is anonymous.
func UserID(ctx context.Context) string {
	if p, ok := FromContext(ctx); ok {
		return p.ID
	}
	return ""
}
