package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/supportflow-io/supportflow/pkg/protocol"
)

// FeedClient dials the supportd change feed over WebSocket.
type FeedClient struct {
	url    string
	token  string
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewFeedClient creates a feed client for the daemon at baseURL
// (http or https; the scheme is switched to ws or wss).
func NewFeedClient(baseURL, token string, logger *slog.Logger) *FeedClient {
	if logger == nil {
		logger = slog.Default()
	}
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return &FeedClient{
		url:   u + "/api/feed",
		token: token,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// FeedSubscription is an open feed connection.
type FeedSubscription struct {
	conn   *websocket.Conn
	once   sync.Once
	done   chan struct{}
	logger *slog.Logger
}

// Subscribe opens the feed and calls fn for every event until the
// subscription is closed, ctx is done, or the connection drops.
func (f *FeedClient) Subscribe(ctx context.Context, fn func(protocol.Event)) (Subscription, error) {
	header := http.Header{}
	if f.token != "" {
		header.Set("Authorization", "Bearer "+f.token)
	}
	conn, resp, err := f.dialer.DialContext(ctx, f.url, header)
	if err != nil {
		if resp != nil {
			if sentinel := statusError(resp.StatusCode); sentinel != nil {
				return nil, fmt.Errorf("client: feed dial: %w", sentinel)
			}
		}
		return nil, fmt.Errorf("client: feed dial: %w", err)
	}

	sub := &FeedSubscription{conn: conn, done: make(chan struct{}), logger: f.logger}
	go sub.readPump(fn)
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (s *FeedSubscription) readPump(fn func(protocol.Event)) {
	defer s.Close()
	for {
		var ev protocol.Event
		if err := s.conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-s.done:
				default:
					s.logger.Debug("feed read ended", "error", err)
				}
			}
			return
		}
		fn(ev)
	}
}

// Done is closed when the subscription ends.
func (s *FeedSubscription) Done() <-chan struct{} { return s.done }

// Close ends the subscription. It is safe to call more than once.
func (s *FeedSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
