package realtime

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// Conn is one open websocket. *websocket.Conn satisfies it.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens a Conn authenticated with a bearer token.
type Dialer interface {
	Dial(ctx context.Context, url, token string) (Conn, error)
}

// WebsocketDialer dials with github.com/coder/websocket.
type WebsocketDialer struct {
	HTTPClient *http.Client
}

// Dial opens url with an Authorization header and no read limit.
func (d WebsocketDialer) Dial(ctx context.Context, url, token string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{ //nolint:bodyclose // Dial closes the response body
		HTTPClient: d.HTTPClient,
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(-1)
	return conn, nil
}
