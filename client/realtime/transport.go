package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vendora/realtime-backend/contract"
)

// Credentials identifies the authenticated session to the transport. The
// token is the server-held session credential; the client never asserts a
// user identity to the transport itself.
type Credentials struct {
	UserID       string
	SessionToken string
}

// Conn is a single live bidirectional connection. The connection manager is
// its only owner.
type Conn interface {
	// ReadFrame blocks until the next frame arrives. A malformed frame
	// yields an error wrapping ErrProtocol and leaves the connection
	// usable; any other error is terminal for the connection.
	ReadFrame() (contract.Frame, error)
	Close() error
}

// Transport establishes connections. Abstracted so the connection manager's
// state machine can be driven by a scripted transport in tests.
type Transport interface {
	Dial(ctx context.Context, creds Credentials) (Conn, error)
}

const (
	dialTimeout    = 10 * time.Second
	maxFrameSize   = 64 * 1024
	readQuietWait  = 90 * time.Second
	sessionCookie  = "vendora_session"
)

// WebsocketTransport dials the realtime endpoint over a gorilla websocket,
// authenticating with the session cookie.
type WebsocketTransport struct {
	URL    string
	Dialer *websocket.Dialer
}

// NewWebsocketTransport creates a transport for the given ws:// or wss:// URL.
func NewWebsocketTransport(url string) *WebsocketTransport {
	return &WebsocketTransport{
		URL: url,
		Dialer: &websocket.Dialer{
			HandshakeTimeout: dialTimeout,
		},
	}
}

// Dial opens a websocket connection carrying the session cookie.
func (t *WebsocketTransport) Dial(ctx context.Context, creds Credentials) (Conn, error) {
	header := http.Header{}
	cookie := http.Cookie{Name: sessionCookie, Value: creds.SessionToken}
	header.Set("Cookie", cookie.String())

	conn, resp, err := t.Dialer.DialContext(ctx, t.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrAuth
		}
		return nil, transportErr("dial", err)
	}

	conn.SetReadLimit(maxFrameSize)
	return &websocketConn{conn: conn}, nil
}

type websocketConn struct {
	conn *websocket.Conn
}

func (c *websocketConn) ReadFrame() (contract.Frame, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(readQuietWait)); err != nil {
		return contract.Frame{}, transportErr("set read deadline", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return contract.Frame{}, transportErr("read", err)
	}

	var frame contract.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return contract.Frame{}, protocolErr("decode frame", err)
	}
	if frame.Event == "" {
		return contract.Frame{}, protocolErr("decode frame", errMissingEvent)
	}
	return frame, nil
}

func (c *websocketConn) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}
