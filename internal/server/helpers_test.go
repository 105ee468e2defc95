package server

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// startTestServer runs a Server on an ephemeral loopback port and returns
// its base http:// URL. The server is shut down when the test ends.
func startTestServer(t *testing.T, customize func(cfg *Config)) (*Server, string) {
	t.Helper()

	cfg := NewConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = "0"
	cfg.ShutdownTimeout = 2 * time.Second
	if customize != nil {
		customize(cfg)
	}

	srv := New(cfg, zap.NewNop())
	ln, err := srv.Listen()
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-served
	})

	return srv, "http://" + ln.Addr().String()
}

func wsURL(baseURL string) string {
	return "ws" + strings.TrimPrefix(baseURL, "http") + "/"
}

// testClient is a dialed WebSocket whose inbound frames are collected on a
// channel by a background reader.
type testClient struct {
	conn     *websocket.Conn
	messages chan string
	done     chan struct{}
}

func dial(t *testing.T, baseURL string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(wsURL(baseURL), header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

func connectClient(t *testing.T, baseURL string) *testClient {
	t.Helper()
	conn, _, err := dial(t, baseURL, nil)
	require.NoError(t, err)

	c := &testClient{conn: conn, messages: make(chan string, 64), done: make(chan struct{})}
	go func() {
		defer close(c.done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			c.messages <- string(data)
		}
	}()
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

// connectClients dials n clients one after another and waits until all of
// them are registered.
func connectClients(t *testing.T, srv *Server, baseURL string, n int) []*testClient {
	t.Helper()
	clients := make([]*testClient, n)
	for i := range clients {
		before := srv.Relay().Registry().Len()
		clients[i] = connectClient(t, baseURL)
		waitForClients(t, srv, before+1)
	}
	return clients
}

func waitForClients(t *testing.T, srv *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return srv.Relay().Registry().Len() == n },
		2*time.Second, 5*time.Millisecond, "expected %d registered clients", n)
}

func (c *testClient) send(t *testing.T, text string) {
	t.Helper()
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte(text)))
}

func (c *testClient) expect(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-c.messages:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

func (c *testClient) expectNothing(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-c.messages:
		t.Fatalf("unexpected message %q", msg)
	case <-time.After(d):
	}
}

// closeGracefully sends a close frame and waits for the server to end the
// connection.
func (c *testClient) closeGracefully(t *testing.T) {
	t.Helper()
	err := c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	require.NoError(t, err)
	c.waitClosed(t)
}

func (c *testClient) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed")
	}
}
