package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayScenario(t *testing.T) {
	srv, baseURL := startTestServer(t, nil)
	clients := connectClients(t, srv, baseURL, 3)
	a, b, c := clients[0], clients[1], clients[2]

	a.send(t, "hello")
	assert.Equal(t, "hello", b.expect(t))
	assert.Equal(t, "hello", c.expect(t))

	b.closeGracefully(t)
	waitForClients(t, srv, 2)

	c.send(t, "ping")
	// A's first message being "ping" also shows it never got its own "hello".
	assert.Equal(t, "ping", a.expect(t))
	a.expectNothing(t, 100*time.Millisecond)
	c.expectNothing(t, 50*time.Millisecond)
}

func TestRelayPreservesOrderPerSender(t *testing.T) {
	srv, baseURL := startTestServer(t, nil)
	clients := connectClients(t, srv, baseURL, 2)

	const n = 100
	for i := 0; i < n; i++ {
		clients[0].send(t, fmt.Sprintf("%03d", i))
	}
	for i := 0; i < n; i++ {
		require.Equal(t, fmt.Sprintf("%03d", i), clients[1].expect(t))
	}
}

func TestRelayKeepsBinaryFrames(t *testing.T) {
	srv, baseURL := startTestServer(t, nil)
	sender := connectClient(t, baseURL)
	waitForClients(t, srv, 1)

	conn, _, err := dial(t, baseURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	waitForClients(t, srv, 2)

	require.NoError(t, sender.conn.WriteMessage(websocket.BinaryMessage, []byte{0, 1, 2}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, messageType)
	assert.Equal(t, []byte{0, 1, 2}, data)
}

func TestAbruptDisconnectDeregisters(t *testing.T) {
	srv, baseURL := startTestServer(t, nil)
	clients := connectClients(t, srv, baseURL, 2)

	require.NoError(t, clients[0].conn.Close())
	waitForClients(t, srv, 1)

	// Nothing breaks when the survivor keeps talking to an empty room.
	clients[1].send(t, "anyone?")
	clients[1].expectNothing(t, 50*time.Millisecond)
}

func TestNonUpgradeRequestIsNotFound(t *testing.T) {
	srv, baseURL := startTestServer(t, nil)

	for _, path := range []string{"/", "/ws", "/chat/room"} {
		resp, err := http.Get(baseURL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
	assert.Zero(t, srv.Relay().Registry().Len())
}

func TestMalformedHandshakeIsRejected(t *testing.T) {
	srv, baseURL := startTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, baseURL+"/", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	// No Sec-WebSocket-Key or version.

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, srv.Relay().Registry().Len())

	// The listener is unaffected.
	connectClients(t, srv, baseURL, 1)
}

func TestDisallowedOriginIsRejected(t *testing.T) {
	srv, baseURL := startTestServer(t, func(cfg *Config) {
		cfg.AllowedOrigins = []string{"http://allowed.example"}
	})

	_, resp, err := dial(t, baseURL, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial(t, baseURL, http.Header{"Origin": {"http://ALLOWED.example"}})
	require.NoError(t, err)
	defer conn.Close()
	waitForClients(t, srv, 1)
}

func TestOversizedMessageEndsOnlyThatSession(t *testing.T) {
	srv, baseURL := startTestServer(t, func(cfg *Config) {
		cfg.MaxMessageSize = 16
	})
	clients := connectClients(t, srv, baseURL, 2)

	clients[0].send(t, strings.Repeat("x", 64))
	clients[0].waitClosed(t)
	waitForClients(t, srv, 1)
	clients[1].expectNothing(t, 50*time.Millisecond)
}

func TestRateLimitedSenderIsThrottled(t *testing.T) {
	srv, baseURL := startTestServer(t, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{Burst: 1, RefillInterval: time.Hour}
	})
	clients := connectClients(t, srv, baseURL, 2)

	clients[0].send(t, "first")
	clients[0].send(t, "second")
	assert.Equal(t, "first", clients[1].expect(t))
	clients[1].expectNothing(t, 100*time.Millisecond)
}

func TestShutdownClosesClients(t *testing.T) {
	srv, baseURL := startTestServer(t, nil)
	clients := connectClients(t, srv, baseURL, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	for _, c := range clients {
		c.waitClosed(t)
	}
	assert.Zero(t, srv.Relay().Registry().Len())
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	srv, baseURL := startTestServer(t, nil)
	connectClients(t, srv, baseURL, 2)

	body := get(t, baseURL+"/healthz")
	assert.Equal(t, "gorelay is running (2 clients connected)", body)

	metrics := get(t, baseURL+"/metrics")
	assert.Contains(t, metrics, "gorelay_active_connections 2")
	assert.Contains(t, metrics, "gorelay_connections_total 2")

	page := get(t, baseURL+"/test")
	assert.Contains(t, page, "new WebSocket")
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestListenFailsOnBusyPort(t *testing.T) {
	srv, baseURL := startTestServer(t, nil)

	cfg := NewConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = strings.TrimPrefix(baseURL, "http://127.0.0.1:")

	_, err := New(cfg, srv.logger).Listen()
	assert.Error(t, err)
}
