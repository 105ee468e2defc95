// Package server adapts gorilla WebSocket connections to the relay stream
// interface, mapping frame types and classifying expected close errors.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gorelay/internal/relay"
)

// wsStream is a relay.Stream over a gorilla WebSocket connection. The
// relay session calls Receive from one goroutine and Send from another,
// which matches gorilla's one-reader, one-writer rule.
type wsStream struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func newWSStream(conn *websocket.Conn, maxMessageSize int64, writeTimeout time.Duration) *wsStream {
	conn.SetReadLimit(maxMessageSize)
	return &wsStream{conn: conn, writeTimeout: writeTimeout}
}

// Receive reads the next data frame. A close frame from the peer is
// returned as a relay close message; pings and pongs are answered by
// gorilla and never surface here.
func (s *wsStream) Receive(ctx context.Context) (relay.Message, error) {
	// Unblock the read if ctx ends first.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	messageType, data, err := s.conn.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return relay.CloseMessage(), nil
		}
		if ctx.Err() != nil {
			return relay.Message{}, ctx.Err()
		}
		return relay.Message{}, classifyStreamError(err)
	}

	switch messageType {
	case websocket.BinaryMessage:
		return relay.Message{Kind: relay.Binary, Payload: data}, nil
	default:
		return relay.Message{Kind: relay.Text, Payload: data}, nil
	}
}

// Send writes msg as a single frame within the write timeout.
func (s *wsStream) Send(_ context.Context, msg relay.Message) error {
	deadline := time.Now().Add(s.writeTimeout)
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return classifyStreamError(err)
	}

	var err error
	switch msg.Kind {
	case relay.Close:
		err = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	case relay.Binary:
		err = s.conn.WriteMessage(websocket.BinaryMessage, msg.Payload)
	default:
		err = s.conn.WriteMessage(websocket.TextMessage, msg.Payload)
	}
	if err != nil {
		return classifyStreamError(err)
	}
	return nil
}

// Close closes the underlying network connection.
func (s *wsStream) Close() error {
	if err := s.conn.Close(); err != nil {
		return classifyStreamError(err)
	}
	return nil
}

// classifyStreamError wraps errors caused by an ordinary disconnect with
// relay.ErrStreamClosed.
func classifyStreamError(err error) error {
	if isExpectedCloseError(err) {
		return fmt.Errorf("%w: %w", relay.ErrStreamClosed, err)
	}
	return err
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
