// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/Tyrowin/gorelay/internal/relay"
)

// RelayHandler upgrades WebSocket requests and hands the connection to the
// relay. Anything that is not an upgrade request gets a 404 and never
// touches the registry.
type RelayHandler struct {
	relay    *relay.Relay
	upgrader websocket.Upgrader
	cfg      *Config
	logger   *zap.Logger
}

// NewRelayHandler creates the upgrade handler for r.
func NewRelayHandler(r *relay.Relay, cfg *Config, logger *zap.Logger) *RelayHandler {
	origins := newOriginPolicy(cfg.AllowedOrigins, logger)
	return &RelayHandler{
		relay: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		cfg:    cfg,
		logger: logger,
	}
}

func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.NotFound(w, r)
		return
	}

	// On failure the upgrader has already written an error response.
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket handshake failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		return
	}

	stream := newWSStream(conn, h.cfg.MaxMessageSize, h.cfg.WriteTimeout)

	// The request goroutine doubles as the session's inbound loop.
	if err := h.relay.Serve(r.Context(), stream); err != nil {
		h.logger.Debug("connection refused", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
	}
}

// HealthHandler reports that the server is up and how many clients are
// registered.
func HealthHandler(r *relay.Relay) httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintf(w, "gorelay is running (%d clients connected)", r.Registry().Len())
	}
}

// TestPageHandler serves an HTML page for trying the relay from a browser.
func TestPageHandler(logger *zap.Logger) httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := fmt.Fprint(w, testPageHTML); err != nil {
			logger.Debug("error writing test page", zap.Error(err))
		}
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>gorelay test</title>
    <style>
        body { font-family: sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; }
        .sent { color: blue; }
        .received { color: green; }
        .info { color: gray; font-style: italic; }
    </style>
</head>
<body>
    <h1>gorelay test</h1>
    <div id="status">Disconnected</div>
    <input type="text" id="input" placeholder="Type a message..." disabled>
    <button id="send" disabled>Send</button>
    <button id="connect">Connect</button>
    <div id="messages"></div>
    <script>
        let ws = null;
        const messages = document.getElementById('messages');
        const input = document.getElementById('input');
        const send = document.getElementById('send');
        const connect = document.getElementById('connect');
        const status = document.getElementById('status');

        function add(text, cls) {
            const el = document.createElement('div');
            el.className = cls;
            el.textContent = text;
            messages.appendChild(el);
            messages.scrollTop = messages.scrollHeight;
        }

        function setConnected(on) {
            status.textContent = on ? 'Connected' : 'Disconnected';
            input.disabled = !on;
            send.disabled = !on;
            connect.textContent = on ? 'Disconnect' : 'Connect';
        }

        connect.onclick = function() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
                return;
            }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/');
            ws.onopen = function() { add('connected', 'info'); setConnected(true); };
            ws.onmessage = function(e) { add(e.data, 'received'); };
            ws.onclose = function() { add('connection closed', 'info'); setConnected(false); ws = null; };
        };

        function sendMessage() {
            const text = input.value.trim();
            if (text && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(text);
                add(text, 'sent');
                input.value = '';
            }
        }

        send.onclick = sendMessage;
        input.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
