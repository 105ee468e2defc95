// Package server implements the HTTP and WebSocket surface of gorelay.
//
// The implementation is organized into specialized files for configuration,
// logging, origin checks, the WebSocket stream adapter, routing, and HTTP
// handlers. The broadcast logic itself lives in the relay package.
package server
