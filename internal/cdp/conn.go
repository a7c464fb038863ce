// Package cdp implements the Chrome DevTools Protocol transport used by
// htmlshot: one client owns the browser-level WebSocket and multiplexes
// top-level commands, target-wrapped commands, and session events over it.
package cdp

import (
	"context"

	"github.com/coder/websocket"
)

// Conn is the minimal WebSocket surface the client needs. Tests substitute
// scripted implementations for a live socket.
type Conn interface {
	// Read blocks until the next inbound frame arrives.
	Read(ctx context.Context) (websocket.MessageType, []byte, error)

	// Write sends one frame.
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error

	// Close shuts the socket down with the given status.
	Close(code websocket.StatusCode, reason string) error
}
