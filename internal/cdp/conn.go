// Package cdp is a small browser-level Chrome DevTools Protocol channel used
// next to the page automation driver.
package cdp

import (
	"context"

	"github.com/coder/websocket"
)

// Conn is the WebSocket surface the client needs. Tests supply mocks.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}
