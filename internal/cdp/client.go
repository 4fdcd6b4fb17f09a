package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/grantcarthew/chromium4go/internal/logging"
)

// ErrClosed is returned for commands on a closed client.
var ErrClosed = errors.New("cdp client closed")

// Client sends commands over a single DevTools connection.
type Client struct {
	conn    Conn
	log     *zap.Logger
	writeMu sync.Mutex
	msgID   atomic.Int64

	// pending maps command IDs to response channels
	pending sync.Map // map[int64]chan *response

	closed   atomic.Bool
	closedCh chan struct{}
	closeErr error
	closeMu  sync.Mutex

	// done is closed when the read loop exits
	done chan struct{}
}

// NewClient starts reading from conn.
func NewClient(conn Conn, logger *zap.Logger) *Client {
	c := &Client{
		conn:     conn,
		log:      logging.OrNop(logger),
		closedCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Dial connects to a DevTools WebSocket URL.
func Dial(ctx context.Context, wsURL string, logger *zap.Logger) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", wsURL, err)
	}
	// Browser domain replies can exceed the 32KiB default.
	conn.SetReadLimit(1 << 20)
	return NewClient(conn, logger), nil
}

// Send issues method and returns the raw result.
func (c *Client) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	id := c.msgID.Add(1)
	data, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", method, err)
	}

	respCh := make(chan *response, 1)
	c.pending.Store(id, respCh)
	defer c.pending.Delete(id)

	c.writeMu.Lock()
	err = c.conn.Write(ctx, websocket.MessageText, data)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, fmt.Errorf("%s: %w", method, resp.Error)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", method, ctx.Err())
	case <-c.closedCh:
		return nil, fmt.Errorf("%s: %w", method, ErrClosed)
	}
}

// Call issues method and decodes the result into result when non-nil.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	raw, err := c.Send(ctx, method, params)
	if err != nil {
		return err
	}
	if result == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection and waits for the read loop.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.closedCh)

	err := c.conn.Close(websocket.StatusNormalClosure, "client closing")
	<-c.done
	return err
}

// Err returns the read error that closed the client, if any.
func (c *Client) Err() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeErr
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			if !c.closed.Swap(true) {
				c.closeMu.Lock()
				c.closeErr = err
				c.closeMu.Unlock()
				close(c.closedCh)
			}
			return
		}

		resp, event, err := parseMessage(data)
		switch {
		case err != nil:
			c.log.Debug("skipping malformed CDP message", zap.Error(err))
		case resp != nil:
			if ch, ok := c.pending.Load(resp.ID); ok {
				select {
				case ch.(chan *response) <- resp:
				default:
				}
			}
		default:
			c.log.Debug("ignoring CDP event", zap.String("method", event))
		}
	}
}
