package cdp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// request is a CDP command.
type request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// response is the reply to a command.
type response struct {
	ID     int64
	Result json.RawMessage
	Error  *Error
}

// Error is a protocol-level error returned by the browser.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("cdp error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

var errUnknownMessage = errors.New("unknown CDP message")

type message struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// parseMessage decodes a frame. Events yield (nil, method, nil).
func parseMessage(data []byte) (*response, string, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, "", fmt.Errorf("parse CDP message: %w", err)
	}

	switch {
	case msg.ID != 0:
		return &response{ID: msg.ID, Result: msg.Result, Error: msg.Error}, "", nil
	case msg.Method != "":
		return nil, msg.Method, nil
	default:
		return nil, "", fmt.Errorf("%w: %s", errUnknownMessage, data)
	}
}
