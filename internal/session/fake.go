package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// FakeFactory returns sessions without starting a browser.
type FakeFactory struct {
	// Page and DevTools are attached to every session when set.
	Page     Page
	DevTools DevTools

	// Exited, when set, stands in for the browser process exit of every
	// session.
	Exited <-chan struct{}

	// Err, when set, is returned by Launch.
	Err error

	mu       sync.Mutex
	launches []Request
}

// Launch implements Factory.
func (f *FakeFactory) Launch(ctx context.Context, req Request) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req.Options = req.Options.WithBinary(req.Executable)

	f.mu.Lock()
	f.launches = append(f.launches, req)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}

	return newSession(parts{
		id:         uuid.NewString(),
		extensions: req.Extensions,
		options:    req.Options,
		page:       f.Page,
		devtools:   f.DevTools,
		exited:     f.Exited,
	}), nil
}

// Launches returns the recorded requests.
func (f *FakeFactory) Launches() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.launches...)
}
