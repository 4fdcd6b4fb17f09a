package session

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// exitHooks run once when the process receives SIGINT or SIGTERM.
type exitHooks struct {
	mu     sync.Mutex
	next   uint64
	hooks  map[uint64]func()
	listen sync.Once
}

var processHooks = &exitHooks{}

// add registers fn and returns a function removing it again.
func (h *exitHooks) add(fn func()) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.hooks == nil {
		h.hooks = map[uint64]func(){}
	}
	id := h.next
	h.next++
	h.hooks[id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.hooks, id)
	}
}

// run calls and removes every registered hook.
func (h *exitHooks) run() {
	h.mu.Lock()
	fns := make([]func(), 0, len(h.hooks))
	for _, fn := range h.hooks {
		fns = append(fns, fn)
	}
	clear(h.hooks)
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	wg.Wait()
}

// install starts the signal listener once. On a signal the hooks run and
// the process exits with 128+signal.
func (h *exitHooks) install() {
	h.listen.Do(func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		go func() {
			sig := <-sigCh
			h.run()

			code := 1
			if s, ok := sig.(syscall.Signal); ok {
				code = 128 + int(s)
			}
			os.Exit(code)
		}()
	})
}

// registerExitHook arranges for fn to run if the process is interrupted.
func registerExitHook(fn func()) func() {
	processHooks.install()
	return processHooks.add(fn)
}
