package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// Browser represents a running Chrome instance with CDP enabled.
type Browser struct {
	cmd        *exec.Cmd
	port       int
	profileDir string
	tempDir    string // profile directory created by spawnProcess
	exited     chan struct{}
	waitErr    error
}

// ErrNoPageTarget is returned when no page target is available.
var ErrNoPageTarget = errors.New("no page target found")

// ErrStartTimeout is returned when the browser fails to start in time.
var ErrStartTimeout = errors.New("browser start timeout")

// ErrExited is returned when the browser process exits during startup.
var ErrExited = errors.New("browser exited during startup")

// ErrPortInUse is returned when the requested CDP port already has a
// listener, which would otherwise be mistaken for the new browser.
var ErrPortInUse = errors.New("debugging port already in use")

// StartTimeout bounds the wait for the CDP endpoint.
const StartTimeout = 30 * time.Second

// closeGrace is how long Close waits after the interrupt before killing.
const closeGrace = 5 * time.Second

// Start launches the browser named by opts.Binary, falling back to the
// system Chrome when unset. It waits for the CDP endpoint before returning.
func Start(ctx context.Context, opts LaunchOptions) (*Browser, error) {
	if opts.Binary() == "" {
		binPath, err := FindChrome()
		if err != nil {
			return nil, err
		}
		opts = opts.WithBinary(binPath)
	}

	return StartWithBinary(ctx, opts.Binary(), opts)
}

// StartWithBinary launches Chrome using binPath. The binary in opts is
// always replaced by binPath.
func StartWithBinary(ctx context.Context, binPath string, opts LaunchOptions) (*Browser, error) {
	opts = opts.WithBinary(binPath)

	port := opts.debugPort()
	if port != 0 {
		if err := checkPortFree(port); err != nil {
			return nil, err
		}
	}

	sp, err := spawnProcess(opts)
	if err != nil {
		return nil, err
	}

	b := &Browser{
		cmd:        sp.cmd,
		port:       port,
		profileDir: sp.profileDir,
		tempDir:    sp.tempDir,
		exited:     make(chan struct{}),
	}
	go func() {
		b.waitErr = sp.cmd.Wait()
		close(b.exited)
	}()

	ctx, cancel := context.WithTimeout(ctx, StartTimeout)
	defer cancel()

	if err := b.waitForCDP(ctx); err != nil {
		b.Close()
		return nil, err
	}

	return b, nil
}

// checkPortFree fails when something already listens on port.
func checkPortFree(port int) error {
	l, err := net.Listen("tcp", net.JoinHostPort(LocalHost, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("%w: %d", ErrPortInUse, port)
	}
	return l.Close()
}

// waitForCDP polls the CDP endpoint until it responds or context is cancelled.
// With an automatic port it first waits for the browser to record the port
// in its profile.
func (b *Browser) waitForCDP(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ErrStartTimeout
		case <-b.exited:
			return fmt.Errorf("%w: %v", ErrExited, b.waitErr)
		case <-ticker.C:
			if b.port == 0 {
				port, err := readActivePort(b.profileDir)
				if err != nil {
					continue
				}
				b.port = port
			}
			if _, err := FetchVersion(ctx, LocalHost, b.port); err == nil {
				return nil
			}
		}
	}
}

// Port returns the CDP debugging port the browser listens on.
func (b *Browser) Port() int {
	return b.port
}

// PID returns the browser process ID.
func (b *Browser) PID() int {
	if b.cmd == nil || b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

// Exited is closed once the browser process has exited.
func (b *Browser) Exited() <-chan struct{} {
	return b.exited
}

// Targets fetches the list of available CDP targets.
func (b *Browser) Targets(ctx context.Context) ([]Target, error) {
	return FetchTargets(ctx, LocalHost, b.port)
}

// PageTarget returns the first page-type target.
func (b *Browser) PageTarget(ctx context.Context) (*Target, error) {
	targets, err := b.Targets(ctx)
	if err != nil {
		return nil, err
	}

	target := FindPageTarget(targets)
	if target == nil {
		return nil, ErrNoPageTarget
	}

	return target, nil
}

// Version fetches the browser version information, including the
// browser-level WebSocket URL.
func (b *Browser) Version(ctx context.Context) (*VersionInfo, error) {
	return FetchVersion(ctx, LocalHost, b.port)
}

// Close terminates the browser process and removes a temporary profile.
// It is safe to call more than once.
func (b *Browser) Close() error {
	if b.cmd == nil || b.cmd.Process == nil {
		return nil
	}

	select {
	case <-b.exited:
	default:
		if err := b.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
			_ = b.cmd.Process.Kill()
		}
		select {
		case <-b.exited:
		case <-time.After(closeGrace):
			_ = b.cmd.Process.Kill()
			<-b.exited
		}
	}

	if b.tempDir != "" {
		os.RemoveAll(b.tempDir)
	}

	b.cmd = nil
	return nil
}
