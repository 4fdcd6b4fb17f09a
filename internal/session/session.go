// Package session launches browsers for remote control and wraps the live
// driver handle.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"go.uber.org/zap"

	"github.com/grantcarthew/chromium4go/internal/browser"
	"github.com/grantcarthew/chromium4go/internal/extension"
	"github.com/grantcarthew/chromium4go/internal/logging"
)

var (
	// ErrSessionTerminated is returned for operations on a closed session.
	ErrSessionTerminated = errors.New("session terminated")

	// ErrNoDriver is returned when a session has no page driver attached.
	ErrNoDriver = errors.New("session has no driver")
)

// Request describes a browser to launch.
type Request struct {
	Executable string

	// Options.Binary is always replaced by Executable.
	Options browser.LaunchOptions

	// Extensions are made available before the browser starts. A failure
	// aborts the launch.
	Extensions          []extension.Extension
	ReinstallExtensions bool
}

// Factory starts remote-controllable browser sessions.
type Factory interface {
	Launch(ctx context.Context, req Request) (*Session, error)
}

// Page is the page-level automation surface of a session.
type Page interface {
	Navigate(ctx context.Context, url string) error
	ClearBrowserCache(ctx context.Context) error
	Cookies(ctx context.Context) ([]Cookie, error)
	DeleteCookie(ctx context.Context, c Cookie) error
	Evaluate(ctx context.Context, script string) error
}

// Cookie identifies a browser cookie.
type Cookie struct {
	Name   string
	Domain string
	Path   string
}

// DevTools is the browser-level DevTools surface of a session.
type DevTools interface {
	BrowserVersion(ctx context.Context) (*cdpbrowser.GetVersionReturns, error)
	ClearDataForOrigin(ctx context.Context, origin, storageTypes string) error
}

// Version identifies the running browser build.
type Version struct {
	// ID is the dotted version number, e.g. "140.0.7300.0".
	ID string

	// Full adds the product name and revision.
	Full string
}

// Session is a running browser. It is live until Close is called or the
// browser process exits, and terminated afterwards.
type Session struct {
	id         string
	extensions []extension.Extension
	options    browser.LaunchOptions

	driverCtx context.Context
	page      Page
	devtools  DevTools
	exited    <-chan struct{}
	shutdown  func() error
	log       *zap.Logger

	closeOnce  sync.Once
	closeErr   error
	terminated chan struct{}

	versionMu sync.Mutex
	version   *Version
}

// parts are the collaborators a factory hands to newSession.
type parts struct {
	id         string
	extensions []extension.Extension
	options    browser.LaunchOptions
	driverCtx  context.Context
	page       Page
	devtools   DevTools
	exited     <-chan struct{}
	shutdown   func() error
	logger     *zap.Logger
}

func newSession(p parts) *Session {
	if p.driverCtx == nil {
		p.driverCtx = context.Background()
	}
	s := &Session{
		id:         p.id,
		extensions: slices.Clone(p.extensions),
		options:    p.options,
		driverCtx:  p.driverCtx,
		page:       p.page,
		devtools:   p.devtools,
		exited:     p.exited,
		shutdown:   p.shutdown,
		log:        logging.OrNop(p.logger).With(zap.String("session", p.id)),
		terminated: make(chan struct{}),
	}
	if p.exited != nil {
		go s.watchExit()
	}
	return s
}

// watchExit closes the session once the browser process exits on its own.
func (s *Session) watchExit() {
	select {
	case <-s.exited:
		s.log.Info("browser process exited")
		if err := s.Close(); err != nil {
			s.log.Debug("cleanup after browser exit", zap.Error(err))
		}
	case <-s.terminated:
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Extensions returns the extensions configured for the session.
func (s *Session) Extensions() []extension.Extension { return slices.Clone(s.extensions) }

// Options returns the launch options the browser was started with.
func (s *Session) Options() browser.LaunchOptions { return s.options }

// Context returns the driver context. Pass it to chromedp.Run to drive the
// session's page directly.
func (s *Session) Context() context.Context { return s.driverCtx }

// Done is closed once the session is terminated, either by Close or because
// the browser process exited.
func (s *Session) Done() <-chan struct{} { return s.terminated }

// Live reports whether the session is still running.
func (s *Session) Live() bool {
	select {
	case <-s.terminated:
		return false
	default:
	}
	if s.exited != nil {
		select {
		case <-s.exited:
			return false
		default:
		}
	}
	return true
}

// Navigate loads url in the session's page.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.page.Navigate(ctx, url)
}

// ClearOriginData clears cached and stored data of the origin serving url.
func (s *Session) ClearOriginData(ctx context.Context, url string) error {
	if err := s.check(); err != nil {
		return err
	}
	return ClearOriginData(ctx, s.page, s.devtools, url)
}

// Version returns the browser version. The first successful lookup is
// cached.
func (s *Session) Version(ctx context.Context) (Version, error) {
	s.versionMu.Lock()
	defer s.versionMu.Unlock()

	if s.version != nil {
		return *s.version, nil
	}
	if !s.Live() {
		return Version{}, ErrSessionTerminated
	}
	if s.devtools == nil {
		return Version{}, ErrNoDriver
	}

	info, err := s.devtools.BrowserVersion(ctx)
	if err != nil {
		return Version{}, fmt.Errorf("obtain browser version: %w", err)
	}

	v := parseVersion(info)
	s.version = &v
	return v, nil
}

// parseVersion turns "Chrome/140.0.7300.0" plus revision into a Version.
func parseVersion(info *cdpbrowser.GetVersionReturns) Version {
	id := info.Product
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}

	full := info.Product
	if info.Revision != "" {
		full += " (" + info.Revision + ")"
	}
	return Version{ID: id, Full: full}
}

// Close shuts the browser down. Only the first call does any work; later
// calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.shutdown != nil {
			s.closeErr = s.shutdown()
		}
		close(s.terminated)
		s.log.Info("session terminated")
	})
	return s.closeErr
}

func (s *Session) check() error {
	if !s.Live() {
		return ErrSessionTerminated
	}
	if s.page == nil {
		return ErrNoDriver
	}
	return nil
}
