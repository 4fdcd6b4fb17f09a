package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grantcarthew/chromium4go/internal/browser"
	"github.com/grantcarthew/chromium4go/internal/cdp"
	"github.com/grantcarthew/chromium4go/internal/extension"
	"github.com/grantcarthew/chromium4go/internal/logging"
)

// shutdownTimeout bounds the graceful Browser.close request.
const shutdownTimeout = 5 * time.Second

// ChromeFactory spawns a real browser and drives it with chromedp.
type ChromeFactory struct {
	Extensions *extension.Installer
	Logger     *zap.Logger

	// DisableExitHook skips the SIGINT/SIGTERM handler that closes the
	// session before the process exits.
	DisableExitHook bool
}

// Launch implements Factory.
func (f *ChromeFactory) Launch(ctx context.Context, req Request) (*Session, error) {
	id := uuid.NewString()
	log := logging.OrNop(f.Logger).With(zap.String("session", id))

	executable, exts := req.Executable, req.Extensions
	opts := req.Options.WithBinary(executable)

	if len(exts) > 0 {
		installer := extension.Installer{Logger: f.Logger}
		if f.Extensions != nil {
			installer = *f.Extensions
		}
		installer.Reinstall = installer.Reinstall || req.ReinstallExtensions

		resolved, err := installer.Ensure(ctx, executable, exts)
		if err != nil {
			return nil, fmt.Errorf("obtain extensions: %w", err)
		}
		for _, r := range resolved {
			opts = opts.WithExtensions(r.Dir)
		}
	}

	log.Info("starting browser", zap.String("binary", executable), zap.Strings("flags", opts.Flags()))
	b, err := browser.StartWithBinary(ctx, executable, opts)
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	opts = opts.WithPort(b.Port())

	s, err := f.attach(ctx, id, b, opts, exts, log)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	if !f.DisableExitHook {
		unregister := registerExitHook(func() {
			if err := s.Close(); err != nil {
				log.Warn("unable to quit browser", zap.Error(err))
			}
		})
		go func() {
			select {
			case <-s.Done():
			case <-b.Exited():
			}
			unregister()
		}()
	}

	log.Info("session started", zap.Int("pid", b.PID()), zap.Int("port", b.Port()))
	return s, nil
}

// attach connects the DevTools channel and the chromedp driver to b.
func (f *ChromeFactory) attach(ctx context.Context, id string, b *browser.Browser, opts browser.LaunchOptions, exts []extension.Extension, log *zap.Logger) (*Session, error) {
	version, err := b.Version(ctx)
	if err != nil {
		return nil, err
	}
	page, err := b.PageTarget(ctx)
	if err != nil {
		return nil, err
	}

	devtools, err := cdp.Dial(ctx, version.WebSocketURL, f.Logger)
	if err != nil {
		return nil, err
	}

	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(context.Background(), version.WebSocketURL)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithTargetID(target.ID(page.ID)),
		chromedp.WithLogf(log.Sugar().Debugf),
		chromedp.WithErrorf(log.Sugar().Errorf),
	)

	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		_ = devtools.Close()
		return nil, fmt.Errorf("attach driver: %w", err)
	}

	shutdown := func() error {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := devtools.CloseBrowser(closeCtx); err != nil && !errors.Is(err, cdp.ErrClosed) {
			log.Debug("graceful browser close failed", zap.Error(err))
		}
		cancelTab()
		cancelAlloc()
		if err := devtools.Close(); err != nil {
			log.Debug("close devtools connection", zap.Error(err))
		}
		return b.Close()
	}

	return newSession(parts{
		id:         id,
		extensions: exts,
		options:    opts,
		driverCtx:  tabCtx,
		page:       chromedpPage{tab: tabCtx},
		devtools:   devtools,
		exited:     b.Exited(),
		shutdown:   shutdown,
		logger:     f.Logger,
	}), nil
}
