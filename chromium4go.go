// Package chromium4go locates, downloads and launches Chromium builds and
// hands back a remote-controllable session.
//
// A typical caller resolves the latest trunk build and drives it:
//
//	c, err := chromium4go.New(chromium4go.Config{})
//	if err != nil {
//		return err
//	}
//	s, err := c.CreateSession(ctx, chromium4go.LatestTrunk, chromium4go.SessionOptions{
//		Launch: chromium4go.HeadlessOptions(true, 0, 0),
//	})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//	err = chromedp.Run(s.Context(), chromedp.Navigate("https://example.com"))
package chromium4go

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/grantcarthew/chromium4go/internal/archive"
	"github.com/grantcarthew/chromium4go/internal/browser"
	"github.com/grantcarthew/chromium4go/internal/config"
	"github.com/grantcarthew/chromium4go/internal/distribution"
	"github.com/grantcarthew/chromium4go/internal/download"
	"github.com/grantcarthew/chromium4go/internal/extension"
	"github.com/grantcarthew/chromium4go/internal/install"
	"github.com/grantcarthew/chromium4go/internal/logging"
	"github.com/grantcarthew/chromium4go/internal/platform"
	"github.com/grantcarthew/chromium4go/internal/session"
)

type (
	Distribution  = distribution.Distribution
	Platform      = platform.Platform
	LaunchOptions = browser.LaunchOptions
	Extension     = extension.Extension
	Session       = session.Session
	Factory       = session.Factory
	Version       = session.Version
	StatusFunc    = install.StatusFunc
	ProgressFunc  = download.ProgressFunc

	ResolutionError       = install.ResolutionError
	DownloadError         = download.Error
	ExtractionError       = archive.Error
	ChecksumMismatchError = extension.ChecksumMismatchError
)

// Platforms.
const (
	Unsupported = platform.Unsupported
	WindowsX86  = platform.WindowsX86
	WindowsX64  = platform.WindowsX64
	LinuxX86    = platform.LinuxX86
	LinuxX64    = platform.LinuxX64
)

var (
	// LatestTrunk is the most recent Chromium snapshot build.
	LatestTrunk = distribution.LatestTrunk

	// UBlockOriginLite is the lite version of uBlock Origin.
	UBlockOriginLite = extension.UBlockOriginLite
)

var (
	ErrUnsupportedPlatform       = distribution.ErrUnsupportedPlatform
	ErrUnimplementedDistribution = distribution.ErrUnimplementedDistribution
	ErrUnknownDistribution       = distribution.ErrUnknownDistribution
	ErrNoExecutableMapping       = install.ErrNoExecutableMapping
	ErrSessionTerminated         = session.ErrSessionTerminated

	// ErrExecutableNotFound is returned by CreateSession when installation
	// succeeded but no executable was found in it.
	ErrExecutableNotFound = errors.New("executable not found in installation")
)

// AppOptions opens url in app mode without the automation warning.
func AppOptions(url string) LaunchOptions { return browser.AppOptions(url) }

// HeadlessOptions returns headless launch options. Non-positive dimensions
// default to 1920x1080.
func HeadlessOptions(disableGPU bool, width, height int) LaunchOptions {
	return browser.HeadlessOptions(disableGPU, width, height)
}

// CustomExtension describes an extension hosted at downloadURL. sha256 may
// be empty to skip verification.
func CustomExtension(id, name, description, downloadURL, sha256 string) Extension {
	return extension.Custom(id, name, description, downloadURL, sha256)
}

// CommonExtensions returns the built-in extensions.
func CommonExtensions() []Extension { return extension.Common() }

// LookupExtension returns the built-in extension with the given ID.
func LookupExtension(id string) (Extension, bool) { return extension.Lookup(id) }

// SystemChrome returns the path of an installed Chrome or Chromium, honouring
// the CHROMIUM4GO_CHROME environment variable.
func SystemChrome() (string, error) { return browser.FindChrome() }

// Distributions returns every known distribution.
func Distributions() []Distribution { return distribution.All() }

// LookupDistribution returns the distribution with the given ID.
func LookupDistribution(id string) (Distribution, error) { return distribution.Lookup(id) }

// DetectPlatform returns the host platform.
func DetectPlatform() Platform { return platform.Detect() }

// Config configures a Client. The zero value uses the host platform, the
// default downloads directory and a real browser factory.
type Config struct {
	// DownloadsDir defaults to <home>/chromium4go-downloads.
	DownloadsDir string

	// Platform overrides detection, e.g. "linux_x64".
	Platform string

	// Properties override every other configuration source.
	Properties map[string]string

	// DotEnvPath and ConfigPath locate the optional .env and YAML files.
	DotEnvPath string
	ConfigPath string

	// Factory defaults to a chromedp-driven browser.
	Factory Factory

	// DisableExitHook stops the default factory from closing sessions on
	// SIGINT or SIGTERM. Set it when the caller handles signals itself.
	DisableExitHook bool

	Logger *zap.Logger
}

// Client resolves distributions and starts sessions.
type Client struct {
	resolver *install.Resolver
	factory  Factory
}

// New returns a Client for cfg.
func New(cfg Config) (*Client, error) {
	log := logging.OrNop(cfg.Logger)

	props, err := config.Load(config.LoadOptions{
		Overrides:  cfg.Properties,
		DotEnvPath: cfg.DotEnvPath,
		ConfigPath: cfg.ConfigPath,
	})
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	dir := cfg.DownloadsDir
	if dir == "" {
		if dir, err = config.DownloadsDir(); err != nil {
			return nil, err
		}
	}

	r := install.New(dir, props, log)
	if cfg.Platform != "" {
		if r.Platform, err = platform.Parse(cfg.Platform); err != nil {
			return nil, err
		}
	}

	factory := cfg.Factory
	if factory == nil {
		factory = &session.ChromeFactory{
			Extensions: &extension.Installer{
				Downloader: r.Downloader,
				Properties: props,
				Logger:     log,
			},
			Logger:          log,
			DisableExitHook: cfg.DisableExitHook,
		}
	}

	return &Client{resolver: r, factory: factory}, nil
}

// Platform returns the platform installations are resolved for.
func (c *Client) Platform() Platform { return c.resolver.Platform }

// DownloadsDir returns the parent of all installation directories.
func (c *Client) DownloadsDir() string { return c.resolver.DownloadsDir }

// InstallDir returns the installation directory of dist.
func (c *Client) InstallDir(dist Distribution) string { return c.resolver.InstallDir(dist) }

// ExecutablePath returns the installed executable of dist, if present.
func (c *Client) ExecutablePath(dist Distribution) (string, bool) {
	return c.resolver.Find(dist, c.resolver.Platform)
}

// IsInstallationPresent reports whether dist is installed for the client's
// platform.
func (c *Client) IsInstallationPresent(dist Distribution) bool {
	return c.resolver.IsPresent(dist, c.resolver.Platform)
}

// IsInstallationPresentFor reports whether dist is installed for p.
func (c *Client) IsInstallationPresentFor(dist Distribution, p Platform) bool {
	return c.resolver.IsPresent(dist, p)
}

// ResolveOptions controls installation.
type ResolveOptions struct {
	Overwrite   bool
	KeepArchive bool
	Status      StatusFunc
	Progress    ProgressFunc
}

// Resolve returns the executable of dist, installing it when missing or
// when Overwrite is set. An empty path with a nil error means the
// installation holds no executable.
func (c *Client) Resolve(ctx context.Context, dist Distribution, opts ResolveOptions) (string, error) {
	return c.resolver.Resolve(ctx, dist, install.Options(opts))
}

// Uninstall deletes the installation directory of dist and reports whether
// anything was removed.
func (c *Client) Uninstall(ctx context.Context, dist Distribution) (bool, error) {
	return c.resolver.Remove(ctx, dist)
}

// SessionOptions controls CreateSession and Launch.
type SessionOptions struct {
	Launch              LaunchOptions
	Extensions          []Extension
	ReinstallExtensions bool

	// Installation settings, ignored by Launch.
	Overwrite   bool
	KeepArchive bool
	Status      StatusFunc
	Progress    ProgressFunc
}

// CreateSession resolves dist and launches it.
func (c *Client) CreateSession(ctx context.Context, dist Distribution, opts SessionOptions) (*Session, error) {
	path, err := c.Resolve(ctx, dist, ResolveOptions{
		Overwrite:   opts.Overwrite,
		KeepArchive: opts.KeepArchive,
		Status:      opts.Status,
		Progress:    opts.Progress,
	})
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("%w: %s", ErrExecutableNotFound, c.InstallDir(dist))
	}
	return c.Launch(ctx, path, opts)
}

// Launch starts the browser at executable without resolving anything.
func (c *Client) Launch(ctx context.Context, executable string, opts SessionOptions) (*Session, error) {
	return c.factory.Launch(ctx, session.Request{
		Executable:          executable,
		Options:             opts.Launch,
		Extensions:          opts.Extensions,
		ReinstallExtensions: opts.ReinstallExtensions,
	})
}
