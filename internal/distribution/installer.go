package distribution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/grantcarthew/chromium4go/internal/archive"
	"github.com/grantcarthew/chromium4go/internal/config"
	"github.com/grantcarthew/chromium4go/internal/download"
	"github.com/grantcarthew/chromium4go/internal/logging"
	"github.com/grantcarthew/chromium4go/internal/platform"
)

var (
	// ErrUnsupportedPlatform is returned when no download exists for the
	// requested platform.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrUnimplementedDistribution is returned for kinds without a strategy.
	ErrUnimplementedDistribution = errors.New("missing distribution implementation")
)

// InstallRequest describes a single installation.
type InstallRequest struct {
	Distribution Distribution
	Platform     platform.Platform

	// DownloadsDir is the parent of the installation directory.
	DownloadsDir string

	// KeepArchive leaves the downloaded ZIP next to the extracted files.
	KeepArchive bool

	Properties config.Properties
	Progress   download.ProgressFunc
}

// InstallDir returns <DownloadsDir>/<distribution id>.
func (r InstallRequest) InstallDir() string {
	return filepath.Join(r.DownloadsDir, r.Distribution.ID)
}

// Installer downloads and unpacks a distribution.
type Installer interface {
	// Install populates the installation directory and returns it.
	Install(ctx context.Context, req InstallRequest) (string, error)
}

// Deps are the collaborators shared by install strategies.
type Deps struct {
	Downloader *download.Downloader
	Logger     *zap.Logger

	// Now defaults to time.Now and names the transient archive.
	Now func() time.Time
}

// NewInstaller returns the strategy for kind.
func NewInstaller(kind Kind, deps Deps) (Installer, error) {
	if deps.Downloader == nil {
		deps.Downloader = download.New(deps.Logger)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Logger = logging.OrNop(deps.Logger)

	switch kind {
	case KindLatestTrunk:
		return &latestTrunkInstaller{deps: deps}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnimplementedDistribution, kind)
	}
}

// Property keys overriding the latest trunk download URLs.
const (
	PropertyLatestTrunkWindowsX86 = "chromium4go.download-url.latest-trunk.windows_x86"
	PropertyLatestTrunkWindowsX64 = "chromium4go.download-url.latest-trunk.windows_x64"
	PropertyLatestTrunkLinuxX86   = "chromium4go.download-url.latest-trunk.linux_x86"
	PropertyLatestTrunkLinuxX64   = "chromium4go.download-url.latest-trunk.linux_x64"
)

// Default latest trunk download URLs.
const (
	DefaultLatestTrunkWindowsX86 = "https://download-chromium.appspot.com/dl/Win"
	DefaultLatestTrunkWindowsX64 = "https://download-chromium.appspot.com/dl/Win_x64"
	DefaultLatestTrunkLinuxX86   = "https://download-chromium.appspot.com/dl/Linux"
	DefaultLatestTrunkLinuxX64   = "https://download-chromium.appspot.com/dl/Linux_x64"
)

const (
	trunkArchivePrefix = "chromium-trunk"
	trunkArchiveSuffix = ".zip"
)

// LatestTrunkURL returns the download URL for p, honouring property
// overrides. It returns false for Unsupported.
func LatestTrunkURL(p platform.Platform, props config.Properties) (string, bool) {
	switch p {
	case platform.WindowsX86:
		return props.GetOr(PropertyLatestTrunkWindowsX86, DefaultLatestTrunkWindowsX86), true
	case platform.WindowsX64:
		return props.GetOr(PropertyLatestTrunkWindowsX64, DefaultLatestTrunkWindowsX64), true
	case platform.LinuxX86:
		return props.GetOr(PropertyLatestTrunkLinuxX86, DefaultLatestTrunkLinuxX86), true
	case platform.LinuxX64:
		return props.GetOr(PropertyLatestTrunkLinuxX64, DefaultLatestTrunkLinuxX64), true
	default:
		return "", false
	}
}

type latestTrunkInstaller struct {
	deps Deps
}

func (i *latestTrunkInstaller) Install(ctx context.Context, req InstallRequest) (string, error) {
	log := i.deps.Logger.With(
		zap.String("distribution", req.Distribution.ID),
		zap.Stringer("platform", req.Platform),
	)

	url, ok := LatestTrunkURL(req.Platform, req.Properties)
	if !ok {
		info := platform.HostInfo()
		log.Error("unsupported OS", zap.Stringer("host", info))
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPlatform, info)
	}

	installDir := req.InstallDir()
	log.Info("downloading chromium",
		zap.String("dir", installDir),
		zap.Bool("keepArchive", req.KeepArchive),
	)

	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return "", fmt.Errorf("create installation directory: %w", err)
	}

	zipName := fmt.Sprintf("%s%d%s", trunkArchivePrefix, i.deps.Now().UnixMilli(), trunkArchiveSuffix)
	zipPath := filepath.Join(installDir, zipName)

	start := time.Now()
	if err := i.deps.Downloader.Download(ctx, url, zipPath, req.Progress); err != nil {
		i.removeArchive(log, zipPath)
		return "", err
	}
	log.Info("downloaded file", zap.Duration("elapsed", time.Since(start)))

	start = time.Now()
	if err := archive.Extract(zipPath, installDir); err != nil {
		return "", err
	}
	log.Info("extracted ZIP file", zap.String("dir", installDir), zap.Duration("elapsed", time.Since(start)))

	if !req.KeepArchive {
		i.removeArchive(log, zipPath)
	}

	return installDir, nil
}

func (i *latestTrunkInstaller) removeArchive(log *zap.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("unable to delete downloaded file", zap.String("file", path), zap.Error(err))
		return
	}
	log.Debug("deleted downloaded file", zap.String("file", path))
}
