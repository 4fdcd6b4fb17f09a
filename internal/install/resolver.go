// Package install resolves a distribution to a local executable, installing
// it first when needed.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/grantcarthew/chromium4go/internal/config"
	"github.com/grantcarthew/chromium4go/internal/distribution"
	"github.com/grantcarthew/chromium4go/internal/download"
	"github.com/grantcarthew/chromium4go/internal/locate"
	"github.com/grantcarthew/chromium4go/internal/logging"
	"github.com/grantcarthew/chromium4go/internal/platform"
)

// ErrNoExecutableMapping is returned when a distribution has no executable
// name for the resolver's platform.
var ErrNoExecutableMapping = errors.New("no executable mapping")

// Stage names the resolution step that failed.
type Stage string

// Resolution stages.
const (
	StagePlatform Stage = "platform"
	StageMapping  Stage = "mapping"
	StageLock     Stage = "lock"
	StageInstall  Stage = "install"
)

// ResolutionError reports a failed resolution.
type ResolutionError struct {
	Distribution string
	Stage        Stage
	Err          error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %s: %v", e.Distribution, e.Stage, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// StatusFunc receives human-readable progress messages.
type StatusFunc func(status string)

// Options controls a single resolution.
type Options struct {
	// Overwrite deletes any existing installation and installs again.
	Overwrite bool

	// KeepArchive leaves the downloaded archive in the installation directory.
	KeepArchive bool

	// Status defaults to logging each message at info level.
	Status StatusFunc

	// Progress defaults to the downloader's MiB logging.
	Progress download.ProgressFunc
}

// Resolver locates and installs distributions below DownloadsDir.
type Resolver struct {
	DownloadsDir string
	Platform     platform.Platform
	Properties   config.Properties
	Downloader   *download.Downloader
	Logger       *zap.Logger

	// Now names transient archives. Defaults to time.Now.
	Now func() time.Time
}

// New returns a Resolver for the host platform.
func New(downloadsDir string, props config.Properties, logger *zap.Logger) *Resolver {
	return &Resolver{
		DownloadsDir: downloadsDir,
		Platform:     platform.Detect(),
		Properties:   props,
		Downloader:   download.New(logger),
		Logger:       logger,
	}
}

// InstallDir returns the installation directory of dist.
func (r *Resolver) InstallDir(dist distribution.Distribution) string {
	return filepath.Join(r.DownloadsDir, dist.ID)
}

// Find returns the executable of dist on p without installing anything.
func (r *Resolver) Find(dist distribution.Distribution, p platform.Platform) (string, bool) {
	name, ok := dist.Executable(p)
	if !ok {
		return "", false
	}
	dir := r.InstallDir(dist)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", false
	}
	return locate.Finder{Logger: r.Logger}.Find(dir, name)
}

// IsPresent reports whether dist is installed for p.
func (r *Resolver) IsPresent(dist distribution.Distribution, p platform.Platform) bool {
	_, ok := r.Find(dist, p)
	return ok
}

// Resolve returns the path of the distribution's executable, installing it
// when it is missing or when opts.Overwrite is set. An empty path with a nil
// error means the installation completed but no executable was found.
//
// Resolutions of the same distribution are serialized within the process and
// across processes sharing DownloadsDir.
func (r *Resolver) Resolve(ctx context.Context, dist distribution.Distribution, opts Options) (string, error) {
	log := logging.OrNop(r.Logger).With(zap.String("distribution", dist.ID))
	status := opts.Status
	if status == nil {
		status = func(s string) { log.Info(s) }
	}

	if !r.Platform.Supported() {
		return "", &ResolutionError{
			Distribution: dist.ID,
			Stage:        StagePlatform,
			Err:          fmt.Errorf("%w: %s", distribution.ErrUnsupportedPlatform, platform.HostInfo()),
		}
	}
	if _, ok := dist.Executable(r.Platform); !ok {
		return "", &ResolutionError{
			Distribution: dist.ID,
			Stage:        StageMapping,
			Err:          fmt.Errorf("%w for %s", ErrNoExecutableMapping, r.Platform),
		}
	}

	unlock, err := r.lock(ctx, dist)
	if err != nil {
		return "", &ResolutionError{Distribution: dist.ID, Stage: StageLock, Err: err}
	}
	defer unlock()

	installDir := r.InstallDir(dist)
	needed := true

	if opts.Overwrite {
		status("Overwrite is enabled. Deleting existing installation: " + installDir)
		deleted, err := removeDir(installDir)
		if err != nil {
			log.Warn("unable to delete installation", zap.String("dir", installDir), zap.Error(err))
		}
		status(fmt.Sprintf("Deletion attempt completed. Deleted: %t", deleted))
	} else {
		status("Overwrite is disabled. Looking for an existing installation.")
		needed = !r.IsPresent(dist, r.Platform)
	}

	if needed {
		status("Installing " + dist.ID + ". Downloading, please wait.")
		if err := r.install(ctx, dist, opts); err != nil {
			return "", &ResolutionError{Distribution: dist.ID, Stage: StageInstall, Err: err}
		}
		status("The download was completed.")
	}

	path, ok := r.Find(dist, r.Platform)
	if !ok {
		status("Unable to find the installation of " + dist.ID + ".")
		return "", nil
	}

	status("Found installation: " + path)
	return path, nil
}

// Remove deletes the installation directory of dist. It reports whether
// anything was deleted.
func (r *Resolver) Remove(ctx context.Context, dist distribution.Distribution) (bool, error) {
	unlock, err := r.lock(ctx, dist)
	if err != nil {
		return false, err
	}
	defer unlock()

	return removeDir(r.InstallDir(dist))
}

func (r *Resolver) install(ctx context.Context, dist distribution.Distribution, opts Options) error {
	inst, err := distribution.NewInstaller(dist.Kind, distribution.Deps{
		Downloader: r.Downloader,
		Logger:     r.Logger,
		Now:        r.Now,
	})
	if err != nil {
		return err
	}

	_, err = inst.Install(ctx, distribution.InstallRequest{
		Distribution: dist,
		Platform:     r.Platform,
		DownloadsDir: r.DownloadsDir,
		KeepArchive:  opts.KeepArchive,
		Properties:   r.Properties,
		Progress:     opts.Progress,
	})
	return err
}

func removeDir(dir string) (bool, error) {
	if _, err := os.Lstat(dir); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, err
	}
	return true, nil
}
