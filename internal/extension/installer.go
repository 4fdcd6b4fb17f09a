package extension

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/grantcarthew/chromium4go/internal/archive"
	"github.com/grantcarthew/chromium4go/internal/config"
	"github.com/grantcarthew/chromium4go/internal/download"
	"github.com/grantcarthew/chromium4go/internal/logging"
)

// DirName is the directory next to the browser executable holding
// extensions.
const DirName = "chromium4go-extensions"

const crxSuffix = ".crx"

// ErrInvalidID is returned for extension IDs that cannot name a file inside
// the extension directory.
var ErrInvalidID = errors.New("invalid extension id")

// validateID rejects IDs that are empty or could leave the extension
// directory once joined into a path.
func validateID(id string) error {
	if id == "" || id == "." || strings.Contains(id, "..") || strings.ContainsAny(id, `/\:`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// ChecksumMismatchError reports a downloaded extension whose SHA-256 digest
// differs from the expected value.
type ChecksumMismatchError struct {
	Extension string
	Expected  string
	Actual    string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("extension %s: sha256 mismatch: expected %s, got %s", e.Extension, e.Expected, e.Actual)
}

// Resolved is an extension available on disk.
type Resolved struct {
	Extension Extension

	// CRX is the downloaded package.
	CRX string

	// Dir is the unpacked extension, suitable for --load-extension.
	Dir string
}

// Installer makes extensions available for a browser installation.
type Installer struct {
	Downloader *download.Downloader
	Properties config.Properties
	Logger     *zap.Logger

	// Reinstall downloads every extension again even when present.
	Reinstall bool
}

// Dir returns the extension directory for the browser at executable.
func Dir(executable string) string {
	return filepath.Join(filepath.Dir(executable), DirName)
}

// Ensure downloads missing extensions, verifies their checksums and unpacks
// them. Any failure aborts with an error.
func (i *Installer) Ensure(ctx context.Context, executable string, exts []Extension) ([]Resolved, error) {
	if len(exts) == 0 {
		return nil, nil
	}
	for _, ext := range exts {
		if err := validateID(ext.ID); err != nil {
			return nil, err
		}
	}

	dir := Dir(executable)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create extension directory: %w", err)
	}

	resolved := make([]Resolved, 0, len(exts))
	for _, ext := range exts {
		r, err := i.ensure(ctx, dir, ext)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, r)
	}
	return resolved, nil
}

func (i *Installer) ensure(ctx context.Context, dir string, ext Extension) (Resolved, error) {
	log := logging.OrNop(i.Logger).With(zap.String("extension", ext.ID))

	crx := filepath.Join(dir, ext.ID+crxSuffix)
	unpacked := filepath.Join(dir, ext.ID)

	fresh := false
	info, err := os.Stat(crx)
	switch {
	case err == nil && info.Mode().IsRegular() && !i.Reinstall:
		log.Info("extension already installed, skipping download", zap.String("file", crx))
	default:
		if err == nil {
			if err := os.Remove(crx); err != nil {
				return Resolved{}, fmt.Errorf("remove extension %s: %w", ext.ID, err)
			}
			log.Info("deleted existing extension file", zap.String("file", crx))
		}
		if err := i.download(ctx, log, ext, crx); err != nil {
			return Resolved{}, err
		}
		fresh = true
	}

	if _, err := os.Stat(unpacked); fresh || err != nil {
		if err := os.RemoveAll(unpacked); err != nil {
			return Resolved{}, fmt.Errorf("remove unpacked extension %s: %w", ext.ID, err)
		}
		if err := archive.ExtractCRX(crx, unpacked); err != nil {
			return Resolved{}, fmt.Errorf("unpack extension %s: %w", ext.ID, err)
		}
	}

	log.Info("registered extension", zap.String("dir", unpacked))
	return Resolved{Extension: ext, CRX: crx, Dir: unpacked}, nil
}

func (i *Installer) download(ctx context.Context, log *zap.Logger, ext Extension, crx string) error {
	url := ext.URL(i.Properties)
	log.Info("downloading extension",
		zap.String("name", ext.Name),
		zap.String("url", url),
		zap.String("file", crx),
	)

	d := i.Downloader
	if d == nil {
		d = download.New(i.Logger)
	}
	if err := d.Download(ctx, url, crx, nil); err != nil {
		removeQuietly(crx)
		return fmt.Errorf("download extension %s: %w", ext.ID, err)
	}

	if ext.SHA256 == "" {
		return nil
	}

	actual, err := fileSHA256(crx)
	if err != nil {
		return fmt.Errorf("hash extension %s: %w", ext.ID, err)
	}
	log.Info("checking extension checksum", zap.String("expected", ext.SHA256), zap.String("actual", actual))
	if !strings.EqualFold(actual, ext.SHA256) {
		removeQuietly(crx)
		return &ChecksumMismatchError{Extension: ext.ID, Expected: ext.SHA256, Actual: actual}
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}
