// Package locate searches directory trees for browser executables.
package locate

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/grantcarthew/chromium4go/internal/logging"
)

// BundleSuffix marks macOS application bundles. A directory with this suffix
// whose name equals the target is returned as the executable.
const BundleSuffix = ".app"

// Finder searches for executables.
type Finder struct {
	Logger *zap.Logger
}

// Find walks root depth-first and returns the first entry named name.
// A missing or non-directory root is reported as not found.
// Symbolic link cycles are not detected.
func Find(root, name string) (string, bool) {
	return Finder{}.Find(root, name)
}

// Find is the logger-aware form of the package level Find.
func (f Finder) Find(root, name string) (string, bool) {
	log := logging.OrNop(f.Logger)

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		log.Warn("invalid search directory", zap.String("dir", root), zap.Error(err))
		return "", false
	}

	return find(log, root, name)
}

func find(log *zap.Logger, dir, name string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Debug("read directory", zap.String("dir", dir), zap.Error(err))
		return "", false
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if strings.HasSuffix(entry.Name(), BundleSuffix) && entry.Name() == name {
				return path, true
			}
			if found, ok := find(log, path, name); ok {
				return found, true
			}
			continue
		}

		if entry.Name() == name {
			return path, true
		}
	}

	return "", false
}
