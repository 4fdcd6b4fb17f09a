package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grantcarthew/chromium4go/internal/distribution"
)

// lockSuffix is appended to the distribution ID to name its lock file.
const lockSuffix = ".lock"

// lockPollInterval is how often a held file lock is retried.
const lockPollInterval = 50 * time.Millisecond

var (
	slotsMu sync.Mutex
	slots   = map[string]chan struct{}{}
)

// slot returns the in-process semaphore guarding path.
func slot(path string) chan struct{} {
	slotsMu.Lock()
	defer slotsMu.Unlock()

	ch, ok := slots[path]
	if !ok {
		ch = make(chan struct{}, 1)
		slots[path] = ch
	}
	return ch
}

// lock serializes work on the installation of dist. Goroutines wait on a
// per-path semaphore, processes on an exclusive lock of
// <DownloadsDir>/<id>.lock.
func (r *Resolver) lock(ctx context.Context, dist distribution.Distribution) (func(), error) {
	if err := os.MkdirAll(r.DownloadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create downloads directory: %w", err)
	}

	path := filepath.Join(r.DownloadsDir, dist.ID+lockSuffix)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	sem := slot(path)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f, err := acquireFileLock(ctx, path)
	if err != nil {
		<-sem
		return nil, err
	}

	return func() {
		releaseFileLock(f)
		<-sem
	}, nil
}

// acquireFileLock polls for an exclusive lock on path until it is held or
// ctx is done.
func acquireFileLock(ctx context.Context, path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := tryLockFile(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		if ok {
			return f, nil
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
