// Package download streams HTTP resources to disk with progress reporting.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/grantcarthew/chromium4go/internal/logging"
)

const (
	// DefaultChunkSize is the read buffer size used while streaming.
	DefaultChunkSize = 8 << 20

	// DefaultProgressInterval is the number of bytes between progress reports.
	DefaultProgressInterval = 10 << 20

	mib = 1 << 20
)

// ProgressFunc receives the cumulative number of bytes written so far.
type ProgressFunc func(totalBytes int64)

// Error describes a failed download. StatusCode is zero when the failure
// happened after a 200 response (or before any response was received).
type Error struct {
	URL        string
	File       string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	name := filepath.Base(e.File)
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %q: HTTP status code %d", name, e.StatusCode)
	}
	return fmt.Sprintf("download %q from %s: %v", name, e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrUnexpectedStatus is wrapped by Error for non-200 responses.
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// Downloader performs single-attempt HTTP GET downloads.
// The zero value is usable.
type Downloader struct {
	// Client defaults to http.DefaultClient, which follows redirects.
	Client *http.Client

	// ChunkSize defaults to DefaultChunkSize.
	ChunkSize int

	// ProgressInterval defaults to DefaultProgressInterval.
	ProgressInterval int64

	Logger *zap.Logger
}

// New returns a Downloader with default settings.
func New(logger *zap.Logger) *Downloader {
	return &Downloader{Logger: logger}
}

// Download fetches url into dest.
//
// A non-200 response returns an *Error carrying the status code and dest is
// not created. On a streaming failure the partially written file is left in
// place for the caller to remove. When onProgress is nil, progress is logged.
func (d *Downloader) Download(ctx context.Context, url, dest string, onProgress ProgressFunc) error {
	log := logging.OrNop(d.Logger)
	if onProgress == nil {
		onProgress = func(total int64) {
			log.Info("download progress", zap.Int64("mib", total/mib))
		}
	}

	fail := func(status int, err error) error {
		e := &Error{URL: url, File: dest, StatusCode: status, Err: err}
		log.Error("download failed", zap.String("url", url), zap.String("file", dest), zap.Error(e))
		return e
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail(0, fmt.Errorf("create request: %w", err))
	}

	resp, err := d.client().Do(req)
	if err != nil {
		return fail(0, fmt.Errorf("fetch: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(resp.StatusCode, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode))
	}

	file, err := os.Create(dest)
	if err != nil {
		return fail(0, fmt.Errorf("create file: %w", err))
	}

	start := time.Now()
	log.Info("starting download", zap.String("file", filepath.Base(dest)), zap.String("url", url))

	total, err := d.stream(resp.Body, file, onProgress)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close file: %w", closeErr)
	}
	if err != nil {
		return fail(0, err)
	}

	log.Info("download completed",
		zap.String("file", filepath.Base(dest)),
		zap.Int64("mib", total/mib),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// stream copies body to w in fixed-size chunks, reporting progress each time
// the cumulative count crosses the next interval boundary.
func (d *Downloader) stream(body io.Reader, w io.Writer, onProgress ProgressFunc) (int64, error) {
	chunk := d.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	interval := d.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	buf := make([]byte, chunk)
	var total int64
	next := interval

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return total, fmt.Errorf("write file: %w", err)
			}
			total += int64(n)

			if total >= next {
				onProgress(total)
				next = (total/interval + 1) * interval
			}
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, fmt.Errorf("read body: %w", readErr)
		}
	}
}

func (d *Downloader) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}
