// Package archive unpacks ZIP archives and CRX extension packages.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// bufferSize is the copy buffer used per entry.
const bufferSize = 4096

// ErrUnsafePath is returned for entries that would be written outside the
// destination directory.
var ErrUnsafePath = errors.New("entry escapes destination directory")

// Error describes a failed extraction. Entry is empty when the failure is not
// tied to a single archive member.
type Error struct {
	Archive string
	Entry   string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("extract %s: entry %q: %v", filepath.Base(e.Archive), e.Entry, e.Err)
	}
	return fmt.Sprintf("extract %s: %v", filepath.Base(e.Archive), e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Extract unpacks the ZIP file at zipPath into dest, creating dest and any
// intermediate directories. Entry order follows the archive. File modes
// stored in the archive are preserved so executables stay executable.
func Extract(zipPath, dest string) error {
	r, err := zip.OpenReader(zipPath)
	if errors.Is(err, zip.ErrInsecurePath) {
		r.Close()
		return &Error{Archive: zipPath, Err: fmt.Errorf("%w: %w", ErrUnsafePath, err)}
	}
	if err != nil {
		return &Error{Archive: zipPath, Err: fmt.Errorf("open: %w", err)}
	}
	defer r.Close()

	return extractAll(&r.Reader, zipPath, dest)
}

func extractAll(r *zip.Reader, name, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return &Error{Archive: name, Err: fmt.Errorf("create destination: %w", err)}
	}

	root, err := filepath.Abs(dest)
	if err != nil {
		return &Error{Archive: name, Err: fmt.Errorf("resolve destination: %w", err)}
	}
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return &Error{Archive: name, Err: fmt.Errorf("resolve destination: %w", err)}
	}

	buf := make([]byte, bufferSize)
	for _, f := range r.File {
		if err := extractEntry(f, root, buf); err != nil {
			return &Error{Archive: name, Entry: f.Name, Err: err}
		}
	}
	return nil
}

func extractEntry(f *zip.File, root string, buf []byte) error {
	target, err := safeJoin(root, f.Name)
	if err != nil {
		return err
	}

	mode := f.Mode()
	if mode.IsDir() {
		if err := checkReal(root, target); err != nil {
			return err
		}
		return os.MkdirAll(target, 0o755)
	}

	if err := checkReal(root, filepath.Dir(target)); err != nil {
		return err
	}
	if mode&os.ModeSymlink != 0 {
		return extractSymlink(f, root, target)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent: %w", err)
	}
	// An earlier entry may have left a link here; never write through it.
	if fi, err := os.Lstat(target); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("replace link: %w", err)
		}
	}

	perm := mode.Perm()
	if perm == 0 {
		perm = 0o644
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry: %w", err)
	}
	defer src.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if _, err := io.CopyBuffer(out, src, buf); err != nil {
		out.Close()
		return fmt.Errorf("write file: %w", err)
	}
	return out.Close()
}

func extractSymlink(f *zip.File, root, target string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry: %w", err)
	}
	link, err := io.ReadAll(src)
	src.Close()
	if err != nil {
		return fmt.Errorf("read link: %w", err)
	}

	dest := string(link)
	if filepath.IsAbs(dest) {
		return fmt.Errorf("%w: link to %s", ErrUnsafePath, dest)
	}
	if !within(root, filepath.Join(filepath.Dir(target), dest)) {
		return fmt.Errorf("%w: link to %s", ErrUnsafePath, dest)
	}
	// Join cleans "b/.." lexically; resolve the raw path so links created
	// by earlier entries are followed before "..".
	real, err := filepath.EvalSymlinks(filepath.Dir(target) + string(os.PathSeparator) + dest)
	switch {
	case err == nil:
		if !within(root, real) {
			return fmt.Errorf("%w: link to %s", ErrUnsafePath, dest)
		}
	case errors.Is(err, fs.ErrNotExist):
		// Dangling for now. Writes through it are checked when they happen.
	default:
		return fmt.Errorf("resolve link: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent: %w", err)
	}
	_ = os.Remove(target)
	return os.Symlink(dest, target)
}

// checkReal rejects path when its deepest existing ancestor resolves,
// through symlinks, to somewhere outside root. Components that do not exist
// yet are created below that ancestor, so they stay inside too.
func checkReal(root, path string) error {
	existing := path
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return nil
		}
		existing = parent
	}

	real, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsafePath, existing, err)
	}
	if !within(root, real) {
		return fmt.Errorf("%w: %s resolves to %s", ErrUnsafePath, existing, real)
	}
	return nil
}

// safeJoin resolves name below root and rejects absolute names and names
// that climb out with "..".
func safeJoin(root, name string) (string, error) {
	normalized := strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(normalized, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", ErrUnsafePath
	}

	target := filepath.Join(root, filepath.FromSlash(normalized))
	if !within(root, target) {
		return "", ErrUnsafePath
	}
	return target, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
