package extension

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/grantcarthew/chromium4go/internal/config"
)

func crxBytes(t *testing.T) []byte {
	t.Helper()

	var payload bytes.Buffer
	w := zip.NewWriter(&payload)
	fw, err := w.Create("manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(`{"name":"test"}`))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	header := []byte("header")
	var buf bytes.Buffer
	buf.WriteString("Cr24")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(header)))
	buf.Write(header)
	buf.Write(payload.Bytes())
	return buf.Bytes()
}

type crxServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newCRXServer(t *testing.T, body []byte) *crxServer {
	t.Helper()
	s := &crxServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

func executable(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "chrome-linux", "chrome")
}

func TestEnsure_DownloadsAndUnpacks(t *testing.T) {
	t.Parallel()

	srv := newCRXServer(t, crxBytes(t))
	exe := executable(t)
	ext := Custom("test-ext", "Test", "A test extension", srv.URL, "")

	inst := &Installer{}
	got, err := inst.Ensure(context.Background(), exe, []Extension{ext})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one extension, got %d", len(got))
	}

	wantCRX := filepath.Join(filepath.Dir(exe), DirName, "test-ext.crx")
	if got[0].CRX != wantCRX {
		t.Errorf("expected %s, got %s", wantCRX, got[0].CRX)
	}
	if _, err := os.Stat(filepath.Join(got[0].Dir, "manifest.json")); err != nil {
		t.Errorf("expected unpacked manifest: %v", err)
	}
}

func TestEnsure_SkipsExistingUnlessReinstall(t *testing.T) {
	t.Parallel()

	srv := newCRXServer(t, crxBytes(t))
	exe := executable(t)
	ext := Custom("test-ext", "Test", "", srv.URL, "")

	inst := &Installer{}
	for range 2 {
		if _, err := inst.Ensure(context.Background(), exe, []Extension{ext}); err != nil {
			t.Fatal(err)
		}
	}
	if n := srv.hits.Load(); n != 1 {
		t.Errorf("expected one download, got %d", n)
	}

	inst.Reinstall = true
	if _, err := inst.Ensure(context.Background(), exe, []Extension{ext}); err != nil {
		t.Fatal(err)
	}
	if n := srv.hits.Load(); n != 2 {
		t.Errorf("expected reinstall to download again, got %d", n)
	}
}

func TestEnsure_ChecksumVerified(t *testing.T) {
	t.Parallel()

	body := crxBytes(t)
	sum := sha256.Sum256(body)
	srv := newCRXServer(t, body)

	ext := Custom("good", "Good", "", srv.URL, hex.EncodeToString(sum[:]))
	if _, err := (&Installer{}).Ensure(context.Background(), executable(t), []Extension{ext}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEnsure_ChecksumMismatch(t *testing.T) {
	t.Parallel()

	srv := newCRXServer(t, crxBytes(t))
	exe := executable(t)
	ext := Custom("bad", "Bad", "", srv.URL, "00ff")

	_, err := (&Installer{}).Ensure(context.Background(), exe, []Extension{ext})

	var mismatch *ChecksumMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *ChecksumMismatchError, got %v", err)
	}
	if mismatch.Expected != "00ff" || mismatch.Actual == "" {
		t.Errorf("unexpected mismatch detail: %+v", mismatch)
	}
	if _, err := os.Stat(filepath.Join(Dir(exe), "bad.crx")); !os.IsNotExist(err) {
		t.Error("expected rejected package to be removed")
	}
}

func TestEnsure_DownloadFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ext := Custom("missing", "Missing", "", srv.URL, "")
	if _, err := (&Installer{}).Ensure(context.Background(), executable(t), []Extension{ext}); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnsure_RejectsUnsafeIDs(t *testing.T) {
	t.Parallel()

	srv := newCRXServer(t, crxBytes(t))

	for _, id := range []string{"", ".", "..", "../x", "a/../../x", `..\x`, "sub/dir", `sub\dir`, "C:x"} {
		exe := executable(t)
		ext := Custom(id, "Unsafe", "", srv.URL, "")
		_, err := (&Installer{}).Ensure(context.Background(), exe, []Extension{ext})
		if !errors.Is(err, ErrInvalidID) {
			t.Errorf("id %q: expected ErrInvalidID, got %v", id, err)
		}
		if _, err := os.Stat(Dir(exe)); !os.IsNotExist(err) {
			t.Errorf("id %q: expected no extension directory", id)
		}
		if _, err := os.Stat(filepath.Join(filepath.Dir(filepath.Dir(exe)), "x.crx")); !os.IsNotExist(err) {
			t.Errorf("id %q: file written outside the extension directory", id)
		}
	}
	if n := srv.hits.Load(); n != 0 {
		t.Errorf("expected no downloads, got %d", n)
	}
}

func TestEnsure_NoExtensions(t *testing.T) {
	t.Parallel()

	exe := executable(t)
	got, err := (&Installer{}).Ensure(context.Background(), exe, nil)
	if err != nil || got != nil {
		t.Errorf("expected nothing, got %v, %v", got, err)
	}
	if _, err := os.Stat(Dir(exe)); !os.IsNotExist(err) {
		t.Error("expected no extension directory")
	}
}

func TestURL_Override(t *testing.T) {
	t.Parallel()

	if got := UBlockOriginLite.URL(config.Empty()); got != UBlockOriginLite.DownloadURL {
		t.Errorf("expected default URL, got %s", got)
	}

	props := config.FromMap(map[string]string{PropertyUBlockOriginLiteURL: "https://mirror/ublock.crx"})
	if got := UBlockOriginLite.URL(props); got != "https://mirror/ublock.crx" {
		t.Errorf("expected override, got %s", got)
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	if _, ok := Lookup(UBlockOriginLite.ID); !ok {
		t.Error("expected built-in extension")
	}
	if _, ok := Lookup("nope"); ok {
		t.Error("unexpected extension")
	}
}
