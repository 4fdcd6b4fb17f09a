package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/grantcarthew/chromium4go"
	"github.com/grantcarthew/chromium4go/internal/distribution"
	"github.com/grantcarthew/chromium4go/internal/session"
)

func init() {
	// Disable colors in tests to avoid ANSI codes in output assertions
	color.NoColor = true
}

// enableJSONOutput sets JSONOutput to true for the duration of the test.
func enableJSONOutput(t *testing.T) {
	old := JSONOutput
	JSONOutput = true
	t.Cleanup(func() { JSONOutput = old })
}

// testEnv is an isolated downloads directory served by a local trunk server.
type testEnv struct {
	factory *session.FakeFactory
	dir     string
	hits    *atomic.Int32
}

// setTestClient routes newClient to a fake session factory and a local
// download server for the duration of the test.
func setTestClient(t *testing.T) *testEnv {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	hdr := &zip.FileHeader{Name: "chrome-linux/chrome", Method: zip.Deflate}
	hdr.SetMode(0o755)
	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("binary"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	env := &testEnv{factory: &session.FakeFactory{}, dir: t.TempDir(), hits: &atomic.Int32{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.hits.Add(1)
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)

	SetClientFactory(func(cfg chromium4go.Config) (*chromium4go.Client, error) {
		if !cfg.DisableExitHook {
			t.Error("expected the CLI to disable the session exit hook")
		}
		cfg.DownloadsDir = filepath.Join(env.dir, "downloads")
		cfg.Platform = "linux_x64"
		cfg.Properties = map[string]string{distribution.PropertyLatestTrunkLinuxX64: srv.URL}
		cfg.DotEnvPath = filepath.Join(env.dir, "missing.env")
		cfg.ConfigPath = filepath.Join(env.dir, "missing.yaml")
		cfg.Factory = env.factory
		return chromium4go.New(cfg)
	})
	t.Cleanup(ResetClientFactory)
	return env
}

// runCLI executes the root command with args and captures its output.
func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	oldOut, oldErr := os.Stdout, os.Stderr
	outR, outW, _ := os.Pipe()
	errR, errW, _ := os.Pipe()
	os.Stdout, os.Stderr = outW, errW

	rootCmd.SetArgs(args)
	err = rootCmd.Execute()

	outW.Close()
	errW.Close()
	os.Stdout, os.Stderr = oldOut, oldErr

	var outBuf, errBuf bytes.Buffer
	outBuf.ReadFrom(outR)
	errBuf.ReadFrom(errR)

	return outBuf.String(), errBuf.String(), err
}

// resetFlags restores every flag to its default between executions.
func resetFlags() {
	reset := func(flags *pflag.FlagSet) {
		flags.VisitAll(func(f *pflag.Flag) {
			// For slice types with DefValue "[]", use empty string to properly reset.
			defVal := f.DefValue
			if defVal == "[]" {
				defVal = ""
			}
			_ = f.Value.Set(defVal)
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	for _, cmd := range rootCmd.Commands() {
		reset(cmd.Flags())
	}
	launchExtensions = nil
	Debug = false
	JSONOutput = false
	NoColor = false
}

// decodeOK parses a JSON success envelope and returns its data.
func decodeOK(t *testing.T, out string) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("failed to parse output %q: %v", out, err)
	}
	if result["ok"] != true {
		t.Fatalf("expected ok=true, got %v", result)
	}
	data, ok := result["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data to be map, got %T", result["data"])
	}
	return data
}

func TestOutputSuccess(t *testing.T) {
	enableJSONOutput(t)

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := outputSuccess(map[string]string{"message": "test"}, nil)

	w.Close()
	os.Stdout = old

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	buf.ReadFrom(r)

	data := decodeOK(t, buf.String())
	if data["message"] != "test" {
		t.Errorf("expected message=test, got %v", data["message"])
	}
}

func TestOutputSuccess_TextWriter(t *testing.T) {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	_ = outputSuccess("ignored", func(w io.Writer) { fmt.Fprintln(w, "text") })
	_ = outputSuccess(nil, nil)

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	if got := buf.String(); got != "text\nOK\n" {
		t.Errorf("expected text then OK, got %q", got)
	}
}

func TestOutputError(t *testing.T) {
	enableJSONOutput(t)

	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	err := outputError("something went wrong")

	w.Close()
	os.Stderr = old

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Error() != "something went wrong" {
		t.Errorf("expected error message 'something went wrong', got %v", err.Error())
	}
	if !IsPrintedError(err) {
		t.Error("expected printed error")
	}

	var buf bytes.Buffer
	buf.ReadFrom(r)

	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if result["ok"] != false {
		t.Errorf("expected ok=false, got %v", result["ok"])
	}
	if result["error"] != "something went wrong" {
		t.Errorf("expected error='something went wrong', got %v", result["error"])
	}
}

func TestTryExpandCommand(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"inst", "install"},
		{"un", "uninstall"},
		{"st", "status"},
		{"li", "list"},
		{"la", "launch"},
		{"l", ""},
		{"install", ""},
		{"zzz", ""},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			if got := tryExpandCommand(tt.prefix); got != tt.want {
				t.Errorf("tryExpandCommand(%q) = %q, want %q", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestList(t *testing.T) {
	out, _, err := runCLI(t, "list", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		OK   bool               `json:"ok"`
		Data []distributionInfo `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if len(result.Data) == 0 || result.Data[0].ID != chromium4go.LatestTrunk.ID {
		t.Fatalf("expected %s in list, got %+v", chromium4go.LatestTrunk.ID, result.Data)
	}
	if result.Data[0].Executables["linux_x64"] != "chrome" {
		t.Errorf("expected linux_x64 executable chrome, got %v", result.Data[0].Executables)
	}
}

func TestInstallStatusUninstall(t *testing.T) {
	env := setTestClient(t)

	out, _, err := runCLI(t, "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if data := decodeOK(t, out); data["installed"] != false {
		t.Errorf("expected installed=false, got %v", data["installed"])
	}

	out, _, err = runCLI(t, "install", "--json")
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	data := decodeOK(t, out)
	exe, _ := data["executable"].(string)
	if !strings.HasSuffix(exe, filepath.Join("chrome-linux", "chrome")) {
		t.Errorf("unexpected executable %q", exe)
	}
	if env.hits.Load() != 1 {
		t.Errorf("expected 1 download, got %d", env.hits.Load())
	}

	// Reinstalling with --overwrite downloads again.
	if _, _, err := runCLI(t, "install", "--overwrite", "--json"); err != nil {
		t.Fatalf("install --overwrite: %v", err)
	}
	if env.hits.Load() != 2 {
		t.Errorf("expected 2 downloads, got %d", env.hits.Load())
	}

	out, _, err = runCLI(t, "status", chromium4go.LatestTrunk.ID, "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	data = decodeOK(t, out)
	if data["installed"] != true {
		t.Errorf("expected installed=true, got %v", data["installed"])
	}
	if data["platform"] != "linux_x64" {
		t.Errorf("expected platform linux_x64, got %v", data["platform"])
	}

	out, _, err = runCLI(t, "uninstall", "--json")
	if err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	if data := decodeOK(t, out); data["removed"] != true {
		t.Errorf("expected removed=true, got %v", data["removed"])
	}

	_, stderr, err := runCLI(t, "uninstall")
	if err == nil {
		t.Fatal("expected error uninstalling twice")
	}
	if !IsPrintedError(err) {
		t.Errorf("expected printed error, got %v", err)
	}
	if !strings.Contains(stderr, "is not installed") {
		t.Errorf("expected notice, got %q", stderr)
	}
}

func TestInstall_UnknownDistribution(t *testing.T) {
	setTestClient(t)

	_, stderr, err := runCLI(t, "install", "nightly")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(stderr, "unknown distribution") {
		t.Errorf("expected unknown distribution error, got %q", stderr)
	}
}

func TestLaunch(t *testing.T) {
	env := setTestClient(t)

	held := false
	old := holdSession
	holdSession = func(ctx context.Context, s *chromium4go.Session) { held = true }
	t.Cleanup(func() { holdSession = old })

	out, _, err := runCLI(t, "launch", "--headless", "--window-size", "800x600", "--port", "9333", "--json")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if !held {
		t.Error("expected launch to hold the session")
	}

	data := decodeOK(t, out)
	if data["session"] == "" {
		t.Error("expected session id")
	}
	if data["port"] != float64(9333) {
		t.Errorf("expected port 9333, got %v", data["port"])
	}

	launches := env.factory.Launches()
	if len(launches) != 1 {
		t.Fatalf("expected 1 launch, got %d", len(launches))
	}
	opts := launches[0].Options
	if !opts.Headless() {
		t.Error("expected headless options")
	}
	if !containsFlag(opts.Flags(), "--window-size=800,600") {
		t.Errorf("expected window size flag, got %v", opts.Flags())
	}
}

func TestLaunch_ReturnsWhenBrowserExits(t *testing.T) {
	env := setTestClient(t)

	exited := make(chan struct{})
	env.factory.Exited = exited
	time.AfterFunc(100*time.Millisecond, func() { close(exited) })

	done := make(chan error, 1)
	go func() {
		_, _, err := runCLI(t, "launch", "--json")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("launch: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("launch kept holding the session after the browser exited")
	}
}

func TestLaunch_System(t *testing.T) {
	env := setTestClient(t)

	bin := filepath.Join(t.TempDir(), "chrome")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHROMIUM4GO_CHROME", bin)

	old := holdSession
	holdSession = func(ctx context.Context, s *chromium4go.Session) {}
	t.Cleanup(func() { holdSession = old })

	if _, _, err := runCLI(t, "launch", "--system", "--json"); err != nil {
		t.Fatalf("launch --system: %v", err)
	}
	if env.hits.Load() != 0 {
		t.Errorf("expected no download, got %d", env.hits.Load())
	}
	if got := env.factory.Launches()[0].Executable; got != bin {
		t.Errorf("expected executable %s, got %s", bin, got)
	}
}

func TestLaunch_UnknownExtension(t *testing.T) {
	setTestClient(t)

	_, stderr, err := runCLI(t, "launch", "--extension", "adblock")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(stderr, chromium4go.UBlockOriginLite.ID) {
		t.Errorf("expected known extensions in message, got %q", stderr)
	}
}

func TestLaunch_HeadlessAndAppExclusive(t *testing.T) {
	setTestClient(t)

	_, _, err := runCLI(t, "launch", "--headless", "--app", "https://example.com")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsPrintedError(err) {
		t.Error("expected cobra flag error to be left for main to print")
	}
}

func TestParseWindowSize(t *testing.T) {
	tests := []struct {
		in      string
		w, h    int
		wantErr bool
	}{
		{in: "", w: 0, h: 0},
		{in: "1280x720", w: 1280, h: 720},
		{in: "1280X720", w: 1280, h: 720},
		{in: "1024,768", w: 1024, h: 768},
		{in: "1024", wantErr: true},
		{in: "0x10", wantErr: true},
		{in: "axb", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			w, h, err := parseWindowSize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseWindowSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if w != tt.w || h != tt.h {
				t.Errorf("parseWindowSize(%q) = %d,%d, want %d,%d", tt.in, w, h, tt.w, tt.h)
			}
		})
	}
}

func containsFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
