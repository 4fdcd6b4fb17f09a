package browser

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestBuildArgs_AutomaticPort(t *testing.T) {
	t.Parallel()

	args := buildArgs(LaunchOptions{})
	if !slices.Contains(args, "--remote-debugging-port=0") {
		t.Errorf("expected automatic port, args: %v", args)
	}
}

func TestBuildArgs_DefaultProfileUsesDefaultPort(t *testing.T) {
	t.Parallel()

	args := buildArgs(LaunchOptions{}.WithUserDataDir(UserDataDirDefault))
	if !slices.Contains(args, "--remote-debugging-port=9222") {
		t.Errorf("expected port 9222 with the default profile, args: %v", args)
	}
}

func TestReadActivePort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{name: "port and path", content: "41235\n/devtools/browser/abc\n", want: 41235},
		{name: "crlf", content: "41236\r\n/devtools/browser/abc\r\n", want: 41236},
		{name: "garbage", content: "port\n", wantErr: true},
		{name: "zero", content: "0\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, activePortFile), []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := readActivePort(dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("readActivePort error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestReadActivePort_Missing(t *testing.T) {
	t.Parallel()

	if _, err := readActivePort(t.TempDir()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestStartWithBinary_PortInUse(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", LocalHost+":0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	// The binary does not exist; the port check must fail first.
	_, err = StartWithBinary(context.Background(), filepath.Join(t.TempDir(), "chrome"), LaunchOptions{}.WithPort(port))
	if !errors.Is(err, ErrPortInUse) {
		t.Fatalf("expected ErrPortInUse, got %v", err)
	}
}

func TestSpawnProcess_RemovesStaleActivePort(t *testing.T) {
	t.Parallel()

	profile := t.TempDir()
	stale := filepath.Join(profile, activePortFile)
	if err := os.WriteFile(stale, []byte("9222\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := spawnProcess(LaunchOptions{}.
		WithUserDataDir(profile).
		WithBinary(filepath.Join(t.TempDir(), "missing-chrome")))
	if err == nil {
		t.Fatal("expected start error for missing binary")
	}
	if _, statErr := os.Stat(stale); !os.IsNotExist(statErr) {
		t.Error("expected stale DevToolsActivePort to be removed")
	}
}

func TestBuildArgs_CustomPort(t *testing.T) {
	t.Parallel()

	args := buildArgs(LaunchOptions{}.WithPort(9333))
	if !slices.Contains(args, "--remote-debugging-port=9333") {
		t.Errorf("expected port 9333, args: %v", args)
	}
}

func TestBuildArgs_NotHeadless(t *testing.T) {
	t.Parallel()

	for _, arg := range buildArgs(LaunchOptions{}) {
		if strings.Contains(arg, "headless") {
			t.Errorf("unexpected headless flag: %s", arg)
		}
	}
}

func TestBuildArgs_UserDataDir(t *testing.T) {
	t.Parallel()

	args := buildArgs(LaunchOptions{}.WithUserDataDir("/tmp/profile"))
	if !slices.Contains(args, "--user-data-dir=/tmp/profile") {
		t.Errorf("expected user data dir, args: %v", args)
	}

	for _, arg := range buildArgs(LaunchOptions{}.WithUserDataDir(UserDataDirDefault)) {
		if strings.HasPrefix(arg, "--user-data-dir") {
			t.Errorf("default profile must not set a directory: %s", arg)
		}
	}
}

func TestBuildArgs_ExcludeSwitches(t *testing.T) {
	t.Parallel()

	if !slices.Contains(buildArgs(LaunchOptions{}), "--enable-automation") {
		t.Fatal("expected --enable-automation by default")
	}

	opts := LaunchOptions{}.WithExperimental(ExperimentalExcludeSwitches, []any{"enable-automation"})
	args := buildArgs(opts)
	if slices.Contains(args, "--enable-automation") {
		t.Errorf("expected --enable-automation to be excluded, args: %v", args)
	}
	if !slices.Contains(args, "--no-first-run") {
		t.Errorf("other defaults must remain, args: %v", args)
	}
}

func TestBuildArgs_Extensions(t *testing.T) {
	t.Parallel()

	args := buildArgs(LaunchOptions{}.WithExtensions("/ext/a", "/ext/b"))
	if !slices.Contains(args, "--load-extension=/ext/a,/ext/b") {
		t.Errorf("expected load-extension, args: %v", args)
	}
	if !slices.Contains(args, "--disable-extensions-except=/ext/a,/ext/b") {
		t.Errorf("expected disable-extensions-except, args: %v", args)
	}
}

func TestBuildArgs_InitialPage(t *testing.T) {
	t.Parallel()

	if args := buildArgs(LaunchOptions{}); args[len(args)-1] != "about:blank" {
		t.Errorf("expected about:blank last, args: %v", args)
	}

	args := buildArgs(AppOptions("https://example.com"))
	if slices.Contains(args, "about:blank") {
		t.Errorf("app mode must not open about:blank, args: %v", args)
	}
	if !slices.Contains(args, "--app=https://example.com") {
		t.Errorf("expected --app flag, args: %v", args)
	}
}

func TestLaunchOptions_WithReturnsCopy(t *testing.T) {
	t.Parallel()

	base := LaunchOptions{}.WithFlags("--a").WithExperimental("k", 1)
	next := base.WithFlags("--b").WithExperimental("k", 2).WithBinary("/bin/chrome")

	if got := base.Flags(); !slices.Equal(got, []string{"--a"}) {
		t.Errorf("base flags mutated: %v", got)
	}
	if base.Experimental()["k"] != 1 {
		t.Errorf("base experimental mutated: %v", base.Experimental())
	}
	if base.Binary() != "" {
		t.Errorf("base binary mutated: %s", base.Binary())
	}
	if got := next.Flags(); !slices.Equal(got, []string{"--a", "--b"}) {
		t.Errorf("unexpected flags: %v", got)
	}

	flags := next.Flags()
	flags[0] = "--mutated"
	if next.Flags()[0] != "--a" {
		t.Error("Flags must return a copy")
	}
}

func TestHeadlessOptions(t *testing.T) {
	t.Parallel()

	opts := HeadlessOptions(true, 0, 0)
	flags := opts.Flags()

	for _, want := range []string{"--headless", "--disable-dev-shm-usage", "--window-size=1920,1080", "--disable-gpu"} {
		if !slices.Contains(flags, want) {
			t.Errorf("expected %s, flags: %v", want, flags)
		}
	}
	if !opts.Headless() {
		t.Error("expected Headless to report true")
	}

	custom := HeadlessOptions(false, 800, 600).Flags()
	if !slices.Contains(custom, "--window-size=800,600") {
		t.Errorf("expected custom size, flags: %v", custom)
	}
	if slices.Contains(custom, "--disable-gpu") {
		t.Errorf("unexpected --disable-gpu, flags: %v", custom)
	}
}

func TestWithHeadless_Idempotent(t *testing.T) {
	t.Parallel()

	opts := LaunchOptions{}.WithHeadless().WithHeadless()
	if n := len(opts.Flags()); n != 1 {
		t.Errorf("expected a single flag, got %v", opts.Flags())
	}
}

func TestWithDisabledAutomationWarning(t *testing.T) {
	t.Parallel()

	win := LaunchOptions{}.withDisabledAutomationWarning("windows")
	exp := win.Experimental()
	if sw, ok := exp[ExperimentalExcludeSwitches].([]string); !ok || !slices.Equal(sw, []string{"enable-automation"}) {
		t.Errorf("unexpected excludeSwitches: %v", exp)
	}
	if exp[ExperimentalUseAutomationExtension] != false {
		t.Errorf("expected useAutomationExtension=false, got %v", exp)
	}

	linux := LaunchOptions{}.withDisabledAutomationWarning("linux")
	if !slices.Contains(linux.Flags(), "--disable-infobars") {
		t.Errorf("expected --disable-infobars, flags: %v", linux.Flags())
	}
}
