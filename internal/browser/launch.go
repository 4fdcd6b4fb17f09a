package browser

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
)

// DefaultPort is the CDP port used with the user's own profile, whose
// DevToolsActivePort file cannot be located reliably.
const DefaultPort = 9222

// activePortFile is written by the browser into its profile directory once
// the CDP endpoint listens.
const activePortFile = "DevToolsActivePort"

// UserDataDirDefault is the special value that means "use the user's Chrome profile".
const UserDataDirDefault = "default"

// Experimental option keys understood by buildArgs.
const (
	// ExperimentalExcludeSwitches holds a []string of default switches to drop.
	ExperimentalExcludeSwitches = "excludeSwitches"

	// ExperimentalUseAutomationExtension is accepted for compatibility. No
	// automation extension is ever loaded, so false is the only effective value.
	ExperimentalUseAutomationExtension = "useAutomationExtension"
)

// Default headless window size.
const (
	DefaultWindowWidth  = 1920
	DefaultWindowHeight = 1080
)

// LaunchOptions configures browser launch behavior. The zero value is ready
// to use. Values are immutable: every With method returns a modified copy.
type LaunchOptions struct {
	port         int
	userDataDir  string
	binary       string
	flags        []string
	experimental map[string]any
	extensions   []string
}

// Port returns the requested CDP port. Zero lets the browser pick a free
// one.
func (o LaunchOptions) Port() int { return o.port }

// debugPort is the value passed to --remote-debugging-port.
func (o LaunchOptions) debugPort() int {
	if o.port == 0 && o.userDataDir == UserDataDirDefault {
		return DefaultPort
	}
	return o.port
}

// UserDataDir returns the configured profile directory.
//   - Empty string: a temporary directory is created (default)
//   - "default": the user's default Chrome profile
//   - Any path: that directory
func (o LaunchOptions) UserDataDir() string { return o.userDataDir }

// Binary returns the browser executable, empty when unset.
func (o LaunchOptions) Binary() string { return o.binary }

// Flags returns a copy of the extra command line switches.
func (o LaunchOptions) Flags() []string { return slices.Clone(o.flags) }

// Experimental returns a copy of the experimental options.
func (o LaunchOptions) Experimental() map[string]any { return maps.Clone(o.experimental) }

// Extensions returns a copy of the unpacked extension directories.
func (o LaunchOptions) Extensions() []string { return slices.Clone(o.extensions) }

// Headless reports whether a --headless switch is present.
func (o LaunchOptions) Headless() bool {
	for _, f := range o.flags {
		if f == "--headless" || strings.HasPrefix(f, "--headless=") {
			return true
		}
	}
	return false
}

// WithPort sets the CDP port.
func (o LaunchOptions) WithPort(port int) LaunchOptions {
	o.port = port
	return o
}

// WithUserDataDir sets the profile directory.
func (o LaunchOptions) WithUserDataDir(dir string) LaunchOptions {
	o.userDataDir = dir
	return o
}

// WithBinary sets the browser executable.
func (o LaunchOptions) WithBinary(path string) LaunchOptions {
	o.binary = path
	return o
}

// WithFlags appends command line switches.
func (o LaunchOptions) WithFlags(flags ...string) LaunchOptions {
	o.flags = append(slices.Clone(o.flags), flags...)
	return o
}

// WithExperimental sets an experimental option.
func (o LaunchOptions) WithExperimental(key string, value any) LaunchOptions {
	exp := maps.Clone(o.experimental)
	if exp == nil {
		exp = map[string]any{}
	}
	exp[key] = value
	o.experimental = exp
	return o
}

// WithExtensions appends unpacked extension directories.
func (o LaunchOptions) WithExtensions(dirs ...string) LaunchOptions {
	o.extensions = append(slices.Clone(o.extensions), dirs...)
	return o
}

// WithHeadless adds --headless.
func (o LaunchOptions) WithHeadless() LaunchOptions {
	if o.Headless() {
		return o
	}
	return o.WithFlags("--headless")
}

// WithDisabledAutomationWarning hides the "controlled by automated test
// software" infobar. Windows builds honour excludeSwitches, the others the
// --disable-infobars switch.
func (o LaunchOptions) WithDisabledAutomationWarning() LaunchOptions {
	return o.withDisabledAutomationWarning(runtime.GOOS)
}

func (o LaunchOptions) withDisabledAutomationWarning(goos string) LaunchOptions {
	if goos == "windows" {
		return o.
			WithExperimental(ExperimentalExcludeSwitches, []string{"enable-automation"}).
			WithExperimental(ExperimentalUseAutomationExtension, false)
	}
	return o.WithFlags("--disable-infobars")
}

// AppOptions opens url in app mode without the automation warning.
func AppOptions(url string) LaunchOptions {
	return LaunchOptions{}.WithDisabledAutomationWarning().WithFlags("--app=" + url)
}

// HeadlessOptions returns headless options with the given window size.
// Non-positive dimensions fall back to the defaults.
func HeadlessOptions(disableGPU bool, width, height int) LaunchOptions {
	if width <= 0 {
		width = DefaultWindowWidth
	}
	if height <= 0 {
		height = DefaultWindowHeight
	}

	o := LaunchOptions{}.WithFlags(
		"--headless",
		"--disable-dev-shm-usage",
		fmt.Sprintf("--window-size=%d,%d", width, height),
	)
	if disableGPU {
		o = o.WithFlags("--disable-gpu")
	}
	return o
}

// defaultSwitches are always passed unless excluded via excludeSwitches.
var defaultSwitches = []string{
	"enable-automation",
	"no-first-run",
	"no-default-browser-check",
	"disable-background-networking",
	"disable-sync",
	"disable-popup-blocking",
}

// buildArgs constructs the Chrome command line arguments.
func buildArgs(opts LaunchOptions) []string {
	excluded := map[string]bool{}
	if v, ok := opts.experimental[ExperimentalExcludeSwitches]; ok {
		for _, sw := range switchList(v) {
			excluded[strings.TrimPrefix(sw, "--")] = true
		}
	}

	args := []string{fmt.Sprintf("--remote-debugging-port=%d", opts.debugPort())}
	for _, sw := range defaultSwitches {
		if !excluded[sw] {
			args = append(args, "--"+sw)
		}
	}

	// Platform-specific flags to avoid system dialogs
	switch runtime.GOOS {
	case "darwin":
		args = append(args, "--use-mock-keychain")
	case "linux":
		args = append(args, "--password-store=basic")
	}

	if len(opts.extensions) > 0 {
		list := strings.Join(opts.extensions, ",")
		args = append(args, "--load-extension="+list, "--disable-extensions-except="+list)
	}

	if opts.userDataDir != "" && opts.userDataDir != UserDataDirDefault {
		args = append(args, fmt.Sprintf("--user-data-dir=%s", opts.userDataDir))
	}

	args = append(args, opts.flags...)

	// --app already names the initial page
	if !hasPrefix(opts.flags, "--app=") {
		args = append(args, "about:blank")
	}

	return args
}

func switchList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{list}
	default:
		return nil
	}
}

func hasPrefix(flags []string, prefix string) bool {
	for _, f := range flags {
		if strings.HasPrefix(f, prefix) {
			return true
		}
	}
	return false
}

// spawned is a started browser process and its profile.
type spawned struct {
	cmd *exec.Cmd

	// profileDir holds DevToolsActivePort; empty for the user's own profile.
	profileDir string

	// tempDir was created by spawnProcess and is removed on Close.
	tempDir string
}

// spawnProcess starts the browser process with the given options. It does
// not wait for the process to exit.
func spawnProcess(opts LaunchOptions) (*spawned, error) {
	var sp spawned

	switch opts.userDataDir {
	case "":
		dir, err := os.MkdirTemp("", "chromium4go-profile-*")
		if err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
		opts = opts.WithUserDataDir(dir)
		sp.tempDir, sp.profileDir = dir, dir
	case UserDataDirDefault:
	default:
		sp.profileDir = opts.userDataDir
		// A file left by an earlier run would name a stale port.
		if err := os.Remove(filepath.Join(sp.profileDir, activePortFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("remove stale %s: %w", activePortFile, err)
		}
	}

	cmd := exec.Command(opts.binary, buildArgs(opts)...)

	// Detach from controlling terminal
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		if sp.tempDir != "" {
			os.RemoveAll(sp.tempDir)
		}
		return nil, fmt.Errorf("start browser: %w", err)
	}

	sp.cmd = cmd
	return &sp, nil
}

// readActivePort returns the port recorded in dir's DevToolsActivePort
// file. The first line is the port, the second the browser target path.
func readActivePort(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, activePortFile))
	if err != nil {
		return 0, err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	port, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid %s contents %q", activePortFile, line)
	}
	return port, nil
}
