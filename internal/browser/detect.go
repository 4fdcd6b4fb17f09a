// Package browser spawns Chrome with CDP enabled and manages its launch
// options.
package browser

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// EnvChrome overrides system browser discovery with an explicit executable.
const EnvChrome = "CHROMIUM4GO_CHROME"

// ErrChromeNotFound is returned when no system browser is available.
var ErrChromeNotFound = errors.New("chrome not found")

// systemBrowser lists where a browser installed outside the downloads
// directory may live on one operating system.
type systemBrowser struct {
	// files are absolute executable locations, tried in order.
	files []string

	// commands are names resolved through PATH after files.
	commands []string
}

func (s systemBrowser) candidates() []string {
	return append(append([]string(nil), s.files...), s.commands...)
}

// systemBrowsers returns the search order for goos. Unknown systems have
// none and rely on EnvChrome.
func systemBrowsers(goos string) systemBrowser {
	switch goos {
	case "linux":
		return systemBrowser{
			files: []string{
				"/usr/bin/google-chrome",
				"/usr/bin/google-chrome-stable",
				"/usr/bin/chromium",
				"/usr/bin/chromium-browser",
				"/snap/bin/chromium",
			},
			commands: []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"},
		}
	case "windows":
		var files []string
		for _, env := range []string{"ProgramFiles", "ProgramFiles(x86)", "LocalAppData"} {
			root := os.Getenv(env)
			if root == "" {
				continue
			}
			files = append(files,
				filepath.Join(root, "Google", "Chrome", "Application", "chrome.exe"),
				filepath.Join(root, "Chromium", "Application", "chrome.exe"),
			)
		}
		return systemBrowser{files: files, commands: []string{"chrome.exe"}}
	case "darwin":
		return systemBrowser{
			files: []string{
				"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
				"/Applications/Chromium.app/Contents/MacOS/Chromium",
				"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
			},
			commands: []string{"google-chrome", "chromium"},
		}
	}
	return systemBrowser{}
}

// FindChrome returns a browser installed on the host rather than in the
// downloads directory. A set EnvChrome is authoritative: if it does not
// name a regular file the search stops with ErrChromeNotFound.
func FindChrome() (string, error) {
	if override := os.Getenv(EnvChrome); override != "" {
		info, err := os.Stat(override)
		if err != nil || info.IsDir() {
			return "", fmt.Errorf("%w: %s=%s", ErrChromeNotFound, EnvChrome, override)
		}
		return override, nil
	}

	for _, c := range systemBrowsers(runtime.GOOS).candidates() {
		if found, err := exec.LookPath(c); err == nil {
			return found, nil
		}
	}
	return "", ErrChromeNotFound
}
