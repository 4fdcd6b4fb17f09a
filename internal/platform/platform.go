// Package platform maps the host operating system and architecture onto the
// closed set of platforms a browser distribution can be installed for.
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

// Platform is a detected OS and architecture combination.
type Platform int

// Supported platforms. Unsupported is the zero value so an unset Platform
// never selects a download.
const (
	Unsupported Platform = iota
	WindowsX86
	WindowsX64
	LinuxX86
	LinuxX64
)

// All lists every supported platform in declaration order.
var All = []Platform{WindowsX86, WindowsX64, LinuxX86, LinuxX64}

// String returns the lower-case name used in configuration keys.
func (p Platform) String() string {
	switch p {
	case WindowsX86:
		return "windows_x86"
	case WindowsX64:
		return "windows_x64"
	case LinuxX86:
		return "linux_x86"
	case LinuxX64:
		return "linux_x64"
	default:
		return "unsupported"
	}
}

// Supported reports whether p is anything other than Unsupported.
func (p Platform) Supported() bool {
	return p != Unsupported
}

// Windows reports whether p is a Windows platform.
func (p Platform) Windows() bool {
	return p == WindowsX86 || p == WindowsX64
}

// Parse returns the platform named by s (as produced by String).
func Parse(s string) (Platform, error) {
	for _, p := range All {
		if strings.EqualFold(p.String(), s) {
			return p, nil
		}
	}
	return Unsupported, fmt.Errorf("unknown platform %q", s)
}

// Info holds the raw host strings detection is based on.
type Info struct {
	OSName string
	OSArch string
}

// String formats the host strings for error messages.
func (i Info) String() string {
	return "os.name: " + i.OSName + " os.arch: " + i.OSArch
}

// HostInfo reports the host OS name and architecture.
//
// GOOS values are translated to descriptive names first: "darwin" would
// otherwise match the "win" substring.
func HostInfo() Info {
	return Info{
		OSName: osName(runtime.GOOS),
		OSArch: runtime.GOARCH,
	}
}

func osName(goos string) string {
	switch goos {
	case "darwin", "ios":
		return "mac os x"
	case "windows":
		return "windows"
	case "linux", "android":
		return "linux"
	default:
		// freebsd, netbsd, openbsd, dragonfly keep their "bsd" suffix.
		return goos
	}
}

// Detect returns the platform of the running process.
func Detect() Platform {
	info := HostInfo()
	return DetectFrom(info.OSName, info.OSArch)
}

// DetectFrom classifies an OS name and architecture string. Matching is by
// case-insensitive substring; anything unrecognised yields Unsupported.
func DetectFrom(osName, osArch string) Platform {
	name := strings.ToLower(osName)
	is64 := strings.Contains(osArch, "64")

	switch {
	case strings.Contains(name, "win"):
		if is64 {
			return WindowsX64
		}
		return WindowsX86
	case strings.Contains(name, "nux"), strings.Contains(name, "nix"), strings.Contains(name, "bsd"):
		if is64 {
			return LinuxX64
		}
		return LinuxX86
	}
	return Unsupported
}
