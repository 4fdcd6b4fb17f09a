// Package distribution defines the known browser distributions and the
// strategies that install them.
package distribution

import (
	"errors"
	"fmt"

	"github.com/grantcarthew/chromium4go/internal/platform"
)

// ErrUnknownDistribution is returned by Lookup for unregistered identifiers.
var ErrUnknownDistribution = errors.New("unknown distribution")

// Kind selects the install strategy of a distribution.
type Kind int

// Known kinds. The zero value is deliberately unmapped.
const (
	KindLatestTrunk Kind = iota + 1
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindLatestTrunk:
		return "latest-trunk"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Distribution is a named source of browser builds.
type Distribution struct {
	// ID names the installation subdirectory.
	ID          string
	Description string
	Kind        Kind

	// Executables maps each platform to the executable file name found in
	// the extracted build.
	Executables map[platform.Platform]string
}

// Executable returns the executable name for p. Unsupported platforms and
// missing entries report false.
func (d Distribution) Executable(p platform.Platform) (string, bool) {
	if !p.Supported() {
		return "", false
	}
	name, ok := d.Executables[p]
	return name, ok && name != ""
}

// LatestTrunk is the most recent Chromium snapshot build.
var LatestTrunk = Distribution{
	ID:          "latest-trunk-build",
	Description: `Official latest trunk build. Downloaded from "https://download-chromium.appspot.com".`,
	Kind:        KindLatestTrunk,
	Executables: map[platform.Platform]string{
		platform.LinuxX86:   "chrome",
		platform.LinuxX64:   "chrome",
		platform.WindowsX86: "chrome.exe",
		platform.WindowsX64: "chrome.exe",
	},
}

var registry = []Distribution{LatestTrunk}

// All returns every registered distribution.
func All() []Distribution {
	out := make([]Distribution, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the distribution with the given ID.
func Lookup(id string) (Distribution, error) {
	for _, d := range registry {
		if d.ID == id {
			return d, nil
		}
	}
	return Distribution{}, fmt.Errorf("%w: %q", ErrUnknownDistribution, id)
}
