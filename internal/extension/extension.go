// Package extension downloads and unpacks browser extensions next to a
// browser installation.
package extension

import (
	"github.com/grantcarthew/chromium4go/internal/config"
)

// Extension describes a downloadable .crx package.
type Extension struct {
	// ID names the local .crx file and its unpacked directory.
	ID          string
	Name        string
	Description string

	// DownloadURL is used unless URLProperty is set in the configuration.
	DownloadURL string
	URLProperty string

	// SHA256 is the optional hex digest of the .crx file.
	SHA256 string
}

// PropertyUBlockOriginLiteURL overrides the uBlock Origin Lite download URL.
const PropertyUBlockOriginLiteURL = "chromium4go.extensions.uBlockOriginLite.downloadUrl"

// UBlockOriginLite is the lite version of uBlock Origin.
var UBlockOriginLite = Extension{
	ID:          "c4go-ublock-origin-lite",
	Name:        "uBlock Origin Lite",
	Description: "The lite version of uBlock Origin.",
	DownloadURL: "https://raw.githubusercontent.com/zeront4e/chromium-extensions/refs/heads/main/extensions/uBlockOriginLite/uBlockOriginLite.crx",
	URLProperty: PropertyUBlockOriginLiteURL,
}

var common = []Extension{UBlockOriginLite}

// Common returns the built-in extensions.
func Common() []Extension {
	out := make([]Extension, len(common))
	copy(out, common)
	return out
}

// Lookup returns the built-in extension with the given ID.
func Lookup(id string) (Extension, bool) {
	for _, e := range common {
		if e.ID == id {
			return e, true
		}
	}
	return Extension{}, false
}

// Custom returns a caller-defined extension. sha256 may be empty.
func Custom(id, name, description, downloadURL, sha256 string) Extension {
	return Extension{
		ID:          id,
		Name:        name,
		Description: description,
		DownloadURL: downloadURL,
		SHA256:      sha256,
	}
}

// URL returns the download URL, honouring the configured override.
func (e Extension) URL(props config.Properties) string {
	if e.URLProperty == "" {
		return e.DownloadURL
	}
	return props.GetOr(e.URLProperty, e.DownloadURL)
}
