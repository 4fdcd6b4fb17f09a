package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/grantcarthew/chromium4go/internal/cdp"
)

// clearScripts wipe page-visible storage of the current origin.
var clearScripts = []string{
	"localStorage.clear(); sessionStorage.clear();",
	"indexedDB.databases().then(dbs => dbs.forEach(db => indexedDB.deleteDatabase(db.name)));",
	"caches.keys().then(keys => keys.forEach(key => caches.delete(key)));",
	"navigator.serviceWorker.getRegistrations().then(regs => regs.forEach(reg => reg.unregister()));",
}

// ClearOriginData navigates page to rawURL and clears the HTTP cache, every
// cookie whose domain contains the URL host, and the origin's web storage.
// devtools may be nil; when set, the origin's storage is also cleared at the
// browser level.
func ClearOriginData(ctx context.Context, page Page, devtools DevTools, rawURL string) error {
	host, origin, err := splitURL(rawURL)
	if err != nil {
		return err
	}

	if err := page.Navigate(ctx, rawURL); err != nil {
		return fmt.Errorf("navigate to %s: %w", rawURL, err)
	}
	if err := page.ClearBrowserCache(ctx); err != nil {
		return fmt.Errorf("clear browser cache: %w", err)
	}

	cookies, err := page.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("list cookies: %w", err)
	}
	for _, c := range cookies {
		if c.Domain != "" && strings.Contains(c.Domain, host) {
			if err := page.DeleteCookie(ctx, c); err != nil {
				return fmt.Errorf("delete cookie %s: %w", c.Name, err)
			}
		}
	}

	for _, script := range clearScripts {
		if err := page.Evaluate(ctx, script); err != nil {
			return fmt.Errorf("clear storage: %w", err)
		}
	}

	if devtools != nil {
		if err := devtools.ClearDataForOrigin(ctx, origin, cdp.OriginStorageTypes); err != nil {
			return fmt.Errorf("clear data for %s: %w", origin, err)
		}
	}
	return nil
}

// splitURL returns the host and origin of rawURL.
func splitURL(rawURL string) (host, origin string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parse %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("parse %q: absolute URL required", rawURL)
	}
	return u.Hostname(), u.Scheme + "://" + u.Host, nil
}
