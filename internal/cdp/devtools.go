package cdp

import (
	"context"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/storage"
)

// OriginStorageTypes lists the storage cleared by ClearDataForOrigin.
const OriginStorageTypes = "local_storage,session_storage,indexeddb,cache_storage,service_workers"

// BrowserVersion returns product and revision details of the browser.
func (c *Client) BrowserVersion(ctx context.Context) (*cdpbrowser.GetVersionReturns, error) {
	var v cdpbrowser.GetVersionReturns
	if err := c.Call(ctx, cdpbrowser.CommandGetVersion, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ClearDataForOrigin clears the given storage types for origin.
func (c *Client) ClearDataForOrigin(ctx context.Context, origin, storageTypes string) error {
	return c.Call(ctx, storage.CommandClearDataForOrigin, storage.ClearDataForOrigin(origin, storageTypes), nil)
}

// CloseBrowser asks the browser to shut down gracefully.
func (c *Client) CloseBrowser(ctx context.Context) error {
	return c.Call(ctx, cdpbrowser.CommandClose, nil, nil)
}
