package session

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/network"
	cpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// chromedpPage drives one tab through chromedp.
type chromedpPage struct {
	// tab is the context returned by chromedp.NewContext.
	tab context.Context
}

// run executes actions on the tab, bounded by ctx.
func (p chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p chromedpPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p chromedpPage) ClearBrowserCache(ctx context.Context) error {
	return p.run(ctx, network.ClearBrowserCache())
}

func (p chromedpPage) Cookies(ctx context.Context) ([]Cookie, error) {
	var cookies []Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		list, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range list {
			cookies = append(cookies, Cookie{Name: c.Name, Domain: c.Domain, Path: c.Path})
		}
		return nil
	}))
	return cookies, err
}

func (p chromedpPage) DeleteCookie(ctx context.Context, c Cookie) error {
	return p.run(ctx, network.DeleteCookies(c.Name).WithDomain(c.Domain).WithPath(c.Path))
}

// Evaluate runs script and waits for a returned promise to settle.
func (p chromedpPage) Evaluate(ctx context.Context, script string) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, exc, err := cpruntime.Evaluate(script).WithAwaitPromise(true).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("script exception: %s", exc.Text)
		}
		return nil
	}))
}
