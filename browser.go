package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// Browser owns a headless Chrome instance and hands out one browsing
// context per page being stabilized.
type Browser struct {
	config   *BrowserConfig
	allocCtx context.Context
	cancel   context.CancelFunc
}

// NewBrowser creates an unstarted browser manager
func NewBrowser(config *BrowserConfig) *Browser {
	return &Browser{config: config}
}

// Start launches the Chrome allocator. Tabs are created lazily per page.
func (b *Browser) Start() error {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
	}

	if b.config.Headless {
		opts = append(opts, chromedp.Headless)
	}

	if b.config.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(b.config.ExecutablePath))
	}

	b.allocCtx, b.cancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return nil
}

// Close shuts down Chrome
func (b *Browser) Close() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

// ProbeFactory returns a factory that opens a fresh tab per call. The
// returned release function closes the tab.
func (b *Browser) ProbeFactory() ProbeFactory {
	return func(ctx context.Context) (Probe, func(), error) {
		if b.allocCtx == nil {
			return nil, nil, fmt.Errorf("browser not started")
		}

		tabCtx, tabCancel := chromedp.NewContext(b.allocCtx)

		// Spin up the tab now so failures surface here, not mid-probe
		if err := chromedp.Run(tabCtx); err != nil {
			tabCancel()
			return nil, nil, fmt.Errorf("failed to open tab: %w", err)
		}

		probe := &BrowserProbe{
			ctx:        tabCtx,
			navTimeout: time.Duration(b.config.NavigationTimeout) * time.Second,
		}
		return probe, func() { tabCancel() }, nil
	}
}

// BrowserProbe implements Probe against one Chrome tab
type BrowserProbe struct {
	ctx        context.Context
	navTimeout time.Duration
}

// browserHandle pairs a DOM node with the selector that found it
type browserHandle struct {
	node     *cdp.Node
	selector string
}

// Navigate loads the URL and waits for the document body
func (p *BrowserProbe) Navigate(ctx context.Context, url string) error {
	timeout := p.navTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	if err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Locate finds the first element matching the selector. The found flag
// distinguishes "no match" from a protocol failure.
func (p *BrowserProbe) Locate(ctx context.Context, selector string) (Handle, bool, error) {
	nodes, err := p.queryNodes(ctx, selector)
	if err != nil {
		return nil, false, err
	}
	if len(nodes) == 0 {
		return nil, false, nil
	}
	return &browserHandle{node: nodes[0], selector: selector}, true, nil
}

// Count returns how many elements match the selector
func (p *BrowserProbe) Count(ctx context.Context, selector string) (int, error) {
	nodes, err := p.queryNodes(ctx, selector)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// TagName returns the element's lowercased tag name
func (p *BrowserProbe) TagName(ctx context.Context, h Handle) (string, error) {
	bh, err := asBrowserHandle(h)
	if err != nil {
		return "", err
	}
	return strings.ToLower(bh.node.NodeName), nil
}

// Attributes returns the element's attributes as a map
func (p *BrowserProbe) Attributes(ctx context.Context, h Handle) (map[string]string, error) {
	bh, err := asBrowserHandle(h)
	if err != nil {
		return nil, err
	}

	attrs := make(map[string]string)
	raw := bh.node.Attributes
	for i := 0; i+1 < len(raw); i += 2 {
		attrs[strings.ToLower(raw[i])] = raw[i+1]
	}
	return attrs, nil
}

// IsVisible reports whether the element takes part in layout
func (p *BrowserProbe) IsVisible(ctx context.Context, h Handle) (bool, error) {
	bh, err := asBrowserHandle(h)
	if err != nil {
		return false, err
	}

	runCtx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
	defer cancel()

	var visible bool
	err = chromedp.Run(runCtx, chromedp.Evaluate(fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); return el !== null && el.offsetParent !== null; })()`,
		bh.selector), &visible))
	if err != nil {
		return false, fmt.Errorf("visibility check for %s failed: %w", bh.selector, err)
	}
	return visible, nil
}

// queryNodes runs a querySelectorAll for the selector, tolerating zero
// matches.
func (p *BrowserProbe) queryNodes(ctx context.Context, selector string) ([]*cdp.Node, error) {
	runCtx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()

	var nodes []*cdp.Node
	err := chromedp.Run(runCtx,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, fmt.Errorf("query %q failed: %w", selector, err)
	}
	return nodes, nil
}

func asBrowserHandle(h Handle) (*browserHandle, error) {
	bh, ok := h.(*browserHandle)
	if !ok {
		return nil, fmt.Errorf("foreign element handle %T", h)
	}
	return bh, nil
}
