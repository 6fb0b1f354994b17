package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
)

// actionTimeout bounds one chromedp action sequence; a page that never
// settles shouldn't wedge the tool call that drove it.
const actionTimeout = 60 * time.Second

// BrowserManager drives a headless (or remote) Chrome instance. With a
// remoteURL it attaches to an existing browser over the DevTools protocol;
// otherwise each Run starts a short-lived local headless instance.
type BrowserManager struct {
	remoteURL string // e.g. "ws://localhost:9222"
}

func NewBrowserManager(remoteURL string) *BrowserManager {
	return &BrowserManager{remoteURL: remoteURL}
}

func (m *BrowserManager) Run(ctx context.Context, actions ...chromedp.Action) error {
	var allocatorCtx context.Context
	var cancel context.CancelFunc

	if m.remoteURL != "" {
		allocatorCtx, cancel = chromedp.NewRemoteAllocator(ctx, m.remoteURL)
	} else {
		allocatorCtx, cancel = chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	}
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocatorCtx)
	defer cancel()

	timeoutCtx, cancel := context.WithTimeout(browserCtx, actionTimeout)
	defer cancel()

	return chromedp.Run(timeoutCtx, actions...)
}

// Screenshot captures a full-page screenshot of url.
func (m *BrowserManager) Screenshot(ctx context.Context, url string) ([]byte, error) {
	var buf []byte
	err := m.Run(ctx,
		chromedp.Navigate(url),
		chromedp.FullScreenshot(&buf, 90),
	)
	return buf, err
}

// Navigate opens url.
func (m *BrowserManager) Navigate(ctx context.Context, url string) error {
	return m.Run(ctx, chromedp.Navigate(url))
}

// Click waits for selector to become visible on url, then clicks it.
func (m *BrowserManager) Click(ctx context.Context, url, selector string) error {
	return m.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(selector),
		chromedp.Click(selector),
	)
}

// Type fills the input matching selector on url with text.
func (m *BrowserManager) Type(ctx context.Context, url, selector, text string) error {
	return m.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(selector),
		chromedp.SendKeys(selector, text),
	)
}
