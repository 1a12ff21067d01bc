// Package browser runs the real Chrome instance behind a session. It is
// the only package that talks to chromedp; everything above it sees the
// session.Browser interface.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/radarworks/upwork-radar/internal/session"
)

// Config controls browser launch behavior.
type Config struct {
	// Headless launches without a visible window. Interactive login
	// needs a visible one.
	Headless bool
	// UserAgent overrides the browser default when non-empty.
	UserAgent string
	// NavigationTimeout bounds a single page load. Default 45s.
	NavigationTimeout time.Duration
}

// Chrome is a live Chrome instance with one persistent page. The page
// survives across calls so login state accumulated interactively stays
// in place for later navigations.
type Chrome struct {
	cfg         Config
	logger      *zap.Logger
	allocCancel context.CancelFunc
	pageCtx     context.Context
	pageCancel  context.CancelFunc
}

var _ session.Browser = (*Chrome)(nil)

// Launch starts Chrome and opens its single page.
func Launch(ctx context.Context, cfg Config, logger *zap.Logger) (*Chrome, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	pageCtx, pageCancel := chromedp.NewContext(allocCtx)

	// Force the browser process up now so launch failures surface here
	// instead of on the first navigation.
	startCtx, cancel := context.WithTimeout(pageCtx, cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		pageCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	logger.Info("chrome started", zap.Bool("headless", cfg.Headless))
	return &Chrome{
		cfg:         cfg,
		logger:      logger,
		allocCancel: allocCancel,
		pageCtx:     pageCtx,
		pageCancel:  pageCancel,
	}, nil
}

// NewFactory adapts Launch to the session.Factory shape. The headless
// argument passed at start time wins over cfg.Headless.
func NewFactory(cfg Config, logger *zap.Logger) session.Factory {
	return func(ctx context.Context, headless bool) (session.Browser, error) {
		cfg := cfg
		cfg.Headless = headless
		return Launch(ctx, cfg, logger)
	}
}

// run executes actions against the persistent page, honoring the
// caller's deadline.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := c.pageCtx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads a URL and waits for the body to be ready. The short
// trailing sleep gives client-side rendering a beat to paint.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	err := c.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Location returns the page's current URL.
func (c *Chrome) Location(ctx context.Context) (string, error) {
	var url string
	if err := c.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

// Content returns the rendered DOM.
func (c *Chrome) Content(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return html, nil
}

// Cookies returns the browser context's full cookie jar.
func (c *Chrome) Cookies(ctx context.Context) ([]session.Cookie, error) {
	var out []session.Cookie
	err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		out = make([]session.Cookie, 0, len(cookies))
		for _, ck := range cookies {
			out = append(out, session.Cookie{
				Name:     ck.Name,
				Value:    ck.Value,
				Domain:   ck.Domain,
				Path:     ck.Path,
				Secure:   ck.Secure,
				HTTPOnly: ck.HTTPOnly,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return out, nil
}

// UserAgent reads the identity string the page presents to servers.
func (c *Chrome) UserAgent(ctx context.Context) (string, error) {
	var ua string
	if err := c.run(ctx, chromedp.Evaluate("navigator.userAgent", &ua)); err != nil {
		return "", fmt.Errorf("read user agent: %w", err)
	}
	return ua, nil
}

// ScrollToBottom scrolls the page to its current bottom edge.
func (c *Chrome) ScrollToBottom(ctx context.Context) error {
	err := c.run(ctx, chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight)", nil))
	if err != nil {
		return fmt.Errorf("scroll to bottom: %w", err)
	}
	return nil
}

// PageHeight returns the document scroll height.
func (c *Chrome) PageHeight(ctx context.Context) (int, error) {
	var height int
	if err := c.run(ctx, chromedp.Evaluate("document.body.scrollHeight", &height)); err != nil {
		return 0, fmt.Errorf("read page height: %w", err)
	}
	return height, nil
}

// Close tears down the page and the browser process.
func (c *Chrome) Close(context.Context) error {
	c.pageCancel()
	c.allocCancel()
	c.logger.Info("chrome stopped")
	return nil
}
