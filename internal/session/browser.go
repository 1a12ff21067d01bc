// Package session owns the single automated-browser session: its lifecycle
// state machine, the extracted cookie set, and the client identity string
// that downstream fetches reuse.
package session

import (
	"context"
)

// Cookie is one browser cookie in transport-neutral form.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"http_only"`
}

// Browser is the owned handle to one live automated browser. The controller
// is its only owner; all operations run strictly sequentially against the
// single page. The chromedp implementation lives in internal/browser; tests
// substitute fakes.
type Browser interface {
	// Navigate loads a URL in the browser's page.
	Navigate(ctx context.Context, url string) error
	// Location returns the page's current URL, after any redirects.
	Location(ctx context.Context) (string, error)
	// Content returns the rendered DOM snapshot.
	Content(ctx context.Context) (string, error)
	// Cookies returns the context's current cookie set.
	Cookies(ctx context.Context) ([]Cookie, error)
	// UserAgent returns the browser's client identity string.
	UserAgent(ctx context.Context) (string, error)
	// ScrollToBottom scrolls the page to its current bottom.
	ScrollToBottom(ctx context.Context) error
	// PageHeight returns the current document scroll height.
	PageHeight(ctx context.Context) (int, error)
	// Close releases all browser resources.
	Close(ctx context.Context) error
}

// Factory launches a new browser instance. Exactly one instance may be
// live at a time; the controller enforces that invariant.
type Factory func(ctx context.Context, headless bool) (Browser, error)
