// Package challenge classifies anti-automation page states. Detection is
// substring and element-signature based, best-effort by nature: it covers
// the defenses observed in the wild, not every defense that exists.
package challenge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// State is the outcome of classifying one page snapshot.
type State int

// Classification outcomes.
const (
	// Clear means nothing is blocking content access.
	Clear State = iota
	// Interstitial is a wait-it-out challenge page that may auto-resolve.
	Interstitial
	// Interactive is a puzzle requiring human intervention; Result.Kind
	// names the detected vendor.
	Interactive
	// LoginRedirect means the browser landed on the login flow.
	LoginRedirect
)

func (s State) String() string {
	switch s {
	case Clear:
		return "clear"
	case Interstitial:
		return "interstitial"
	case Interactive:
		return "interactive"
	case LoginRedirect:
		return "login_redirect"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result carries the classification plus a human-readable explanation that
// is surfaced verbatim to the operator.
type Result struct {
	State   State
	Kind    string
	Message string
}

// interstitial challenge markers, matched as substrings of rendered content.
var interstitialMarkers = []string{
	"Just a moment...",
	"Checking your browser",
	"cf-challenge",
	"challenge-platform",
	"turnstile",
}

// Interactive-challenge element signatures, checked in order; the first
// match names the kind.
var interactiveSignatures = []struct {
	selector string
	kind     string
}{
	{selector: `iframe[src*='hcaptcha']`, kind: "hcaptcha"},
	{selector: `iframe[src*='recaptcha']`, kind: "recaptcha"},
	{selector: "#cf-turnstile", kind: "cloudflare_turnstile"},
	{selector: ".cf-challenge", kind: "cloudflare_challenge"},
	{selector: `[data-testid='challenge']`, kind: "site_challenge"},
}

// Snapshot is the minimal page view the classifier needs. Both the live
// browser page and test fixtures satisfy it.
type Snapshot interface {
	Content(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
}

// Classifier inspects page snapshots for challenge states.
type Classifier struct {
	logger       *zap.Logger
	pollInterval time.Duration
	loginShape   func(string) bool
}

// Option adjusts classifier construction.
type Option func(*Classifier)

// WithPollInterval overrides the 2s interstitial re-check cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Classifier) { c.pollInterval = d }
}

// New builds a Classifier. loginShape decides whether a URL belongs to the
// site's login flow.
func New(logger *zap.Logger, loginShape func(string) bool, opts ...Option) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Classifier{
		logger:       logger,
		pollInterval: 2 * time.Second,
		loginShape:   loginShape,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify inspects a single snapshot without waiting. Interstitial markers
// are checked first, then interactive signatures, then the login redirect;
// a page with none of those is clear.
func (c *Classifier) Classify(html, location string) Result {
	if hasInterstitialMarker(html) {
		return Result{
			State:   Interstitial,
			Message: "challenge interstitial present",
		}
	}
	if kind, ok := findInteractive(html); ok {
		return Result{
			State:   Interactive,
			Kind:    kind,
			Message: fmt.Sprintf("interactive %s challenge detected, solve it in the browser window", kind),
		}
	}
	if c.loginShape != nil && c.loginShape(location) {
		return Result{
			State:   LoginRedirect,
			Message: "redirected to the login page",
		}
	}
	return Result{State: Clear, Message: "no challenge detected"}
}

// Resolve classifies the page and, when an interstitial is present, polls
// for its disappearance until the timeout. On timeout it escalates to
// interactive detection; an interstitial that never resolved and matches no
// known interactive signature is reported as an unresolved interstitial.
func (c *Classifier) Resolve(ctx context.Context, page Snapshot, timeout time.Duration) (Result, error) {
	html, location, err := snapshot(ctx, page)
	if err != nil {
		return Result{}, err
	}

	first := c.Classify(html, location)
	if first.State != Interstitial {
		return first, nil
	}

	c.logger.Info("challenge interstitial detected, waiting for auto-resolution",
		zap.Duration("timeout", timeout),
	)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("challenge wait canceled: %w", ctx.Err())
		case <-deadline.C:
			return c.escalate(ctx, page)
		case <-tick.C:
			html, location, err = snapshot(ctx, page)
			if err != nil {
				return Result{}, err
			}
			if !hasInterstitialMarker(html) {
				c.logger.Info("challenge interstitial resolved")
				return c.Classify(html, location), nil
			}
		}
	}
}

// escalate runs after the interstitial wait timed out: the page is blocked,
// the question is only by what.
func (c *Classifier) escalate(ctx context.Context, page Snapshot) (Result, error) {
	html, _, err := snapshot(ctx, page)
	if err != nil {
		return Result{}, err
	}
	if kind, ok := findInteractive(html); ok {
		c.logger.Warn("interstitial escalated to interactive challenge", zap.String("kind", kind))
		return Result{
			State:   Interactive,
			Kind:    kind,
			Message: fmt.Sprintf("interactive %s challenge detected, solve it in the browser window", kind),
		}, nil
	}
	c.logger.Warn("challenge interstitial did not resolve within timeout")
	return Result{
		State:   Interstitial,
		Message: "challenge did not resolve, check the browser window",
	}, nil
}

func snapshot(ctx context.Context, page Snapshot) (html, location string, err error) {
	if html, err = page.Content(ctx); err != nil {
		return "", "", fmt.Errorf("read page content: %w", err)
	}
	if location, err = page.Location(ctx); err != nil {
		return "", "", fmt.Errorf("read page location: %w", err)
	}
	return html, location, nil
}

func hasInterstitialMarker(html string) bool {
	for _, marker := range interstitialMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	return false
}

func findInteractive(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	for _, sig := range interactiveSignatures {
		if doc.Find(sig.selector).Length() > 0 {
			return sig.kind, true
		}
	}
	return "", false
}
