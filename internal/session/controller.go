package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radarworks/upwork-radar/internal/challenge"
	"github.com/radarworks/upwork-radar/internal/listing"
	"github.com/radarworks/upwork-radar/internal/metrics"
)

// State is the session lifecycle state.
type State string

const (
	StateClosed          State = "closed"
	StateLaunching       State = "launching"
	StateNeedsLogin      State = "needs_login"
	StateCaptchaRequired State = "captcha_required"
	StateAuthenticated   State = "authenticated"
	StateError           State = "error"
)

// Errors surfaced by controller operations.
var (
	// ErrNotRunning is returned when an operation needs a live browser
	// and none has been started.
	ErrNotRunning = errors.New("session: browser is not running")
	// ErrNotAuthenticated is returned when an operation needs an
	// authenticated session and the current state is anything else.
	ErrNotAuthenticated = errors.New("session: not authenticated")
	// ErrExpired is returned when a previously authenticated session is
	// redirected to the login flow mid-operation.
	ErrExpired = errors.New("session: authentication expired")
)

// ChallengeError reports an anti-bot challenge that did not clear.
type ChallengeError struct {
	Result challenge.Result
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("session: challenge not cleared (%s: %s)", e.Result.Kind, e.Result.Message)
}

// Status is a point-in-time snapshot of the session for callers.
type Status struct {
	State     State  `json:"state"`
	Message   string `json:"message,omitempty"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
	LoggedIn  bool   `json:"logged_in"`
	CookieCnt int    `json:"cookie_count"`
}

// Options tune controller timings. Zero values take defaults.
type Options struct {
	// NavTimeout bounds a single navigation. Default 45s.
	NavTimeout time.Duration
	// ChallengeTimeout bounds interstitial challenge resolution.
	// Default 30s.
	ChallengeTimeout time.Duration
	// ScrollSettle is the pause after each scroll step that gives lazy
	// content time to load. Default 1.5s.
	ScrollSettle time.Duration
}

func (o *Options) withDefaults() {
	if o.NavTimeout <= 0 {
		o.NavTimeout = 45 * time.Second
	}
	if o.ChallengeTimeout <= 0 {
		o.ChallengeTimeout = 30 * time.Second
	}
	if o.ScrollSettle <= 0 {
		o.ScrollSettle = 1500 * time.Millisecond
	}
}

// Controller drives the single browser session through its lifecycle:
//
//	closed -> launching -> {authenticated, needs_login, captcha_required, error}
//
// CheckAuth re-probes the live page and may move between the three live
// states; Stop returns to closed from anywhere. All public methods are
// safe for concurrent use, but browser work itself is serialized: the
// controller holds its lock for the duration of each page operation.
type Controller struct {
	factory    Factory
	classifier *challenge.Classifier
	logger     *zap.Logger
	opts       Options

	mu        sync.Mutex
	state     State
	browser   Browser
	cookies   []Cookie
	userAgent string
	lastErr   string
}

// NewController builds a controller around a browser factory.
func NewController(factory Factory, logger *zap.Logger, opts Options) *Controller {
	opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		factory:    factory,
		classifier: challenge.New(logger, listing.IsLoginShape),
		logger:     logger,
		opts:       opts,
		state:      StateClosed,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cookies returns a copy of the most recently extracted cookie set.
func (c *Controller) Cookies() []Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Cookie, len(c.cookies))
	copy(out, c.cookies)
	return out
}

// UserAgent returns the browser's client identity string, captured on
// the last successful authentication probe.
func (c *Controller) UserAgent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userAgent
}

// Start launches the browser and probes authentication. It is idempotent:
// if a browser is already live it reports the current state without
// launching a second instance. headless=false is the interactive login
// path; a visible window lets the operator complete credentials and any
// CAPTCHA by hand.
func (c *Controller) Start(ctx context.Context, headless bool) Status {
	c.mu.Lock()
	if c.state != StateClosed && c.state != StateError {
		st := c.statusLocked("browser already running")
		c.mu.Unlock()
		return st
	}
	c.setStateLocked(StateLaunching)
	c.lastErr = ""
	c.mu.Unlock()

	b, err := c.factory(ctx, headless)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.setStateLocked(StateError)
		c.lastErr = err.Error()
		c.logger.Error("browser launch failed", zap.Error(err))
		return c.statusLocked("failed to launch browser: " + err.Error())
	}

	c.mu.Lock()
	c.browser = b
	c.mu.Unlock()
	c.logger.Info("browser launched", zap.Bool("headless", headless))

	return c.probe(ctx)
}

// CheckAuth re-evaluates the live page and updates the session state. It
// is the hand-back step after an interactive login: the operator finishes
// logging in, then calls CheckAuth to promote the session.
func (c *Controller) CheckAuth(ctx context.Context) Status {
	c.mu.Lock()
	if c.browser == nil {
		st := c.statusLocked("browser is not running; call start first")
		c.mu.Unlock()
		return st
	}
	c.mu.Unlock()
	return c.probe(ctx)
}

// probe navigates to the authenticated landing page, classifies what
// comes back, and settles the state machine.
func (c *Controller) probe(ctx context.Context) Status {
	c.mu.Lock()
	b := c.browser
	c.mu.Unlock()
	if b == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.statusLocked("browser is not running")
	}

	navCtx, cancel := context.WithTimeout(ctx, c.opts.NavTimeout)
	defer cancel()
	if err := b.Navigate(navCtx, listing.FeedURL); err != nil {
		c.logger.Error("auth probe navigation failed", zap.Error(err))
		return c.failProbe(b, "navigation failed: "+err.Error())
	}

	res, err := c.classifier.Resolve(ctx, b, c.opts.ChallengeTimeout)
	if err != nil {
		return c.failProbe(b, "challenge check failed: "+err.Error())
	}

	loc, _ := b.Location(ctx)

	switch res.State {
	case challenge.LoginRedirect:
		c.mu.Lock()
		defer c.mu.Unlock()
		c.setStateLocked(StateNeedsLogin)
		st := c.statusLocked("login required; complete login in the browser window, then check auth")
		st.URL = loc
		return st
	case challenge.Interstitial, challenge.Interactive:
		c.mu.Lock()
		defer c.mu.Unlock()
		c.setStateLocked(StateCaptchaRequired)
		c.logger.Warn("challenge blocking session",
			zap.String("kind", res.Kind),
			zap.String("message", res.Message))
		st := c.statusLocked(res.Message)
		st.URL = loc
		return st
	}

	// Clear page: harvest cookies and identity so fetchers can reuse them.
	cookies, err := b.Cookies(ctx)
	if err != nil {
		c.logger.Warn("cookie extraction failed", zap.Error(err))
	}
	ua, err := b.UserAgent(ctx)
	if err != nil {
		c.logger.Warn("user agent read failed", zap.Error(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(StateAuthenticated)
	if cookies != nil {
		c.cookies = cookies
	}
	if ua != "" {
		c.userAgent = ua
	}
	c.logger.Info("session authenticated",
		zap.Int("cookies", len(c.cookies)),
		zap.String("url", loc))
	st := c.statusLocked("session is authenticated")
	st.URL = loc
	return st
}

// failProbe releases the browser after a failed probe and enters the
// error state. An errored session must not hold a live handle: Start is
// permitted from error, and launching then would put a second browser
// alongside the leaked one.
func (c *Controller) failProbe(b Browser, msg string) Status {
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Close(closeCtx); err != nil {
		c.logger.Warn("browser close failed", zap.Error(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.browser = nil
	c.setStateLocked(StateError)
	c.lastErr = msg
	return c.statusLocked(msg)
}

// Stop closes the browser and returns the session to closed. Cookies and
// identity captured while authenticated survive the stop so queued work
// holding them can finish; the next Start replaces them.
func (c *Controller) Stop(ctx context.Context) Status {
	c.mu.Lock()
	b := c.browser
	c.browser = nil
	c.setStateLocked(StateClosed)
	c.lastErr = ""
	c.mu.Unlock()

	if b != nil {
		// Final harvest before close: the site rotates cookies during
		// browsing, and the set from the last auth probe may be stale.
		if cookies, err := b.Cookies(ctx); err != nil {
			c.logger.Warn("final cookie extraction failed", zap.Error(err))
		} else if len(cookies) > 0 {
			c.mu.Lock()
			c.cookies = cookies
			c.mu.Unlock()
		}
		if err := b.Close(ctx); err != nil {
			c.logger.Warn("browser close failed", zap.Error(err))
		} else {
			c.logger.Info("browser closed")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked("browser closed")
}

// MarkExpired demotes an authenticated session to needs_login. Fetchers
// call it when a previously valid cookie set starts bouncing to the login
// flow; the transition is synchronous so concurrent status reads never
// see a stale authenticated state.
func (c *Controller) MarkExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAuthenticated {
		return
	}
	c.setStateLocked(StateNeedsLogin)
	c.logger.Warn("session cookies expired; login required")
}

// Authenticated reports whether the session is currently usable for
// cookie-authenticated fetching.
func (c *Controller) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateAuthenticated
}

// Status reports the current state without touching the browser.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateClosed:
		return c.statusLocked("browser is not running")
	case StateError:
		return c.statusLocked(c.lastErr)
	default:
		return c.statusLocked("")
	}
}

// setStateLocked applies a state change and records the transition.
// Callers hold c.mu.
func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	metrics.ObserveSessionTransition(string(s))
}

func (c *Controller) statusLocked(msg string) Status {
	return Status{
		State:     c.state,
		Message:   msg,
		LoggedIn:  c.state == StateAuthenticated,
		CookieCnt: len(c.cookies),
	}
}

// CollectPage navigates the live browser to a URL, waits out any
// interstitial challenge, and returns the rendered DOM. A redirect into
// the login flow demotes the session and returns ErrExpired; an
// unresolved challenge returns a ChallengeError.
func (c *Controller) CollectPage(ctx context.Context, url string) (string, error) {
	c.mu.Lock()
	b := c.browser
	st := c.state
	c.mu.Unlock()
	if b == nil {
		return "", ErrNotRunning
	}
	if st != StateAuthenticated {
		return "", ErrNotAuthenticated
	}

	navCtx, cancel := context.WithTimeout(ctx, c.opts.NavTimeout)
	defer cancel()
	if err := b.Navigate(navCtx, url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}

	res, err := c.classifier.Resolve(ctx, b, c.opts.ChallengeTimeout)
	if err != nil {
		return "", err
	}
	switch res.State {
	case challenge.LoginRedirect:
		c.MarkExpired()
		return "", ErrExpired
	case challenge.Interstitial, challenge.Interactive:
		return "", &ChallengeError{Result: res}
	}

	return b.Content(ctx)
}

// ScrollCollect scrolls the current page to the bottom up to maxScrolls
// times, pausing after each step so lazily loaded tiles can render, and
// returns the final DOM. Scrolling stops early once the page height stops
// growing.
func (c *Controller) ScrollCollect(ctx context.Context, maxScrolls int) (string, error) {
	c.mu.Lock()
	b := c.browser
	st := c.state
	c.mu.Unlock()
	if b == nil {
		return "", ErrNotRunning
	}
	if st != StateAuthenticated {
		return "", ErrNotAuthenticated
	}
	if maxScrolls < 1 {
		maxScrolls = 1
	}

	for i := 0; i < maxScrolls; i++ {
		before, err := b.PageHeight(ctx)
		if err != nil {
			return "", fmt.Errorf("read page height: %w", err)
		}
		if err := b.ScrollToBottom(ctx); err != nil {
			return "", fmt.Errorf("scroll: %w", err)
		}
		select {
		case <-time.After(c.opts.ScrollSettle):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		after, err := b.PageHeight(ctx)
		if err != nil {
			return "", fmt.Errorf("read page height: %w", err)
		}
		if after <= before {
			break
		}
	}

	return b.Content(ctx)
}
