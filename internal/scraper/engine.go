// Package scraper coordinates concurrent listing fetches: it paces
// requests, caps parallelism, applies the retry policy, and turns fetched
// pages into listings.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/radarworks/upwork-radar/internal/challenge"
	"github.com/radarworks/upwork-radar/internal/extract"
	"github.com/radarworks/upwork-radar/internal/fetcher"
	"github.com/radarworks/upwork-radar/internal/listing"
	"github.com/radarworks/upwork-radar/internal/metrics"
	"github.com/radarworks/upwork-radar/internal/session"
)

// Errors classified by the retry policy.
var (
	// ErrSessionExpired means the cookie set bounced into the login
	// flow. It is never retried; the session needs a fresh login.
	ErrSessionExpired = errors.New("scraper: session expired")
	// ErrChallenged means the response body is an anti-bot challenge
	// page. An HTTP client cannot clear it, so it is not retried.
	ErrChallenged = errors.New("scraper: blocked by anti-bot challenge")
	// ErrExhausted means every retry attempt failed.
	ErrExhausted = errors.New("scraper: retry attempts exhausted")
	// ErrNotAuthenticated means no authenticated session backs the
	// engine right now.
	ErrNotAuthenticated = errors.New("scraper: session is not authenticated")
)

// Session is the slice of the session controller the engine needs.
type Session interface {
	Authenticated() bool
	Cookies() []session.Cookie
	UserAgent() string
	MarkExpired()
}

// PageFetcher performs one fetch attempt carrying the session's cookies
// and the user agent of the browser that minted them.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, cookies []session.Cookie, userAgent string) (fetcher.Result, error)
}

// Config tunes the engine. Zero values take defaults.
type Config struct {
	// MaxConcurrent caps simultaneous fetches. Default 10.
	MaxConcurrent int
	// Delay is the minimum spacing between fetch starts. Default 500ms.
	Delay time.Duration
	// MaxAttempts is the per-URL attempt ceiling. Default 3.
	MaxAttempts int
}

func (c *Config) withDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.Delay <= 0 {
		c.Delay = 500 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
}

// Engine runs the fetch pipeline. Safe for concurrent use.
type Engine struct {
	cfg        Config
	fetcher    PageFetcher
	sess       Session
	extractor  *extract.Extractor
	classifier *challenge.Classifier
	limiter    *rate.Limiter
	slots      chan struct{}
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option adjusts Engine construction.
type Option func(*Engine)

// WithSleep replaces the retry backoff sleeper. Tests use it to avoid
// real waits.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// New builds an Engine.
func New(cfg Config, pf PageFetcher, sess Session, logger *zap.Logger, opts ...Option) *Engine {
	cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	e := &Engine{
		cfg:        cfg,
		fetcher:    pf,
		sess:       sess,
		extractor:  extract.New(logger),
		classifier: challenge.New(logger, listing.IsLoginShape),
		limiter:    rate.NewLimiter(rate.Every(cfg.Delay), 1),
		slots:      make(chan struct{}, cfg.MaxConcurrent),
		logger:     logger,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchPage fetches one URL with the full retry policy and returns the
// final response body. The caller gets ErrSessionExpired, ErrChallenged,
// or ErrExhausted on the corresponding terminal outcomes.
func (e *Engine) FetchPage(ctx context.Context, url string) (fetcher.Result, error) {
	if !e.sess.Authenticated() {
		return fetcher.Result{}, ErrNotAuthenticated
	}

	select {
	case e.slots <- struct{}{}:
	case <-ctx.Done():
		return fetcher.Result{}, ctx.Err()
	}
	defer func() { <-e.slots }()
	metrics.IncInflight()
	defer metrics.DecInflight()

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return fetcher.Result{}, err
		}

		res, err := e.fetcher.Fetch(ctx, url, e.sess.Cookies(), e.sess.UserAgent())
		outcome := e.classify(url, res, err)

		switch {
		case outcome.terminalErr != nil:
			return fetcher.Result{}, outcome.terminalErr
		case outcome.retryAfter >= 0 && attempt < e.cfg.MaxAttempts:
			lastErr = outcome.cause
			wait := outcome.retryAfterFor(attempt)
			metrics.ObserveRetry(outcome.reason)
			e.logger.Warn("fetch attempt failed, retrying",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.String("reason", outcome.reason),
				zap.Error(outcome.cause))
			if err := e.sleep(ctx, wait); err != nil {
				return fetcher.Result{}, err
			}
		case outcome.retryAfter >= 0:
			lastErr = outcome.cause
		default:
			return res, nil
		}
	}

	return fetcher.Result{}, fmt.Errorf("%w: %s after %d attempts: %v",
		ErrExhausted, url, e.cfg.MaxAttempts, lastErr)
}

// attemptOutcome classifies one fetch attempt. Exactly one of the three
// shapes holds: success (all zero), terminal failure (terminalErr set),
// or retryable failure (retryAfter >= 0 with a reason).
type attemptOutcome struct {
	terminalErr error
	retryAfter  time.Duration
	perAttempt  bool
	reason      string
	cause       error
}

func (o attemptOutcome) retryAfterFor(attempt int) time.Duration {
	if o.perAttempt {
		return time.Duration(attempt) * o.retryAfter
	}
	return o.retryAfter
}

func (e *Engine) classify(url string, res fetcher.Result, err error) attemptOutcome {
	if err != nil {
		return attemptOutcome{retryAfter: 2 * time.Second, reason: "connection", cause: err}
	}

	if listing.IsLoginShape(res.FinalURL) {
		e.sess.MarkExpired()
		e.logger.Warn("fetch redirected to login, session expired", zap.String("url", url))
		return attemptOutcome{terminalErr: ErrSessionExpired}
	}

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		return attemptOutcome{
			retryAfter: 5 * time.Second,
			perAttempt: true,
			reason:     "rate_limited",
			cause:      fmt.Errorf("status %d", res.StatusCode),
		}
	case res.StatusCode >= 500:
		return attemptOutcome{
			retryAfter: 2 * time.Second,
			reason:     "server_error",
			cause:      fmt.Errorf("status %d", res.StatusCode),
		}
	case res.StatusCode != http.StatusOK:
		return attemptOutcome{
			terminalErr: fmt.Errorf("fetch %s: unexpected status %d", url, res.StatusCode),
			retryAfter:  -1,
		}
	}

	if ch := e.classifier.Classify(string(res.Body), res.FinalURL); ch.State == challenge.Interstitial || ch.State == challenge.Interactive {
		return attemptOutcome{terminalErr: fmt.Errorf("%w: %s", ErrChallenged, ch.Message), retryAfter: -1}
	}

	return attemptOutcome{retryAfter: -1}
}

// FetchListing fetches one job detail page and extracts a listing.
func (e *Engine) FetchListing(ctx context.Context, jobID string) (*listing.Listing, error) {
	url := listing.DetailURL(jobID)
	start := time.Now()
	res, err := e.FetchPage(ctx, url)
	if err != nil {
		metrics.ObserveFetch(string(listing.SourceDetail), "error", time.Since(start))
		return nil, err
	}
	metrics.ObserveFetch(string(listing.SourceDetail), "ok", time.Since(start))

	l, err := e.extractor.Listing(string(res.Body), res.FinalURL, listing.SourceDetail)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", url, err)
	}
	return &l, nil
}

// ListingResult pairs one requested job with its outcome.
type ListingResult struct {
	JobID   string
	Listing *listing.Listing
	Err     error
}

// FetchListings fetches many job detail pages concurrently. Results come
// back in input order; each carries its own error so one bad job does
// not sink the batch.
func (e *Engine) FetchListings(ctx context.Context, jobIDs []string) []ListingResult {
	results := make([]ListingResult, len(jobIDs))
	var wg sync.WaitGroup
	for i, id := range jobIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			l, err := e.FetchListing(ctx, id)
			results[i] = ListingResult{JobID: id, Listing: l, Err: err}
		}(i, id)
	}
	wg.Wait()
	return results
}
