// Package fetcher performs single-attempt HTTP fetches that ride on the
// browser session's cookies and identity. Retry and pacing policy live a
// layer up, in the scraper engine.
package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/radarworks/upwork-radar/internal/session"
)

// Config controls collector behavior.
type Config struct {
	// UserAgent is the identity string every request presents. It must
	// match the browser that minted the cookies or the server will
	// flag the mismatch.
	UserAgent string
	Timeout   time.Duration
}

// Result is the outcome of one fetch attempt. StatusCode and FinalURL
// are populated even for non-2xx responses so the caller can classify
// them.
type Result struct {
	FinalURL   string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Fetcher issues cookie-authenticated GETs through a Colly collector.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	base      *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
	)
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:       cfg,
		transport: transport,
		base:      c,
	}
}

// Fetch executes one GET carrying the session cookies and identity.
// userAgent is the string the live browser reported; when empty the
// configured fallback applies. Redirects are followed; the final URL
// lands in the result so the caller can detect a bounce into the login
// flow. A returned error means the request never produced an HTTP
// response.
func (f *Fetcher) Fetch(ctx context.Context, url string, cookies []session.Cookie, userAgent string) (Result, error) {
	var (
		result   Result
		fetchErr error
	)
	start := time.Now()

	collector := f.base.Clone()
	if userAgent == "" {
		userAgent = f.cfg.UserAgent
	}
	if userAgent != "" {
		collector.UserAgent = userAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(f.transport)

	if len(cookies) > 0 {
		if err := collector.SetCookies(url, toHTTPCookies(cookies)); err != nil {
			return Result{}, fmt.Errorf("seed cookies: %w", err)
		}
	}

	collector.OnResponse(func(r *colly.Response) {
		result = Result{
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			result = Result{
				FinalURL:   r.Request.URL.String(),
				StatusCode: r.StatusCode,
				Duration:   time.Since(start),
			}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return Result{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		if result.StatusCode != 0 {
			return result, nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("fetch %s: %w", url, err)
		}
		return result, nil
	}
}

func toHTTPCookies(cookies []session.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		out = append(out, &http.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Secure:   ck.Secure,
			HttpOnly: ck.HTTPOnly,
		})
	}
	return out
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
