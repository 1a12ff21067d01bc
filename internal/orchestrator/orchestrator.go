// Package orchestrator sequences the browser session, the fetch engine
// and the store into the top-level scrape operations the API exposes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radarworks/upwork-radar/internal/listing"
	"github.com/radarworks/upwork-radar/internal/metrics"
	"github.com/radarworks/upwork-radar/internal/session"
	"github.com/radarworks/upwork-radar/internal/store"
)

var (
	// ErrNotAuthenticated means no logged-in browser session is available.
	ErrNotAuthenticated = errors.New("browser session is not authenticated")
	// ErrInvalidParams wraps request validation failures.
	ErrInvalidParams = errors.New("invalid scrape parameters")
)

// Feed page clamps. The feed rarely yields more than ~50 tiles even after
// scrolling, so larger requests are capped rather than rejected.
const (
	defaultFeedJobs = 20
	maxFeedJobs     = 50
	maxSearchJobs   = 100
	feedScrolls     = 5
)

// SessionControl is the slice of the session controller the orchestrator
// drives.
type SessionControl interface {
	Start(ctx context.Context, headless bool) session.Status
	CheckAuth(ctx context.Context) session.Status
	Stop(ctx context.Context) session.Status
	Status() session.Status
	Authenticated() bool
	CollectPage(ctx context.Context, url string) (string, error)
	ScrollCollect(ctx context.Context, maxScrolls int) (string, error)
}

// DetailFetcher fetches and extracts a single detail page.
type DetailFetcher interface {
	FetchListing(ctx context.Context, jobID string) (*listing.Listing, error)
}

// TileExtractor pulls listing records out of a feed or search results page.
type TileExtractor interface {
	TileListings(html, pageURL string, source listing.Source, query string) ([]listing.Listing, error)
}

// Store is the persistence slice the orchestrator drives: merge-writes,
// audit rows, and the cache totals the status report carries.
type Store interface {
	UpsertListing(ctx context.Context, l *listing.Listing) error
	UpsertListings(ctx context.Context, ls []*listing.Listing) (int, error)
	BeginRun(ctx context.Context, runType, query string) (uuid.UUID, error)
	FinishRun(ctx context.Context, id uuid.UUID, jobCount int, status store.RunStatus) error
	Stats(ctx context.Context) (store.Stats, error)
}

// ScrapeResult reports one completed feed or search run.
type ScrapeResult struct {
	RunID      uuid.UUID         `json:"run_id"`
	Source     listing.Source    `json:"source"`
	Query      string            `json:"query,omitempty"`
	JobsFound  int               `json:"jobs_found"`
	Saved      int               `json:"saved"`
	DurationMS int64             `json:"duration_ms"`
	Listings   []listing.Summary `json:"listings"`
}

// StatusReport extends the session status with scrape history and the
// number of listings already sitting in the store.
type StatusReport struct {
	session.Status
	JobsInCache int      `json:"jobs_in_cache"`
	LastScrape  *time.Time `json:"last_scrape,omitempty"`
}

// Orchestrator owns the end-to-end scrape flows.
type Orchestrator struct {
	sess      SessionControl
	details   DetailFetcher
	extractor TileExtractor
	store     Store
	logger    *zap.Logger
	now       func() time.Time

	mu         sync.Mutex
	lastScrape *time.Time
}

// New wires an orchestrator over its collaborators.
func New(sess SessionControl, details DetailFetcher, extractor TileExtractor, st Store, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		sess:      sess,
		details:   details,
		extractor: extractor,
		store:     st,
		logger:    logger,
		now:       time.Now,
	}
}

// Start launches (or re-reports) the browser session.
func (o *Orchestrator) Start(ctx context.Context, headless bool) session.Status {
	return o.sess.Start(ctx, headless)
}

// CheckAuth re-probes the live session for login state.
func (o *Orchestrator) CheckAuth(ctx context.Context) session.Status {
	return o.sess.CheckAuth(ctx)
}

// Stop tears the browser down. Harvested cookies survive for the fetcher.
func (o *Orchestrator) Stop(ctx context.Context) session.Status {
	return o.sess.Stop(ctx)
}

// Status reports the session state plus when data was last collected and
// how many listings the store holds. A failing store count is logged and
// reported as zero rather than failing the whole status call.
func (o *Orchestrator) Status(ctx context.Context) StatusReport {
	o.mu.Lock()
	last := o.lastScrape
	o.mu.Unlock()

	var cached int
	if stats, err := o.store.Stats(ctx); err != nil {
		o.logger.Warn("status: store stats unavailable", zap.Error(err))
	} else {
		cached = stats.TotalJobs
	}
	return StatusReport{Status: o.sess.Status(), JobsInCache: cached, LastScrape: last}
}

// FetchFeed scrapes the personalized best-matches feed through the live
// browser, scrolling to force lazy tiles to render, and merge-writes every
// extracted listing. maxJobs is clamped to [1, 50]; zero means the default.
func (o *Orchestrator) FetchFeed(ctx context.Context, maxJobs int) (*ScrapeResult, error) {
	if maxJobs <= 0 {
		maxJobs = defaultFeedJobs
	}
	if maxJobs > maxFeedJobs {
		maxJobs = maxFeedJobs
	}
	return o.collectPage(ctx, listing.FeedURL, listing.SourceFeed, "", maxJobs)
}

// FetchSearch scrapes one search results page for the given parameters.
func (o *Orchestrator) FetchSearch(ctx context.Context, params listing.SearchParams) (*ScrapeResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	maxJobs := params.MaxResults
	if maxJobs <= 0 {
		maxJobs = defaultFeedJobs
	}
	if maxJobs > maxSearchJobs {
		maxJobs = maxSearchJobs
	}
	return o.collectPage(ctx, params.SearchPageURL(), listing.SourceSearch, params.Query, maxJobs)
}

func (o *Orchestrator) collectPage(ctx context.Context, url string, source listing.Source, query string, maxJobs int) (*ScrapeResult, error) {
	if !o.sess.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	start := o.now()

	html, err := o.sess.CollectPage(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("collect %s page: %w", source, err)
	}
	if scrolled, serr := o.sess.ScrollCollect(ctx, feedScrolls); serr != nil {
		o.logger.Warn("scroll collection failed, using initial page",
			zap.String("source", string(source)), zap.Error(serr))
	} else {
		html = scrolled
	}

	tiles, err := o.extractor.TileListings(html, url, source, query)
	if err != nil {
		return nil, fmt.Errorf("extract %s tiles: %w", source, err)
	}
	if len(tiles) > maxJobs {
		tiles = tiles[:maxJobs]
	}

	runID, err := o.store.BeginRun(ctx, string(source), query)
	if err != nil {
		return nil, fmt.Errorf("open audit row: %w", err)
	}

	records := make([]*listing.Listing, len(tiles))
	for i := range tiles {
		records[i] = &tiles[i]
	}
	saved, err := o.store.UpsertListings(ctx, records)
	if err != nil {
		if ferr := o.store.FinishRun(ctx, runID, saved, store.RunFailed); ferr != nil {
			o.logger.Error("close audit row", zap.Error(ferr))
		}
		return nil, fmt.Errorf("persist %s listings: %w", source, err)
	}
	if err := o.store.FinishRun(ctx, runID, saved, store.RunCompleted); err != nil {
		o.logger.Error("close audit row", zap.Error(err))
	}
	metrics.ObserveSaved(string(source), saved)

	o.touch()
	o.logger.Info("scrape run completed",
		zap.String("source", string(source)),
		zap.String("query", query),
		zap.Int("found", len(tiles)),
		zap.Int("saved", saved))

	summaries := make([]listing.Summary, len(tiles))
	for i, t := range tiles {
		summaries[i] = t.Summarize()
	}
	return &ScrapeResult{
		RunID:      runID,
		Source:     source,
		Query:      query,
		JobsFound:  len(tiles),
		Saved:      saved,
		DurationMS: o.now().Sub(start).Milliseconds(),
		Listings:   summaries,
	}, nil
}

// FetchDetail fetches one job detail page by id or full URL over the
// cookie-authenticated HTTP path and merge-writes the result.
func (o *Orchestrator) FetchDetail(ctx context.Context, jobURLOrID string) (*listing.Listing, error) {
	if !o.sess.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	id := listing.ExtractJobID(jobURLOrID)
	if id == "" {
		return nil, fmt.Errorf("%w: no job id in %q", ErrInvalidParams, jobURLOrID)
	}

	l, err := o.details.FetchListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := o.store.UpsertListing(ctx, l); err != nil {
		return nil, fmt.Errorf("persist listing %s: %w", id, err)
	}
	metrics.ObserveSaved(string(listing.SourceDetail), 1)
	o.touch()
	return l, nil
}

func (o *Orchestrator) touch() {
	now := o.now()
	o.mu.Lock()
	o.lastScrape = &now
	o.mu.Unlock()
}
