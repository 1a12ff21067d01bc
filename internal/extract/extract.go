package extract

import (
	"time"

	"go.uber.org/zap"

	"github.com/radarworks/upwork-radar/internal/listing"
	"github.com/radarworks/upwork-radar/internal/metrics"
)

// PlaceholderTitle is re-exported for callers that only import this
// package. It substitutes for records where no strategy produced a
// title. Partial data outranks no data, so extraction never fails outright.
const PlaceholderTitle = listing.PlaceholderTitle

// Extractor merges strategy outputs by fixed precedence into canonical
// listing records.
type Extractor struct {
	strategies []Strategy
	logger     *zap.Logger
	now        func() time.Time
}

// New builds an Extractor with the standard precedence chain:
// graph > DOM selectors > page metadata.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		strategies: []Strategy{graphStrategy{}, domStrategy{}, metaStrategy{}},
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Merge runs every strategy against the page and folds the partials in
// registration order, so a field set by an earlier strategy is never
// overwritten by a later one.
func (e *Extractor) Merge(page *Page) Partial {
	var merged Partial
	for _, strategy := range e.strategies {
		partial, ok := strategy.Attempt(page)
		if !ok {
			e.logger.Debug("strategy skipped page",
				zap.String("strategy", strategy.Name()),
				zap.String("url", page.URL),
			)
			continue
		}
		metrics.ObserveStrategyHit(strategy.Name())
		merged.fill(partial)
	}
	return merged
}

// Listing extracts one canonical record from a detail page. The record id
// comes from the page URL when the page itself did not surface one; a
// placeholder title is substituted when every strategy missed it.
func (e *Extractor) Listing(html, pageURL string, source listing.Source) (listing.Listing, error) {
	page, err := NewPage(html, pageURL)
	if err != nil {
		return listing.Listing{}, err
	}

	merged := e.Merge(page)

	l := listing.Listing{
		ID:        listing.ExtractJobID(pageURL),
		URL:       pageURL,
		Currency:  "USD",
		Source:    source,
		FetchedAt: e.now(),
		RawHTML:   html,
	}
	merged.apply(&l)

	if l.Title == "" {
		l.Title = PlaceholderTitle
		e.logger.Warn("no strategy produced a title", zap.String("url", pageURL))
	}
	return l, nil
}

// TileListings extracts tile-level records from a list page snapshot.
func (e *Extractor) TileListings(html, pageURL string, source listing.Source, query string) ([]listing.Listing, error) {
	page, err := NewPage(html, pageURL)
	if err != nil {
		return nil, err
	}

	partials := Tiles(page)
	out := make([]listing.Listing, 0, len(partials))
	for _, p := range partials {
		l := listing.Listing{
			Currency:    "USD",
			Source:      source,
			SearchQuery: query,
			FetchedAt:   e.now(),
		}
		p.apply(&l)
		if l.ID == "" {
			continue
		}
		if l.Title == "" {
			l.Title = PlaceholderTitle
		}
		out = append(out, l)
	}
	e.logger.Debug("extracted tiles",
		zap.String("source", string(source)),
		zap.Int("count", len(out)),
	)
	return out, nil
}
