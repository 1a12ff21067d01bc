package extract

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radarworks/upwork-radar/internal/listing"
)

func mustListing(t *testing.T, html, url string, source listing.Source) listing.Listing {
	t.Helper()
	l, err := New(nil).Listing(html, url, source)
	require.NoError(t, err)
	return l
}

func TestGraphBeatsDOMPrecedence(t *testing.T) {
	t.Parallel()

	html := `<html><head>
		<script id="__NUXT_DATA__" type="application/json">[{"jobTitle": 1}, "A"]</script>
	</head><body>
		<h1 data-test="job-title">B</h1>
	</body></html>`

	l := mustListing(t, html, listing.BaseURL+"/jobs/~01aa", listing.SourceDetail)
	assert.Equal(t, "A", l.Title)
}

func TestGraphAliasOrderIsDeterministic(t *testing.T) {
	t.Parallel()

	// Both title aliases in one mapping: keys walk in sorted order, so
	// jobTitle always lands first and repeated runs agree.
	html := `<html><head>
		<script id="__NUXT_DATA__" type="application/json">[{"title": 1, "jobTitle": 2}, "From title", "From jobTitle"]</script>
	</head></html>`

	for i := 0; i < 20; i++ {
		l := mustListing(t, html, listing.BaseURL+"/jobs/~01ad", listing.SourceDetail)
		assert.Equal(t, "From jobTitle", l.Title)
	}
}

func TestDOMBeatsMetaPrecedence(t *testing.T) {
	t.Parallel()

	html := `<html><head>
		<meta property="og:title" content="Meta Title">
		<meta name="description" content="meta description">
	</head><body>
		<h1 data-test="job-title">DOM Title</h1>
	</body></html>`

	l := mustListing(t, html, listing.BaseURL+"/jobs/~01ab", listing.SourceDetail)
	assert.Equal(t, "DOM Title", l.Title)
	// Description only exists in metadata, so the lower strategy supplies it.
	assert.Equal(t, "meta description", l.Description)
}

func TestGraphCoercions(t *testing.T) {
	t.Parallel()

	graph := `[
		{"job": 1},
		{"totalSpent": "$12,500.50", "connectPrice": 2, "paymentVerificationStatus": 3,
		 "skills": 4, "proposalCount": "15 to 20"},
		16,
		1,
		[5, 6],
		{"name": "Python"},
		{"name": "Go"}
	]`
	html := fmt.Sprintf(
		`<html><head><script id="__NUXT_DATA__" type="application/json">%s</script></head></html>`,
		graph,
	)

	l := mustListing(t, html, listing.BaseURL+"/jobs/~01ac", listing.SourceDetail)

	require.NotNil(t, l.ClientTotalSpent)
	assert.InDelta(t, 12500.50, *l.ClientTotalSpent, 0.001)

	// connectPrice is an offset reference: graph[2] == 16.
	require.NotNil(t, l.ConnectsRequired)
	assert.Equal(t, 16, *l.ConnectsRequired)

	// paymentVerificationStatus resolves to the numeric success marker.
	assert.True(t, l.PaymentVerified)

	assert.Equal(t, []string{"Python", "Go"}, l.Skills)

	require.NotNil(t, l.ProposalsCount)
	assert.Equal(t, 15, *l.ProposalsCount)
}

func TestVerifiedFlagRejectsNonMarkers(t *testing.T) {
	t.Parallel()

	html := `<html><head><script id="__NUXT_DATA__" type="application/json">
		[{"paymentVerificationStatus": "pending"}]
	</script></head></html>`

	l := mustListing(t, html, listing.BaseURL+"/jobs/~01ad", listing.SourceDetail)
	assert.False(t, l.PaymentVerified)
}

func TestDOMHourlyBudget(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<h1 data-test="job-title">Rate work</h1>
		<div data-test="job-budget">Hourly: $30.00 - $45.00 /hr</div>
	</body></html>`

	l := mustListing(t, html, listing.BaseURL+"/jobs/~01ae", listing.SourceDetail)
	assert.Equal(t, listing.PricingHourly, l.BudgetType)
	require.NotNil(t, l.HourlyRateMin)
	require.NotNil(t, l.HourlyRateMax)
	assert.InDelta(t, 30.0, *l.HourlyRateMin, 0.001)
	assert.InDelta(t, 45.0, *l.HourlyRateMax, 0.001)
}

func TestPlaceholderTitleWhenAllStrategiesMiss(t *testing.T) {
	t.Parallel()

	l := mustListing(t, "<html><body><p>nothing here</p></body></html>",
		listing.BaseURL+"/jobs/~01af", listing.SourceDetail)
	assert.Equal(t, PlaceholderTitle, l.Title)
	assert.Equal(t, "~01af", l.ID)
}

func TestListingSetsProvenance(t *testing.T) {
	t.Parallel()

	l := mustListing(t, "<html><body><h1>x</h1></body></html>",
		listing.BaseURL+"/jobs/~01b0", listing.SourceDetail)
	assert.Equal(t, listing.SourceDetail, l.Source)
	assert.False(t, l.FetchedAt.IsZero())
	assert.NotEmpty(t, l.RawHTML)
}

func TestTilesKnownSelector(t *testing.T) {
	t.Parallel()

	html := `<html><body><div data-test="job-tile-list">
		<section>
			<h3><a href="/jobs/Build-API_~01c1/">Build an API</a></h3>
			<div data-test="job-type">Fixed: $500</div>
			<span data-test="contractor-tier">Expert</span>
			<div data-test="token-container"><a>Go</a><a>PostgreSQL</a></div>
		</section>
		<section>
			<h3><a href="/jobs/Scrape_~01c2/">Scrape a site</a></h3>
		</section>
	</div></body></html>`

	page, err := NewPage(html, listing.FeedURL)
	require.NoError(t, err)
	tiles := Tiles(page)
	require.Len(t, tiles, 2)

	first := tiles[0]
	assert.Equal(t, "~01c1", first.ID)
	assert.Equal(t, listing.BaseURL+"/jobs/Build-API_~01c1/", first.URL)
	assert.Equal(t, "Build an API", first.Title)
	assert.Equal(t, listing.PricingFixed, first.BudgetType)
	require.NotNil(t, first.BudgetAmount)
	assert.InDelta(t, 500.0, *first.BudgetAmount, 0.001)
	assert.Equal(t, "Expert", first.ExperienceLevel)
	assert.Equal(t, []string{"Go", "PostgreSQL"}, first.Skills)
}

func TestTilesAnchorFallback(t *testing.T) {
	t.Parallel()

	// No known tile container matches, but detail-shaped anchors exist.
	html := `<html><body>
		<div class="totally-new-markup">
			<a href="/jobs/React-fix_~01d1/">React fix</a>
			<a href="/jobs/React-fix_~01d1/">React fix duplicate</a>
			<a href="/details/~01d2">Another job</a>
			<a href="/nx/search/jobs/">not a job link</a>
		</div>
	</body></html>`

	page, err := NewPage(html, listing.FeedURL)
	require.NoError(t, err)
	tiles := Tiles(page)
	require.Len(t, tiles, 2)
	assert.Equal(t, "~01d1", tiles[0].ID)
	assert.Equal(t, listing.BaseURL+"/jobs/React-fix_~01d1/", tiles[0].URL)
	assert.Equal(t, "React fix", tiles[0].Title)
	assert.Equal(t, "~01d2", tiles[1].ID)
}

func TestTileListingsTagQuery(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<article class="job-tile"><h2><a href="/jobs/~01e1">Data entry</a></h2></article>
	</body></html>`

	out, err := New(nil).TileListings(html, listing.SearchURL, listing.SourceSearch, "data entry")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, listing.SourceSearch, out[0].Source)
	assert.Equal(t, "data entry", out[0].SearchQuery)
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b c", cleanText("  a\n\tb   c  "))
	assert.Empty(t, cleanText(""))
}

func TestParseMoney(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{in: "$1,500.00", want: 1500, ok: true},
		{in: "4.9 of 47 reviews", want: 4.9, ok: true},
		{in: "Total spent $10K+", want: 10, ok: true},
		{in: "no numbers", ok: false},
		{in: "", ok: false},
	}
	for _, tc := range tests {
		got := parseMoney(tc.in)
		if !tc.ok {
			assert.Nil(t, got, tc.in)
			continue
		}
		require.NotNil(t, got, tc.in)
		assert.InDelta(t, tc.want, *got, 0.001, tc.in)
	}
}

func TestParseCount(t *testing.T) {
	t.Parallel()

	got := parseCount("Proposals: 20 to 50")
	require.NotNil(t, got)
	assert.Equal(t, 20, *got)
	assert.Nil(t, parseCount("none"))
}
