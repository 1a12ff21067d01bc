package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radarworks/upwork-radar/internal/listing"
	"github.com/radarworks/upwork-radar/internal/session"
	"github.com/radarworks/upwork-radar/internal/store"
)

type fakeSession struct {
	authenticated bool
	pageHTML      string
	scrollHTML    string
	collectErr    error
	scrollErr     error

	collectedURL string
	scrolls      int
}

func (f *fakeSession) Start(context.Context, bool) session.Status {
	return session.Status{State: session.StateAuthenticated}
}

func (f *fakeSession) CheckAuth(context.Context) session.Status {
	return session.Status{State: session.StateAuthenticated}
}

func (f *fakeSession) Stop(context.Context) session.Status {
	return session.Status{State: session.StateClosed}
}

func (f *fakeSession) Status() session.Status {
	st := session.Status{State: session.StateClosed}
	if f.authenticated {
		st.State = session.StateAuthenticated
		st.LoggedIn = true
	}
	return st
}

func (f *fakeSession) Authenticated() bool { return f.authenticated }

func (f *fakeSession) CollectPage(_ context.Context, url string) (string, error) {
	f.collectedURL = url
	return f.pageHTML, f.collectErr
}

func (f *fakeSession) ScrollCollect(_ context.Context, maxScrolls int) (string, error) {
	f.scrolls = maxScrolls
	if f.scrollErr != nil {
		return "", f.scrollErr
	}
	return f.scrollHTML, nil
}

type fakeDetails struct {
	listing *listing.Listing
	err     error
	gotID   string
}

func (f *fakeDetails) FetchListing(_ context.Context, jobID string) (*listing.Listing, error) {
	f.gotID = jobID
	return f.listing, f.err
}

type fakeExtractor struct {
	tiles []listing.Listing
	err   error

	gotHTML   string
	gotURL    string
	gotSource listing.Source
	gotQuery  string
}

func (f *fakeExtractor) TileListings(html, pageURL string, source listing.Source, query string) ([]listing.Listing, error) {
	f.gotHTML = html
	f.gotURL = pageURL
	f.gotSource = source
	f.gotQuery = query
	return f.tiles, f.err
}

type fakeStore struct {
	runID     uuid.UUID
	upsertErr error
	totalJobs int
	statsErr  error

	upserted   []*listing.Listing
	single     *listing.Listing
	runType    string
	runQuery   string
	finished   bool
	finalCount int
	finalState store.RunStatus
}

func (f *fakeStore) UpsertListing(_ context.Context, l *listing.Listing) error {
	f.single = l
	return f.upsertErr
}

func (f *fakeStore) UpsertListings(_ context.Context, ls []*listing.Listing) (int, error) {
	f.upserted = ls
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	return len(ls), nil
}

func (f *fakeStore) BeginRun(_ context.Context, runType, query string) (uuid.UUID, error) {
	f.runType = runType
	f.runQuery = query
	return f.runID, nil
}

func (f *fakeStore) FinishRun(_ context.Context, _ uuid.UUID, jobCount int, status store.RunStatus) error {
	f.finished = true
	f.finalCount = jobCount
	f.finalState = status
	return nil
}

func (f *fakeStore) Stats(_ context.Context) (store.Stats, error) {
	if f.statsErr != nil {
		return store.Stats{}, f.statsErr
	}
	return store.Stats{TotalJobs: f.totalJobs}, nil
}

func tiles(n int) []listing.Listing {
	out := make([]listing.Listing, n)
	for i := range out {
		out[i] = listing.Listing{ID: fmt.Sprintf("~021%06x", i), Title: "Job"}
	}
	return out
}

func newTestOrchestrator(sess *fakeSession, ext *fakeExtractor, st *fakeStore, det *fakeDetails) *Orchestrator {
	o := New(sess, det, ext, st, zap.NewNop())
	o.now = func() time.Time { return time.Unix(1700000000, 0) }
	return o
}

func TestFetchFeed(t *testing.T) {
	sess := &fakeSession{authenticated: true, pageHTML: "<html>first</html>", scrollHTML: "<html>scrolled</html>"}
	ext := &fakeExtractor{tiles: tiles(3)}
	st := &fakeStore{runID: uuid.New()}
	o := newTestOrchestrator(sess, ext, st, nil)

	res, err := o.FetchFeed(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, listing.FeedURL, sess.collectedURL)
	assert.Equal(t, 5, sess.scrolls)
	assert.Equal(t, "<html>scrolled</html>", ext.gotHTML)
	assert.Equal(t, listing.SourceFeed, ext.gotSource)
	assert.Empty(t, ext.gotQuery)

	assert.Equal(t, st.runID, res.RunID)
	assert.Equal(t, 3, res.JobsFound)
	assert.Equal(t, 3, res.Saved)
	assert.Len(t, res.Listings, 3)
	assert.Len(t, st.upserted, 3)
	assert.Equal(t, "feed", st.runType)
	assert.Equal(t, store.RunCompleted, st.finalState)
	assert.Equal(t, 3, st.finalCount)

	require.NotNil(t, o.Status(context.Background()).LastScrape)
	assert.Equal(t, time.Unix(1700000000, 0), *o.Status(context.Background()).LastScrape)
}

func TestFetchFeedTruncatesToMaxJobs(t *testing.T) {
	sess := &fakeSession{authenticated: true, scrollHTML: "<html/>"}
	ext := &fakeExtractor{tiles: tiles(5)}
	st := &fakeStore{runID: uuid.New()}
	o := newTestOrchestrator(sess, ext, st, nil)

	res, err := o.FetchFeed(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.JobsFound)
	assert.Len(t, st.upserted, 2)
}

func TestFetchFeedRequiresAuthentication(t *testing.T) {
	o := newTestOrchestrator(&fakeSession{}, &fakeExtractor{}, &fakeStore{}, nil)

	_, err := o.FetchFeed(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestFetchFeedScrollFailureUsesInitialPage(t *testing.T) {
	sess := &fakeSession{
		authenticated: true,
		pageHTML:      "<html>first</html>",
		scrollErr:     errors.New("chrome crashed"),
	}
	ext := &fakeExtractor{tiles: tiles(1)}
	st := &fakeStore{runID: uuid.New()}
	o := newTestOrchestrator(sess, ext, st, nil)

	_, err := o.FetchFeed(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "<html>first</html>", ext.gotHTML)
}

func TestFetchFeedPersistFailureMarksRunFailed(t *testing.T) {
	sess := &fakeSession{authenticated: true, scrollHTML: "<html/>"}
	ext := &fakeExtractor{tiles: tiles(2)}
	st := &fakeStore{runID: uuid.New(), upsertErr: errors.New("db down")}
	o := newTestOrchestrator(sess, ext, st, nil)

	_, err := o.FetchFeed(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, st.finished)
	assert.Equal(t, store.RunFailed, st.finalState)
	assert.Nil(t, o.Status(context.Background()).LastScrape)
}

func TestFetchSearch(t *testing.T) {
	sess := &fakeSession{authenticated: true, scrollHTML: "<html/>"}
	ext := &fakeExtractor{tiles: tiles(1)}
	st := &fakeStore{runID: uuid.New()}
	o := newTestOrchestrator(sess, ext, st, nil)

	res, err := o.FetchSearch(context.Background(), listing.SearchParams{Query: "golang api"})
	require.NoError(t, err)

	assert.Contains(t, sess.collectedURL, listing.SearchURL)
	assert.Contains(t, sess.collectedURL, "q=golang+api")
	assert.Equal(t, listing.SourceSearch, ext.gotSource)
	assert.Equal(t, "golang api", ext.gotQuery)
	assert.Equal(t, "search", st.runType)
	assert.Equal(t, "golang api", st.runQuery)
	assert.Equal(t, "golang api", res.Query)
}

func TestFetchSearchRejectsBadParams(t *testing.T) {
	o := newTestOrchestrator(&fakeSession{authenticated: true}, &fakeExtractor{}, &fakeStore{}, nil)

	_, err := o.FetchSearch(context.Background(), listing.SearchParams{SortBy: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestFetchDetail(t *testing.T) {
	want := &listing.Listing{ID: "~021abc", Title: "Backend Engineer"}
	det := &fakeDetails{listing: want}
	st := &fakeStore{}
	o := newTestOrchestrator(&fakeSession{authenticated: true}, &fakeExtractor{}, st, det)

	got, err := o.FetchDetail(context.Background(), "https://www.upwork.com/jobs/Backend_~021abc/")
	require.NoError(t, err)
	assert.Equal(t, "~021abc", det.gotID)
	assert.Same(t, want, got)
	assert.Same(t, want, st.single)
	assert.NotNil(t, o.Status(context.Background()).LastScrape)
}

func TestFetchDetailRejectsURLWithoutID(t *testing.T) {
	o := newTestOrchestrator(&fakeSession{authenticated: true}, &fakeExtractor{}, &fakeStore{}, &fakeDetails{})

	_, err := o.FetchDetail(context.Background(), "https://www.upwork.com/nx/find-work/best-matches")
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestFetchDetailRequiresAuthentication(t *testing.T) {
	o := newTestOrchestrator(&fakeSession{}, &fakeExtractor{}, &fakeStore{}, &fakeDetails{})

	_, err := o.FetchDetail(context.Background(), "~021abc")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestStatusReportsCachedJobs(t *testing.T) {
	o := newTestOrchestrator(&fakeSession{authenticated: true}, &fakeExtractor{}, &fakeStore{totalJobs: 42}, nil)

	rep := o.Status(context.Background())
	assert.Equal(t, 42, rep.JobsInCache)
	assert.Nil(t, rep.LastScrape)
}

func TestStatusToleratesStatsFailure(t *testing.T) {
	o := newTestOrchestrator(&fakeSession{}, &fakeExtractor{}, &fakeStore{statsErr: errors.New("db down")}, nil)

	rep := o.Status(context.Background())
	assert.Zero(t, rep.JobsInCache)
}
