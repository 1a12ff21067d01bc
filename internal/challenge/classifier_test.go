package challenge

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radarworks/upwork-radar/internal/listing"
)

type fakePage struct {
	html     string
	location string
	reads    atomic.Int64
	// clearAfter switches html to clearHTML once reads exceed it (0 = never).
	clearAfter int64
	clearHTML  string
}

func (f *fakePage) Content(context.Context) (string, error) {
	n := f.reads.Add(1)
	if f.clearAfter > 0 && n > f.clearAfter {
		return f.clearHTML, nil
	}
	return f.html, nil
}

func (f *fakePage) Location(context.Context) (string, error) {
	return f.location, nil
}

func newClassifier(t *testing.T) *Classifier {
	t.Helper()
	return New(nil, listing.IsLoginShape, WithPollInterval(time.Millisecond))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	c := newClassifier(t)

	tests := []struct {
		name     string
		html     string
		location string
		want     State
		kind     string
	}{
		{
			name:     "clear page",
			html:     "<html><body><h1>Best Matches</h1></body></html>",
			location: listing.FeedURL,
			want:     Clear,
		},
		{
			name:     "cloudflare interstitial",
			html:     "<html><title>Just a moment...</title></html>",
			location: listing.FeedURL,
			want:     Interstitial,
		},
		{
			name:     "checking your browser marker",
			html:     "<html><body>Checking your browser before accessing</body></html>",
			location: listing.FeedURL,
			want:     Interstitial,
		},
		{
			name:     "hcaptcha iframe",
			html:     `<html><body><iframe src="https://hcaptcha.com/x"></iframe></body></html>`,
			location: listing.FeedURL,
			want:     Interactive,
			kind:     "hcaptcha",
		},
		{
			name:     "recaptcha iframe",
			html:     `<html><body><iframe src="https://www.google.com/recaptcha/api2"></iframe></body></html>`,
			location: listing.FeedURL,
			want:     Interactive,
			kind:     "recaptcha",
		},
		{
			name:     "site challenge container",
			html:     `<html><body><div data-testid="challenge"></div></body></html>`,
			location: listing.FeedURL,
			want:     Interactive,
			kind:     "site_challenge",
		},
		{
			name:     "login redirect",
			html:     "<html><body>Log in</body></html>",
			location: listing.LoginURL,
			want:     LoginRedirect,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res := c.Classify(tc.html, tc.location)
			assert.Equal(t, tc.want, res.State)
			assert.Equal(t, tc.kind, res.Kind)
			assert.NotEmpty(t, res.Message)
		})
	}
}

func TestResolveInterstitialClears(t *testing.T) {
	t.Parallel()

	page := &fakePage{
		html:       "<html>Checking your browser</html>",
		location:   listing.FeedURL,
		clearAfter: 2,
		clearHTML:  "<html><body>content</body></html>",
	}

	res, err := newClassifier(t).Resolve(context.Background(), page, time.Second)
	require.NoError(t, err)
	assert.Equal(t, Clear, res.State)
}

func TestResolveTimeoutEscalatesToInteractive(t *testing.T) {
	t.Parallel()

	// The interstitial never clears and wraps a turnstile widget.
	page := &fakePage{
		html:     `<html>Checking your browser<div id="cf-turnstile"></div></html>`,
		location: listing.FeedURL,
	}

	res, err := newClassifier(t).Resolve(context.Background(), page, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, Interactive, res.State)
	assert.Equal(t, "cloudflare_turnstile", res.Kind)
}

func TestResolveTimeoutWithoutSignature(t *testing.T) {
	t.Parallel()

	page := &fakePage{
		html:     "<html>Checking your browser</html>",
		location: listing.FeedURL,
	}

	res, err := newClassifier(t).Resolve(context.Background(), page, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, Interstitial, res.State)
	assert.Contains(t, res.Message, "did not resolve")
}

func TestResolveClearPageReturnsImmediately(t *testing.T) {
	t.Parallel()

	page := &fakePage{html: "<html><body>fine</body></html>", location: listing.FeedURL}

	res, err := newClassifier(t).Resolve(context.Background(), page, time.Second)
	require.NoError(t, err)
	assert.Equal(t, Clear, res.State)
	assert.EqualValues(t, 1, page.reads.Load())
}

func TestResolveRespectsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := &fakePage{html: "<html>Checking your browser</html>", location: listing.FeedURL}
	_, err := newClassifier(t).Resolve(ctx, page, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
