package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radarworks/upwork-radar/internal/session"
)

func TestFetchSendsCookiesAndUserAgent(t *testing.T) {
	var gotCookie, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("master_access_token"); err == nil {
			gotCookie = c.Value
		}
		gotUA = r.UserAgent()
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "FallbackShell/0.9", Timeout: 5 * time.Second})
	res, err := f.Fetch(context.Background(), srv.URL, []session.Cookie{
		{Name: "master_access_token", Value: "tok123", Path: "/"},
	}, "TestShell/1.0")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "tok123", gotCookie)
	assert.Equal(t, "TestShell/1.0", gotUA)
	assert.Contains(t, string(res.Body), "ok")
}

func TestFetchFallsBackToConfiguredUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "FallbackShell/0.9", Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), srv.URL, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "FallbackShell/0.9", gotUA)
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ab/account-security/login", http.StatusFound)
	})
	mux.HandleFunc("/ab/account-security/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("login page"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	res, err := f.Fetch(context.Background(), srv.URL+"/start", nil, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, srv.URL+"/ab/account-security/login", res.FinalURL)
}

func TestFetchReportsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	res, err := f.Fetch(context.Background(), srv.URL, nil, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Equal(t, srv.URL, res.FinalURL)
}

func TestFetchConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), srv.URL, nil, "")
	assert.Error(t, err)
}

func TestFetchCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	f := New(Config{Timeout: 10 * time.Second})
	_, err := f.Fetch(ctx, srv.URL, nil, "")
	assert.ErrorIs(t, err, context.Canceled)
}
