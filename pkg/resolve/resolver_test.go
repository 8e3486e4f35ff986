package resolve

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallpaper-scraper/pkg/config"
	"wallpaper-scraper/pkg/fetch"
)

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	cfg := &config.AppConfig{}
	client := fetch.NewClient(config.HTTPClientConfig{Timeout: 10 * time.Second, MaxRedirects: 10}, "TestAgent/1.0", nil, testLogger())
	return NewResolver(fetch.NewFetcher(client, cfg, testLogger()), cfg.Resolve, testLogger())
}

// siteServer mimics an item page whose download control redirects to the image.
// imageHits counts requests that reached the final image path.
func siteServer(t *testing.T, itemHTML string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	imageHits := &atomic.Int32{}
	mux := http.NewServeMux()
	mux.HandleFunc("/w/wp123", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, itemHTML)
	})
	mux.HandleFunc("/download/wp123", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/cdn/hop", http.StatusFound)
	})
	mux.HandleFunc("/cdn/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/wp/wp123.jpg", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/wp/wp123.jpg", func(w http.ResponseWriter, r *http.Request) {
		imageHits.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte(strings.Repeat("x", 64*1024)))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, imageHits
}

func TestResolve_FollowsRedirectChain(t *testing.T) {
	srv, hits := siteServer(t, `<html><body><a id="tdownload" href="/download/wp123">Download</a></body></html>`)
	r := newTestResolver(t)

	direct, ok := r.Resolve(context.Background(), srv.URL+"/w/wp123")
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/wp/wp123.jpg", direct)
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolve_RelativeHrefAgainstItemPage(t *testing.T) {
	srv, _ := siteServer(t, `<a id="tdownload" href="../download/wp123">Download</a>`)
	r := newTestResolver(t)

	direct, ok := r.Resolve(context.Background(), srv.URL+"/w/wp123")
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/wp/wp123.jpg", direct)
}

func TestResolve_HonoursBaseHref(t *testing.T) {
	srv, _ := siteServer(t, `<html><head><base href="/download/"></head><body><a id="tdownload" href="wp123">Download</a></body></html>`)
	r := newTestResolver(t)

	direct, ok := r.Resolve(context.Background(), srv.URL+"/w/wp123")
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/wp/wp123.jpg", direct)
}

func TestResolve_Absent(t *testing.T) {
	tests := []struct {
		name     string
		itemHTML string
		path     string
	}{
		{"no download control", `<a id="other" href="/download/wp123">x</a>`, "/w/wp123"},
		{"control without href", `<a id="tdownload">x</a>`, "/w/wp123"},
		{"control with blank href", `<a id="tdownload" href="   ">x</a>`, "/w/wp123"},
		{"control points to javascript", `<a id="tdownload" href="javascript:void(0)">x</a>`, "/w/wp123"},
		{"trigger returns 404", `<a id="tdownload" href="/broken">x</a>`, "/w/wp123"},
		{"item page returns 404", ``, "/missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, hits := siteServer(t, tt.itemHTML)
			r := newTestResolver(t)

			direct, ok := r.Resolve(context.Background(), srv.URL+tt.path)
			assert.False(t, ok)
			assert.Empty(t, direct)
			assert.Equal(t, int32(0), hits.Load())
		})
	}
}

func TestResolve_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	direct, ok := newTestResolver(t).Resolve(context.Background(), addr+"/w/wp1")
	assert.False(t, ok)
	assert.Empty(t, direct)
}

func TestResolve_CustomSelector(t *testing.T) {
	srv, _ := siteServer(t, `<a class="dl" href="/download/wp123">x</a>`)
	cfg := &config.AppConfig{Resolve: config.ResolveConfig{DownloadControlSelector: "a.dl"}}
	client := fetch.NewClient(config.HTTPClientConfig{Timeout: 10 * time.Second}, "TestAgent/1.0", nil, testLogger())
	r := NewResolver(fetch.NewFetcher(client, cfg, testLogger()), cfg.Resolve, testLogger())

	direct, ok := r.Resolve(context.Background(), srv.URL+"/w/wp123")
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/wp/wp123.jpg", direct)
}

// denyPaths disallows URLs whose path has the given prefix
type denyPaths struct {
	prefix string
	mu     sync.Mutex
	seen   []string
}

func (d *denyPaths) Allowed(ctx context.Context, u *url.URL) bool {
	d.mu.Lock()
	d.seen = append(d.seen, u.Path)
	d.mu.Unlock()
	return !strings.HasPrefix(u.Path, d.prefix)
}

func TestResolve_RobotsDisallowed(t *testing.T) {
	t.Run("item page", func(t *testing.T) {
		srv, hits := siteServer(t, `<a id="tdownload" href="/download/wp123">x</a>`)
		r := newTestResolver(t)
		r.SetRobotsChecker(&denyPaths{prefix: "/w/"})

		_, ok := r.Resolve(context.Background(), srv.URL+"/w/wp123")
		assert.False(t, ok)
		assert.Equal(t, int32(0), hits.Load())
	})

	t.Run("trigger", func(t *testing.T) {
		srv, hits := siteServer(t, `<a id="tdownload" href="/download/wp123">x</a>`)
		r := newTestResolver(t)
		checker := &denyPaths{prefix: "/download/"}
		r.SetRobotsChecker(checker)

		_, ok := r.Resolve(context.Background(), srv.URL+"/w/wp123")
		assert.False(t, ok)
		assert.Equal(t, int32(0), hits.Load())
		assert.Equal(t, []string{"/w/wp123", "/download/wp123"}, checker.seen)
	})
}

func TestResolve_ConcurrentUse(t *testing.T) {
	srv, hits := siteServer(t, `<a id="tdownload" href="/download/wp123">x</a>`)
	r := newTestResolver(t)

	const n = 10
	var wg sync.WaitGroup
	var resolved atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if direct, ok := r.Resolve(context.Background(), srv.URL+"/w/wp123"); ok && direct != "" {
				resolved.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(n), resolved.Load())
	assert.Equal(t, int32(n), hits.Load())
}

func TestResolve_StalledItemPageTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "<html><body>")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	cfg := &config.AppConfig{}
	client := fetch.NewClient(config.HTTPClientConfig{Timeout: 10 * time.Second}, "TestAgent/1.0", nil, testLogger())
	r := NewResolver(fetch.NewFetcher(client, cfg, testLogger()), config.ResolveConfig{Timeout: 100 * time.Millisecond}, testLogger())

	start := time.Now()
	direct, ok := r.Resolve(context.Background(), srv.URL+"/w/wp123")

	assert.False(t, ok)
	assert.Empty(t, direct)
	assert.Less(t, time.Since(start), 2*time.Second)
}
