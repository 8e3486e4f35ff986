package render

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallpaper-scraper/pkg/config"
	"wallpaper-scraper/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// fakePage grows through heights, then stays at the last one
type fakePage struct {
	heights   []int64
	idx       int
	scrolls   int
	html      string
	location  string
	scrollErr error
	htmlErr   error
}

func (p *fakePage) ScrollHeight() (int64, error) {
	h := p.heights[p.idx]
	if p.idx < len(p.heights)-1 {
		p.idx++
	}
	return h, nil
}

func (p *fakePage) ScrollToBottom() error {
	p.scrolls++
	return p.scrollErr
}

func (p *fakePage) HTML() (string, error)     { return p.html, p.htmlErr }
func (p *fakePage) Location() (string, error) { return p.location, nil }

// fakeBrowser hands out one page and counts releases
type fakeBrowser struct {
	page     *fakePage
	openErr  error
	opened   []string
	waitIdle []bool
	releases int
}

func (b *fakeBrowser) Open(ctx context.Context, pageURL string, waitIdle bool) (Page, func(), error) {
	b.opened = append(b.opened, pageURL)
	b.waitIdle = append(b.waitIdle, waitIdle)
	if b.openErr != nil {
		return nil, nil, b.openErr
	}
	return b.page, func() { b.releases++ }, nil
}

func testRenderConfig(maxScrolls int) config.RenderConfig {
	return config.RenderConfig{
		ScrollSettle:        time.Millisecond,
		MaxScrollIterations: maxScrolls,
		CategorySelectors:   config.DefaultCategorySelectors,
		AlbumSelectors:      config.DefaultAlbumSelectors,
	}
}

func TestScrollUntilStable_StopsWhenHeightUnchanged(t *testing.T) {
	page := &fakePage{heights: []int64{1000, 2000, 3000, 3000}}
	r := NewRenderer(&fakeBrowser{page: page}, testRenderConfig(50), testLogger())

	scrolls, err := r.scrollUntilStable(context.Background(), page)
	require.NoError(t, err)
	// 1000 -> 2000 -> 3000 -> 3000 (stable)
	assert.Equal(t, 3, scrolls)
	assert.Equal(t, 3, page.scrolls)
}

func TestScrollUntilStable_StableImmediately(t *testing.T) {
	page := &fakePage{heights: []int64{800}}
	r := NewRenderer(&fakeBrowser{page: page}, testRenderConfig(50), testLogger())

	scrolls, err := r.scrollUntilStable(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, 1, scrolls)
}

func TestScrollUntilStable_CapReached(t *testing.T) {
	heights := make([]int64, 100)
	for i := range heights {
		heights[i] = int64(i * 500)
	}
	page := &fakePage{heights: heights}
	r := NewRenderer(&fakeBrowser{page: page}, testRenderConfig(4), testLogger())

	scrolls, err := r.scrollUntilStable(context.Background(), page)
	require.NoError(t, err, "hitting the cap is not an error")
	assert.Equal(t, 4, scrolls)
	assert.Equal(t, 4, page.scrolls)
}

func TestScrollUntilStable_ContextCancelled(t *testing.T) {
	page := &fakePage{heights: []int64{1, 2, 3}}
	cfg := testRenderConfig(50)
	cfg.ScrollSettle = time.Hour
	r := NewRenderer(&fakeBrowser{page: page}, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.scrollUntilStable(ctx, page)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDiscover_ExtractsAndReleases(t *testing.T) {
	page := &fakePage{
		heights:  []int64{10, 10},
		html:     albumHTML,
		location: "https://wallpapercave.com/final-album",
	}
	browser := &fakeBrowser{page: page}
	r := NewRenderer(browser, testRenderConfig(50), testLogger())

	links, err := r.DiscoverItems(context.Background(), "https://wallpapercave.com/album")
	require.NoError(t, err)

	assert.Len(t, links, 4)
	assert.Equal(t, "https://wallpapercave.com/w/wp100", links[0])
	assert.Equal(t, 1, browser.releases)
	assert.Equal(t, []bool{false}, browser.waitIdle)
}

func TestDiscoverAlbums_WaitsForIdle(t *testing.T) {
	page := &fakePage{heights: []int64{10}, html: `<a class="albumthumbnail" href="/a1">a</a>`}
	browser := &fakeBrowser{page: page}
	r := NewRenderer(browser, testRenderConfig(50), testLogger())

	links, err := r.DiscoverAlbums(context.Background(), "https://wallpapercave.com/categories/x")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://wallpapercave.com/a1"}, links)
	assert.Equal(t, []bool{true}, browser.waitIdle)
}

func TestDiscover_OpenFailure(t *testing.T) {
	browser := &fakeBrowser{openErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	r := NewRenderer(browser, testRenderConfig(50), testLogger())

	links, err := r.DiscoverItems(context.Background(), "https://unreachable.invalid/album")
	require.Error(t, err)
	assert.Nil(t, links)
	assert.ErrorIs(t, err, utils.ErrDiscovery)
	assert.Contains(t, err.Error(), "unreachable.invalid")
	assert.Equal(t, 0, browser.releases)
}

func TestDiscover_ScrollFailureReleases(t *testing.T) {
	page := &fakePage{heights: []int64{1, 2}, scrollErr: errors.New("target closed")}
	browser := &fakeBrowser{page: page}
	r := NewRenderer(browser, testRenderConfig(50), testLogger())

	_, err := r.DiscoverItems(context.Background(), "https://wallpapercave.com/album")
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrDiscovery)
	assert.Equal(t, 1, browser.releases)
}

func TestDiscover_HTMLFailureReleases(t *testing.T) {
	page := &fakePage{heights: []int64{1}, htmlErr: errors.New("node not found")}
	browser := &fakeBrowser{page: page}
	r := NewRenderer(browser, testRenderConfig(50), testLogger())

	_, err := r.DiscoverItems(context.Background(), "https://wallpapercave.com/album")
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrDiscovery)
	assert.Equal(t, 1, browser.releases)
}

func TestToHTTPCookies(t *testing.T) {
	in := []*network.Cookie{
		{Name: "cf_clearance", Value: "abc", Domain: ".wallpapercave.com", Path: "/", Secure: true, HTTPOnly: true, Expires: 1893456000},
		{Name: "session", Value: "s", Path: "/"},
	}

	out := toHTTPCookies(in)
	require.Len(t, out, 2)
	assert.Equal(t, "cf_clearance", out[0].Name)
	assert.Equal(t, ".wallpapercave.com", out[0].Domain)
	assert.True(t, out[0].Secure)
	assert.True(t, out[0].HttpOnly)
	assert.Equal(t, time.Unix(1893456000, 0), out[0].Expires)
	assert.True(t, out[1].Expires.IsZero())
	assert.IsType(t, &http.Cookie{}, out[1])
}
