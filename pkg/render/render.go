package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"wallpaper-scraper/pkg/config"
	"wallpaper-scraper/pkg/utils"
)

// Page is a loaded document held open in a browser session.
type Page interface {
	ScrollHeight() (int64, error)
	ScrollToBottom() error
	HTML() (string, error)
	Location() (string, error)
}

// Browser opens isolated sessions. The returned release func closes the
// session and must always be called once Open succeeds.
type Browser interface {
	Open(ctx context.Context, pageURL string, waitIdle bool) (Page, func(), error)
}

// Renderer drives a Browser to load lazily populated listing pages in full.
type Renderer struct {
	browser      Browser
	settle       time.Duration
	maxScrolls   int
	categorySels []string
	albumSels    []string
	log          *logrus.Entry
}

// NewRenderer creates a Renderer using the scroll and selector settings of cfg.
func NewRenderer(browser Browser, cfg config.RenderConfig, log *logrus.Entry) *Renderer {
	maxScrolls := cfg.MaxScrollIterations
	if maxScrolls <= 0 {
		maxScrolls = config.DefaultMaxScrollIter
	}
	return &Renderer{
		browser:      browser,
		settle:       cfg.ScrollSettle,
		maxScrolls:   maxScrolls,
		categorySels: cfg.CategorySelectors,
		albumSels:    cfg.AlbumSelectors,
		log:          log,
	}
}

// RenderAndScroll opens pageURL and scrolls until the document height stops
// growing or the iteration cap is hit. On success the caller owns release.
func (r *Renderer) RenderAndScroll(ctx context.Context, pageURL string, waitIdle bool) (Page, func(), error) {
	page, release, err := r.browser.Open(ctx, pageURL, waitIdle)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open %s: %w", utils.ErrDiscovery, pageURL, err)
	}

	scrolls, err := r.scrollUntilStable(ctx, page)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("%w: scroll %s: %w", utils.ErrDiscovery, pageURL, err)
	}
	r.log.WithFields(logrus.Fields{"url": pageURL, "scrolls": scrolls}).Debug("Page fully rendered")
	return page, release, nil
}

// scrollUntilStable returns the number of scroll iterations performed.
func (r *Renderer) scrollUntilStable(ctx context.Context, page Page) (int, error) {
	last, err := page.ScrollHeight()
	if err != nil {
		return 0, err
	}
	for i := 1; i <= r.maxScrolls; i++ {
		if err := page.ScrollToBottom(); err != nil {
			return i, err
		}
		if err := sleepCtx(ctx, r.settle); err != nil {
			return i, err
		}
		height, err := page.ScrollHeight()
		if err != nil {
			return i, err
		}
		if height == last {
			return i, nil
		}
		last = height
	}
	r.log.Warnf("Page height still growing after %d scrolls, extracting what is loaded", r.maxScrolls)
	return r.maxScrolls, nil
}

// Discover renders pageURL and extracts the links matching selectors.
// The browser session is closed before returning.
func (r *Renderer) Discover(ctx context.Context, pageURL string, selectors []string, waitIdle bool) (links []string, err error) {
	page, release, err := r.RenderAndScroll(ctx, pageURL, waitIdle)
	if err != nil {
		return nil, err
	}
	defer release()

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("%w: read DOM of %s: %w", utils.ErrDiscovery, pageURL, err)
	}
	base := pageURL
	if loc, locErr := page.Location(); locErr == nil && loc != "" {
		base = loc
	}
	links, err = ExtractLinks(html, base, selectors)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrDiscovery, err)
	}
	return links, nil
}

// DiscoverAlbums lists the album pages of a category page.
func (r *Renderer) DiscoverAlbums(ctx context.Context, categoryURL string) ([]string, error) {
	return r.Discover(ctx, categoryURL, r.categorySels, true)
}

// DiscoverItems lists the item pages of an album page.
func (r *Renderer) DiscoverItems(ctx context.Context, albumURL string) ([]string, error) {
	return r.Discover(ctx, albumURL, r.albumSels, false)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isTimeout reports whether err came from a deadline rather than a failure.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
