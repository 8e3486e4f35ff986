package resolve

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"wallpaper-scraper/pkg/config"
	"wallpaper-scraper/pkg/utils"
)

const (
	maxItemPageBytes = 8 * 1024 * 1024
	drainLimit       = 4 * 1024
)

// Getter issues a GET and hands back a 2xx response whose body the caller closes.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*http.Response, error)
}

// RobotsChecker reports whether a URL may be fetched.
type RobotsChecker interface {
	Allowed(ctx context.Context, targetURL *url.URL) bool
}

// Resolver turns an item page URL into the direct image URL behind its
// download control. It never touches the filesystem and is safe for
// concurrent use.
type Resolver struct {
	getter   Getter
	robots   RobotsChecker
	selector string
	timeout  time.Duration
	log      *logrus.Entry
}

// NewResolver creates a Resolver
func NewResolver(getter Getter, cfg config.ResolveConfig, log *logrus.Entry) *Resolver {
	selector := cfg.DownloadControlSelector
	if selector == "" {
		selector = config.DefaultDownloadControl
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultResolveTimeout
	}
	return &Resolver{getter: getter, selector: selector, timeout: timeout, log: log}
}

// SetRobotsChecker makes disallowed item and trigger URLs resolve to absent.
func (r *Resolver) SetRobotsChecker(rc RobotsChecker) { r.robots = rc }

// Resolve returns the direct image URL for itemURL, or ("", false) when any
// hop fails or the whole lookup exceeds the resolve timeout. Failures are
// logged at debug level only.
func (r *Resolver) Resolve(ctx context.Context, itemURL string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	direct, err := r.resolve(ctx, itemURL)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"item_url":   itemURL,
			"error_type": utils.CategorizeError(err),
		}).Debugf("Could not resolve item: %v", err)
		return "", false
	}
	r.log.WithFields(logrus.Fields{"item_url": itemURL, "direct_url": direct}).Debug("Resolved item")
	return direct, true
}

func (r *Resolver) resolve(ctx context.Context, itemURL string) (string, error) {
	trigger, err := r.downloadTrigger(ctx, itemURL)
	if err != nil {
		return "", err
	}
	if err := r.checkRobots(ctx, trigger); err != nil {
		return "", err
	}

	resp, err := r.getter.Get(ctx, trigger.String())
	if err != nil {
		return "", fmt.Errorf("%w: trigger '%s': %w", utils.ErrResolution, trigger, err)
	}
	// Only the address after redirects matters; the image itself is fetched later.
	io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	resp.Body.Close()

	if resp.Request == nil || resp.Request.URL == nil {
		return "", fmt.Errorf("%w: trigger '%s': no final URL", utils.ErrResolution, trigger)
	}
	direct := resp.Request.URL.String()
	if direct == "" {
		return "", fmt.Errorf("%w: trigger '%s': empty final URL", utils.ErrResolution, trigger)
	}
	return direct, nil
}

// downloadTrigger fetches the item page and returns the absolute URL of its
// download control.
func (r *Resolver) downloadTrigger(ctx context.Context, itemURL string) (*url.URL, error) {
	pageURL, err := url.Parse(itemURL)
	if err != nil {
		return nil, fmt.Errorf("%w: item URL '%s': %w", utils.ErrParsing, itemURL, err)
	}
	if err := r.checkRobots(ctx, pageURL); err != nil {
		return nil, err
	}

	resp, err := r.getter.Get(ctx, itemURL)
	if err != nil {
		return nil, fmt.Errorf("%w: item page: %w", utils.ErrResolution, err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxItemPageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: HTML of '%s': %w", utils.ErrParsing, itemURL, err)
	}

	href, ok := doc.Find(r.selector).First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return nil, fmt.Errorf("%w: '%s' not found on '%s'", utils.ErrDownloadControl, r.selector, itemURL)
	}

	base := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}
	if baseHref, exists := doc.Find("base[href]").First().Attr("href"); exists {
		if b, err := base.Parse(strings.TrimSpace(baseHref)); err == nil {
			base = b
		}
	}

	trigger, err := base.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("%w: download URL '%s': %w", utils.ErrParsing, href, err)
	}
	if trigger.Scheme != "http" && trigger.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported download URL scheme '%s'", utils.ErrDownloadControl, trigger.Scheme)
	}
	return trigger, nil
}

func (r *Resolver) checkRobots(ctx context.Context, u *url.URL) error {
	if r.robots == nil || r.robots.Allowed(ctx, u) {
		return nil
	}
	return fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, u)
}
