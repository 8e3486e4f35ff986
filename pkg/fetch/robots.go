package fetch

import (
	"context"
	"io"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsHandler fetches, caches, and checks robots.txt rules per host
type RobotsHandler struct {
	fetcher     *Fetcher
	userAgent   string
	robotsCache map[string]*robotstxt.RobotsData // hostname -> parsed data (or nil)
	robotsMu    sync.Mutex
	log         *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler
func NewRobotsHandler(fetcher *Fetcher, userAgent string, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:     fetcher,
		userAgent:   userAgent,
		robotsCache: make(map[string]*robotstxt.RobotsData),
		log:         log,
	}
}

// GetRobotsData retrieves robots.txt data for the targetURL's host, using cache or fetching.
// Returns nil on any error, non-2xx status, or missing file.
func (rh *RobotsHandler) GetRobotsData(ctx context.Context, targetURL *url.URL) *robotstxt.RobotsData {
	host := targetURL.Hostname()

	rh.robotsMu.Lock()
	defer rh.robotsMu.Unlock()
	if data, found := rh.robotsCache[host]; found {
		return data
	}

	scheme := targetURL.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: targetURL.Host, Path: "/robots.txt"}).String()
	robotsLog := rh.log.WithFields(logrus.Fields{"host": host, "robots_url": robotsURL})
	robotsLog.Debug("Fetching robots.txt...")

	// Lock is held across the fetch so concurrent workers wait for one fetch per host.
	rh.robotsCache[host] = rh.fetch(ctx, robotsURL, robotsLog)
	return rh.robotsCache[host]
}

func (rh *RobotsHandler) fetch(ctx context.Context, robotsURL string, robotsLog *logrus.Entry) *robotstxt.RobotsData {
	resp, err := rh.fetcher.Get(ctx, robotsURL)
	if err != nil {
		robotsLog.Debugf("Fetching robots.txt failed, assuming allowed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		robotsLog.Debugf("Error reading robots.txt: %v", err)
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		robotsLog.Debugf("Error parsing robots.txt: %v", err)
		return nil
	}
	robotsLog.Debug("Parsed robots.txt")
	return data
}

// Allowed reports whether the configured user agent may fetch targetURL.
// Returns true when robots data could not be obtained.
func (rh *RobotsHandler) Allowed(ctx context.Context, targetURL *url.URL) bool {
	data := rh.GetRobotsData(ctx, targetURL)
	if data == nil {
		return true
	}
	return data.TestAgent(targetURL.RequestURI(), rh.userAgent)
}
