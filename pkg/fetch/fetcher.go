package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"wallpaper-scraper/pkg/config"
	"wallpaper-scraper/pkg/utils"
)

// challengePeekLimit bounds how much of a suspicious body is inspected for markers.
const challengePeekLimit = 64 * 1024

// Clearance is what a solved challenge yields: cookies for the host and the
// user agent they were issued to.
type Clearance struct {
	Cookies   []*http.Cookie
	UserAgent string
}

// ChallengeSolver clears an anti-bot interstitial for the host of pageURL.
type ChallengeSolver interface {
	Solve(ctx context.Context, pageURL string) (Clearance, error)
}

// Fetcher performs single-attempt GET requests through a shared http.Client.
// When a response is recognised as an anti-bot challenge and a solver is set,
// the host is cleared once and the request is re-issued with the clearance.
type Fetcher struct {
	client      *http.Client
	solver      ChallengeSolver
	markers     []*regexp.Regexp
	pacer       *RequestPacer

	solveGroup singleflight.Group
	agentsMu   sync.RWMutex
	agents     map[string]string // host -> user agent bound to its clearance cookies

	log *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, cfg *config.AppConfig, log *logrus.Entry) *Fetcher {
	markers, err := utils.CompileMarkerPatterns(cfg.Challenge.Markers)
	if err != nil {
		log.Warnf("Ignoring challenge markers: %v", err)
		markers = nil
	}
	return &Fetcher{
		client:  client,
		markers: markers,
		agents:  make(map[string]string),
		log:     log,
	}
}

// SetChallengeSolver enables challenge clearance.
func (f *Fetcher) SetChallengeSolver(s ChallengeSolver) { f.solver = s }

// SetPacer enables the per-host politeness delay.
func (f *Fetcher) SetPacer(p *RequestPacer) { f.pacer = p }

// Get issues a GET for rawURL. On success the caller owns resp.Body.
// resp.Request.URL is the final URL after redirects.
// Non-2xx responses are closed and reported as wrapped sentinel errors.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	resp, err := f.do(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if f.isChallenge(resp) {
		drainAndClose(resp)
		if f.solver == nil {
			return nil, fmt.Errorf("%w: %s (no solver configured)", utils.ErrChallenge, rawURL)
		}
		if err := f.clear(ctx, rawURL); err != nil {
			return nil, err
		}
		resp, err = f.do(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if f.isChallenge(resp) {
			drainAndClose(resp)
			return nil, fmt.Errorf("%w: %s (still challenged after clearance)", utils.ErrChallenge, rawURL)
		}
	}

	return f.checkStatus(resp)
}

// do performs exactly one round trip, honouring the pacer.
func (f *Fetcher) do(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	host := req.URL.Hostname()
	if ua := f.agentFor(host); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	if f.pacer != nil {
		if err := f.pacer.Wait(ctx, host); err != nil {
			return nil, err
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			f.log.WithField("url", rawURL).Debugf("Request aborted: %v", err)
		}
		return nil, err
	}
	return resp, nil
}

func (f *Fetcher) checkStatus(resp *http.Response) (*http.Response, error) {
	statusCode := resp.StatusCode
	resLog := f.log.WithFields(logrus.Fields{"url": resp.Request.URL.String(), "status_code": statusCode})

	switch {
	case statusCode >= 200 && statusCode < 300:
		resLog.Debug("Successfully fetched")
		return resp, nil
	case statusCode >= 500:
		drainAndClose(resp)
		return nil, fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, resp.Status)
	case statusCode >= 400:
		drainAndClose(resp)
		return nil, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)
	default:
		drainAndClose(resp)
		return nil, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, resp.Status)
	}
}

// isChallenge reports whether resp is an anti-bot interstitial rather than a
// real error. Only the first challengePeekLimit bytes of the body are read.
func (f *Fetcher) isChallenge(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
	default:
		return false
	}
	if strings.EqualFold(resp.Header.Get("Cf-Mitigated"), "challenge") {
		return true
	}
	if len(f.markers) == 0 {
		return false
	}
	peek, _ := io.ReadAll(io.LimitReader(resp.Body, challengePeekLimit))
	return utils.MatchAny(f.markers, peek)
}

// clear solves the challenge for rawURL's host. Concurrent callers for the
// same host share one solve.
func (f *Fetcher) clear(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: URL %s: %w", utils.ErrParsing, rawURL, err)
	}
	host := u.Hostname()
	hostLog := f.log.WithField("host", host)

	_, err, shared := f.solveGroup.Do(host, func() (interface{}, error) {
		hostLog.Info("Anti-bot challenge detected, solving in browser...")
		clearance, err := f.solver.Solve(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if f.client.Jar != nil && len(clearance.Cookies) > 0 {
			f.client.Jar.SetCookies(&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, clearance.Cookies)
		}
		if clearance.UserAgent != "" {
			f.agentsMu.Lock()
			f.agents[host] = clearance.UserAgent
			f.agentsMu.Unlock()
		}
		hostLog.WithField("cookies", len(clearance.Cookies)).Info("Challenge cleared")
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", utils.ErrChallenge, host, err)
	}
	if shared {
		hostLog.Debug("Reused clearance from concurrent solve")
	}
	return nil
}

func (f *Fetcher) agentFor(host string) string {
	f.agentsMu.RLock()
	defer f.agentsMu.RUnlock()
	return f.agents[host]
}

// drainAndClose discards a bounded amount of the body so the connection can be reused.
func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, challengePeekLimit))
	resp.Body.Close()
}
