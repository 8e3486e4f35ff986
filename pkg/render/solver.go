package render

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"wallpaper-scraper/pkg/config"
	"wallpaper-scraper/pkg/fetch"
	"wallpaper-scraper/pkg/utils"
)

// challengePoll is how often the solver re-checks whether the interstitial is gone.
const challengePoll = 1 * time.Second

// ChallengeSolver clears anti-bot interstitials by loading the page in a real
// browser and harvesting the resulting cookies. Solves are serialized so at
// most one extra browser runs alongside discovery.
type ChallengeSolver struct {
	browser *ChromeBrowser
	timeout time.Duration
	markers []*regexp.Regexp
	mu      sync.Mutex
	log     *logrus.Entry
}

// NewChallengeSolver creates a ChallengeSolver sharing the browser settings of discovery.
func NewChallengeSolver(browser *ChromeBrowser, cfg config.ChallengeConfig, log *logrus.Entry) (*ChallengeSolver, error) {
	markers, err := utils.CompileMarkerPatterns(cfg.Markers)
	if err != nil {
		return nil, err
	}
	return &ChallengeSolver{
		browser: browser,
		timeout: cfg.Timeout,
		markers: markers,
		log:     log,
	}, nil
}

// Solve implements fetch.ChallengeSolver.
func (s *ChallengeSolver) Solve(ctx context.Context, pageURL string) (fetch.Clearance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	solveLog := s.log.WithField("url", pageURL)
	tabCtx, release, err := s.browser.newSession(ctx)
	if err != nil {
		return fetch.Clearance{}, err
	}
	defer release()

	solveCtx, cancel := context.WithTimeout(tabCtx, s.timeout)
	defer cancel()

	if err := chromedp.Run(solveCtx, chromedp.Navigate(pageURL)); err != nil {
		return fetch.Clearance{}, fmt.Errorf("navigate: %w", err)
	}

	for {
		var body string
		if err := chromedp.Run(solveCtx, chromedp.OuterHTML("html", &body, chromedp.ByQuery)); err != nil {
			return fetch.Clearance{}, fmt.Errorf("read challenge page: %w", err)
		}
		if !utils.MatchAny(s.markers, []byte(body)) {
			break
		}
		solveLog.Debug("Challenge still present, waiting...")
		if err := sleepCtx(solveCtx, challengePoll); err != nil {
			return fetch.Clearance{}, fmt.Errorf("challenge not cleared within %v: %w", s.timeout, err)
		}
	}

	var (
		cookies   []*network.Cookie
		userAgent string
	)
	err = chromedp.Run(solveCtx,
		chromedp.Evaluate(`navigator.userAgent`, &userAgent),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().WithUrls([]string{pageURL}).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return fetch.Clearance{}, fmt.Errorf("read cookies: %w", err)
	}

	solveLog.WithField("cookies", len(cookies)).Debug("Harvested clearance cookies")
	return fetch.Clearance{Cookies: toHTTPCookies(cookies), UserAgent: userAgent}, nil
}

func toHTTPCookies(in []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}
