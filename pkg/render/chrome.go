package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"wallpaper-scraper/pkg/config"
	applog "wallpaper-scraper/pkg/log"
)

// ChromeBrowser launches a fresh headless Chrome per session via chromedp.
type ChromeBrowser struct {
	cfg       config.RenderConfig
	userAgent string
	cdpLog    *applog.ChromedpLogger
	log       *logrus.Entry
}

// NewChromeBrowser creates a ChromeBrowser
func NewChromeBrowser(cfg config.RenderConfig, userAgent string, log *logrus.Entry) *ChromeBrowser {
	return &ChromeBrowser{
		cfg:       cfg,
		userAgent: userAgent,
		cdpLog:    applog.NewChromedpLogger(log.WithField("source", "chromedp")),
		log:       log,
	}
}

// allocatorOptions builds the Chrome command line for one session.
func (b *ChromeBrowser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.IsHeadless()),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(int(b.cfg.ViewportWidth), int(b.cfg.ViewportHeight)),
	)
	if b.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.userAgent))
	}
	if b.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ChromePath))
	}
	return opts
}

// newSession starts a browser and returns its tab context.
func (b *ChromeBrowser) newSession(ctx context.Context) (context.Context, func(), error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(b.cdpLog.Logf),
		chromedp.WithErrorf(b.cdpLog.Errorf),
		chromedp.WithDebugf(b.cdpLog.Debugf),
	)
	release := func() {
		cancelTab()
		cancelAlloc()
	}

	// The first Run launches the browser. It must not use a timeout context,
	// or the browser would be torn down when that timeout fires.
	if err := chromedp.Run(tabCtx); err != nil {
		release()
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}
	return tabCtx, release, nil
}

// Open navigates a fresh session to pageURL. With waitIdle, it then waits
// for the network to go quiet, bounded by the idle timeout; an idle timeout
// is logged and tolerated.
func (b *ChromeBrowser) Open(ctx context.Context, pageURL string, waitIdle bool) (Page, func(), error) {
	tabCtx, release, err := b.newSession(ctx)
	if err != nil {
		return nil, nil, err
	}

	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	navCtx, cancelNav := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout)
	err = chromedp.Run(navCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.EmulateViewport(b.cfg.ViewportWidth, b.cfg.ViewportHeight),
		chromedp.Navigate(pageURL),
	)
	cancelNav()
	if err != nil {
		release()
		if isTimeout(err) {
			return nil, nil, fmt.Errorf("navigation exceeded %v: %w", b.cfg.NavigationTimeout, err)
		}
		return nil, nil, fmt.Errorf("navigate: %w", err)
	}

	if waitIdle {
		b.waitNetworkIdle(ctx, idle, pageURL)
	}
	return &chromePage{ctx: tabCtx}, release, nil
}

func (b *ChromeBrowser) waitNetworkIdle(ctx context.Context, idle <-chan struct{}, pageURL string) {
	timer := time.NewTimer(b.cfg.IdleTimeout)
	defer timer.Stop()
	select {
	case <-idle:
		b.log.WithField("url", pageURL).Debug("Network idle")
	case <-timer.C:
		b.log.WithField("url", pageURL).Warnf("Network not idle after %v, continuing", b.cfg.IdleTimeout)
	case <-ctx.Done():
	}
}

// chromePage implements Page on a chromedp tab.
type chromePage struct {
	ctx context.Context
}

func (p *chromePage) ScrollHeight() (int64, error) {
	var height int64
	err := chromedp.Run(p.ctx, chromedp.Evaluate(`document.body ? document.body.scrollHeight : 0`, &height))
	return height, err
}

func (p *chromePage) ScrollToBottom() error {
	return chromedp.Run(p.ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

func (p *chromePage) HTML() (string, error) {
	var html string
	err := chromedp.Run(p.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) Location() (string, error) {
	var loc string
	err := chromedp.Run(p.ctx, chromedp.Location(&loc))
	return loc, err
}
