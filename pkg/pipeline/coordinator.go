package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"runtime/debug"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"wallpaper-scraper/pkg/config"
	"wallpaper-scraper/pkg/download"
	"wallpaper-scraper/pkg/models"
	"wallpaper-scraper/pkg/utils"
)

// Resolver maps an item page to its direct image URL.
type Resolver interface {
	Resolve(ctx context.Context, itemURL string) (string, bool)
}

// Downloader writes one direct image URL to dest.
type Downloader interface {
	Download(ctx context.Context, directURL, dest string) models.Outcome
}

// HostLimiter bounds concurrent network work per host.
type HostLimiter interface {
	Do(ctx context.Context, host string, fn func() error) error
}

// Progress is advanced once per finished item.
type Progress interface {
	Advance(outcome models.Outcome)
	Close()
}

// ProgressFactory creates the progress display for a batch of total items.
type ProgressFactory func(total int) Progress

// itemTask is one unit of work handed to a worker
type itemTask struct {
	index   int
	itemURL string
}

// Coordinator fans a batch of item URLs out to a fixed pool of workers and
// collects exactly one outcome per item.
type Coordinator struct {
	resolver    Resolver
	downloader  Downloader
	hosts       HostLimiter
	concurrency int
	progress    ProgressFactory
	log         *logrus.Entry
}

// NewCoordinator creates a Coordinator running at most concurrency items at
// once. A non-positive concurrency means the default.
func NewCoordinator(resolver Resolver, downloader Downloader, concurrency int, log *logrus.Entry) *Coordinator {
	if concurrency <= 0 {
		concurrency = config.DefaultConcurrency
	}
	return &Coordinator{
		resolver:    resolver,
		downloader:  downloader,
		concurrency: concurrency,
		log:         log,
	}
}

// SetHostLimiter gates resolve and download behind a per-host limit.
func (c *Coordinator) SetHostLimiter(h HostLimiter) { c.hosts = h }

// SetProgress installs the progress display used by each Run.
func (c *Coordinator) SetProgress(f ProgressFactory) { c.progress = f }

// Run processes items into destDir and returns the aggregated totals. It
// returns only after every item has produced its outcome. Items still queued
// when ctx is cancelled are counted as Failed without any network access.
func (c *Coordinator) Run(ctx context.Context, items []string, destDir string) models.Totals {
	var totals models.Totals
	if len(items) == 0 {
		return totals
	}

	progress := c.newProgress(len(items))
	defer progress.Close()

	numWorkers := c.concurrency
	if numWorkers > len(items) {
		numWorkers = len(items)
	}
	taskChan := make(chan itemTask, numWorkers*2)
	resultChan := make(chan models.Outcome, numWorkers)

	c.log.WithFields(logrus.Fields{"items": len(items), "workers": numWorkers}).Debug("Launching item workers")

	// Workers never stop early: a cancelled worker keeps draining taskChan so
	// every item reports an outcome, and only then returns the cancellation.
	var g errgroup.Group
	for i := 1; i <= numWorkers; i++ {
		id := i
		g.Go(func() error {
			return c.worker(ctx, id, destDir, taskChan, resultChan)
		})
	}

	var waitErr error
	go func() {
		for i, item := range items {
			taskChan <- itemTask{index: i, itemURL: item}
		}
		close(taskChan)
		waitErr = g.Wait()
		close(resultChan)
	}()

	completed := 0
	for outcome := range resultChan {
		totals.Add(outcome)
		progress.Advance(outcome)
		completed++
	}
	if completed != len(items) {
		c.log.Errorf("Collected %d outcomes for %d items", completed, len(items))
	}
	// resultChan is closed after waitErr is set.
	if waitErr != nil {
		c.log.WithField("failed", totals.Failed).Infof("Batch interrupted: %v", waitErr)
	}
	return totals
}

func (c *Coordinator) newProgress(total int) Progress {
	if c.progress == nil {
		return noProgress{}
	}
	if p := c.progress(total); p != nil {
		return p
	}
	return noProgress{}
}

// worker processes tasks from taskChan until it is closed. It returns the
// context error if the run was cancelled while it was working.
func (c *Coordinator) worker(ctx context.Context, id int, destDir string, taskChan <-chan itemTask, resultChan chan<- models.Outcome) error {
	workerLog := c.log.WithField("worker_id", id)
	workerLog.Debug("Item worker started")
	for task := range taskChan {
		resultChan <- c.processItem(ctx, task, destDir)
	}
	workerLog.Debug("Item worker finished (task channel closed)")
	return ctx.Err()
}

// processItem resolves and downloads one item. A panic anywhere inside is
// recovered and reported as Failed.
func (c *Coordinator) processItem(ctx context.Context, task itemTask, destDir string) (outcome models.Outcome) {
	itemLog := c.log.WithFields(logrus.Fields{"item_url": task.itemURL, "index": task.index})

	defer func() {
		if r := recover(); r != nil {
			itemLog.WithFields(logrus.Fields{"panic_info": r, "stack_trace": string(debug.Stack())}).Error("PANIC Recovered in processItem")
			outcome = models.OutcomeFailed
		}
		if !outcome.IsValid() {
			outcome = models.OutcomeFailed
		}
	}()

	if ctx.Err() != nil {
		itemLog.Debug("Run cancelled, item not attempted")
		return models.OutcomeFailed
	}

	var directURL string
	var resolved bool
	err := c.gate(ctx, task.itemURL, func() error {
		directURL, resolved = c.resolver.Resolve(ctx, task.itemURL)
		return nil
	})
	if err != nil || !resolved || directURL == "" {
		if err != nil {
			itemLog.WithField("error_type", utils.CategorizeError(err)).Debugf("Resolve not attempted: %v", err)
		}
		return models.OutcomeFailed
	}

	dest := download.DestinationPath(destDir, directURL)
	err = c.gate(ctx, directURL, func() error {
		outcome = c.downloader.Download(ctx, directURL, dest)
		return nil
	})
	if err != nil {
		itemLog.WithField("error_type", utils.CategorizeError(err)).Debugf("Download not attempted: %v", err)
		return models.OutcomeFailed
	}
	itemLog.WithFields(logrus.Fields{"outcome": outcome, "dest": dest}).Debug("Item finished")
	return outcome
}

// gate runs fn under the host limit for rawURL's host, if a limiter is set.
func (c *Coordinator) gate(ctx context.Context, rawURL string, fn func() error) error {
	if c.hosts == nil {
		return fn()
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: URL '%s': %w", utils.ErrParsing, rawURL, err)
	}
	return c.hosts.Do(ctx, u.Hostname(), fn)
}

type noProgress struct{}

func (noProgress) Advance(models.Outcome) {}
func (noProgress) Close()                 {}
