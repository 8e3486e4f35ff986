package orchestrate

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"wallpaper-scraper/pkg/config"
	"wallpaper-scraper/pkg/models"
	"wallpaper-scraper/pkg/utils"
)

// Discoverer renders listing pages and returns the links found on them.
type Discoverer interface {
	DiscoverAlbums(ctx context.Context, categoryURL string) ([]string, error)
	DiscoverItems(ctx context.Context, albumURL string) ([]string, error)
}

// BatchRunner processes a batch of item URLs into destDir.
type BatchRunner interface {
	Run(ctx context.Context, items []string, destDir string) models.Totals
}

// Observer is told about run milestones so they can be shown to the user.
type Observer interface {
	Guidance(targetURL string)
	DiscoveringAlbums(categoryURL string)
	AlbumsFound(count int)
	CategoryFailed(categoryURL string, err error)
	AlbumStarted(index, total int, albumURL string)
	ItemsFound(count int)
	AlbumFailed(albumURL string, err error)
	AlbumFinished(totals models.Totals)
	SingleImage(itemURL string)
}

// Options configures an Orchestrator
type Options struct {
	OutputDir string
	RunID     string
	Observer  Observer // nil = silent
}

// Orchestrator drives one run: classify the target, discover what it refers
// to, and feed the items of each album through the batch runner.
type Orchestrator struct {
	discoverer Discoverer
	runner     BatchRunner
	opts       Options
	log        *logrus.Entry
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(discoverer Discoverer, runner BatchRunner, opts Options, log *logrus.Entry) *Orchestrator {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Orchestrator{
		discoverer: discoverer,
		runner:     runner,
		opts:       opts,
		log:        log,
	}
}

// NormalizeURL trims whitespace and any trailing slash from user input.
func NormalizeURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// Classify decides what kind of page targetURL refers to.
func Classify(targetURL string) models.TargetKind {
	u := NormalizeURL(targetURL)
	switch {
	case strings.Contains(u, "/categories/"):
		return models.TargetCategory
	case strings.Contains(u, "/w/wp"):
		return models.TargetSingleImage
	case strings.EqualFold(u, config.SiteRoot):
		return models.TargetGeneric
	default:
		return models.TargetAlbum
	}
}

// Run processes target and returns a report of what happened. Per-item and
// per-album failures are recorded in the report; an error is returned only
// when ctx was cancelled before the run finished.
func (o *Orchestrator) Run(ctx context.Context, target string) (models.RunReport, error) {
	target = NormalizeURL(target)
	kind := Classify(target)
	report := models.RunReport{
		RunID:     o.opts.RunID,
		TargetURL: target,
		Kind:      kind,
		OutputDir: o.opts.OutputDir,
		StartTime: time.Now(),
	}
	runLog := o.log.WithFields(logrus.Fields{"target_url": target, "kind": kind})
	runLog.Info("Starting run")

	switch kind {
	case models.TargetGeneric:
		o.opts.Observer.Guidance(target)
	case models.TargetCategory:
		o.runCategory(ctx, target, &report)
	case models.TargetSingleImage:
		o.opts.Observer.SingleImage(target)
		report.Totals = o.runner.Run(ctx, []string{target}, o.opts.OutputDir)
	default:
		result := o.runAlbum(ctx, 0, 1, target)
		report.Albums = append(report.Albums, result)
		report.Totals.Merge(result.Totals)
	}

	report.EndTime = time.Now()
	runLog.WithFields(logrus.Fields{
		"downloaded": report.Totals.Downloaded,
		"skipped":    report.Totals.Skipped,
		"failed":     report.Totals.Failed,
		"elapsed":    report.Elapsed(),
	}).Info("Run finished")

	if err := ctx.Err(); err != nil {
		report.Cancelled = true
		return report, err
	}
	return report, nil
}

// runCategory discovers the albums of a category and processes them one at a time.
func (o *Orchestrator) runCategory(ctx context.Context, categoryURL string, report *models.RunReport) {
	o.opts.Observer.DiscoveringAlbums(categoryURL)
	albums, err := o.discoverer.DiscoverAlbums(ctx, categoryURL)
	if err != nil {
		if ctx.Err() == nil {
			o.log.WithFields(logrus.Fields{"category_url": categoryURL, "error_type": utils.CategorizeError(err)}).Errorf("Album discovery failed: %v", err)
			o.opts.Observer.CategoryFailed(categoryURL, err)
		}
		return
	}
	o.opts.Observer.AlbumsFound(len(albums))

	for i, albumURL := range albums {
		if ctx.Err() != nil {
			o.log.Warnf("Run cancelled, %d album(s) not started", len(albums)-i)
			return
		}
		result := o.runAlbum(ctx, i, len(albums), albumURL)
		report.Albums = append(report.Albums, result)
		report.Totals.Merge(result.Totals)
	}
}

// runAlbum discovers the items of one album and runs them through the batch runner.
func (o *Orchestrator) runAlbum(ctx context.Context, index, total int, albumURL string) models.AlbumResult {
	albumLog := o.log.WithField("album_url", albumURL)
	result := models.AlbumResult{URL: albumURL}
	o.opts.Observer.AlbumStarted(index, total, albumURL)

	items, err := o.discoverer.DiscoverItems(ctx, albumURL)
	if err != nil {
		result.DiscoveryError = err.Error()
		if ctx.Err() == nil {
			albumLog.WithField("error_type", utils.CategorizeError(err)).Warnf("Skipping album: %v", err)
			o.opts.Observer.AlbumFailed(albumURL, err)
		}
		o.opts.Observer.AlbumFinished(result.Totals)
		return result
	}

	result.ItemsFound = len(items)
	o.opts.Observer.ItemsFound(len(items))
	albumLog.WithField("items", len(items)).Debug("Items discovered")

	if len(items) > 0 {
		result.Totals = o.runner.Run(ctx, items, o.opts.OutputDir)
	}
	o.opts.Observer.AlbumFinished(result.Totals)
	return result
}

type nopObserver struct{}

func (nopObserver) Guidance(string)               {}
func (nopObserver) DiscoveringAlbums(string)      {}
func (nopObserver) AlbumsFound(int)               {}
func (nopObserver) CategoryFailed(string, error)  {}
func (nopObserver) AlbumStarted(int, int, string) {}
func (nopObserver) ItemsFound(int)                {}
func (nopObserver) AlbumFailed(string, error)     {}
func (nopObserver) AlbumFinished(models.Totals)   {}
func (nopObserver) SingleImage(string)            {}
