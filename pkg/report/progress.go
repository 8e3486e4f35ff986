package report

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"wallpaper-scraper/pkg/models"
	"wallpaper-scraper/pkg/pipeline"
)

// ProgressBar is a terminal bar advanced once per finished wallpaper.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar creates a bar for total items drawn on w.
func NewProgressBar(w io.Writer, total int) *ProgressBar {
	return &ProgressBar{
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("  Downloading"),
			progressbar.OptionSetItsString("wallpaper"),
			progressbar.OptionShowIts(),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(w)
			}),
		),
	}
}

// Advance implements pipeline.Progress
func (p *ProgressBar) Advance(models.Outcome) {
	p.bar.Add(1)
}

// Close implements pipeline.Progress
func (p *ProgressBar) Close() {
	p.bar.Finish()
}

// ProgressFactory returns bars drawn on w, or nil when disabled.
func ProgressFactory(w io.Writer, enabled bool) pipeline.ProgressFactory {
	if !enabled {
		return nil
	}
	return func(total int) pipeline.Progress {
		return NewProgressBar(w, total)
	}
}
