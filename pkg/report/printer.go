package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"wallpaper-scraper/pkg/models"
)

const ruleWidth = 50

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

// Printer writes the human-facing console output of a run. It implements
// orchestrate.Observer.
type Printer struct {
	out io.Writer
	mu  sync.Mutex
}

// NewPrinter creates a Printer writing to out; nil means color.Output.
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = color.Output
	}
	return &Printer{out: out}
}

// Writer returns the destination of the printer, for progress bars sharing it.
func (p *Printer) Writer() io.Writer { return p.out }

func (p *Printer) printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// Target echoes the URL the run will use.
func (p *Printer) Target(targetURL string, isDefault bool) {
	if isDefault {
		p.printf("No URL provided. Using default: %s\n", yellow(targetURL))
	} else {
		p.printf("Using provided URL: %s\n", yellow(targetURL))
	}
	p.printf("%s\n", strings.Repeat("-", ruleWidth))
}

// Guidance explains which URL shapes are accepted when given the bare site root.
func (p *Printer) Guidance(targetURL string) {
	p.printf("%s\n", yellow("Base URL detected. Please provide a more specific URL."))
	p.printf("  Category:     %s/categories/anime-manga\n", targetURL)
	p.printf("  Album:        %s/naruto-wallpapers\n", targetURL)
	p.printf("  Single image: %s/w/wp2544005\n", targetURL)
}

func (p *Printer) DiscoveringAlbums(categoryURL string) {
	p.printf("\n%s\n", cyan("--- DISCOVERY MODE: Finding albums... ---"))
}

func (p *Printer) AlbumsFound(count int) {
	p.printf("\nStarting automatic download process for %d albums...\n", count)
}

func (p *Printer) CategoryFailed(categoryURL string, err error) {
	p.printf("  %s\n", red(fmt.Sprintf("--> Could not discover albums on %s: %v <--", categoryURL, err)))
}

func (p *Printer) AlbumStarted(index, total int, albumURL string) {
	p.printf("\n[%d/%d] Processing Album: %s\n", index+1, total, yellow(albumURL))
}

func (p *Printer) ItemsFound(count int) {
	p.printf("  Found %d individual wallpapers.\n", count)
}

func (p *Printer) AlbumFailed(albumURL string, err error) {
	p.printf("  %s\n", red(fmt.Sprintf("--> Skipping album %s due to a browser error: %v <--", albumURL, err)))
}

func (p *Printer) AlbumFinished(totals models.Totals) {
	p.printf("  Album stats: %s, %s, %s.\n",
		green(fmt.Sprintf("%d downloaded", totals.Downloaded)),
		yellow(fmt.Sprintf("%d skipped", totals.Skipped)),
		red(fmt.Sprintf("%d failed", totals.Failed)))
}

func (p *Printer) SingleImage(itemURL string) {
	p.printf("\n%s\n", cyan("--- SINGLE IMAGE MODE ---"))
}

// Summary prints the final totals, the run time and, when positive, the time
// saved against fetching each downloaded image by hand at manualPerImage.
func (p *Printer) Summary(report models.RunReport, manualPerImage time.Duration) {
	rule := strings.Repeat("=", ruleWidth)
	elapsed := report.Elapsed()

	p.printf("\n%s\n", rule)
	p.printf("%s\n", green("Scraping Complete!"))
	p.printf("  - Downloaded: %s\n", green(report.Totals.Downloaded))
	p.printf("  - Skipped (already exist): %s\n", yellow(report.Totals.Skipped))
	p.printf("  - Failed: %s\n", red(report.Totals.Failed))
	p.printf("  - Total run time: %s\n", cyan(FormatDuration(elapsed)))
	if saved := TimeSaved(report.Totals, elapsed, manualPerImage); saved > 0 {
		p.printf("  - Time saved (vs. %gs/image): %s\n", manualPerImage.Seconds(), cyan(FormatDuration(saved)))
	}
	p.printf("%s\n", rule)
}

func (p *Printer) Interrupted() {
	p.printf("\n\n%s\n", yellow("Script interrupted by user. Exiting."))
}

func (p *Printer) CriticalError(err error) {
	p.printf("\n%s\n", red(fmt.Sprintf("A critical error occurred: %v", err)))
}

func (p *Printer) Finished() {
	p.printf("\n%s\n", cyan("Process finished."))
}

// FormatDuration renders d as "M minutes and S.SS seconds".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	seconds := (d - time.Duration(minutes)*time.Minute).Seconds()
	return fmt.Sprintf("%d minutes and %.2f seconds", minutes, seconds)
}

// TimeSaved estimates how much faster the run was than fetching each
// downloaded image by hand. The result may be negative.
func TimeSaved(totals models.Totals, elapsed, manualPerImage time.Duration) time.Duration {
	return time.Duration(totals.Downloaded)*manualPerImage - elapsed
}
