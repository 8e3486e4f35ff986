package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"wallpaper-scraper/pkg/models"
)

// RunFunc performs one complete run. runNumber starts at 1.
type RunFunc func(ctx context.Context, runNumber int) (models.RunReport, error)

// Scheduler re-runs the same target periodically. Runs never overlap; if a
// run takes longer than the interval the next one starts right after it.
type Scheduler struct {
	run      RunFunc
	interval time.Duration
	log      *logrus.Entry

	mu     sync.Mutex
	status Status
}

// Status describes the scheduler's progress
type Status struct {
	Runs        int
	LastRunTime time.Time
	LastTotals  models.Totals
	LastError   string
	NextRunTime time.Time
	Cumulative  models.Totals
}

// NewScheduler creates a new watch scheduler
func NewScheduler(run RunFunc, interval time.Duration, log *logrus.Entry) *Scheduler {
	return &Scheduler{
		run:      run,
		interval: interval,
		log:      log,
	}
}

// Run executes the first run immediately and then one run per interval
// until ctx is cancelled. It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %v", s.interval)
	}
	s.log.Infof("Starting watch mode with interval %s", FormatInterval(s.interval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for runNumber := 1; ; runNumber++ {
		select {
		case <-ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			return nil
		case <-timer.C:
		}

		started := time.Now()
		s.runOnce(ctx, runNumber)
		if ctx.Err() != nil {
			s.log.Info("Watch scheduler shutting down...")
			return nil
		}

		next := started.Add(s.interval)
		s.setNext(next)
		s.logNextRun(next)
		timer.Reset(time.Until(next))
	}
}

func (s *Scheduler) runOnce(ctx context.Context, runNumber int) {
	runLog := s.log.WithField("watch_run", runNumber)
	runLog.Info("Watch run starting")

	report, err := s.run(ctx, runNumber)

	s.mu.Lock()
	s.status.Runs = runNumber
	s.status.LastRunTime = report.StartTime
	if s.status.LastRunTime.IsZero() {
		s.status.LastRunTime = time.Now()
	}
	s.status.LastTotals = report.Totals
	s.status.Cumulative.Merge(report.Totals)
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		runLog.Errorf("Watch run failed: %v", err)
		return
	}
	runLog.WithFields(logrus.Fields{
		"downloaded": report.Totals.Downloaded,
		"skipped":    report.Totals.Skipped,
		"failed":     report.Totals.Failed,
	}).Info("Watch run finished")
}

func (s *Scheduler) setNext(next time.Time) {
	s.mu.Lock()
	s.status.NextRunTime = next
	s.mu.Unlock()
}

// logNextRun logs when the next run will occur
func (s *Scheduler) logNextRun(next time.Time) {
	until := time.Until(next)
	if until < 0 {
		until = 0
	}
	s.log.Infof("Next run in %v (at %s)", until.Round(time.Second), next.Format("15:04:05"))
}

// GetStatus returns a snapshot of the scheduler's progress
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string with support for days
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("interval must be positive: %s", s)
		}
		return d, nil
	}

	// Check for day suffix
	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 && days > 0 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("invalid interval format: %s", s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
}
