package models

import "time"

// Totals counts item outcomes. All fields are non-negative.
type Totals struct {
	Downloaded int `yaml:"downloaded"`
	Skipped    int `yaml:"skipped"`
	Failed     int `yaml:"failed"`
}

// Add counts a single outcome. Unknown outcomes count as failures so every
// item is represented exactly once.
func (t *Totals) Add(o Outcome) {
	switch o {
	case OutcomeDownloaded:
		t.Downloaded++
	case OutcomeSkipped:
		t.Skipped++
	default:
		t.Failed++
	}
}

// Merge adds another set of totals into t.
func (t *Totals) Merge(other Totals) {
	t.Downloaded += other.Downloaded
	t.Skipped += other.Skipped
	t.Failed += other.Failed
}

// Total is the number of items accounted for.
func (t Totals) Total() int {
	return t.Downloaded + t.Skipped + t.Failed
}

// AlbumResult records what happened to one album during a run.
type AlbumResult struct {
	URL            string `yaml:"url"`
	ItemsFound     int    `yaml:"items_found"`
	Totals         Totals `yaml:"totals"`
	DiscoveryError string `yaml:"discovery_error,omitempty"`
}

// RunReport holds the outcome of a complete run.
type RunReport struct {
	RunID     string        `yaml:"run_id"`
	TargetURL string        `yaml:"target_url"`
	Kind      TargetKind    `yaml:"kind"`
	OutputDir string        `yaml:"output_dir"`
	StartTime time.Time     `yaml:"start_time"`
	EndTime   time.Time     `yaml:"end_time"`
	Albums    []AlbumResult `yaml:"albums,omitempty"`
	Totals    Totals        `yaml:"totals"`
	Cancelled bool          `yaml:"cancelled,omitempty"`
}

// Elapsed is the wall-clock duration of the run.
func (r RunReport) Elapsed() time.Duration {
	if r.EndTime.IsZero() || r.EndTime.Before(r.StartTime) {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
