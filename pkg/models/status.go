package models

// Outcome is the terminal result of processing one item
type Outcome string

const (
	OutcomeDownloaded Outcome = "downloaded" // New file written to the destination
	OutcomeSkipped    Outcome = "skipped"    // Destination file already existed
	OutcomeFailed     Outcome = "failed"     // Resolution or transfer failed
)

// String implements fmt.Stringer for logging
func (o Outcome) String() string {
	if o == "" {
		return "unset"
	}
	return string(o)
}

// IsValid returns true if the outcome is one of the three terminal values
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeDownloaded, OutcomeSkipped, OutcomeFailed:
		return true
	}
	return false
}

// TargetKind classifies the starting URL of a run
type TargetKind string

const (
	TargetCategory    TargetKind = "category"     // Collection of albums
	TargetAlbum       TargetKind = "album"        // Collection of item pages
	TargetSingleImage TargetKind = "single_image" // One item page
	TargetGeneric     TargetKind = "generic"      // Bare site root, nothing to process
)

// String implements fmt.Stringer for logging
func (k TargetKind) String() string {
	if k == "" {
		return "unset"
	}
	return string(k)
}
