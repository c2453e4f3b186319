// Package display owns the process-wide display options and the status
// pipeline: minor/major status lines, detail output, and percent-done
// progress for downloads and copies.
package display

import "sync"

// Options controls how much the agent says and where progress goes.
type Options struct {
	// Verbose is the console verbosity level (0..3).
	Verbose int
	// ShowProgress enables the interactive progress display.
	ShowProgress bool
	// MunkiStatusOutput routes status to the GUI status channel instead of
	// the console.
	MunkiStatusOutput bool
}

var (
	mu      sync.Mutex
	current Options
)

// SetOptions replaces the process-wide display options.
func SetOptions(o Options) {
	mu.Lock()
	current = o
	mu.Unlock()
}

// GetOptions returns the process-wide display options.
func GetOptions() Options {
	mu.Lock()
	defer mu.Unlock()
	return current
}
