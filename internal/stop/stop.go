// Package stop holds the process-wide cooperative stop flag. The resolver
// checks it at recursion boundaries and the executor between items; an
// observed stop returns early without error.
package stop

import "sync/atomic"

var requested atomic.Bool

// Request asks the current run to stop at the next safe point.
func Request() {
	requested.Store(true)
}

// Requested reports whether a stop has been requested.
func Requested() bool {
	return requested.Load()
}

// Reset clears the flag. Called at the start of a run and from tests.
func Reset() {
	requested.Store(false)
}
