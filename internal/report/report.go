// Package report accumulates the run report: labeled values and append-only
// lists saved to ManagedInstallReport.plist at the end of a run.
package report

import (
	"sync"

	"gomunki/pkg/plist"
)

var (
	mu     sync.Mutex
	fields = plist.Dict{}
)

// Record sets a labeled value in the report.
func Record(key string, value any) {
	mu.Lock()
	fields[key] = value
	mu.Unlock()
}

// Append adds a value to the list stored under key, creating it if needed.
func Append(key string, value any) {
	mu.Lock()
	defer mu.Unlock()
	list, _ := fields[key].(plist.Array)
	fields[key] = append(list, value)
}

// Get returns the current value under key.
func Get(key string) (any, bool) {
	mu.Lock()
	defer mu.Unlock()
	v, ok := fields[key]
	return v, ok
}

// Save writes the report document atomically.
func Save(path string) error {
	mu.Lock()
	snapshot := fields.Clone()
	mu.Unlock()
	return plist.WriteFile(path, snapshot)
}

// Reset clears the accumulated report. Called at the start of a run.
func Reset() {
	mu.Lock()
	fields = plist.Dict{}
	mu.Unlock()
}
