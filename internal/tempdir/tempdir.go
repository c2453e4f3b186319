// Package tempdir allocates the agent's temporary directories. The shared
// per-process directory is removed on Cleanup; private per-job directories
// are left for their owners to manage.
package tempdir

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

var (
	mu     sync.Mutex
	shared string
)

// Shared returns the per-process temp directory, creating it on first use.
func Shared() (string, error) {
	mu.Lock()
	defer mu.Unlock()
	if shared != "" {
		return shared, nil
	}
	dir := filepath.Join(os.TempDir(), "gomunki-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create shared temp dir: %w", err)
	}
	shared = dir
	return shared, nil
}

// Private returns a fresh temp directory that Cleanup will not touch.
func Private(label string) (string, error) {
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("gomunki-%s-%s", label, uuid.NewString()))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create private temp dir: %w", err)
	}
	return dir, nil
}

// Cleanup removes the shared temp directory. Called on process exit.
func Cleanup() {
	mu.Lock()
	defer mu.Unlock()
	if shared == "" {
		return
	}
	os.RemoveAll(shared)
	shared = ""
}
