package install

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gomunki/internal/display"
	"gomunki/internal/tempdir"
	"gomunki/pkg/plist"
)

// DefaultScriptTimeout bounds a script run unless the executor is configured
// with an override.
const DefaultScriptTimeout = 60 * time.Second

// Stubbed in tests.
var (
	geteuid     = os.Geteuid
	statOwnerOf = func(path string) (uid, gid int, err error) {
		info, err := os.Stat(path)
		if err != nil {
			return 0, 0, err
		}
		uid, gid = statOwner(info)
		return uid, gid, nil
	}
)

// allowedScriptGroups are the gids an external script may belong to:
// wheel and admin.
var allowedScriptGroups = map[int]bool{0: true, 80: true}

// InsecurePermissionsError reports a script that failed the permission gate.
type InsecurePermissionsError struct {
	Path   string
	Reason string
}

func (e *InsecurePermissionsError) Error() string {
	return fmt.Sprintf("insecure permissions on %s: %s", e.Path, e.Reason)
}

// checkScriptPermissions gates external scripts: owned by root or the
// current process owner, group wheel or admin, not world-writable, and
// executable.
func checkScriptPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	uid, gid, err := statOwnerOf(path)
	if err != nil {
		return err
	}

	if uid != 0 && uid != geteuid() {
		return &InsecurePermissionsError{Path: path, Reason: fmt.Sprintf("owned by uid %d", uid)}
	}
	if !allowedScriptGroups[gid] {
		return &InsecurePermissionsError{Path: path, Reason: fmt.Sprintf("group %d is not wheel or admin", gid)}
	}
	mode := info.Mode().Perm()
	if mode&0o002 != 0 {
		return &InsecurePermissionsError{Path: path, Reason: "world-writable"}
	}
	if mode&0o111 == 0 {
		return &InsecurePermissionsError{Path: path, Reason: "not executable"}
	}
	return nil
}

// RunExternalScript executes a script from disk after the permission gate.
func (e *Executor) RunExternalScript(ctx context.Context, path, displayName string) error {
	if err := checkScriptPermissions(path); err != nil {
		return err
	}
	return e.runScript(ctx, path, displayName)
}

// runEmbeddedScript materializes the string value of the named pkginfo field
// to a private temp file with mode 0700 and executes it. An absent field is
// not an error.
func (e *Executor) runEmbeddedScript(ctx context.Context, item plist.Dict, key, itemName string) error {
	script, ok := item.String(key)
	if !ok || script == "" {
		return nil
	}

	dir, err := tempdir.Shared()
	if err != nil {
		return fmt.Errorf("%s for %s: %w", key, itemName, err)
	}
	path := filepath.Join(dir, itemName+"-"+key)
	if err := os.WriteFile(path, []byte(script), fs.FileMode(0o700)); err != nil {
		return fmt.Errorf("%s for %s: %w", key, itemName, err)
	}
	defer os.Remove(path)

	display.MinorStatus("Running %s for %s", key, itemName)
	return e.runScript(ctx, path, itemName+" "+key)
}

// runScript executes path with stdout streamed line-by-line into the display
// pipeline and stderr captured. On failure the combined output is logged at
// error level framed by dashed separators.
func (e *Executor) runScript(ctx context.Context, path, displayName string) error {
	timeout := e.ScriptTimeout
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lines := &lineWriter{emit: func(line string) { display.Detail("%s", line) }}
	result, err := e.Runner.Run(ctx, path, nil, RunOptions{Stdout: lines})
	lines.Flush()

	if err != nil {
		display.Error("%s failed: %v", displayName, err)
		display.Error(strings.Repeat("-", 78))
		for _, line := range outputLines(result) {
			display.Error("%s", line)
		}
		display.Error(strings.Repeat("-", 78))
		return fmt.Errorf("%s: %w", displayName, err)
	}
	return nil
}

func outputLines(result RunResult) []string {
	combined := strings.TrimRight(string(result.Stdout)+string(result.Stderr), "\n")
	if combined == "" {
		return nil
	}
	return strings.Split(combined, "\n")
}

// lineWriter buffers writes and emits complete lines.
type lineWriter struct {
	emit func(string)
	buf  strings.Builder
}

func (w *lineWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			w.emit(w.buf.String())
			w.buf.Reset()
			continue
		}
		w.buf.WriteByte(b)
	}
	return len(p), nil
}

// Flush emits any trailing partial line.
func (w *lineWriter) Flush() {
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}
