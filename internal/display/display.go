package display

import (
	"fmt"
	"io"
	"os"
	"sync"

	"gomunki/internal/logx"
)

var (
	outMu sync.Mutex
	out   io.Writer = os.Stdout

	log = logx.Component("display")

	// percentFn receives percent-done updates (-1 for indeterminate).
	// Replaced when an interactive progress display is active.
	percentFn func(int)
)

// SetOutput redirects console status output. Used by tests and by the
// interactive progress runner while it owns the terminal.
func SetOutput(w io.Writer) {
	outMu.Lock()
	out = w
	outMu.Unlock()
}

// SetPercentFunc installs the sink for percent-done updates.
func SetPercentFunc(fn func(int)) {
	outMu.Lock()
	percentFn = fn
	outMu.Unlock()
}

// Percent reports overall progress of the current operation. -1 means
// indeterminate.
func Percent(pct int) {
	outMu.Lock()
	fn := percentFn
	outMu.Unlock()
	if fn != nil {
		fn(pct)
	}
}

// MajorStatus announces the phase the agent is in.
func MajorStatus(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	log.Info(msg)
	writeConsole(0, msg)
}

// MinorStatus announces per-item activity.
func MinorStatus(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	log.Info("    " + msg)
	writeConsole(1, "    "+msg)
}

// Detail emits fine-grained progress lines; shown only at higher verbosity.
func Detail(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	log.Debug("    " + msg)
	writeConsole(2, "    "+msg)
}

// Debug1 and Debug2 mirror the two debug verbosity tiers.
func Debug1(format string, v ...any) {
	log.Debugf(format, v...)
	writeConsole(2, fmt.Sprintf(format, v...))
}

func Debug2(format string, v ...any) {
	log.Tracef(format, v...)
	writeConsole(3, fmt.Sprintf(format, v...))
}

// Warning logs a recoverable condition.
func Warning(format string, v ...any) {
	log.Warnf(format, v...)
}

// Error logs a user-visible failure.
func Error(format string, v ...any) {
	log.Errorf(format, v...)
}

func writeConsole(minVerbose int, msg string) {
	opts := GetOptions()
	if opts.MunkiStatusOutput {
		return
	}
	if opts.Verbose <= minVerbose {
		return
	}
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintln(out, msg)
}
