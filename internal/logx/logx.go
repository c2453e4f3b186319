// Package logx wires the process logger. Output goes to the agent log file
// inside the managed-installs Logs directory and, at warning level and above,
// to the console.
package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const logFileName = "ManagedSoftwareUpdate.log"

var root = logrus.New()

func init() {
	root.SetOutput(io.Discard)
	root.SetLevel(logrus.InfoLevel)
	root.AddHook(&consoleHook{out: os.Stderr})
}

// Init points the root logger at the log file in logsDir and applies the
// verbosity level. Verbosity 0 is info, 1 adds debug, 2 adds trace. The
// returned closer flushes the log file.
func Init(logsDir string, verbosity int) (io.Closer, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure logs directory: %w", err)
	}

	filePath := filepath.Join(logsDir, logFileName)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	root.SetOutput(file)
	root.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05 -0700",
		DisableColors:   true,
	})
	root.SetLevel(levelFor(verbosity))
	return file, nil
}

func levelFor(verbosity int) logrus.Level {
	switch {
	case verbosity >= 2:
		return logrus.TraceLevel
	case verbosity == 1:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// Component returns a logger tagged with the originating subsystem.
func Component(name string) *logrus.Entry {
	return root.WithField("component", name)
}

// SetLevel adjusts the root level after Init. Used by tests and the CLI
// verbosity flags.
func SetLevel(verbosity int) {
	root.SetLevel(levelFor(verbosity))
}

// consoleHook mirrors warning-and-above entries to the console so operators
// see problems without tailing the log file.
type consoleHook struct {
	out io.Writer
}

func (h *consoleHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

func (h *consoleHook) Fire(entry *logrus.Entry) error {
	line := fmt.Sprintf("%s: %s\n", entry.Level.String(), entry.Message)
	_, err := io.WriteString(h.out, line)
	return err
}
