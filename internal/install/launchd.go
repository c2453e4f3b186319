package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gomunki/internal/logx"
	"gomunki/internal/tempdir"
	"gomunki/pkg/plist"
)

const launchdLabelPrefix = "com.googlecode.munki."

// Job supervises a child process through launchd: a uniquely-labeled
// descriptor is written, loaded, and started, and its state is polled via
// launchctl list.
type Job struct {
	Label string

	runner     Runner
	plistPath  string
	stdoutPath string
	stderrPath string
	cleanup    bool
	loaded     bool

	log *logrus.Entry
}

// NewJob writes the job descriptor for the given program arguments. The
// descriptor records stdout/stderr file paths in a private temp dir and is
// installed with mode 0644 owned root:wheel.
func NewJob(runner Runner, args []string, env map[string]string, cleanup bool) (*Job, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("launchd job needs program arguments")
	}
	label := launchdLabelPrefix + uuid.New().String()

	dir, err := tempdir.Private(label)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", label, err)
	}

	job := &Job{
		Label:      label,
		runner:     runner,
		plistPath:  filepath.Join(dir, label+".plist"),
		stdoutPath: filepath.Join(dir, "stdout"),
		stderrPath: filepath.Join(dir, "stderr"),
		cleanup:    cleanup,
		log:        logx.Component("launchd"),
	}

	programArgs := make(plist.Array, len(args))
	for i, arg := range args {
		programArgs[i] = arg
	}
	descriptor := plist.Dict{
		"Label":             label,
		"ProgramArguments":  programArgs,
		"StandardOutPath":   job.stdoutPath,
		"StandardErrorPath": job.stderrPath,
	}
	if len(env) > 0 {
		vars := plist.Dict{}
		for k, v := range env {
			vars[k] = v
		}
		descriptor["EnvironmentVariables"] = vars
	}

	if err := plist.WriteFile(job.plistPath, descriptor); err != nil {
		return nil, fmt.Errorf("job %s: %w", label, err)
	}
	if err := os.Chmod(job.plistPath, 0o644); err != nil {
		return nil, fmt.Errorf("job %s: %w", label, err)
	}
	if err := chownFn(job.plistPath, 0, 0); err != nil {
		job.log.Debugf("could not chown descriptor for %s: %v", label, err)
	}
	return job, nil
}

// Start loads and starts the job.
func (j *Job) Start(ctx context.Context) error {
	if result, err := j.runner.Run(ctx, "/bin/launchctl", []string{"load", j.plistPath}, RunOptions{}); err != nil {
		return fmt.Errorf("load %s: %w (%s)", j.Label, err, strings.TrimSpace(string(result.Stderr)))
	}
	j.loaded = true
	if result, err := j.runner.Run(ctx, "/bin/launchctl", []string{"start", j.Label}, RunOptions{}); err != nil {
		return fmt.Errorf("start %s: %w (%s)", j.Label, err, strings.TrimSpace(string(result.Stderr)))
	}
	return nil
}

// Stop asks launchd to stop the job without unloading it.
func (j *Job) Stop(ctx context.Context) error {
	if _, err := j.runner.Run(ctx, "/bin/launchctl", []string{"stop", j.Label}, RunOptions{}); err != nil {
		return fmt.Errorf("stop %s: %w", j.Label, err)
	}
	return nil
}

// ExitStatus polls launchctl list for the job. running reports whether the
// job still has a live pid; once it stops, status carries its exit code.
func (j *Job) ExitStatus(ctx context.Context) (status int, running bool, err error) {
	result, err := j.runner.Run(ctx, "/bin/launchctl", []string{"list"}, RunOptions{})
	if err != nil {
		return 0, false, fmt.Errorf("list jobs: %w", err)
	}
	return parseLaunchctlList(string(result.Stdout), j.Label)
}

// parseLaunchctlList scans launchctl list output (PID, Status, Label columns)
// for the named label.
func parseLaunchctlList(output, label string) (status int, running bool, err error) {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[2] != label {
			continue
		}
		if fields[0] != "-" {
			return 0, true, nil
		}
		status, err = strconv.Atoi(fields[1])
		if err != nil {
			return 0, false, fmt.Errorf("bad status %q for %s", fields[1], label)
		}
		return status, false, nil
	}
	return 0, false, fmt.Errorf("job %s not found", label)
}

// Stdout returns the captured standard output of the job so far.
func (j *Job) Stdout() ([]byte, error) {
	return os.ReadFile(j.stdoutPath)
}

// Stderr returns the captured standard error of the job so far.
func (j *Job) Stderr() ([]byte, error) {
	return os.ReadFile(j.stderrPath)
}

// Close unloads the job and, when cleanup is enabled, removes the descriptor
// and output files.
func (j *Job) Close(ctx context.Context) error {
	var firstErr error
	if j.loaded {
		if _, err := j.runner.Run(ctx, "/bin/launchctl", []string{"unload", j.plistPath}, RunOptions{}); err != nil {
			firstErr = fmt.Errorf("unload %s: %w", j.Label, err)
		}
		j.loaded = false
	}
	if j.cleanup {
		for _, path := range []string{j.plistPath, j.stdoutPath, j.stderrPath} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
