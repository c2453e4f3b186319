package cli

import (
	"fmt"
	"io"

	"gomunki/internal/display"
	"gomunki/internal/fetch"
	"gomunki/internal/logx"
	"gomunki/internal/paths"
	"gomunki/internal/prefs"
)

// env is the per-invocation runtime: loaded preferences, the resolved
// directory layout, and the open log file.
type env struct {
	Prefs prefs.Preferences
	Paths paths.InstallPaths

	logCloser io.Closer
}

func loadEnv() (*env, error) {
	path := prefsPath
	if path == "" {
		path = prefs.DefaultPath
	}
	p, err := prefs.Load(path, overlayPath)
	if err != nil {
		return nil, err
	}

	dir := installDir
	if dir == "" {
		dir = p.ManagedInstallDir
	}
	ip := paths.Resolve(dir)
	if err := ip.EnsureDirs(); err != nil {
		return nil, err
	}

	closer, err := logx.Init(ip.LogsDir, verbosity)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	display.SetOptions(display.Options{
		Verbose:      verbosity,
		ShowProgress: showStatus,
	})

	return &env{Prefs: p, Paths: ip, logCloser: closer}, nil
}

func (e *env) Close() {
	if e.logCloser != nil {
		e.logCloser.Close()
	}
}

func (e *env) fetchOptions() fetch.Options {
	return fetch.Options{Redirects: e.Prefs.FollowHTTPRedirects}
}

// fetchService builds the repo fetcher with the preference-driven request
// shaping applied.
func (e *env) fetchService() *fetch.Service {
	svc := fetch.NewService(e.Prefs.SoftwareRepoURL, e.Paths)
	svc.Headers = e.Prefs.AdditionalHTTPHeaders
	return svc
}
