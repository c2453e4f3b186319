// Package fetch downloads repository resources with cache validation and
// resume support. Download bookkeeping lives in an extended attribute on the
// destination file so partially fetched payloads can be picked up across
// runs.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gomunki/internal/display"
	"gomunki/internal/logx"
	"gomunki/internal/paths"
)

// Redirect policies. The default denies all redirects.
const (
	RedirectsNone  = "none"
	RedirectsHTTPS = "https"
	RedirectsAll   = "all"
)

// DefaultTimeout is the connection timeout applied when a request does not
// set one.
const DefaultTimeout = 60 * time.Second

// Status is the successful outcome of a fetch.
type Status int

const (
	// StatusDownloaded means new bytes were written to the destination.
	StatusDownloaded Status = iota
	// StatusNotModified means the cached copy is still current.
	StatusNotModified
	// StatusCached means the destination already verified against its hash
	// and no request was made.
	StatusCached
)

// Service fetches resources from one software repository.
type Service struct {
	RepoURL string
	Paths   paths.InstallPaths
	// Headers are additional request headers, "Name: value" each.
	Headers []string

	log *logrus.Entry
}

// NewService binds a fetcher to a repository URL and local layout.
func NewService(repoURL string, p paths.InstallPaths) *Service {
	return &Service{
		RepoURL: repoURL,
		Paths:   p,
		log:     logx.Component("fetch"),
	}
}

// Request describes one fetch operation.
type Request struct {
	Kind Kind
	Name string
	// Destination overrides the canonical local path when set.
	Destination string

	Resume        bool
	OnlyIfChanged bool
	Redirects     string
	Timeout       time.Duration
	MinTLS        uint16
	Username      string
	Password      string

	// Progress receives percent-done updates; defaults to display.Percent.
	Progress func(int)
}

var errResumeMismatch = errors.New("resume identifiers changed")

// Fetch performs the request. It returns the destination path alongside the
// status so callers using canonical paths do not recompute them.
func (s *Service) Fetch(ctx context.Context, req Request) (Status, string, error) {
	dest := req.Destination
	if dest == "" {
		dest = s.LocalPath(req.Kind, req.Name)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, dest, &IOError{Detail: "ensure destination dir", Err: err}
	}

	resourceURL := s.URLFor(req.Kind, req.Name)

	sc, haveSidecar := readSidecar(dest)
	var partialSize int64
	if fi, err := os.Stat(dest); err == nil {
		partialSize = fi.Size()
	}
	resume := req.Resume && haveSidecar && sc.ExpectedLength != "" &&
		(sc.ETag != "" || sc.LastModified != "") && partialSize > 0

	status, err := s.attempt(ctx, req, resourceURL, dest, sc, partialSize, resume)
	if errors.Is(err, errResumeMismatch) {
		s.log.Warnf("server contents changed under resumable download %s; restarting", resourceURL)
		os.Remove(dest)
		status, err = s.attempt(ctx, req, resourceURL, dest, sidecar{}, 0, false)
	}
	return status, dest, err
}

func (s *Service) attempt(ctx context.Context, req Request, resourceURL, dest string, sc sidecar, partialSize int64, withRange bool) (Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if err != nil {
		return 0, &ConnectionError{Detail: err.Error()}
	}

	for _, header := range s.Headers {
		if name, value, ok := strings.Cut(header, ":"); ok {
			httpReq.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}
	if req.Username != "" {
		httpReq.SetBasicAuth(req.Username, req.Password)
	}

	conditional := false
	if withRange {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", partialSize))
	} else if req.OnlyIfChanged && sc.ExpectedLength == "" {
		if sc.LastModified != "" {
			httpReq.Header.Set("If-Modified-Since", sc.LastModified)
			conditional = true
		}
		if sc.ETag != "" {
			httpReq.Header.Set("If-None-Match", sc.ETag)
			conditional = true
		}
	}

	client := s.client(req)
	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && conditional:
		return StatusNotModified, nil

	case resp.StatusCode == http.StatusPartialContent && withRange:
		if err := validateResume(sc, resp, partialSize); err != nil {
			return 0, err
		}
		return StatusDownloaded, s.store(resp, req, dest, sc, partialSize, true)

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		fresh := sidecar{
			ETag:         resp.Header.Get("Etag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if resp.ContentLength >= 0 {
			fresh.ExpectedLength = strconv.FormatInt(resp.ContentLength, 10)
		}
		return StatusDownloaded, s.store(resp, req, dest, fresh, 0, false)

	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return 0, &HTTPError{Status: resp.StatusCode, Detail: "redirect denied by policy"}

	case resp.StatusCode == http.StatusUnauthorized:
		return 0, &HTTPError{Status: resp.StatusCode, Detail: "authentication failed for " + resourceURL}

	default:
		return 0, &HTTPError{Status: resp.StatusCode, Detail: resourceURL}
	}
}

// store streams the body to dest. For full downloads the destination is
// truncated and a fresh sidecar recording expected-length is written before
// any bytes land, so an interrupted transfer is resumable. After a complete
// transfer expected-length is cleared.
func (s *Service) store(resp *http.Response, req Request, dest string, sc sidecar, offset int64, appendTo bool) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendTo {
		flags = os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(dest, flags, 0o644)
	if err != nil {
		return &IOError{Detail: "open destination", Err: err}
	}

	if !appendTo {
		if err := writeSidecar(dest, sc); err != nil {
			s.log.Debugf("could not write download metadata for %s: %v", dest, err)
		}
	}

	var total int64
	if sc.ExpectedLength != "" {
		total, _ = strconv.ParseInt(sc.ExpectedLength, 10, 64)
	}
	progress := req.Progress
	if progress == nil {
		progress = display.Percent
	}

	if err := streamBody(file, resp.Body, offset, total, progress); err != nil {
		file.Close()
		return &IOError{Detail: "stream body", Err: err}
	}
	if err := file.Close(); err != nil {
		return &IOError{Detail: "close destination", Err: err}
	}

	// Download complete: drop expected-length so the next fetch validates
	// instead of resuming.
	sc.ExpectedLength = ""
	if sc.empty() {
		clearSidecar(dest)
	} else if err := writeSidecar(dest, sc); err != nil {
		s.log.Debugf("could not finalize download metadata for %s: %v", dest, err)
	}
	return nil
}

func streamBody(dst io.Writer, src io.Reader, offset, total int64, progress func(int)) error {
	buf := make([]byte, 64*1024)
	written := offset
	lastPct := -1
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			written += int64(n)
			if total > 0 {
				pct := int(written * 100 / total)
				if pct != lastPct {
					progress(pct)
					lastPct = pct
				}
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// validateResume checks the server's identifiers against the sidecar before
// appending to a partial file.
func validateResume(sc sidecar, resp *http.Response, partialSize int64) error {
	if sc.ETag != "" && resp.Header.Get("Etag") != sc.ETag {
		return errResumeMismatch
	}
	if sc.LastModified != "" && resp.Header.Get("Last-Modified") != sc.LastModified {
		return errResumeMismatch
	}
	if expected, err := strconv.ParseInt(sc.ExpectedLength, 10, 64); err == nil {
		if resp.ContentLength >= 0 && partialSize+resp.ContentLength != expected {
			return errResumeMismatch
		}
	}
	return nil
}

func (s *Service) client(req Request) *http.Client {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	minTLS := req.MinTLS
	if minTLS == 0 {
		minTLS = tls.VersionTLS12
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: minTLS},
			Proxy:           http.ProxyFromEnvironment,
		},
		CheckRedirect: redirectPolicy(req.Redirects),
	}
}

func redirectPolicy(policy string) func(*http.Request, []*http.Request) error {
	switch policy {
	case RedirectsAll:
		return nil
	case RedirectsHTTPS:
		return func(req *http.Request, via []*http.Request) error {
			if req.URL.Scheme == "https" {
				return nil
			}
			return http.ErrUseLastResponse
		}
	default:
		return func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
}

func classifyTransportError(err error) error {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return &SecurityError{Detail: err.Error()}
	}
	msg := err.Error()
	if strings.Contains(msg, "tls:") || strings.Contains(msg, "x509:") {
		return &SecurityError{Detail: msg}
	}
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return &ConnectionError{Code: -1001, Detail: msg}
	}
	return &ConnectionError{Detail: msg}
}
