package fetch

import (
	"context"
	"errors"
	"os"
)

// Options carries the per-run fetch policy derived from preferences.
type Options struct {
	Redirects string
	Username  string
	Password  string
}

// Manifest fetches a manifest by name, returning its local path.
func (s *Service) Manifest(ctx context.Context, name string, opts Options) (string, error) {
	_, dest, err := s.Fetch(ctx, Request{
		Kind:          KindManifest,
		Name:          name,
		OnlyIfChanged: true,
		Redirects:     opts.Redirects,
		Username:      opts.Username,
		Password:      opts.Password,
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

// Catalog fetches a catalog by name, returning its local path.
func (s *Service) Catalog(ctx context.Context, name string, opts Options) (string, error) {
	_, dest, err := s.Fetch(ctx, Request{
		Kind:          KindCatalog,
		Name:          name,
		OnlyIfChanged: true,
		Redirects:     opts.Redirects,
		Username:      opts.Username,
		Password:      opts.Password,
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

// Icon fetches an item icon. A missing icon is not an error; the empty path
// signals absence.
func (s *Service) Icon(ctx context.Context, name string, opts Options) (string, error) {
	_, dest, err := s.Fetch(ctx, Request{
		Kind:          KindIcon,
		Name:          name,
		OnlyIfChanged: true,
		Redirects:     opts.Redirects,
		Username:      opts.Username,
		Password:      opts.Password,
	})
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == 404 {
			return "", nil
		}
		return "", err
	}
	return dest, nil
}

// Package downloads an installer item into the Cache directory with resume
// enabled and verifies it against the expected hash. A cached copy that
// already verifies short-circuits without a request.
func (s *Service) Package(ctx context.Context, installerItem, expectedHash string, opts Options) (Status, string, error) {
	dest := s.LocalPath(KindPackage, installerItem)

	if expectedHash != "" {
		if _, err := os.Stat(dest); err == nil {
			if sc, ok := readSidecar(dest); !ok || sc.ExpectedLength == "" {
				if VerifySHA256(dest, expectedHash) == nil {
					return StatusCached, dest, nil
				}
			}
		}
	}

	status, dest, err := s.Fetch(ctx, Request{
		Kind:      KindPackage,
		Name:      installerItem,
		Resume:    true,
		Redirects: opts.Redirects,
		Username:  opts.Username,
		Password:  opts.Password,
	})
	if err != nil {
		return status, dest, err
	}
	if expectedHash != "" {
		if err := VerifySHA256(dest, expectedHash); err != nil {
			os.Remove(dest)
			return status, dest, err
		}
	}
	return status, dest, nil
}
