package fetch

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Kind identifies a class of repository resource. Each kind has a canonical
// remote URL under the repo and a canonical local path under the
// managed-installs directory.
type Kind string

const (
	KindManifest       Kind = "manifest"
	KindCatalog        Kind = "catalog"
	KindPackage        Kind = "package"
	KindIcon           Kind = "icon"
	KindClientResource Kind = "clientresource"
)

func (k Kind) repoPrefix() string {
	switch k {
	case KindManifest:
		return "manifests"
	case KindCatalog:
		return "catalogs"
	case KindPackage:
		return "pkgs"
	case KindIcon:
		return "icons"
	case KindClientResource:
		return "client_resources"
	}
	return ""
}

// URLFor returns the canonical repository URL for a resource. Name segments
// are escaped individually so manifest names may contain slashes.
func (s *Service) URLFor(kind Kind, name string) string {
	base := strings.TrimRight(s.RepoURL, "/")
	segments := strings.Split(strings.TrimLeft(name, "/"), "/")
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	return base + "/" + kind.repoPrefix() + "/" + path.Join(escaped...)
}

// LocalPath returns the canonical on-disk location for a resource.
func (s *Service) LocalPath(kind Kind, name string) string {
	switch kind {
	case KindManifest:
		return filepath.Join(s.Paths.ManifestsDir, filepath.FromSlash(name))
	case KindCatalog:
		return filepath.Join(s.Paths.CatalogsDir, filepath.FromSlash(name))
	case KindPackage:
		// Payloads land in the Cache dir flattened to their basename.
		return filepath.Join(s.Paths.CacheDir, path.Base(name))
	case KindIcon:
		return filepath.Join(s.Paths.IconsDir, filepath.FromSlash(name))
	case KindClientResource:
		return filepath.Join(s.Paths.ClientResourcesDir, filepath.FromSlash(name))
	}
	return ""
}
