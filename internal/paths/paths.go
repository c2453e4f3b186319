// Package paths defines the canonical on-disk layout of the managed-installs
// directory.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultManagedInstallDir is where the agent keeps its state unless the
// ManagedInstallDir preference overrides it.
const DefaultManagedInstallDir = "/Library/Managed Installs"

// InstallPaths captures canonical locations under the managed-installs dir.
type InstallPaths struct {
	Root string

	InstallInfoFile   string
	AppleUpdatesFile  string
	TrackingFile      string
	AppleHistoryFile  string
	SelfServeManifest string
	ReportFile        string

	ManifestsDir       string
	CatalogsDir        string
	CacheDir           string
	IconsDir           string
	ArchivesDir        string
	LogsDir            string
	ClientResourcesDir string
}

// Resolve builds the layout rooted at the provided directory, falling back to
// the default location when root is empty.
func Resolve(root string) InstallPaths {
	if root == "" {
		root = DefaultManagedInstallDir
	}
	return InstallPaths{
		Root:               root,
		InstallInfoFile:    filepath.Join(root, "InstallInfo.plist"),
		AppleUpdatesFile:   filepath.Join(root, "AppleUpdates.plist"),
		TrackingFile:       filepath.Join(root, "UpdateNotificationTracking.plist"),
		AppleHistoryFile:   filepath.Join(root, "AppleUpdateHistory.plist"),
		SelfServeManifest:  filepath.Join(root, "manifests", "SelfServeManifest"),
		ReportFile:         filepath.Join(root, "ManagedInstallReport.plist"),
		ManifestsDir:       filepath.Join(root, "manifests"),
		CatalogsDir:        filepath.Join(root, "catalogs"),
		CacheDir:           filepath.Join(root, "Cache"),
		IconsDir:           filepath.Join(root, "icons"),
		ArchivesDir:        filepath.Join(root, "Archives"),
		LogsDir:            filepath.Join(root, "Logs"),
		ClientResourcesDir: filepath.Join(root, "client_resources"),
	}
}

// EnsureDirs creates the directory skeleton if any part is missing.
func (p InstallPaths) EnsureDirs() error {
	dirs := []string{
		p.Root,
		p.ManifestsDir,
		p.CatalogsDir,
		p.CacheDir,
		p.IconsDir,
		p.ArchivesDir,
		p.LogsDir,
		p.ClientResourcesDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure %s: %w", dir, err)
		}
	}
	return nil
}
