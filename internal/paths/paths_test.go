package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveDefaults(t *testing.T) {
	p := Resolve("")
	if p.Root != DefaultManagedInstallDir {
		t.Fatalf("expected default root, got %q", p.Root)
	}
	if p.InstallInfoFile != filepath.Join(DefaultManagedInstallDir, "InstallInfo.plist") {
		t.Fatalf("unexpected install info path %q", p.InstallInfoFile)
	}
	if p.SelfServeManifest != filepath.Join(DefaultManagedInstallDir, "manifests", "SelfServeManifest") {
		t.Fatalf("unexpected self-serve path %q", p.SelfServeManifest)
	}
}

func TestEnsureDirs(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Managed Installs")
	p := Resolve(root)
	if err := p.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, dir := range []string{p.ManifestsDir, p.CatalogsDir, p.CacheDir, p.IconsDir, p.LogsDir, p.ClientResourcesDir, p.ArchivesDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("%s is not a directory", dir)
		}
	}
}
