package report

import (
	"path/filepath"
	"testing"

	"gomunki/pkg/plist"
)

func TestRecordAppendSave(t *testing.T) {
	Reset()
	defer Reset()

	Record("ManifestName", "site_default")
	Append("Errors", "first")
	Append("Errors", "second")

	path := filepath.Join(t.TempDir(), "ManagedInstallReport.plist")
	if err := Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	doc, err := plist.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if v, _ := doc.String("ManifestName"); v != "site_default" {
		t.Fatalf("unexpected ManifestName %q", v)
	}
	errs := doc.StringSlice("Errors")
	if len(errs) != 2 || errs[0] != "first" || errs[1] != "second" {
		t.Fatalf("unexpected Errors list %v", errs)
	}
}

func TestResetClears(t *testing.T) {
	Reset()
	Record("k", "v")
	Reset()
	if _, ok := Get("k"); ok {
		t.Fatal("expected report cleared after Reset")
	}
}
