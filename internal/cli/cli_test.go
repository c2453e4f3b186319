package cli

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	howett "howett.net/plist"

	"gomunki/pkg/plist"
)

func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		prefsPath, overlayPath, installDir = "", "", ""
		verbosity = 0
		outputJSON, showStatus = false, false
	})
}

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("command %v: %v", args, err)
	}
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	resetFlags(t)
	out := runCommand(t, "version")
	if strings.TrimSpace(out) != Version {
		t.Fatalf("version output %q, want %q", out, Version)
	}
}

func TestPendingCommandJSON(t *testing.T) {
	resetFlags(t)
	dir := t.TempDir()
	if err := plist.WriteFile(filepath.Join(dir, "InstallInfo.plist"), plist.Dict{
		"managed_installs": plist.Array{
			plist.Dict{"name": "AppX", "installed": false},
		},
	}); err != nil {
		t.Fatal(err)
	}

	out := runCommand(t, "pending",
		"--installdir", dir,
		"--prefs", filepath.Join(dir, "prefs.plist"),
		"--json")

	var payload struct {
		Installs int `json:"installs"`
		Total    int `json:"total"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("pending output not JSON: %v\n%s", err, out)
	}
	if payload.Installs != 1 || payload.Total != 1 {
		t.Fatalf("pending counts = %+v, want one install", payload)
	}
}

func TestCheckCommandEndToEnd(t *testing.T) {
	resetFlags(t)

	payload := []byte("dmg payload")
	sum := sha256.Sum256(payload)
	catalog := []map[string]any{{
		"name":                    "AppX",
		"version":                 "1.0",
		"installer_item_location": "apps/AppX-1.0.dmg",
		"installer_item_hash":     hex.EncodeToString(sum[:]),
	}}
	manifest := map[string]any{
		"catalogs":         []string{"production"},
		"managed_installs": []string{"AppX"},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/manifests/site_default":
			data, _ := howett.MarshalIndent(manifest, howett.XMLFormat, "\t")
			w.Write(data)
		case "/catalogs/production":
			data, _ := howett.MarshalIndent(catalog, howett.XMLFormat, "\t")
			w.Write(data)
		case "/pkgs/apps/AppX-1.0.dmg":
			w.Write(payload)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	prefsFile := filepath.Join(dir, "prefs.plist")
	if err := plist.WriteFile(prefsFile, plist.Dict{"SoftwareRepoURL": srv.URL}); err != nil {
		t.Fatal(err)
	}

	runCommand(t, "check", "--installdir", dir, "--prefs", prefsFile)

	info, err := plist.ReadFile(filepath.Join(dir, "InstallInfo.plist"))
	if err != nil {
		t.Fatalf("InstallInfo not written: %v", err)
	}
	installs := info.DictSlice("managed_installs")
	if len(installs) != 1 {
		t.Fatalf("expected one managed install, got %d", len(installs))
	}
	if name, _ := installs[0].String("name"); name != "AppX" {
		t.Fatalf("install name = %q, want AppX", name)
	}

	rep, err := plist.ReadFile(filepath.Join(dir, "ManagedInstallReport.plist"))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if name, _ := rep.String("ManifestName"); name != "site_default" {
		t.Fatalf("ManifestName = %q, want site_default", name)
	}

	state, err := plist.ReadFile(prefsFile)
	if err != nil {
		t.Fatal(err)
	}
	if count, _ := state.Int("PendingUpdateCount"); count != 1 {
		t.Fatalf("PendingUpdateCount = %d, want 1", count)
	}

	notified, ok := state.Date("LastNotifiedDate")
	if !ok {
		t.Fatal("first run with pending updates must record LastNotifiedDate")
	}

	// A second run inside the notification interval must not touch the date.
	runCommand(t, "check", "--installdir", dir, "--prefs", prefsFile)
	state, err = plist.ReadFile(prefsFile)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := state.Date("LastNotifiedDate")
	if !again.Equal(notified) {
		t.Fatalf("LastNotifiedDate moved from %v to %v within the interval", notified, again)
	}
}
