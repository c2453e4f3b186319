package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"gomunki/pkg/plist"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(filepath.Join(dir, "ManagedInstalls.plist"), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.DaysBetweenNotifications != 1 {
		t.Fatalf("expected default DaysBetweenNotifications 1, got %d", p.DaysBetweenNotifications)
	}
	if p.FollowHTTPRedirects != RedirectsNone {
		t.Fatalf("expected default redirect policy none, got %q", p.FollowHTTPRedirects)
	}
}

func TestLoadReadsPlistDomain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ManagedInstalls.plist")
	doc := plist.Dict{
		"SoftwareRepoURL":             "https://repo.example/munki",
		"ClientIdentifier":            "lab-mac",
		"InstallAppleSoftwareUpdates": true,
		"DaysBetweenNotifications":    int64(3),
		"ScriptTimeoutSeconds":        int64(300),
		"AdditionalHttpHeaders":       plist.Array{"Authorization: Basic abc"},
	}
	if err := plist.WriteFile(path, doc); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.SoftwareRepoURL != "https://repo.example/munki" {
		t.Fatalf("unexpected repo url %q", p.SoftwareRepoURL)
	}
	if p.ClientIdentifier != "lab-mac" {
		t.Fatalf("unexpected client identifier %q", p.ClientIdentifier)
	}
	if !p.InstallAppleSoftwareUpdates {
		t.Fatal("expected InstallAppleSoftwareUpdates true")
	}
	if p.DaysBetweenNotifications != 3 {
		t.Fatalf("unexpected DaysBetweenNotifications %d", p.DaysBetweenNotifications)
	}
	if p.ScriptTimeoutSeconds != 300 {
		t.Fatalf("unexpected ScriptTimeoutSeconds %d", p.ScriptTimeoutSeconds)
	}
	if len(p.AdditionalHTTPHeaders) != 1 {
		t.Fatalf("unexpected headers %v", p.AdditionalHTTPHeaders)
	}
}

func TestOverlayWinsOverPlist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ManagedInstalls.plist")
	if err := plist.WriteFile(path, plist.Dict{"SoftwareRepoURL": "https://plist.example"}); err != nil {
		t.Fatal(err)
	}
	overlayPath := filepath.Join(dir, "ManagedInstalls.yaml")
	overlayBody := "software_repo_url: https://yaml.example\ndays_between_notifications: 7\n"
	if err := os.WriteFile(overlayPath, []byte(overlayBody), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path, overlayPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.SoftwareRepoURL != "https://yaml.example" {
		t.Fatalf("overlay did not win, got %q", p.SoftwareRepoURL)
	}
	if p.DaysBetweenNotifications != 7 {
		t.Fatalf("overlay int did not apply, got %d", p.DaysBetweenNotifications)
	}
}

func TestSetStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ManagedInstalls.plist")
	p, err := Load(path, "")
	if err != nil {
		t.Fatal(err)
	}

	if err := p.SetState(plist.Dict{"PendingUpdateCount": int64(4), "LastCheckResult": int64(1)}); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	v, ok := p.State("PendingUpdateCount")
	if !ok {
		t.Fatal("PendingUpdateCount missing after SetState")
	}
	if n, _ := v.(int64); n != 4 {
		t.Fatalf("unexpected PendingUpdateCount %v", v)
	}
}
