package tempdir

import (
	"os"
	"testing"
)

func TestSharedIsStableAndCleaned(t *testing.T) {
	first, err := Shared()
	if err != nil {
		t.Fatalf("Shared: %v", err)
	}
	second, err := Shared()
	if err != nil {
		t.Fatalf("Shared: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable shared dir, got %q then %q", first, second)
	}

	Cleanup()
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Fatalf("expected shared dir removed, stat err=%v", err)
	}
}

func TestPrivateSurvivesCleanup(t *testing.T) {
	dir, err := Private("launchd")
	if err != nil {
		t.Fatalf("Private: %v", err)
	}
	defer os.RemoveAll(dir)

	Cleanup()
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected private dir to survive Cleanup: %v", err)
	}
}
