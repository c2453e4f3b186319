package display

import (
	"os"
	"strings"
	"testing"
)

func TestProgressModelRowUpdates(t *testing.T) {
	m := NewProgressModel("Downloading updates")
	m.AddRow("Firefox", "pending")

	updated, _ := m.Update(RowUpdateMsg{Key: "Firefox", Status: "downloading", Detail: "12 MB"})
	m = updated.(ProgressModel)

	view := m.View()
	if !strings.Contains(view, "Firefox") {
		t.Fatalf("expected Firefox row in view, got %q", view)
	}
	if !strings.Contains(view, "downloading") {
		t.Fatalf("expected downloading status in view, got %q", view)
	}
}

func TestProgressModelAddsUnknownRow(t *testing.T) {
	m := NewProgressModel("Installing")
	updated, _ := m.Update(RowUpdateMsg{Key: "GoogleChrome", Status: "installing"})
	m = updated.(ProgressModel)
	if len(m.rows) != 1 {
		t.Fatalf("expected implicit row creation, got %d rows", len(m.rows))
	}
}

func TestProgressModelPercentBar(t *testing.T) {
	m := NewProgressModel("Downloading")
	updated, _ := m.Update(PercentMsg(50))
	m = updated.(ProgressModel)
	if m.percent != 50 {
		t.Fatalf("expected percent 50, got %d", m.percent)
	}

	updated, _ = m.Update(PercentMsg(-1))
	m = updated.(ProgressModel)
	if strings.Contains(m.View(), "%") {
		t.Fatalf("expected no bar when percent is -1, got %q", m.View())
	}
}

func TestWriteConsoleRespectsVerbosity(t *testing.T) {
	var buf strings.Builder
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	defer SetOptions(Options{})

	SetOptions(Options{Verbose: 0})
	MinorStatus("quiet line")
	if buf.Len() != 0 {
		t.Fatalf("expected no console output at verbosity 0, got %q", buf.String())
	}

	SetOptions(Options{Verbose: 2})
	MinorStatus("loud line")
	if !strings.Contains(buf.String(), "loud line") {
		t.Fatalf("expected console output at verbosity 2, got %q", buf.String())
	}
}
