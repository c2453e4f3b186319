package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// RowUpdateMsg updates a single item row.
type RowUpdateMsg struct {
	Key    string
	Status string
	Detail string
}

// PercentMsg drives the progress bar for the active item. -1 hides the bar.
type PercentMsg int

// WorkDoneMsg signals that all background work has completed.
type WorkDoneMsg struct{}

type row struct {
	key    string
	status string
	detail string
}

// ProgressModel renders the per-item status list plus a progress bar for the
// active download or copy.
type ProgressModel struct {
	title    string
	rows     []row
	rowIndex map[string]int
	bar      progress.Model
	percent  int
	done     bool
	err      error
}

// NewProgressModel creates a model titled after the running phase.
func NewProgressModel(title string) ProgressModel {
	bar := progress.New(progress.WithDefaultGradient())
	return ProgressModel{
		title:    title,
		rowIndex: make(map[string]int),
		bar:      bar,
		percent:  -1,
	}
}

// AddRow pre-populates an item row. Call before the program starts.
func (m *ProgressModel) AddRow(key, status string) {
	m.rowIndex[key] = len(m.rows)
	m.rows = append(m.rows, row{key: key, status: status})
}

// Err returns the fatal error observed during the run, if any.
func (m ProgressModel) Err() error { return m.err }

// Init satisfies the tea.Model interface.
func (m ProgressModel) Init() tea.Cmd { return nil }

// Update satisfies the tea.Model interface.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case RowUpdateMsg:
		idx, ok := m.rowIndex[msg.Key]
		if !ok {
			m.rowIndex[msg.Key] = len(m.rows)
			m.rows = append(m.rows, row{key: msg.Key})
			idx = len(m.rows) - 1
		}
		if msg.Status != "" {
			m.rows[idx].status = msg.Status
		}
		m.rows[idx].detail = msg.Detail
		return m, nil

	case PercentMsg:
		m.percent = int(msg)
		return m, nil

	case WorkDoneMsg:
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.err = fmt.Errorf("interrupted")
			return m, tea.Quit
		}
	}
	return m, nil
}

// View satisfies the tea.Model interface.
func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	for _, r := range m.rows {
		line := fmt.Sprintf("  %-40s %s", r.key, statusStyle(r.status).Render(r.status))
		if r.detail != "" {
			line += "  " + faintStyle.Render(r.detail)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if m.percent >= 0 && !m.done {
		b.WriteString("\n")
		b.WriteString(m.bar.ViewAs(float64(m.percent) / 100))
		b.WriteString("\n")
	}
	return b.String()
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	faintStyle = lipgloss.NewStyle().Faint(true)

	rowStyles = map[string]lipgloss.Style{
		"downloaded": lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"installed":  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"removed":    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"cached":     lipgloss.NewStyle().Foreground(lipgloss.Color("2")),

		"downloading": lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"installing":  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"removing":    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),

		"skipped": lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		"warning": lipgloss.NewStyle().Foreground(lipgloss.Color("3")),

		"failed": lipgloss.NewStyle().Foreground(lipgloss.Color("1")),

		"pending": lipgloss.NewStyle().Faint(true),
	}
)

func statusStyle(status string) lipgloss.Style {
	if s, ok := rowStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}
