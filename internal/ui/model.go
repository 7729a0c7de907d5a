// ABOUTME: Bubbletea model for the sender and receiver TUIs
// ABOUTME: Polls session status and renders state, VU meter, and counters
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// tickInterval paces status polls. 30Hz matches the original VU refresh.
const tickInterval = 33 * time.Millisecond

// vuWidth is the meter bar width in cells.
const vuWidth = 40

// Status is the snapshot the TUI renders each tick. The session's
// Level/State reads are lock-free, so polling at 30Hz costs nothing.
type Status struct {
	State   string
	Level   float64
	Detail  string
	Packets int64
	Bytes   int64
	Errors  int64
}

// Controls wires the TUI to a session without the TUI knowing its type.
type Controls struct {
	Start  func() error
	Stop   func() error
	Status func() Status
}

type tickMsg time.Time

type toggleResultMsg struct {
	err error
}

// Model represents the TUI state.
type Model struct {
	title    string
	controls Controls

	status  Status
	lastErr string
	busy    bool

	width  int
	height int
}

// NewModel creates a TUI model for the given session controls.
func NewModel(title string, controls Controls) Model {
	return Model{
		title:    title,
		controls: controls,
		status:   Status{State: "idle"},
	}
}

// Init schedules the first status poll.
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		if m.controls.Status != nil {
			m.status = m.controls.Status()
		}
		return m, tick()
	case toggleResultMsg:
		m.busy = false
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		} else {
			m.lastErr = ""
		}
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "s", " ":
		return m.toggle()
	}
	return m, nil
}

// toggle starts or stops the session off the UI loop. Start may block
// through multi-second negotiation backoffs, so it runs as a command.
func (m Model) toggle() (tea.Model, tea.Cmd) {
	if m.busy || m.controls.Start == nil || m.controls.Stop == nil {
		return m, nil
	}
	m.busy = true

	action := m.controls.Start
	if m.status.State == "streaming" || m.status.State == "negotiating" {
		action = m.controls.Stop
	}

	return m, func() tea.Msg {
		return toggleResultMsg{err: action()}
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("51"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	vuLowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
	vuMidStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	vuHighStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	vuDimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
)

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("State:   "))
	b.WriteString(stateStyle(m.status.State).Render(strings.ToUpper(m.status.State)))
	b.WriteString("\n")

	if m.status.Detail != "" {
		b.WriteString(labelStyle.Render("Stream:  "))
		b.WriteString(valueStyle.Render(m.status.Detail))
		b.WriteString("\n")
	}

	b.WriteString(labelStyle.Render("Level:   "))
	b.WriteString(renderVU(m.status.Level, vuWidth))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("Packets: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d  (%s, %d errors)",
		m.status.Packets, formatBytes(m.status.Bytes), m.status.Errors)))
	b.WriteString("\n")

	if m.lastErr != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.lastErr))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("s: start/stop  q: quit"))
	b.WriteString("\n")

	return b.String()
}

func stateStyle(state string) lipgloss.Style {
	switch state {
	case "streaming":
		return vuLowStyle
	case "failed":
		return vuHighStyle
	case "negotiating", "stopping":
		return vuMidStyle
	default:
		return valueStyle
	}
}

// renderVU draws a level bar colored from cyan through yellow to red,
// like the original terminal VU meter.
func renderVU(level float64, width int) string {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}

	filled := int(level * float64(width))
	style := vuLowStyle
	if level >= 0.85 {
		style = vuHighStyle
	} else if level >= 0.6 {
		style = vuMidStyle
	}

	bar := style.Render(strings.Repeat("█", filled))
	rest := vuDimStyle.Render(strings.Repeat("░", width-filled))
	return bar + rest + valueStyle.Render(fmt.Sprintf(" %3.0f%%", level*100))
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
