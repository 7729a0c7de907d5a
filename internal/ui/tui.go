// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for sender and receiver binaries
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the TUI program. The caller runs the returned program and
// blocks on it until the user quits.
func Run(title string, controls Controls) *tea.Program {
	return tea.NewProgram(NewModel(title, controls), tea.WithAltScreen())
}
