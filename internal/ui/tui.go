// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the playout status display
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Controls holds channels carrying user input out of the TUI
type Controls struct {
	Volume chan int
	Pause  chan bool
	Quit   chan struct{}
}

// NewControls creates the control channel set
func NewControls() *Controls {
	return &Controls{
		Volume: make(chan int, 10),
		Pause:  make(chan bool, 10),
		Quit:   make(chan struct{}, 1),
	}
}

// Run starts the TUI
func Run(controls *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(controls), tea.WithAltScreen())
	return p, nil
}
