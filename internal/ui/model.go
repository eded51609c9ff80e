// ABOUTME: Bubbletea model for the playout status display
// ABOUTME: Defines application state and update logic
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Model represents the TUI state
type Model struct {
	// Stream
	sampleRate  int
	channels    int
	hwChannels  int
	passthrough bool

	// Engine
	state     string
	bufferMs  int
	clockMs   int64
	clockOK   bool
	delayMs   int64
	freeBytes int
	usedBytes int

	// Playback
	volume int
	muted  bool
	paused bool

	// Debug
	showDebug bool
	engineID  string

	// Dimensions
	width  int
	height int

	controls *Controls
}

// NewModel creates a new TUI model
func NewModel(controls *Controls) Model {
	return Model{
		volume:   1000,
		state:    "idle",
		controls: controls,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderStreamInfo()
	s += m.renderControls()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders engine and clock status
func (m Model) renderHeader() string {
	clock := "unknown"
	if m.clockOK {
		clock = fmt.Sprintf("%d.%03ds (delay %dms)", m.clockMs/1000, m.clockMs%1000, m.delayMs)
	}
	state := m.state
	if m.paused {
		state = "paused"
	}

	return fmt.Sprintf(`┌─ Playout ────────────────────────────────────────────┐
│ State:  %-45s │
│ Clock:  %-45s │
├──────────────────────────────────────────────────────┤
`, state, clock)
}

// renderStreamInfo renders the negotiated stream format
func (m Model) renderStreamInfo() string {
	if m.sampleRate == 0 {
		return "│ No stream                                            │\n"
	}

	mode := "pcm"
	if m.passthrough {
		mode = "pass-through"
	}
	s := fmt.Sprintf("│ Format: %dHz %dch -> %dch %s%-14s │\n",
		m.sampleRate, m.channels, m.hwChannels, mode, "")
	s += fmt.Sprintf("│ Buffer: %4dms (%d bytes queued)%-20s │\n",
		m.bufferMs, m.usedBytes, "")

	return s
}

// renderControls renders volume status
func (m Model) renderControls() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " muted"
	}

	volumeBar := renderBar(m.volume, 1000, 10)

	return fmt.Sprintf("│                                                      │\n"+
		"│ Volume: [%s] %d‰%s%-20s │\n",
		volumeBar, m.volume, muteIcon, "")
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ ↑/↓:Volume  m:Mute  p:Pause  d:Debug  q:Quit        │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Engine: %-42s │
│   Free:   %-42d │
`, m.engineID, m.freeBytes)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.controls != nil {
			select {
			case m.controls.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "up":
		m.volume += 50
		if m.volume > 1000 {
			m.volume = 1000
		}
		m.pushVolume()
	case "down":
		m.volume -= 50
		if m.volume < 0 {
			m.volume = 0
		}
		m.pushVolume()
	case "m":
		m.muted = !m.muted
		if m.muted {
			m.pushVolumeValue(0)
		} else {
			m.pushVolume()
		}
	case "p":
		m.paused = !m.paused
		if m.controls != nil {
			select {
			case m.controls.Pause <- m.paused:
			default:
			}
		}
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m Model) pushVolume() {
	if !m.muted {
		m.pushVolumeValue(m.volume)
	}
}

func (m Model) pushVolumeValue(v int) {
	if m.controls != nil {
		select {
		case m.controls.Volume <- v:
		default:
		}
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.SampleRate != 0 {
		m.sampleRate = msg.SampleRate
		m.channels = msg.Channels
		m.hwChannels = msg.HwChannels
		m.passthrough = msg.Passthrough
	}
	if msg.EngineID != "" {
		m.engineID = msg.EngineID
	}
	m.bufferMs = msg.BufferMs
	m.usedBytes = msg.UsedBytes
	m.freeBytes = msg.FreeBytes
	m.delayMs = msg.DelayMs
	m.clockMs = msg.ClockMs
	m.clockOK = msg.ClockOK
}

// StatusMsg updates TUI state
type StatusMsg struct {
	State       string
	SampleRate  int
	Channels    int
	HwChannels  int
	Passthrough bool
	BufferMs    int
	UsedBytes   int
	FreeBytes   int
	DelayMs     int64
	ClockMs     int64
	ClockOK     bool
	EngineID    string
}

// renderBar renders a progress bar of the given width
func renderBar(value, max, width int) string {
	if max <= 0 {
		max = 1
	}
	filled := value * width / max
	if filled > width {
		filled = width
	}
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}
