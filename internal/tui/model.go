// Package tui provides the Bubbletea terminal dashboard, an alternative to
// the window for terminals and remote sessions.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/satindergrewal/soundscape/internal/stream"
)

// Controller receives user commands. *coordinator.Coordinator implements it.
type Controller interface {
	Reset()
	Clear()
	Stop()
}

// StopMsg asks the dashboard to stop the pipeline and exit once it has.
// Send it with tea.Program.Send, e.g. on SIGTERM.
type StopMsg struct{}

// frameMsg carries a newly published frame.
type frameMsg struct {
	frame *stream.Frame
}

// doneMsg reports that the pipeline has stopped.
type doneMsg struct{}

// Model is the Bubbletea model for the dashboard.
type Model struct {
	title    string
	out      *stream.Broadcaster
	listener *stream.Listener
	ctl      Controller
	done     <-chan struct{}

	frame    *stream.Frame
	stopping bool // Stop sent, waiting for the pipeline to drain
	stopped  bool

	// Terminal dimensions
	Width  int
	Height int
}

// NewModel creates a dashboard that wakes on every frame published to out.
// done is closed when the pipeline stops; the dashboard only exits after it.
func NewModel(title string, out *stream.Broadcaster, ctl Controller, done <-chan struct{}) Model {
	return Model{
		title:    title,
		out:      out,
		listener: out.Subscribe(),
		ctl:      ctl,
		done:     done,
		frame:    out.Latest(),
		Width:    80,
		Height:   24,
	}
}

// Init starts listening for frames and for the pipeline to stop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitFrame(m.listener), waitDone(m.done))
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m.stop()
		case "r", " ", "space":
			m.ctl.Reset()
		case "c":
			m.ctl.Clear()
		}

	case StopMsg:
		return m.stop()

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case frameMsg:
		m.frame = msg.frame
		return m, waitFrame(m.listener)

	case doneMsg:
		m.stopped = true
		if f := m.out.Latest(); f != nil {
			m.frame = f
		}
		if m.stopping {
			return m.quit()
		}
	}
	return m, nil
}

// stop asks the pipeline to stop. The program quits once it has.
func (m Model) stop() (tea.Model, tea.Cmd) {
	if !m.stopping {
		m.stopping = true
		m.ctl.Stop()
	}
	if m.stopped || m.done == nil {
		return m.quit()
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.out.Unsubscribe(m.listener)
	return m, tea.Quit
}

// View renders the dashboard
func (m Model) View() string {
	return renderDashboard(m)
}

// waitFrame blocks until the next frame. It yields nothing once the listener
// is done, which ends the chain.
func waitFrame(l *stream.Listener) tea.Cmd {
	return func() tea.Msg {
		select {
		case f := <-l.C:
			return frameMsg{frame: f}
		case <-l.Done():
			return nil
		}
	}
}

func waitDone(done <-chan struct{}) tea.Cmd {
	if done == nil {
		return nil
	}
	return func() tea.Msg {
		<-done
		return doneMsg{}
	}
}
