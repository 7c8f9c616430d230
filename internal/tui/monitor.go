// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"beatsync/internal/beat"
	"beatsync/internal/transport"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	refreshInterval = time.Second / 30
	beatFlash       = 120 * time.Millisecond
	barWidth        = 40
)

// MonitorTransport hands the latest frame to the monitor. Send never blocks:
// an unread frame is replaced, and beats in between stay visible through the
// cumulative Frame.Beats counter.
type MonitorTransport struct {
	frames chan beat.Frame
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
}

func NewMonitorTransport() *MonitorTransport {
	return &MonitorTransport{
		frames: make(chan beat.Frame, 1),
		done:   make(chan struct{}),
	}
}

func (m *MonitorTransport) Send(f beat.Frame) error {
	if m.closed.Load() {
		return transport.ErrClosed
	}
	select {
	case m.frames <- f:
		return nil
	default:
	}
	select {
	case <-m.frames:
	default:
	}
	select {
	case m.frames <- f:
	default:
	}
	return nil
}

func (m *MonitorTransport) Close() error {
	m.once.Do(func() {
		m.closed.Store(true)
		close(m.done)
	})
	return nil
}

// latest returns the pending frame, if any.
func (m *MonitorTransport) latest() (beat.Frame, bool) {
	select {
	case f := <-m.frames:
		return f, true
	default:
		return beat.Frame{}, false
	}
}

func (m *MonitorTransport) isClosed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

var _ transport.Transport = (*MonitorTransport)(nil)

// Controls are the engine operations the monitor exposes as keys.
type Controls interface {
	GateEnabled() bool
	EnableGate()
	DisableGate()
	IsRecording() bool
	StartRecordingIn(dir string) (string, error)
	StopRecording() error
}

type monitorKeys struct {
	Gate   key.Binding
	Record key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func (k monitorKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Gate, k.Record, k.Help, k.Quit}
}

func (k monitorKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Gate, k.Record}, {k.Help, k.Quit}}
}

var defaultMonitorKeys = monitorKeys{
	Gate:   key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "toggle gate")),
	Record: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "record")),
	Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// MonitorModel is the live beat view.
type MonitorModel struct {
	feed      *MonitorTransport
	controls  Controls
	recordDir string

	keys monitorKeys
	help help.Model
	prob progress.Model

	frame      beat.Frame
	received   bool
	lastBeats  uint64
	flashUntil time.Time
	now        time.Time

	status string
}

// NewMonitorModel reads frames from feed. controls may be nil, which
// disables the gate and record keys.
func NewMonitorModel(feed *MonitorTransport, controls Controls, recordDir string) MonitorModel {
	return MonitorModel{
		feed:      feed,
		controls:  controls,
		recordDir: recordDir,
		keys:      defaultMonitorKeys,
		help:      help.New(),
		prob:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth), progress.WithoutPercentage()),
	}
}

func (m MonitorModel) Init() tea.Cmd {
	return tick()
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.now = time.Time(msg)
		if f, ok := m.feed.latest(); ok {
			m = m.observe(f)
		}
		if m.feed.isClosed() {
			return m, tea.Quit
		}
		return m, tick()

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		m.prob.Width = min(barWidth, max(10, msg.Width-12))

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Gate):
			m.toggleGate()
		case key.Matches(msg, m.keys.Record):
			m.toggleRecording()
		}
	}
	return m, nil
}

// observe takes a new frame; a beat anywhere since the last frame flashes.
func (m MonitorModel) observe(f beat.Frame) MonitorModel {
	if m.received && f.Beats > m.lastBeats {
		m.flashUntil = m.now.Add(beatFlash)
	}
	m.frame = f
	m.lastBeats = f.Beats
	m.received = true
	return m
}

func (m *MonitorModel) toggleGate() {
	if m.controls == nil {
		return
	}
	if m.controls.GateEnabled() {
		m.controls.DisableGate()
		m.status = "gate off"
	} else {
		m.controls.EnableGate()
		m.status = "gate on"
	}
}

func (m *MonitorModel) toggleRecording() {
	if m.controls == nil {
		return
	}
	if m.controls.IsRecording() {
		if err := m.controls.StopRecording(); err != nil {
			m.status = warnStyle.Render("stop recording: " + err.Error())
			return
		}
		m.status = "recording stopped"
		return
	}
	path, err := m.controls.StartRecordingIn(m.recordDir)
	if err != nil {
		m.status = warnStyle.Render("record: " + err.Error())
		return
	}
	m.status = "recording to " + path
}

func (m MonitorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("beatsync monitor"))
	b.WriteString("\n\n")

	if !m.received {
		b.WriteString(dimStyle.Render("Waiting for audio..."))
		b.WriteString("\n\n")
		b.WriteString(m.help.View(m.keys))
		return b.String()
	}

	f := m.frame
	indicator := dimStyle.Render("○")
	if m.now.Before(m.flashUntil) {
		indicator = highlightStyle.Render("●")
	}

	fmt.Fprintf(&b, "%s %s  %s\n\n", indicator,
		highlightStyle.Render(fmt.Sprintf("%d BPM", f.BPM)),
		infoStyle.Render(fmt.Sprintf("%d beats", f.Beats)))

	rows := []struct {
		label string
		value string
	}{
		{"Phase", renderBar(float64(f.Phase), barWidth)},
		{"Beat", m.prob.ViewAs(float64(f.BeatProbability))},
		{"Error", fmt.Sprintf("%.3f", f.PhaseErrorNormalized)},
		{"Bass", fmt.Sprintf("%.3f  short %.3f  long %.3f", f.BassEnergy, f.ShortAvg, f.LongAvg)},
	}
	for _, r := range rows {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(r.label), r.value))
		b.WriteString("\n")
	}

	if m.controls != nil {
		fmt.Fprintf(&b, "\n%s  %s\n", onOff("Gate", m.controls.GateEnabled()), onOff("Rec", m.controls.IsRecording()))
	}
	if m.status != "" {
		b.WriteString("\n" + m.status + "\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func onOff(label string, on bool) string {
	if on {
		return label + ": " + highlightStyle.Render("on")
	}
	return label + ": " + dimStyle.Render("off")
}

// RunMonitor runs the monitor until the user quits or feed is closed.
func RunMonitor(feed *MonitorTransport, controls Controls, recordDir string) error {
	p := tea.NewProgram(NewMonitorModel(feed, controls, recordDir), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
