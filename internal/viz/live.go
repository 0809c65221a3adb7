package viz

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/units"
)

const (
	width           = 60
	height          = 20
	historyCapacity = 600
	maxStepsFrame   = 1024
	secondsPerYear  = 365.25 * 86400
)

// Snapshot stores state at a specific time for replay.
type Snapshot struct {
	State dynamo.State
	Time  float64
}

type TickMsg time.Time

// Model integrates an assembled model and shows one tracer at a time.
type Model struct {
	name       string
	sys        dynamo.System
	integrator dynamo.Integrator
	tracers    []dynamo.Tracer
	display    []units.Unit
	nb         int
	order      []int

	state, initial dynamo.State
	t, dt          float64
	stepsPerFrame  int
	selected       int
	running        bool
	err            error

	canvas   *Canvas
	means    [][]float64
	history  []Snapshot
	playHead int
	showHelp bool
}

// NewModel prepares a live run of f at p starting from x0 with step dt
// seconds.
func NewModel(f *dynamo.StateFunction, p *params.Params[float64], integ dynamo.Integrator, x0 dynamo.State, dt float64) Model {
	tracers := f.Model().Tracers
	display := make([]units.Unit, len(tracers))
	for k, tr := range tracers {
		u, err := units.Parse(tr.Unit)
		if err != nil {
			u = units.Must("")
		}
		display[k] = u
	}
	return Model{
		name:          f.Model().Name,
		sys:           f.At(p),
		integrator:    integ,
		tracers:       tracers,
		display:       display,
		nb:            f.Boxes(),
		order:         DepthOrder(f.Circulation().Grid.Depth),
		state:         x0.Clone(),
		initial:       x0.Clone(),
		dt:            dt,
		stepsPerFrame: 1,
		running:       true,
		canvas:        NewCanvas(width, height),
		means:         make([][]float64, len(tracers)),
		history:       make([]Snapshot, 0, historyCapacity),
		playHead:      -1,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return tick() }

// Update handles input events and steps the simulation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		case "tab":
			m.selected = (m.selected + 1) % len(m.tracers)
		case "up", "k":
			m.stepsPerFrame = min(2*m.stepsPerFrame, maxStepsFrame)
		case "down", "j":
			m.stepsPerFrame = max(m.stepsPerFrame/2, 1)
		case "[":
			m.scrub(-1)
		case "]":
			m.scrub(1)
		case "t":
			NextTheme()
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running {
			if m.playHead == -1 {
				m.step()
			} else {
				m.playHead++
				if m.playHead >= len(m.history) {
					m.playHead = -1
				}
			}
		}
		return m, tick()
	}
	return m, nil
}

// step advances the integration by stepsPerFrame steps.
func (m *Model) step() {
	if m.err != nil {
		return
	}
	for i := 0; i < m.stepsPerFrame; i++ {
		next := m.integrator.Step(m.sys, m.state, m.t, m.dt)
		if !next.IsValid() {
			m.err = dynamo.ErrUnstable
			m.running = false
			return
		}
		m.state = next
		m.t += m.dt
	}

	fields := m.state.Split(len(m.tracers))
	for k, field := range fields {
		var sum float64
		for _, v := range field {
			sum += v
		}
		m.means[k] = appendCapped(m.means[k], units.ToDisplay(sum/float64(len(field)), m.display[k]))
	}
	m.history = append(m.history, Snapshot{State: m.state.Clone(), Time: m.t})
	if len(m.history) > historyCapacity {
		m.history = m.history[1:]
	}
}

func appendCapped(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > historyCapacity {
		s = s[1:]
	}
	return s
}

// scrub changes the playback position in history.
func (m *Model) scrub(dir int) {
	if m.playHead == -1 {
		if len(m.history) == 0 {
			return
		}
		m.playHead = len(m.history) - 1
		m.running = false
	}
	m.playHead += dir
	if m.playHead < 0 {
		m.playHead = 0
	}
	if m.playHead >= len(m.history) {
		m.playHead = -1
	}
}

// reset restores the initial state.
func (m *Model) reset() {
	m.t = 0
	m.state = m.initial.Clone()
	m.history = m.history[:0]
	for k := range m.means {
		m.means[k] = m.means[k][:0]
	}
	m.playHead = -1
	m.err = nil
}

// Time returns the model time in seconds.
func (m Model) Time() float64 { return m.t }

// State returns the current state.
func (m Model) State() dynamo.State { return m.state }

// shown returns the state and time on screen.
func (m Model) shown() (dynamo.State, float64) {
	if m.playHead >= 0 && m.playHead < len(m.history) {
		snap := m.history[m.playHead]
		return snap.State, snap.Time
	}
	return m.state, m.t
}

// profile returns the selected tracer in display units, shallow to deep.
func (m Model) profile(x dynamo.State) []float64 {
	field := x.Split(len(m.tracers))[m.selected]
	out := make([]float64, len(field))
	for i, b := range m.order {
		out[i] = units.ToDisplay(field[b], m.display[m.selected])
	}
	return out
}

// View renders the TUI interface.
func (m Model) View() string {
	x, t := m.shown()
	values := m.profile(x)
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	m.canvas.Clear()
	m.canvas.DrawProfile(values, lo, hi)

	tr := m.tracers[m.selected]
	canvasView := lipgloss.NewStyle().Padding(1, 2).Render(
		mutedStyle().Render(fmt.Sprintf("%-12.4g%*.4g", lo, width-12, hi)) + "\n" + m.canvas.String() +
			mutedStyle().Render("shallow → deep, "+tr.Unit))

	status := "RUNNING"
	switch {
	case m.err != nil:
		status = "STOPPED: " + m.err.Error()
	case m.playHead != -1:
		status = fmt.Sprintf("REPLAY (%.1f yr)", (t-m.t)/secondsPerYear)
	case !m.running:
		status = "PAUSED"
	}

	var s strings.Builder
	s.WriteString(headerStyle().Render(strings.ToUpper(m.name)) + "\n")
	s.WriteString(accentStyle().Render(status) + "\n\n")
	if means := m.means[m.selected]; len(means) > 1 {
		chart := asciigraph.Plot(means, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("mean "+tr.Name))
		s.WriteString(chart + "\n\n")
	}
	row := func(label, value string) {
		s.WriteString(labelStyle().Render(label) + valueStyle().Render(value) + "\n")
	}
	row("Time", fmt.Sprintf("%.1f yr", t/secondsPerYear))
	row("Step", fmt.Sprintf("%.3g yr × %d", m.dt/secondsPerYear, m.stepsPerFrame))
	row("Tracer", fmt.Sprintf("%s (%d/%d)", tr.Name, m.selected+1, len(m.tracers)))
	row("Range", fmt.Sprintf("%.4g … %.4g %s", lo, hi, tr.Unit))
	row("Boxes", fmt.Sprintf("%d", m.nb))
	s.WriteString("\n" + mutedStyle().Render("SP:Pause R:Reset Q:Quit\nTab:Tracer ↑↓:Speed\n[ ]:Time-Travel T:Theme ?:Help"))

	statsView := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(CurrentTheme.Secondary).
		Padding(1, 2).
		Width(45).
		Render(s.String())
	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsView)
	if m.showHelp {
		return panelStyle().Render(`Space    Pause/Resume
R        Reset to the initial state
Q        Quit
Tab      Next tracer
Up/K     Double steps per frame
Down/J   Halve steps per frame
[ ]      Rewind/Forward through recent frames
T        Cycle themes
?        Toggle this help`) + "\n\n" + mainView
	}
	return mainView
}

// Run starts the live view on the terminal.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
