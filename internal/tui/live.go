// Package tui renders a mechanism simulation live in the terminal: bodies
// and joints projected onto the x-z plane, with energy and constraint
// readouts, driven by a bubbletea tick loop.
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/s-ogden/bodytree/internal/sim"
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	statStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	trailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	bodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	linkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	alarmStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pausedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
)

const (
	canvasWidth  = 72
	canvasHeight = 22
	frameEvery   = time.Second / 30
	maxTrail     = 120
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(frameEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type point struct{ col, row int }

// Model is the bubbletea model for a live run. It steps the mechanism
// itself so the frame rate and the physics rate stay decoupled.
type Model struct {
	name  string
	mech  *sim.Mechanism
	integ sim.Integrator

	x       sim.State
	t       float64
	dt      float64
	project bool

	paused bool
	done   bool
	runErr error

	initialEnergy float64
	haveEnergy    bool

	scale float64 // world units to canvas columns
	trail []point
}

// NewLive prepares a live view. The mechanism must be realized through the
// parameter stage; x0 is consumed.
func NewLive(name string, mech *sim.Mechanism, integ sim.Integrator, x0 sim.State, dt float64, project bool) Model {
	m := Model{
		name:    name,
		mech:    mech,
		integ:   integ,
		x:       x0.Clone(),
		dt:      dt,
		project: project,
		scale:   12,
	}
	if e, err := mech.Energy(m.x); err == nil {
		m.initialEnergy = e
		m.haveEnergy = true
	}
	return m
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ", "p":
			m.paused = !m.paused
		case "+", "=":
			m.scale *= 1.25
		case "-":
			m.scale /= 1.25
		}
		return m, nil
	case tickMsg:
		if m.paused || m.done {
			return m, tick()
		}
		m.advance(frameEvery)
		return m, tick()
	}
	return m, nil
}

// advance runs enough physics steps to cover one frame of wall time.
func (m *Model) advance(frame time.Duration) {
	steps := int(frame.Seconds() / m.dt)
	if steps < 1 {
		steps = 1
	}
	for i := 0; i < steps; i++ {
		newX, err := m.integ.Step(m.mech, m.x, m.t, m.dt)
		if err != nil {
			m.runErr = err
			m.done = true
			return
		}
		if m.project {
			if err := m.mech.Project(newX); err != nil {
				m.runErr = err
				m.done = true
				return
			}
		}
		m.x = newX
		m.t += m.dt
	}

	// trail follows the last body's mass center
	tree := m.mech.Tree()
	if _, err := m.mech.Energy(m.x); err == nil && tree.NBodies() > 1 {
		com := tree.Node(tree.NBodies() - 1).WorldCOM()
		m.appendTrail(m.toCanvas(com.X, com.Z))
	}
}

func (m Model) View() string {
	canvas := make([][]rune, canvasHeight)
	for i := range canvas {
		canvas[i] = make([]rune, canvasWidth)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}

	// realize at the displayed state; Energy does that as a side effect
	energy, eErr := m.mech.Energy(m.x)

	tree := m.mech.Tree()
	pts := make([]point, tree.NBodies())
	for i := 0; i < tree.NBodies(); i++ {
		pts[i] = m.toCanvas(tree.Node(i).WorldOrigin().X, tree.Node(i).WorldOrigin().Z)
	}

	for _, p := range m.trail {
		set(canvas, p, '.')
	}
	for i := 1; i < tree.NBodies(); i++ {
		parent := tree.Node(i).Parent().NodeNum()
		drawLine(canvas, pts[parent], pts[i], '-')
	}
	set(canvas, pts[0], '#')
	for i := 1; i < tree.NBodies(); i++ {
		com := tree.Node(i).WorldCOM()
		cp := m.toCanvas(com.X, com.Z)
		drawLine(canvas, pts[i], cp, '-')
		set(canvas, cp, 'o')
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("bodytree live: "+m.name) + "\n")
	for _, row := range canvas {
		b.WriteString(m.styleRow(string(row)) + "\n")
	}

	b.WriteString(dimStyle.Render(strings.Repeat("-", canvasWidth)) + "\n")
	b.WriteString(statStyle.Render(fmt.Sprintf("t = %8.3f s   dt = %g", m.t, m.dt)))
	if m.haveEnergy && eErr == nil {
		drift := 0.0
		if m.initialEnergy != 0 {
			drift = math.Abs(energy-m.initialEnergy) / math.Abs(m.initialEnergy)
		}
		b.WriteString(statStyle.Render(fmt.Sprintf("   E = %9.4f   drift = %.2e", energy, drift)))
	}
	if perr, _, err := m.mech.ConstraintErrors(m.x); err == nil && len(perr) > 0 {
		worst := 0.0
		for _, p := range perr {
			worst = math.Max(worst, math.Abs(p))
		}
		b.WriteString(statStyle.Render(fmt.Sprintf("   loop err = %.2e", worst)))
	}
	b.WriteString("\n")

	switch {
	case m.runErr != nil:
		b.WriteString(alarmStyle.Render("stopped: "+m.runErr.Error()) + "\n")
	case m.paused:
		b.WriteString(pausedStyle.Render("paused") + "\n")
	}
	b.WriteString(dimStyle.Render("space: pause   +/-: zoom   q: quit") + "\n")
	return b.String()
}

func (m Model) styleRow(row string) string {
	var b strings.Builder
	for _, r := range row {
		switch r {
		case 'o':
			b.WriteString(bodyStyle.Render(string(r)))
		case '-':
			b.WriteString(linkStyle.Render(string(r)))
		case '.':
			b.WriteString(trailStyle.Render(string(r)))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (m *Model) appendTrail(p point) {
	m.trail = append(m.trail, p)
	if len(m.trail) > maxTrail {
		m.trail = m.trail[len(m.trail)-maxTrail:]
	}
}

// toCanvas maps world x (right) and z (up) to canvas coordinates, with the
// world origin at the horizontal center, a quarter of the way down.
func (m Model) toCanvas(wx, wz float64) point {
	col := canvasWidth/2 + int(math.Round(wx*m.scale))
	row := canvasHeight/4 - int(math.Round(wz*m.scale/2)) // terminal cells are ~2x taller than wide
	return point{col, row}
}

func set(canvas [][]rune, p point, c rune) {
	if p.col >= 0 && p.col < canvasWidth && p.row >= 0 && p.row < canvasHeight {
		canvas[p.row][p.col] = c
	}
}

func drawLine(canvas [][]rune, p1, p2 point, c rune) {
	dx := abs(p2.col - p1.col)
	dy := abs(p2.row - p1.row)
	sx, sy := 1, 1
	if p1.col > p2.col {
		sx = -1
	}
	if p1.row > p2.row {
		sy = -1
	}
	err := dx - dy
	x, y := p1.col, p1.row
	for {
		set(canvas, point{x, y}, c)
		if x == p2.col && y == p2.row {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x += sx
		}
		if e2 < dx {
			err += dx
			y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Run starts the live view and blocks until the user quits.
func Run(name string, mech *sim.Mechanism, integ sim.Integrator, x0 sim.State, dt float64, project bool) error {
	p := tea.NewProgram(NewLive(name, mech, integ, x0, dt, project))
	_, err := p.Run()
	return err
}
