package display

import (
	"fmt"
	"log/slog"
	"strings"
)

// Wing is a direction in which a monitor declares a neighbor.
type Wing int

const (
	WingTop Wing = iota
	WingLeft
	WingRight
	WingBottom
)

var wingNames = [...]string{"top", "left", "right", "bottom"}

func (w Wing) String() string {
	if w < WingTop || w > WingBottom {
		return fmt.Sprintf("wing(%d)", int(w))
	}
	return wingNames[w]
}

func ParseWing(s string) (Wing, error) {
	for i, name := range wingNames {
		if strings.EqualFold(s, name) {
			return Wing(i), nil
		}
	}
	return 0, fmt.Errorf("invalid direction: %s", s)
}

type Dimensions struct {
	Width, Height int
}

// Monitor is one node of the layout graph: an output, the mode and
// controller chosen for it and up to four neighbors. Neighbor links are
// directed and only describe the declaring monitor's point of view.
type Monitor struct {
	output     *Output
	mode       *Mode
	controller *Controller
	rotation   Rotation
	disabled   bool

	wings    [4]*Monitor
	position Position
	// mirror shows the same picture on its own controller.
	mirror *Monitor

	// limits is nil until calculateLimits ran.
	limits *extent
}

func NewMonitor(output *Output) *Monitor {
	return &Monitor{output: output, rotation: RotateNormal}
}

func (m *Monitor) Name() string {
	if m.output == nil {
		return ""
	}
	return m.output.Name
}

func (m *Monitor) Output() *Output {
	return m.output
}

func (m *Monitor) Mode() *Mode {
	return m.mode
}

func (m *Monitor) Controller() *Controller {
	return m.controller
}

func (m *Monitor) Rotation() Rotation {
	return m.rotation
}

func (m *Monitor) Position() Position {
	return m.position
}

// Enabled is false once the monitor lost its output or was disabled.
func (m *Monitor) Enabled() bool {
	return m.output != nil && !m.disabled
}

func (m *Monitor) SetOutput(output *Output) {
	m.output = output
}

func (m *Monitor) SetOutputMode(mode *Mode) {
	m.mode = mode
}

func (m *Monitor) SetRotation(r Rotation) {
	m.rotation = r
}

func (m *Monitor) PreferredOutputMode(res *Resources) *Mode {
	if m.output == nil {
		return nil
	}
	return res.PreferredMode(m.output)
}

func (m *Monitor) IsControllerSupported(c *Controller) bool {
	return m.output != nil && c != nil && m.output.Supports(c.ID)
}

// SetController binds c if the output can be driven by it. Nothing changes
// when it cannot.
func (m *Monitor) SetController(c *Controller) bool {
	if !m.IsControllerSupported(c) {
		return false
	}
	m.controller = c
	m.disabled = false
	return true
}

func (m *Monitor) SetWing(w Wing, other *Monitor) {
	m.wings[w] = other
}

func (m *Monitor) Wing(w Wing) *Monitor {
	return m.wings[w]
}

func (m *Monitor) SetTopWing(other *Monitor)    { m.SetWing(WingTop, other) }
func (m *Monitor) SetLeftWing(other *Monitor)   { m.SetWing(WingLeft, other) }
func (m *Monitor) SetRightWing(other *Monitor)  { m.SetWing(WingRight, other) }
func (m *Monitor) SetBottomWing(other *Monitor) { m.SetWing(WingBottom, other) }

// SetMirror makes other show what m shows: both switch to a mode they have
// in common and other sits at m's position on a controller of its own. A nil
// other ends mirroring. Nothing changes when it fails.
func (m *Monitor) SetMirror(res *Resources, other *Monitor) error {
	if other == nil {
		m.mirror = nil
		return nil
	}
	if other == m || m.output == nil || other.output == nil {
		return fmt.Errorf("%s mirrors %s: %w", m.Name(), other.Name(), ErrUnsatisfiable)
	}

	mode := res.FindCommonMode(m.output, other.output)
	if mode == nil {
		return fmt.Errorf("%s and %s: no common mode: %w", m.Name(), other.Name(), ErrCapabilityMismatch)
	}

	if other.controller == nil || other.controller == m.controller || !other.IsControllerSupported(other.controller) {
		c := res.RequestController(other.output)
		if c == nil {
			return fmt.Errorf("%s: %w", other.Name(), ErrNoController)
		}
		other.SetController(c)
	}

	m.mode = mode
	other.mode = mode
	other.rotation = m.rotation
	m.mirror = other
	return nil
}

func (m *Monitor) Mirror() *Monitor {
	return m.mirror
}

// Disable takes the monitor out of the layout and gives its controller back
// to res. It returns the released controller, 0 if it held none.
func (m *Monitor) Disable(res *Resources) ControllerID {
	m.disabled = true
	m.limits = nil
	if m.controller == nil {
		return 0
	}

	id := m.controller.ID
	res.Release(id)
	m.controller = nil
	return id
}

// pixels is the footprint of this monitor alone.
func (m *Monitor) pixels() Dimensions {
	if m.mode == nil {
		return Dimensions{}
	}
	if m.rotation.swapsAxes() {
		return Dimensions{m.mode.Height, m.mode.Width}
	}
	return Dimensions{m.mode.Width, m.mode.Height}
}

func (m *Monitor) millimeters() Dimensions {
	if m.output == nil {
		return Dimensions{}
	}
	if m.rotation.swapsAxes() {
		return Dimensions{m.output.HeightMM, m.output.WidthMM}
	}
	return Dimensions{m.output.WidthMM, m.output.HeightMM}
}

// satisfiable reports why the monitor cannot be placed, nil if it can.
func (m *Monitor) satisfiable() error {
	switch {
	case !m.Enabled():
		return fmt.Errorf("%s: disabled: %w", m.Name(), ErrUnsatisfiable)
	case m.mode == nil:
		return fmt.Errorf("%s: no mode: %w", m.Name(), ErrUnsatisfiable)
	case m.controller == nil:
		return fmt.Errorf("%s: no controller: %w", m.Name(), ErrUnsatisfiable)
	case !m.IsControllerSupported(m.controller):
		return fmt.Errorf("%s: controller %d: %w", m.Name(), m.controller.ID, ErrCapabilityMismatch)
	}
	return nil
}

// ApplyCascadingConfig resolves limits and positions of everything
// reachable from m and adds each placed monitor and mirror to b. It returns
// every monitor the walk reached, placed or skipped.
func (m *Monitor) ApplyCascadingConfig(res *Resources, b *Batch) []*Monitor {
	if m.limits != nil && m.limits.stale() {
		m.limits = nil
	}
	m.calculateLimits()
	m.CalculateMonitorPositions()

	ext := m.limits
	for _, p := range ext.all() {
		res.MarkBusy(p.monitor.controller.ID)
		m.SetConfig(p.monitor, b)
	}

	b.Width, b.Height = ext.pixels.Width, ext.pixels.Height
	b.WidthMM, b.HeightMM = ext.millimeters.Width, ext.millimeters.Height

	reached := make([]*Monitor, 0, len(ext.placed)+len(ext.mirrored)+len(ext.skipped))
	for _, p := range ext.all() {
		reached = append(reached, p.monitor)
	}
	return append(reached, ext.skipped...)
}

// SetConfig hands one resolved monitor to the batch and records the new
// state on its controller.
func (m *Monitor) SetConfig(mon *Monitor, b *Batch) {
	size := mon.pixels()
	c := mon.controller
	c.Mode = mon.mode.ID
	c.Rotation = mon.rotation
	c.Position = mon.position
	c.Width, c.Height = size.Width, size.Height
	c.Active = []OutputID{mon.output.ID}

	b.Assignments = append(b.Assignments, Assignment{
		Output:     mon.output.ID,
		Name:       mon.output.Name,
		Mode:       mon.mode.ID,
		Controller: c.ID,
		Position:   mon.position,
		Width:      size.Width,
		Height:     size.Height,
		Rotation:   mon.rotation,
		Enabled:    true,
		Primary:    b.Primary == mon.output.ID,
	})

	slog.Debug("monitor resolved", "monitor", mon.Name(), "mode", mon.mode.String(),
		"controller", c.ID, "x", mon.position.X, "y", mon.position.Y)
}
