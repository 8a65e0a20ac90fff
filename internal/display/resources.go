package display

import (
	"context"
	"math"
	"slices"
	"strings"
)

type Connection uint8

const (
	Connected Connection = iota
	Disconnected
	ConnectionUnknown
)

// Output is a physical output port. Size and modes describe the device
// currently connected to it.
type Output struct {
	ID         OutputID
	Name       string
	Identifier string
	WidthMM    int
	HeightMM   int
	Connection Connection

	// Controllers that are able to drive this output.
	Controllers []ControllerID
	Modes       []ModeID
	// Preferred is the number of leading entries of Modes the device prefers.
	Preferred int
	// Current is the controller driving the output, 0 if none.
	Current ControllerID
}

func (o *Output) Connected() bool {
	return o.Connection != Disconnected
}

func (o *Output) Supports(id ControllerID) bool {
	return slices.Contains(o.Controllers, id)
}

func (o *Output) SupportsMode(id ModeID) bool {
	return slices.Contains(o.Modes, id)
}

// Internal reports whether the output is the built-in laptop panel.
func (o *Output) Internal() bool {
	for _, prefix := range []string{"eDP", "LVDS", "DSI"} {
		if strings.HasPrefix(o.Name, prefix) {
			return true
		}
	}
	return false
}

type Position struct {
	X, Y int
}

// Controller is a CRTC. A controller scans out one image (mode, position,
// rotation) to the outputs it drives.
type Controller struct {
	ID       ControllerID
	Possible []OutputID
	Active   []OutputID
	Position Position
	Width    int
	Height   int
	Mode     ModeID
	Rotation Rotation
}

func (c *Controller) Enabled() bool {
	return c.Mode != 0 && len(c.Active) > 0
}

// Resources is one snapshot of outputs, controllers and modes taken from a
// Provider. It also tracks which controllers are claimed during a
// configuration pass.
type Resources struct {
	// Primary is the output the display server currently marks primary.
	Primary OutputID

	outputs     []*Output
	controllers []*Controller
	modes       []*Mode
	busy        map[ControllerID]bool
}

func NewResources(outputs []*Output, controllers []*Controller, modes []*Mode) *Resources {
	return &Resources{
		outputs:     outputs,
		controllers: controllers,
		modes:       modes,
		busy:        make(map[ControllerID]bool),
	}
}

func (r *Resources) Outputs() []*Output {
	return r.outputs
}

func (r *Resources) ConnectedOutputs() []*Output {
	var connected []*Output
	for _, o := range r.outputs {
		if o.Connected() {
			connected = append(connected, o)
		}
	}
	return connected
}

func (r *Resources) Controllers() []*Controller {
	return r.controllers
}

func (r *Resources) Modes() []*Mode {
	return r.modes
}

func (r *Resources) Output(id OutputID) *Output {
	for _, o := range r.outputs {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (r *Resources) Controller(id ControllerID) *Controller {
	for _, c := range r.controllers {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (r *Resources) Mode(id ModeID) *Mode {
	for _, m := range r.modes {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// PreferredMode is usually the native resolution of the device at its
// standard refresh rate.
func (r *Resources) PreferredMode(o *Output) *Mode {
	if len(o.Modes) == 0 {
		return nil
	}
	return r.Mode(o.Modes[0])
}

// FindMode picks the output mode named name (any name when empty) whose
// refresh rate is closest to refresh. With refresh 0 the first match in the
// output's own order wins, so preferred modes come first.
func (r *Resources) FindMode(o *Output, name string, refresh float64) *Mode {
	var best *Mode
	var bestDist float64

	for _, id := range o.Modes {
		mode := r.Mode(id)
		if mode == nil || (name != "" && mode.Name() != name) {
			continue
		}
		dist := 0.0
		if refresh != 0 {
			dist = math.Abs(mode.RefreshRate() - refresh)
		}
		if best == nil || dist < bestDist {
			best = mode
			bestDist = dist
		}
	}

	return best
}

// FindCommonMode returns the first mode of a, in a's order of preference,
// that b supports too.
func (r *Resources) FindCommonMode(a, b *Output) *Mode {
	for _, id := range a.Modes {
		if !b.SupportsMode(id) {
			continue
		}
		if mode := r.Mode(id); mode != nil {
			return mode
		}
	}
	return nil
}

// RequestController claims the first free controller able to drive o.
func (r *Resources) RequestController(o *Output) *Controller {
	for _, c := range r.controllers {
		if r.busy[c.ID] || !o.Supports(c.ID) {
			continue
		}
		r.busy[c.ID] = true
		return c
	}
	return nil
}

func (r *Resources) MarkBusy(id ControllerID) {
	r.busy[id] = true
}

func (r *Resources) Release(id ControllerID) {
	delete(r.busy, id)
}

func (r *Resources) Busy(id ControllerID) bool {
	return r.busy[id]
}

// Provider exposes the inventory of outputs, modes and controllers.
type Provider interface {
	Resources(ctx context.Context) (*Resources, error)
}
