// Package xrandr reads outputs, controllers and modes from the X server and
// applies resolved layouts through the RandR extension.
package xrandr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/randr"
	"github.com/jezek/xgb/xproto"
	"gitlab.com/lehn/edid"

	"dockrandr/internal/display"
)

// Conn is the connection to the X server. It implements display.Provider
// and display.Sink. Passes must not use it concurrently.
type Conn struct {
	X      *xgb.Conn
	screen *xproto.ScreenInfo
	root   xproto.Window

	edidAtom        xproto.Atom
	configTimestamp xproto.Timestamp
	changed         bool
}

func Dial(name string) (*Conn, error) {
	X, err := xgb.NewConnDisplay(name)
	if err != nil {
		return nil, fmt.Errorf("connecting to X server: %w", err)
	}

	if err := randr.Init(X); err != nil {
		X.Close()
		return nil, fmt.Errorf("initializing randr: %w", err)
	}

	screen := xproto.Setup(X).DefaultScreen(X)
	c := &Conn{X: X, screen: screen, root: screen.Root}

	at, err := xproto.InternAtom(X, false, 4, "EDID").Reply()
	if err != nil {
		slog.Warn("interning EDID atom", "error", err)
	} else {
		c.edidAtom = at.Atom
	}

	return c, nil
}

func (c *Conn) Close() {
	c.X.Close()
}

// Changed reports whether the last Commit wrote to the server.
func (c *Conn) Changed() bool {
	return c.changed
}

// Resources takes a snapshot of the current screen resources.
func (c *Conn) Resources(ctx context.Context) (*display.Resources, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resources, err := randr.GetScreenResources(c.X, c.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("GetScreenResources: %w", err)
	}
	c.configTimestamp = resources.ConfigTimestamp

	primary, err := randr.GetOutputPrimary(c.X, c.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("GetOutputPrimary: %w", err)
	}

	modes := make([]*display.Mode, 0, len(resources.Modes))
	for _, mi := range resources.Modes {
		modes = append(modes, convertMode(mi))
	}

	controllers := make([]*display.Controller, 0, len(resources.Crtcs))
	for _, crtc := range resources.Crtcs {
		info, err := randr.GetCrtcInfo(c.X, crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			return nil, fmt.Errorf("GetCrtcInfo %x: %w", uint32(crtc), err)
		}
		controllers = append(controllers, &display.Controller{
			ID:       display.ControllerID(crtc),
			Possible: outputIDs(info.Possible),
			Active:   outputIDs(info.Outputs),
			Position: display.Position{X: int(info.X), Y: int(info.Y)},
			Width:    int(info.Width),
			Height:   int(info.Height),
			Mode:     display.ModeID(info.Mode),
			Rotation: display.Rotation(info.Rotation),
		})
	}

	outputs := make([]*display.Output, 0, len(resources.Outputs))
	for _, id := range resources.Outputs {
		info, err := randr.GetOutputInfo(c.X, id, resources.ConfigTimestamp).Reply()
		if err != nil {
			return nil, fmt.Errorf("GetOutputInfo %x: %w", uint32(id), err)
		}

		o := &display.Output{
			ID:         display.OutputID(id),
			Name:       string(info.Name),
			WidthMM:    int(info.MmWidth),
			HeightMM:   int(info.MmHeight),
			Connection: convertConnection(info.Connection),
			Preferred:  int(info.NumPreferred),
			Current:    display.ControllerID(info.Crtc),
		}
		for _, crtc := range info.Crtcs {
			o.Controllers = append(o.Controllers, display.ControllerID(crtc))
		}
		for _, mode := range info.Modes {
			o.Modes = append(o.Modes, display.ModeID(mode))
		}
		if o.Connected() {
			o.Identifier = c.monitorIdentifier(id)
		}
		outputs = append(outputs, o)
	}

	res := display.NewResources(outputs, controllers, modes)
	res.Primary = display.OutputID(primary.Output)
	return res, nil
}

func convertMode(mi randr.ModeInfo) *display.Mode {
	return &display.Mode{
		ID:       display.ModeID(mi.Id),
		Width:    int(mi.Width),
		Height:   int(mi.Height),
		DotClock: mi.DotClock,
		HTotal:   int(mi.Htotal),
		VTotal:   int(mi.Vtotal),
		Flags:    display.ModeFlags(mi.ModeFlags),
	}
}

func convertConnection(c byte) display.Connection {
	switch c {
	case randr.ConnectionConnected:
		return display.Connected
	case randr.ConnectionDisconnected:
		return display.Disconnected
	}
	return display.ConnectionUnknown
}

func outputIDs(outputs []randr.Output) []display.OutputID {
	ids := make([]display.OutputID, 0, len(outputs))
	for _, o := range outputs {
		ids = append(ids, display.OutputID(o))
	}
	return ids
}

// monitorIdentifier builds "PNPID-model-serial" from the output's EDID, or ""
// when the device does not expose one.
func (c *Conn) monitorIdentifier(output randr.Output) string {
	if c.edidAtom == 0 {
		return ""
	}

	prop, err := randr.GetOutputProperty(c.X, output, c.edidAtom, xproto.GetPropertyTypeAny, 0, 128, false, false).Reply()
	if err != nil {
		slog.Debug("GetOutputProperty", "output", uint32(output), "error", err)
		return ""
	}

	return identifierFromEDID(prop.Data)
}

func identifierFromEDID(data []byte) string {
	if len(data) < 128 {
		return ""
	}

	e, err := edid.New(data)
	if err != nil {
		return ""
	}

	return fmt.Sprintf("%s-%d-%d", string(e.PNPID[:]), e.Model, e.Serial)
}
