package xrandr

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jezek/xgb/randr"
	"github.com/jezek/xgb/xproto"

	"dockrandr/internal/display"
)

// Commit applies b while holding a server grab so clients never observe a
// half configured screen. Controllers are switched off first, then the
// screen is resized, then every assignment that differs is applied.
func (c *Conn) Commit(ctx context.Context, b *display.Batch) error {
	c.changed = false
	if err := ctx.Err(); err != nil {
		return err
	}

	err := xproto.GrabServerChecked(c.X).Check()
	if err != nil {
		return fmt.Errorf("GrabServer: %w", err)
	}
	defer func() {
		if err := xproto.UngrabServerChecked(c.X).Check(); err != nil {
			slog.Error("UngrabServer", "error", err)
		}
	}()

	resources, err := randr.GetScreenResourcesCurrent(c.X, c.root).Reply()
	if err != nil {
		return fmt.Errorf("GetScreenResourcesCurrent: %w", err)
	}
	c.configTimestamp = resources.ConfigTimestamp

	current := make(map[randr.Crtc]*randr.GetCrtcInfoReply, len(resources.Crtcs))
	for _, crtc := range resources.Crtcs {
		info, err := randr.GetCrtcInfo(c.X, crtc, c.configTimestamp).Reply()
		if err != nil {
			return fmt.Errorf("GetCrtcInfo %x: %w", uint32(crtc), err)
		}
		current[crtc] = info
	}

	// Turn off controllers
	for _, crtc := range resources.Crtcs {
		info := current[crtc]
		if info.Mode == 0 || !mustDisable(crtc, info, b) {
			continue
		}

		slog.Info("turning off controller", "controller", uint32(crtc))
		if err := c.setCrtc(crtc, 0, 0, 0, randr.RotationRotate0, nil); err != nil {
			return err
		}
		info.Mode = 0
		info.Outputs = nil
		c.changed = true
	}

	if err := c.resizeScreen(b); err != nil {
		return err
	}

	// Apply
	for _, a := range b.Assignments {
		crtc := randr.Crtc(a.Controller)
		info, ok := current[crtc]
		if !ok {
			return fmt.Errorf("controller %x: %w", uint32(crtc), display.ErrUnsatisfiable)
		}
		if !assignmentDiffers(info, a) {
			continue
		}

		slog.Info("reconfiguring controller", "controller", uint32(crtc), "output", a.Name,
			"mode", fmt.Sprintf("%x -> %x", uint32(info.Mode), uint32(a.Mode)),
			"position", fmt.Sprintf("%d+%d -> %d+%d", info.X, info.Y, a.Position.X, a.Position.Y))
		err := c.setCrtc(crtc, int16(a.Position.X), int16(a.Position.Y), randr.Mode(a.Mode),
			uint16(a.Rotation), []randr.Output{randr.Output(a.Output)})
		if err != nil {
			return err
		}
		c.changed = true
	}

	return c.setPrimary(b.Primary)
}

func (c *Conn) setCrtc(crtc randr.Crtc, x, y int16, mode randr.Mode, rotation uint16, outputs []randr.Output) error {
	if outputs == nil {
		outputs = []randr.Output{}
	}
	reply, err := randr.SetCrtcConfig(c.X, crtc, xproto.TimeCurrentTime, c.configTimestamp,
		x, y, mode, rotation, outputs).Reply()
	if err != nil {
		return fmt.Errorf("SetCrtcConfig %x: %w", uint32(crtc), err)
	}
	if reply.Status != randr.SetConfigSuccess {
		return fmt.Errorf("SetCrtcConfig %x: status %d", uint32(crtc), reply.Status)
	}
	return nil
}

// mustDisable is true for a lit controller the batch releases, one whose
// current scanout would not fit the new screen, and one driving an output
// the batch moves to a different controller.
func mustDisable(crtc randr.Crtc, info *randr.GetCrtcInfoReply, b *display.Batch) bool {
	var assigned *display.Assignment
	for i := range b.Assignments {
		if randr.Crtc(b.Assignments[i].Controller) == crtc {
			assigned = &b.Assignments[i]
			break
		}
	}

	if assigned == nil {
		return slices.Contains(b.Released, display.ControllerID(crtc)) || drivesMovedOutput(crtc, info, b)
	}

	if int(info.X)+int(info.Width) > b.Width || int(info.Y)+int(info.Height) > b.Height {
		return true
	}
	return drivesMovedOutput(crtc, info, b)
}

func drivesMovedOutput(crtc randr.Crtc, info *randr.GetCrtcInfoReply, b *display.Batch) bool {
	for _, o := range info.Outputs {
		if a, ok := b.Assignment(display.OutputID(o)); ok && randr.Crtc(a.Controller) != crtc {
			return true
		}
	}
	return false
}

func assignmentDiffers(info *randr.GetCrtcInfoReply, a display.Assignment) bool {
	return info.Mode != randr.Mode(a.Mode) ||
		int(info.X) != a.Position.X ||
		int(info.Y) != a.Position.Y ||
		info.Rotation != uint16(a.Rotation) ||
		!slices.Equal(info.Outputs, []randr.Output{randr.Output(a.Output)})
}

// resizeScreen sets the screen to the batch size. The physical size comes
// from the batch when the monitors report one, else it keeps the current DPI.
func (c *Conn) resizeScreen(b *display.Batch) error {
	if b.Width == 0 || b.Height == 0 {
		return nil
	}
	if uint16(b.Width) == c.screen.WidthInPixels && uint16(b.Height) == c.screen.HeightInPixels {
		return nil
	}

	widthMM, heightMM := uint32(b.WidthMM), uint32(b.HeightMM)
	if widthMM == 0 || heightMM == 0 {
		dpi := (25.4 * float64(c.screen.HeightInPixels)) / float64(c.screen.HeightInMillimeters)
		widthMM = uint32((25.4 * float64(b.Width)) / dpi)
		heightMM = uint32((25.4 * float64(b.Height)) / dpi)
	}

	slog.Info("setting screen size", "width", b.Width, "height", b.Height,
		"width_mm", widthMM, "height_mm", heightMM)
	err := randr.SetScreenSizeChecked(c.X, c.root, uint16(b.Width), uint16(b.Height), widthMM, heightMM).Check()
	if err != nil {
		return fmt.Errorf("SetScreenSize: %w", err)
	}
	c.screen.WidthInPixels = uint16(b.Width)
	c.screen.HeightInPixels = uint16(b.Height)
	c.screen.WidthInMillimeters = uint16(widthMM)
	c.screen.HeightInMillimeters = uint16(heightMM)
	c.changed = true

	return nil
}

func (c *Conn) setPrimary(output display.OutputID) error {
	if output == 0 {
		return nil
	}

	primary, err := randr.GetOutputPrimary(c.X, c.root).Reply()
	if err != nil {
		return fmt.Errorf("GetOutputPrimary: %w", err)
	}
	if primary.Output == randr.Output(output) {
		return nil
	}

	slog.Info("setting primary output", "output", uint32(output))
	if err := randr.SetOutputPrimaryChecked(c.X, c.root, randr.Output(output)).Check(); err != nil {
		return fmt.Errorf("SetOutputPrimary: %w", err)
	}
	c.changed = true
	return nil
}
