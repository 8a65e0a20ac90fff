package xrandr

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jezek/xgb/randr"

	"dockrandr/internal/display"
)

// OutputChange is one connect or disconnect notification.
type OutputChange struct {
	Output    display.OutputID
	Connected bool
}

// OutputChanges selects RandR output change notifications on the root
// window. The channel is closed when the connection fails or ctx ends.
func (c *Conn) OutputChanges(ctx context.Context) (<-chan OutputChange, error) {
	err := randr.SelectInputChecked(c.X, c.root, randr.NotifyMaskOutputChange).Check()
	if err != nil {
		return nil, fmt.Errorf("SelectInput: %w", err)
	}

	events := make(chan OutputChange, 1)

	go func() {
		defer close(events)
		for {
			ev, xerr := c.X.WaitForEvent()
			if ev == nil && xerr == nil {
				slog.Info("X connection closed")
				return
			}
			if xerr != nil {
				slog.Error("WaitForEvent", "error", xerr)
				return
			}
			notify, ok := ev.(randr.NotifyEvent)
			if !ok || notify.SubCode != randr.NotifyOutputChange {
				continue
			}

			oc := notify.U.Oc
			change := OutputChange{
				Output:    display.OutputID(oc.Output),
				Connected: oc.Connection != randr.ConnectionDisconnected,
			}
			slog.Debug("output change", "output", uint32(oc.Output), "connected", change.Connected)

			select {
			case events <- change:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// ShowOutputs writes the output inventory to w.
func (c *Conn) ShowOutputs(ctx context.Context, w io.Writer) error {
	res, err := c.Resources(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Outputs:\n")

	for _, o := range res.Outputs() {
		fmt.Fprintf(w, "  [%x] %s: CRTC=%x", uint32(o.ID), o.Name, uint32(o.Current))
		if o.Connected() {
			fmt.Fprintf(w, " connected")
			if mode := res.PreferredMode(o); mode != nil {
				fmt.Fprintf(w, ", preferred mode: %s (%x)", mode, uint32(mode.ID))
			}
			fmt.Fprintf(w, ", %dx%dmm", o.WidthMM, o.HeightMM)
		} else {
			fmt.Fprintf(w, " disconnected")
		}
		if ctrl := res.Controller(o.Current); ctrl != nil && ctrl.Mode != 0 {
			if mode := res.Mode(ctrl.Mode); mode != nil {
				fmt.Fprintf(w, ", current mode: %s (%x)", mode, uint32(mode.ID))
			}
			fmt.Fprintf(w, ", position: %d+%d", ctrl.Position.X, ctrl.Position.Y)
			if ctrl.Rotation != display.RotateNormal {
				fmt.Fprintf(w, ", rotation: %s", ctrl.Rotation)
			}
		}
		if o.Identifier != "" {
			fmt.Fprintf(w, ", Monitor=%s", o.Identifier)
		}
		if o.ID == res.Primary {
			fmt.Fprintf(w, ", primary")
		}

		fmt.Fprintf(w, "\n")
	}

	return nil
}
