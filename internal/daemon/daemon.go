// Package daemon runs configuration passes in response to hotplug, lid,
// dock and config file events.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"dockrandr/internal/config"
	"dockrandr/internal/display"
	"dockrandr/internal/layout"
	"dockrandr/internal/power"
	"dockrandr/internal/xrandr"
)

// One pass at a time per process: the X connection underneath is shared.
var passInProgress atomic.Bool

type LidState interface {
	LidClosed(ctx context.Context) (bool, error)
}

// changeReporter is implemented by sinks that know whether the last commit
// touched the hardware.
type changeReporter interface {
	Changed() bool
}

type Daemon struct {
	Provider   display.Provider
	Sink       display.Sink
	Config     *config.Config
	ConfigPath string
	// Setup forces a setup by name.
	Setup string

	// Lid and Power are optional.
	Lid   LidState
	Power *power.Manager
}

// Sources feed Run. A nil channel is never selected.
type Sources struct {
	Outputs <-chan xrandr.OutputChange
	Lid     <-chan bool
	Dock    <-chan bool
	Config  <-chan struct{}
}

// Reconfigure runs one configuration pass.
func (d *Daemon) Reconfigure(ctx context.Context, reason string) error {
	if !passInProgress.CompareAndSwap(false, true) {
		return display.ErrPassInProgress
	}
	defer passInProgress.Store(false)

	slog.Info("configuration pass", "reason", reason)

	res, err := d.Provider.Resources(ctx)
	if err != nil {
		return fmt.Errorf("reading resources: %w", err)
	}

	lidClosed := false
	if d.Lid != nil {
		lidClosed, err = d.Lid.LidClosed(ctx)
		if err != nil {
			slog.Warn("reading lid state, assuming open", "error", err)
			lidClosed = false
		}
	}

	mgr := display.NewConfigurationManager(res)
	setup, err := layout.Apply(mgr, d.Config, layout.Options{LidClosed: lidClosed, Setup: d.Setup})
	if err != nil {
		return fmt.Errorf("applying layout: %w", err)
	}

	b, err := mgr.Commit(ctx, d.Sink)
	if err != nil {
		return err
	}
	slog.Info("configuration applied", "setup", setup, "monitors", len(b.Assignments),
		"width", b.Width, "height", b.Height)

	if cr, ok := d.Sink.(changeReporter); ok && cr.Changed() {
		d.Config.RunBackgroundCommand()
	}
	return nil
}

func (d *Daemon) pass(ctx context.Context, reason string) {
	if err := d.Reconfigure(ctx, reason); err != nil {
		slog.Error("configuration pass failed", "reason", reason, "error", err)
	}
}

// Run waits for the configured delay, runs a first pass and then one pass per
// event until ctx ends or the output events stop.
func (d *Daemon) Run(ctx context.Context, src Sources) error {
	if wait := d.Config.WaitDuration(); wait > 0 {
		slog.Info("waiting before first pass", "wait", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
	}

	d.pass(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-src.Outputs:
			if !ok {
				return errors.New("output events stopped")
			}
			slog.Info("output changed", "output", ev.Output, "connected", ev.Connected)
			d.pass(ctx, "output change")

		case closed, ok := <-src.Lid:
			if !ok {
				src.Lid = nil
				continue
			}
			slog.Info("lid state changed", "closed", closed)
			d.pass(ctx, "lid")
			if closed && d.Config.SuspendOnLidClose && d.Power != nil {
				if err := d.Power.RequestSuspend(ctx, power.ReasonLid); err != nil {
					slog.Warn("not suspending", "error", err)
				}
			}

		case docked, ok := <-src.Dock:
			if !ok {
				src.Dock = nil
				continue
			}
			slog.Info("dock state changed", "docked", docked)
			d.pass(ctx, "dock")

		case _, ok := <-src.Config:
			if !ok {
				src.Config = nil
				continue
			}
			conf, err := config.LoadOrDefault(d.ConfigPath)
			if err != nil {
				slog.Error("reloading config, keeping the previous one", "error", err)
				continue
			}
			d.Config = conf
			d.pass(ctx, "config reload")
		}
	}
}
