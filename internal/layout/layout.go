// Package layout decides where monitors go: a configured setup when one
// matches the connected monitors, else a chain extending from the primary.
package layout

import (
	"errors"
	"fmt"
	"log/slog"

	"dockrandr/internal/config"
	"dockrandr/internal/display"
)

var ErrUnknownSetup = errors.New("unknown setup")

type Options struct {
	LidClosed bool
	// Setup forces a setup by name instead of the best matching one.
	Setup string
}

// Apply prepares mgr for Commit. It returns the name of the setup used, empty
// for the default layout.
func Apply(mgr *display.ConfigurationManager, conf *config.Config, opts Options) (string, error) {
	res := mgr.Resources()

	name := opts.Setup
	if name == "" {
		name = conf.FindBestSetup(res.ConnectedOutputs())
	} else if conf.Setup(name) == nil {
		return "", fmt.Errorf("%s: %w", name, ErrUnknownSetup)
	}

	if name == "" {
		return "", applyDefault(mgr, conf, opts)
	}

	slog.Info("found matching setup", "setup", name)
	return name, applySetup(mgr, conf, name, opts)
}

func applySetup(mgr *display.ConfigurationManager, conf *config.Config, name string, opts Options) error {
	res := mgr.Resources()
	setup := conf.Setup(name)

	monitors := make(map[string]*display.Monitor, len(setup.Outputs))
	var enabled []*display.Monitor
	var primary *display.Monitor

	// Free the controllers of monitors going dark before anyone asks for one.
	for _, oc := range setup.Outputs {
		m := mgr.MonitorByIdentifier(oc.Monitor)
		if m == nil {
			slog.Warn("monitor of setup not connected", "setup", name, "monitor", oc.Monitor)
			continue
		}
		if oc.Disabled || (opts.LidClosed && oc.DisableOnLidClose) {
			slog.Info("disabling monitor", "monitor", m.Name(), "lid_closed", opts.LidClosed)
			if err := mgr.DisableMonitor(m); err != nil {
				return err
			}
			continue
		}
		monitors[oc.Monitor] = m
	}
	for _, m := range mgr.AllMonitors() {
		if conf.OutputConfig(name, m.Output()) == nil {
			slog.Info("disabling monitor outside of setup", "monitor", m.Name())
			if err := mgr.DisableMonitor(m); err != nil {
				return err
			}
		}
	}

	for i := range setup.Outputs {
		oc := &setup.Outputs[i]
		m := monitors[oc.Monitor]
		if m == nil {
			continue
		}

		rotation, err := display.ParseRotation(oc.Rotation)
		if err == nil {
			err = prepare(res, m, oc.Mode, oc.Refresh, rotation)
		}
		if err != nil {
			slog.Warn("leaving monitor out", "monitor", m.Name(), "error", err)
			delete(monitors, oc.Monitor)
			if err := mgr.DisableMonitor(m); err != nil {
				return err
			}
			continue
		}

		enabled = append(enabled, m)
		if oc.Primary {
			primary = m
		}
	}

	for _, oc := range setup.Outputs {
		m := monitors[oc.Monitor]
		if m == nil {
			continue
		}
		for w, target := range oc.Wings() {
			if other := monitors[target]; other != nil {
				m.SetWing(w, other)
			}
		}
		if other := monitors[oc.Mirror]; other != nil {
			if err := m.SetMirror(res, other); err != nil {
				slog.Warn("not mirroring", "monitor", m.Name(), "mirror", other.Name(), "error", err)
			}
		}
	}

	if primary == nil {
		if len(enabled) == 0 {
			return display.ErrMissingPrimary
		}
		primary = enabled[0]
	}
	return mgr.SetMonitorPrimary(primary)
}

func applyDefault(mgr *display.ConfigurationManager, conf *config.Config, opts Options) error {
	res := mgr.Resources()
	all := mgr.AllMonitors()
	if len(all) == 0 {
		return display.ErrMissingPrimary
	}

	external := false
	for _, m := range all {
		if !m.Output().Internal() {
			external = true
		}
	}

	var candidates []*display.Monitor
	for _, m := range all {
		if opts.LidClosed && external && m.Output().Internal() {
			slog.Info("disabling monitor because lid is closed", "monitor", m.Name())
			if err := mgr.DisableMonitor(m); err != nil {
				return err
			}
			continue
		}
		if err := prepare(res, m, "", 0, m.Rotation()); err != nil {
			slog.Warn("leaving monitor out", "monitor", m.Name(), "error", err)
			if err := mgr.DisableMonitor(m); err != nil {
				return err
			}
			continue
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		return display.ErrMissingPrimary
	}

	primary := pickPrimary(res, candidates)
	direction := conf.ExtendDirection()
	tail := primary
	for _, m := range candidates {
		if m == primary {
			continue
		}
		tail.SetWing(direction, m)
		tail = m
	}

	return mgr.SetMonitorPrimary(primary)
}

// pickPrimary keeps the X primary when it is still there, else prefers the
// built-in panel.
func pickPrimary(res *display.Resources, candidates []*display.Monitor) *display.Monitor {
	for _, m := range candidates {
		if m.Output().ID == res.Primary {
			return m
		}
	}
	for _, m := range candidates {
		if m.Output().Internal() {
			return m
		}
	}
	return candidates[0]
}

// prepare picks mode, rotation and controller for m. A monitor already lit
// keeps its mode unless one is asked for, and keeps its controller.
func prepare(res *display.Resources, m *display.Monitor, mode string, refresh float64, rotation display.Rotation) error {
	o := m.Output()

	switch {
	case mode != "" || refresh != 0:
		md := res.FindMode(o, mode, refresh)
		if md == nil {
			return fmt.Errorf("%s: no mode %s@%g: %w", m.Name(), mode, refresh, display.ErrCapabilityMismatch)
		}
		m.SetOutputMode(md)
	case m.Mode() == nil:
		m.SetOutputMode(m.PreferredOutputMode(res))
	}
	if m.Mode() == nil {
		return fmt.Errorf("%s: no modes: %w", m.Name(), display.ErrUnsatisfiable)
	}
	m.SetRotation(rotation)

	if m.IsControllerSupported(m.Controller()) {
		return nil
	}
	c := res.RequestController(o)
	if c == nil {
		return fmt.Errorf("%s: %w", m.Name(), display.ErrNoController)
	}
	if !m.SetController(c) {
		res.Release(c.ID)
		return fmt.Errorf("%s: controller %d: %w", m.Name(), c.ID, display.ErrCapabilityMismatch)
	}
	slog.Debug("picked controller", "monitor", m.Name(), "controller", c.ID)
	return nil
}
