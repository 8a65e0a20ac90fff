package display

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

type passState int

const (
	stateBuilt passState = iota
	statePrimarySelected
	stateResolved
	stateCommitted
)

// ConfigurationManager owns the monitors of one configuration pass. It is
// not safe for concurrent use and is discarded after Commit.
type ConfigurationManager struct {
	res      *Resources
	monitors []*Monitor
	primary  *Monitor
	state    passState

	// released controllers are switched off by Commit unless a monitor
	// claimed them again: those still scanning out to outputs that are gone,
	// and those of monitors disabled during the pass.
	released []ControllerID
}

// NewConfigurationManager builds one monitor per connected output. A monitor
// starts out with the controller and mode currently driving its output.
func NewConfigurationManager(res *Resources) *ConfigurationManager {
	cm := &ConfigurationManager{res: res}

	for _, o := range res.ConnectedOutputs() {
		m := NewMonitor(o)
		if c := res.Controller(o.Current); c != nil && m.IsControllerSupported(c) {
			if o.SupportsMode(c.Mode) {
				m.SetOutputMode(res.Mode(c.Mode))
			}
			if c.Rotation != 0 {
				m.SetRotation(c.Rotation)
			}
			// A cloned controller stays with the first of its outputs, the
			// others request their own.
			if !res.Busy(c.ID) {
				m.SetController(c)
				res.MarkBusy(c.ID)
			}
		}
		cm.monitors = append(cm.monitors, m)
	}

	for _, c := range res.Controllers() {
		if !c.Enabled() || res.Busy(c.ID) {
			continue
		}
		live := slices.ContainsFunc(c.Active, func(id OutputID) bool {
			o := res.Output(id)
			return o != nil && o.Connected()
		})
		if !live {
			cm.released = append(cm.released, c.ID)
		}
	}

	return cm
}

func (cm *ConfigurationManager) Resources() *Resources {
	return cm.res
}

func (cm *ConfigurationManager) AllMonitors() []*Monitor {
	return cm.monitors
}

func (cm *ConfigurationManager) Primary() *Monitor {
	return cm.primary
}

// MonitorByName looks a monitor up by output name.
func (cm *ConfigurationManager) MonitorByName(name string) *Monitor {
	for _, m := range cm.monitors {
		if m.Name() == name {
			return m
		}
	}
	return nil
}

// MonitorByIdentifier looks a monitor up by EDID identifier, falling back to
// the output name.
func (cm *ConfigurationManager) MonitorByIdentifier(ident string) *Monitor {
	for _, m := range cm.monitors {
		if o := m.Output(); o != nil && o.Identifier != "" && o.Identifier == ident {
			return m
		}
	}
	return cm.MonitorByName(ident)
}

// SetMonitorPrimary anchors m at the origin of the layout, demoting the
// previous primary.
func (cm *ConfigurationManager) SetMonitorPrimary(m *Monitor) error {
	if cm.state >= stateResolved {
		return ErrAlreadyCommitted
	}
	if !slices.Contains(cm.monitors, m) {
		return ErrUnknownMonitor
	}
	cm.primary = m
	cm.state = statePrimarySelected
	return nil
}

// DisableMonitor takes m out of the pass and frees its controller for the
// other monitors.
func (cm *ConfigurationManager) DisableMonitor(m *Monitor) error {
	if cm.state >= stateResolved {
		return ErrAlreadyCommitted
	}
	if !slices.Contains(cm.monitors, m) {
		return ErrUnknownMonitor
	}
	if id := cm.disable(m); id != 0 {
		cm.released = append(cm.released, id)
	}
	for _, o := range cm.monitors {
		o.limits = nil
	}
	return nil
}

// disable disables m and returns the controller it gave back, 0 when it held
// none or another monitor still drives the same controller.
func (cm *ConfigurationManager) disable(m *Monitor) ControllerID {
	c := m.controller
	shared := c != nil && slices.ContainsFunc(cm.monitors, func(o *Monitor) bool {
		return o != m && o.controller == c && o.Enabled()
	})
	if !shared {
		return m.Disable(cm.res)
	}

	m.disabled = true
	m.controller = nil
	m.limits = nil
	return 0
}

// Commit resolves the layout from the primary, disables every monitor the
// primary cannot reach and hands the result to sink in one batch. Nothing is
// sent to sink when no primary is set.
func (cm *ConfigurationManager) Commit(ctx context.Context, sink Sink) (*Batch, error) {
	switch {
	case cm.state >= stateResolved:
		return nil, ErrAlreadyCommitted
	case cm.primary == nil:
		return nil, ErrMissingPrimary
	}
	if err := cm.primary.satisfiable(); err != nil {
		return nil, fmt.Errorf("primary %s: %w", cm.primary.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := &Batch{Primary: cm.primary.Output().ID}
	reached := cm.primary.ApplyCascadingConfig(cm.res, b)
	cm.state = stateResolved

	for _, m := range cm.monitors {
		if slices.Contains(reached, m) {
			continue
		}
		slog.Info("disabling monitor", "monitor", m.Name(), "reason", ErrUnreachable)
		if id := cm.disable(m); id != 0 {
			b.Released = append(b.Released, id)
		}
	}
	for _, id := range cm.released {
		if !cm.res.Busy(id) && !slices.Contains(b.Released, id) {
			b.Released = append(b.Released, id)
		}
	}

	slog.Info("committing layout", "monitors", len(b.Assignments), "released", len(b.Released),
		"width", b.Width, "height", b.Height)
	if err := sink.Commit(ctx, b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCommitSink, err)
	}
	cm.state = stateCommitted

	return b, nil
}
