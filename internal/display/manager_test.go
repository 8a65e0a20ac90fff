package display

import (
	"context"
	"errors"
	"slices"
	"testing"
)

// light marks output name as currently driven by controller in mode.
func (r *testRig) light(name string, controller ControllerID, mode ModeID, pos Position) {
	o := r.outputs[name]
	o.Current = controller
	c := r.res.Controller(controller)
	c.Mode = mode
	c.Active = []OutputID{o.ID}
	c.Position = pos
	c.Rotation = RotateNormal
}

func TestNewConfigurationManager(t *testing.T) {
	r := newTestRig()
	r.light("LVDS-1", 63, 1, Position{})
	r.outputs["DP-1"].Connection = Disconnected

	cm := NewConfigurationManager(r.res)
	monitors := cm.AllMonitors()
	if len(monitors) != 2 {
		t.Fatalf("%d monitors, want 2", len(monitors))
	}

	panel := cm.MonitorByName("LVDS-1")
	if panel == nil || panel.Controller() == nil || panel.Controller().ID != 63 {
		t.Fatalf("panel did not keep its controller: %+v", panel)
	}
	if panel.Mode() == nil || panel.Mode().ID != 1 {
		t.Errorf("panel did not keep its mode")
	}
	if !r.res.Busy(63) {
		t.Error("current controller not marked busy")
	}
	if vga := cm.MonitorByName("VGA-1"); vga.Controller() != nil {
		t.Error("unlit output got a controller")
	}
	if cm.MonitorByName("DP-1") != nil {
		t.Error("disconnected output is represented")
	}
}

func TestConfigurationManager_MonitorByIdentifier(t *testing.T) {
	r := newTestRig()
	r.outputs["VGA-1"].Identifier = "DEL-16535-808464432"

	cm := NewConfigurationManager(r.res)
	if m := cm.MonitorByIdentifier("DEL-16535-808464432"); m == nil || m.Name() != "VGA-1" {
		t.Errorf("lookup by EDID identifier = %v", m)
	}
	if m := cm.MonitorByIdentifier("DP-1"); m == nil || m.Name() != "DP-1" {
		t.Errorf("lookup by name = %v", m)
	}
	if m := cm.MonitorByIdentifier("HDMI-9"); m != nil {
		t.Errorf("lookup of unknown monitor = %v", m)
	}
}

func TestConfigurationManager_CommitWithoutPrimary(t *testing.T) {
	r := newTestRig()
	r.light("LVDS-1", 63, 1, Position{})
	cm := NewConfigurationManager(r.res)
	sink := &recordingSink{}

	_, err := cm.Commit(context.Background(), sink)
	if !errors.Is(err, ErrMissingPrimary) {
		t.Fatalf("Commit() error = %v, want ErrMissingPrimary", err)
	}
	if len(sink.batches) != 0 {
		t.Fatalf("sink called %d times", len(sink.batches))
	}
	if !cm.MonitorByName("LVDS-1").Enabled() {
		t.Error("failed commit disabled a monitor")
	}
}

func TestConfigurationManager_SetMonitorPrimary(t *testing.T) {
	r := newTestRig()
	cm := NewConfigurationManager(r.res)
	first, second := cm.AllMonitors()[0], cm.AllMonitors()[1]

	if err := cm.SetMonitorPrimary(first); err != nil {
		t.Fatal(err)
	}
	if err := cm.SetMonitorPrimary(second); err != nil {
		t.Fatal(err)
	}
	if cm.Primary() != second {
		t.Error("new primary did not replace the previous one")
	}
	if err := cm.SetMonitorPrimary(NewMonitor(&Output{Name: "HDMI-9"})); !errors.Is(err, ErrUnknownMonitor) {
		t.Errorf("foreign monitor error = %v", err)
	}
}

func TestConfigurationManager_Commit(t *testing.T) {
	r := newTestRig()
	r.light("LVDS-1", 63, 1, Position{})
	r.light("DP-1", 65, 3, Position{1366, 0})

	cm := NewConfigurationManager(r.res)
	panel := cm.MonitorByName("LVDS-1")
	vga := cm.MonitorByName("VGA-1")
	vga.SetOutputMode(r.res.PreferredMode(vga.Output()))
	if c := r.res.RequestController(vga.Output()); c == nil || !vga.SetController(c) {
		t.Fatal("no controller for VGA-1")
	}
	panel.SetRightWing(vga)
	if err := cm.SetMonitorPrimary(panel); err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	b, err := cm.Commit(context.Background(), sink)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if len(sink.batches) != 1 || sink.batches[0] != b {
		t.Fatalf("sink got %d batches", len(sink.batches))
	}

	if len(b.Assignments) != 2 {
		t.Fatalf("%d assignments, want 2", len(b.Assignments))
	}
	if _, ok := b.Assignment(102); ok {
		t.Error("unreachable DP-1 is in the batch")
	}
	if !slices.Contains(b.Released, 65) {
		t.Errorf("released = %v, want DP-1's controller 65", b.Released)
	}
	dp := cm.MonitorByName("DP-1")
	if dp.Enabled() {
		t.Error("unreachable monitor still enabled")
	}
	if a, _ := b.Assignment(101); a.Position != (Position{1366, 0}) || a.Controller != 64 {
		t.Errorf("VGA-1 assignment = %+v", a)
	}
	if b.Primary != 100 || b.Width != 2806 || b.Height != 900 {
		t.Errorf("batch = %+v", b)
	}

	if _, err := cm.Commit(context.Background(), sink); !errors.Is(err, ErrAlreadyCommitted) {
		t.Errorf("second Commit() error = %v", err)
	}
}

func TestConfigurationManager_CommitReleasesStaleControllers(t *testing.T) {
	r := newTestRig()
	r.light("LVDS-1", 63, 1, Position{})
	r.light("VGA-1", 64, 2, Position{1366, 0})
	r.outputs["VGA-1"].Connection = Disconnected

	cm := NewConfigurationManager(r.res)
	if err := cm.SetMonitorPrimary(cm.MonitorByName("LVDS-1")); err != nil {
		t.Fatal(err)
	}

	b, err := cm.Commit(context.Background(), &recordingSink{})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(b.Released, []ControllerID{64}) {
		t.Errorf("released = %v, want [64]", b.Released)
	}
	if b.Width != 1366 || b.Height != 768 {
		t.Errorf("screen %dx%d, want 1366x768", b.Width, b.Height)
	}
}

func TestConfigurationManager_DisableMonitor(t *testing.T) {
	r := newTestRig()
	r.light("LVDS-1", 63, 1, Position{})
	r.light("VGA-1", 64, 2, Position{1366, 0})

	cm := NewConfigurationManager(r.res)
	panel := cm.MonitorByName("LVDS-1")
	vga := cm.MonitorByName("VGA-1")
	dp := cm.MonitorByName("DP-1")

	if err := cm.DisableMonitor(panel); err != nil {
		t.Fatal(err)
	}
	if r.res.Busy(63) {
		t.Fatal("controller 63 still busy")
	}

	// The panel's controller is free again and goes to DP-1.
	dp.SetOutputMode(r.res.PreferredMode(dp.Output()))
	if c := r.res.RequestController(dp.Output()); c == nil || c.ID != 63 || !dp.SetController(c) {
		t.Fatalf("RequestController() = %v", c)
	}
	vga.SetLeftWing(dp)
	if err := cm.SetMonitorPrimary(vga); err != nil {
		t.Fatal(err)
	}

	b, err := cm.Commit(context.Background(), &recordingSink{})
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Released) != 0 {
		t.Errorf("released = %v, want none", b.Released)
	}
	if a, ok := b.Assignment(102); !ok || a.Controller != 63 || a.Position != (Position{}) {
		t.Errorf("DP-1 assignment = %+v", a)
	}
	if _, ok := b.Assignment(100); ok {
		t.Error("disabled panel is in the batch")
	}
	if err := cm.DisableMonitor(vga); !errors.Is(err, ErrAlreadyCommitted) {
		t.Errorf("DisableMonitor() after Commit = %v", err)
	}
}

func TestConfigurationManager_CommitSinkFailure(t *testing.T) {
	r := newTestRig()
	r.light("LVDS-1", 63, 1, Position{})
	cm := NewConfigurationManager(r.res)
	if err := cm.SetMonitorPrimary(cm.MonitorByName("LVDS-1")); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("BadMatch")
	_, err := cm.Commit(context.Background(), &recordingSink{err: boom})
	if !errors.Is(err, ErrCommitSink) || !errors.Is(err, boom) {
		t.Fatalf("Commit() error = %v", err)
	}
}

func TestConfigurationManager_CommitUnsatisfiablePrimary(t *testing.T) {
	r := newTestRig()
	cm := NewConfigurationManager(r.res)
	if err := cm.SetMonitorPrimary(cm.MonitorByName("VGA-1")); err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	if _, err := cm.Commit(context.Background(), sink); !errors.Is(err, ErrUnsatisfiable) {
		t.Fatalf("Commit() error = %v", err)
	}
	if len(sink.batches) != 0 {
		t.Error("sink called for an unsatisfiable primary")
	}
}

func TestResources_RequestController(t *testing.T) {
	r := newTestRig()
	r.res.MarkBusy(63)

	c := r.res.RequestController(r.outputs["VGA-1"])
	if c == nil || c.ID != 64 {
		t.Fatalf("RequestController() = %v, want 64", c)
	}
	if c := r.res.RequestController(r.outputs["DP-1"]); c == nil || c.ID != 65 {
		t.Fatalf("RequestController() = %v, want 65", c)
	}
	if c := r.res.RequestController(r.outputs["LVDS-1"]); c != nil {
		t.Fatalf("RequestController() = %v with every controller busy", c.ID)
	}

	r.res.Release(64)
	if c := r.res.RequestController(r.outputs["LVDS-1"]); c == nil || c.ID != 64 {
		t.Fatalf("released controller not handed out again: %v", c)
	}
}

func TestResources_FindMode(t *testing.T) {
	r := newTestRig()
	r.res.modes = append(r.res.modes, newTestMode(5, 1440, 900, 60))
	vga := r.outputs["VGA-1"]
	vga.Modes = append(vga.Modes, 5)

	tests := []struct {
		name    string
		mode    string
		refresh float64
		want    ModeID
	}{
		{"preferred first", "", 0, 2},
		{"closest refresh", "1440x900", 59.9, 5},
		{"by name", "1024x768", 0, 4},
		{"unknown", "800x600", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.res.FindMode(vga, tt.mode, tt.refresh)
			if tt.want == 0 {
				if got != nil {
					t.Fatalf("FindMode() = %v, want nil", got)
				}
				return
			}
			if got == nil || got.ID != tt.want {
				t.Fatalf("FindMode() = %v, want mode %d", got, tt.want)
			}
		})
	}
}

// clone makes name a second output of the lit controller.
func (r *testRig) clone(name string, controller ControllerID) {
	o := r.outputs[name]
	o.Current = controller
	c := r.res.Controller(controller)
	c.Active = append(c.Active, o.ID)
}

func TestNewConfigurationManagerClonedController(t *testing.T) {
	r := newTestRig()
	r.light("LVDS-1", 63, 1, Position{})
	r.clone("VGA-1", 63)

	cm := NewConfigurationManager(r.res)
	panel := cm.MonitorByName("LVDS-1")
	vga := cm.MonitorByName("VGA-1")

	if c := panel.Controller(); c == nil || c.ID != 63 {
		t.Fatalf("panel controller = %v, want 63", c)
	}
	if vga.Controller() != nil {
		t.Errorf("clone partner shares controller %d", vga.Controller().ID)
	}
	if vga.Mode() != nil {
		t.Errorf("clone partner took mode %v it does not support", vga.Mode())
	}

	vga.SetOutputMode(r.res.PreferredMode(vga.Output()))
	if c := r.res.RequestController(vga.Output()); c == nil || c.ID != 64 || !vga.SetController(c) {
		t.Fatalf("RequestController() = %v, want 64", c)
	}
	panel.SetRightWing(vga)
	if err := cm.SetMonitorPrimary(panel); err != nil {
		t.Fatal(err)
	}

	b, err := cm.Commit(context.Background(), &recordingSink{})
	if err != nil {
		t.Fatal(err)
	}
	if a, ok := b.Assignment(101); !ok || a.Controller != 64 || a.Position != (Position{X: 1366}) {
		t.Errorf("VGA-1 assignment = %+v", a)
	}
	if a, ok := b.Assignment(100); !ok || a.Controller != 63 {
		t.Errorf("LVDS-1 assignment = %+v", a)
	}
}

func TestConfigurationManager_DisableClonePartner(t *testing.T) {
	r := newTestRig()
	r.light("LVDS-1", 63, 1, Position{})
	r.clone("VGA-1", 63)

	cm := NewConfigurationManager(r.res)
	panel := cm.MonitorByName("LVDS-1")
	vga := cm.MonitorByName("VGA-1")
	// both outputs believe they own 63, as an older pass could leave them
	vga.controller = panel.controller

	if err := cm.DisableMonitor(vga); err != nil {
		t.Fatal(err)
	}
	if !r.res.Busy(63) {
		t.Fatal("controller still driving the panel was released")
	}
	if vga.Enabled() || vga.Controller() != nil {
		t.Error("VGA-1 still enabled")
	}

	if err := cm.SetMonitorPrimary(panel); err != nil {
		t.Fatal(err)
	}
	b, err := cm.Commit(context.Background(), &recordingSink{})
	if err != nil {
		t.Fatal(err)
	}
	if slices.Contains(b.Released, 63) {
		t.Errorf("released = %v", b.Released)
	}
	if a, ok := b.Assignment(100); !ok || a.Controller != 63 {
		t.Errorf("LVDS-1 assignment = %+v", a)
	}
}

func TestConfigurationManager_DisableAfterLimits(t *testing.T) {
	r := newTestRig()
	r.light("LVDS-1", 63, 1, Position{})
	r.light("VGA-1", 64, 2, Position{X: 1366})

	cm := NewConfigurationManager(r.res)
	panel := cm.MonitorByName("LVDS-1")
	vga := cm.MonitorByName("VGA-1")
	panel.SetRightWing(vga)
	if err := cm.SetMonitorPrimary(panel); err != nil {
		t.Fatal(err)
	}

	if got := panel.TotalWidth(); got != 1366+1440 {
		t.Fatalf("TotalWidth() = %d", got)
	}
	if err := cm.DisableMonitor(vga); err != nil {
		t.Fatal(err)
	}

	b, err := cm.Commit(context.Background(), &recordingSink{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Assignment(101); ok {
		t.Error("disabled VGA-1 is in the batch")
	}
	if b.Width != 1366 {
		t.Errorf("screen width = %d, want 1366", b.Width)
	}
	if !slices.Contains(b.Released, 64) {
		t.Errorf("released = %v, want 64", b.Released)
	}
}

func TestResources_FindCommonMode(t *testing.T) {
	r := newTestRig()

	if m := r.res.FindCommonMode(r.outputs["LVDS-1"], r.outputs["DP-1"]); m == nil || m.ID != 4 {
		t.Errorf("FindCommonMode(LVDS-1, DP-1) = %v, want mode 4", m)
	}
	r.outputs["DP-1"].Modes = []ModeID{3}
	if m := r.res.FindCommonMode(r.outputs["LVDS-1"], r.outputs["DP-1"]); m != nil {
		t.Errorf("FindCommonMode() = %v, want nil", m)
	}
}
