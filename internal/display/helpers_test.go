package display

import (
	"context"
)

func newTestMode(id ModeID, w, h int, refresh float64) *Mode {
	htotal, vtotal := w+160, h+32
	return &Mode{
		ID:       id,
		Width:    w,
		Height:   h,
		HTotal:   htotal,
		VTotal:   vtotal,
		DotClock: uint32(refresh * float64(htotal) * float64(vtotal)),
	}
}

type testRig struct {
	res         *Resources
	outputs     map[string]*Output
	controllers []*Controller
}

// newTestRig builds a snapshot of a docked laptop: three controllers, the
// panel and two external outputs, none of them lit.
func newTestRig() *testRig {
	modes := []*Mode{
		newTestMode(1, 1366, 768, 60),
		newTestMode(2, 1440, 900, 75),
		newTestMode(3, 1920, 1080, 60),
		newTestMode(4, 1024, 768, 60),
	}
	controllers := []*Controller{
		{ID: 63, Possible: []OutputID{100, 101, 102}},
		{ID: 64, Possible: []OutputID{100, 101, 102}},
		{ID: 65, Possible: []OutputID{100, 101, 102}},
	}
	outputs := []*Output{
		{ID: 100, Name: "LVDS-1", WidthMM: 309, HeightMM: 174, Controllers: []ControllerID{63, 64, 65},
			Modes: []ModeID{1, 4}, Preferred: 1},
		{ID: 101, Name: "VGA-1", WidthMM: 408, HeightMM: 255, Controllers: []ControllerID{63, 64, 65},
			Modes: []ModeID{2, 4}, Preferred: 1},
		{ID: 102, Name: "DP-1", WidthMM: 527, HeightMM: 296, Controllers: []ControllerID{63, 64, 65},
			Modes: []ModeID{3, 4}, Preferred: 1},
	}

	r := &testRig{
		res:         NewResources(outputs, controllers, modes),
		outputs:     map[string]*Output{},
		controllers: controllers,
	}
	for _, o := range outputs {
		r.outputs[o.Name] = o
	}
	return r
}

// monitor returns a monitor on the named output with its preferred mode and
// the given controller.
func (r *testRig) monitor(name string, controller ControllerID) *Monitor {
	o := r.outputs[name]
	m := NewMonitor(o)
	m.SetOutputMode(r.res.PreferredMode(o))
	if controller != 0 {
		m.SetController(r.res.Controller(controller))
	}
	return m
}

type recordingSink struct {
	batches []*Batch
	err     error
}

func (s *recordingSink) Commit(_ context.Context, b *Batch) error {
	s.batches = append(s.batches, b)
	return s.err
}
