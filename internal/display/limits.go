package display

import (
	"log/slog"
	"slices"
)

type rect struct {
	x, y, w, h int
}

func (r rect) overlaps(o rect) bool {
	return r.x < o.x+o.w && o.x < r.x+r.w &&
		r.y < o.y+o.h && o.y < r.y+r.h
}

type placement struct {
	monitor *Monitor
	px      rect
	mm      rect
}

// neighbor places n on side w of p. Left and top neighbors get a negative
// offset, the walk normalizes afterwards.
func (p placement) neighbor(w Wing, n *Monitor) placement {
	size, sizeMM := n.pixels(), n.millimeters()
	next := placement{
		monitor: n,
		px:      rect{p.px.x, p.px.y, size.Width, size.Height},
		mm:      rect{p.mm.x, p.mm.y, sizeMM.Width, sizeMM.Height},
	}

	switch w {
	case WingTop:
		next.px.y -= size.Height
		next.mm.y -= sizeMM.Height
	case WingLeft:
		next.px.x -= size.Width
		next.mm.x -= sizeMM.Width
	case WingRight:
		next.px.x += p.px.w
		next.mm.x += p.mm.w
	case WingBottom:
		next.px.y += p.px.h
		next.mm.y += p.mm.h
	}
	return next
}

// extent is the resolved layout of everything reachable from one monitor.
type extent struct {
	placed []placement
	// skipped monitors were reached but could not be placed, their
	// hardware state is left alone.
	skipped []*Monitor
	// dropped monitors would have overlapped the layout.
	dropped []*Monitor
	// mirrored monitors share the rectangle of the monitor they mirror.
	mirrored []placement

	pixels      Dimensions
	millimeters Dimensions
}

// calculateLimits walks the wing graph breadth first from m, in wing order
// top, left, right, bottom. A monitor is placed by the first link that
// reaches it, so cycles and disagreeing links terminate. The result is kept
// until the monitor is disabled.
func (m *Monitor) calculateLimits() {
	if m.limits != nil {
		return
	}

	ext := &extent{}
	m.limits = ext

	if err := m.satisfiable(); err != nil {
		slog.Warn("skipping monitor", "monitor", m.Name(), "error", err)
		ext.skipped = append(ext.skipped, m)
		return
	}

	size, sizeMM := m.pixels(), m.millimeters()
	queue := []placement{{
		monitor: m,
		px:      rect{0, 0, size.Width, size.Height},
		mm:      rect{0, 0, sizeMM.Width, sizeMM.Height},
	}}
	visited := map[*Monitor]bool{m: true}
	claimed := map[ControllerID]*Monitor{}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		if other := ext.overlapping(p.px); other != nil {
			slog.Warn("dropping monitor", "monitor", p.monitor.Name(), "overlaps", other.Name(), "error", ErrOverlap)
			ext.dropped = append(ext.dropped, p.monitor)
			continue
		}
		if other, ok := claimed[p.monitor.controller.ID]; ok {
			slog.Warn("skipping monitor", "monitor", p.monitor.Name(), "controller", p.monitor.controller.ID,
				"used_by", other.Name(), "error", ErrUnsatisfiable)
			ext.skipped = append(ext.skipped, p.monitor)
			continue
		}
		claimed[p.monitor.controller.ID] = p.monitor
		ext.placed = append(ext.placed, p)

		if mir := p.monitor.mirror; mir != nil && !visited[mir] {
			visited[mir] = true
			if err := mir.satisfiable(); err != nil {
				slog.Warn("skipping mirror", "monitor", mir.Name(), "error", err)
				ext.skipped = append(ext.skipped, mir)
			} else if other, ok := claimed[mir.controller.ID]; ok {
				slog.Warn("skipping mirror", "monitor", mir.Name(), "controller", mir.controller.ID,
					"used_by", other.Name(), "error", ErrUnsatisfiable)
				ext.skipped = append(ext.skipped, mir)
			} else {
				claimed[mir.controller.ID] = mir
				ext.mirrored = append(ext.mirrored, placement{monitor: mir, px: p.px, mm: p.mm})
			}
		}

		for w, n := range p.monitor.wings {
			if n == nil || visited[n] {
				continue
			}
			visited[n] = true

			if err := n.satisfiable(); err != nil {
				slog.Warn("skipping monitor", "monitor", n.Name(), "error", err)
				ext.skipped = append(ext.skipped, n)
				continue
			}
			queue = append(queue, p.neighbor(Wing(w), n))
		}
	}

	ext.normalize()
	slog.Debug("limits calculated", "monitor", m.Name(), "placed", len(ext.placed),
		"width", ext.pixels.Width, "height", ext.pixels.Height,
		"width_mm", ext.millimeters.Width, "height_mm", ext.millimeters.Height)
}

// all returns placed monitors followed by their mirrors.
func (e *extent) all() []placement {
	return append(slices.Clip(e.placed), e.mirrored...)
}

// stale is true when a monitor of the layout can no longer be placed, e.g.
// because it was disabled after the layout was computed.
func (e *extent) stale() bool {
	for _, p := range e.all() {
		if p.monitor.satisfiable() != nil {
			return true
		}
	}
	return false
}

func (e *extent) overlapping(r rect) *Monitor {
	for _, p := range e.placed {
		if p.px.overlaps(r) {
			return p.monitor
		}
	}
	return nil
}

// normalize shifts every placement so no coordinate is negative and records
// the bounding box.
func (e *extent) normalize() {
	if len(e.placed) == 0 {
		return
	}

	var px, mm struct{ left, top, right, bottom int }
	for i, p := range e.placed {
		if i == 0 {
			px.left, px.top, px.right, px.bottom = p.px.x, p.px.y, p.px.x+p.px.w, p.px.y+p.px.h
			mm.left, mm.top, mm.right, mm.bottom = p.mm.x, p.mm.y, p.mm.x+p.mm.w, p.mm.y+p.mm.h
			continue
		}
		px.left = min(px.left, p.px.x)
		px.top = min(px.top, p.px.y)
		px.right = max(px.right, p.px.x+p.px.w)
		px.bottom = max(px.bottom, p.px.y+p.px.h)
		mm.left = min(mm.left, p.mm.x)
		mm.top = min(mm.top, p.mm.y)
		mm.right = max(mm.right, p.mm.x+p.mm.w)
		mm.bottom = max(mm.bottom, p.mm.y+p.mm.h)
	}

	for _, ps := range [][]placement{e.placed, e.mirrored} {
		for i := range ps {
			ps[i].px.x -= px.left
			ps[i].px.y -= px.top
			ps[i].mm.x -= mm.left
			ps[i].mm.y -= mm.top
		}
	}

	e.pixels = Dimensions{px.right - px.left, px.bottom - px.top}
	e.millimeters = Dimensions{mm.right - mm.left, mm.bottom - mm.top}
}

func (m *Monitor) TotalWidth() int {
	m.calculateLimits()
	return m.limits.pixels.Width
}

func (m *Monitor) TotalHeight() int {
	m.calculateLimits()
	return m.limits.pixels.Height
}

func (m *Monitor) ScreenDimensionsPixels() Dimensions {
	m.calculateLimits()
	return m.limits.pixels
}

func (m *Monitor) ScreenDimensionsMillimeters() Dimensions {
	m.calculateLimits()
	return m.limits.millimeters
}

// CalculateMonitorPositions writes the resolved position of every placed
// monitor into the monitor and its controller. Positions are shifted so the
// layout starts at (0,0), which moves m off the origin when it has left or
// top neighbors.
func (m *Monitor) CalculateMonitorPositions() {
	m.calculateLimits()
	for _, p := range m.limits.all() {
		pos := Position{p.px.x, p.px.y}
		p.monitor.position = pos
		if p.monitor.controller != nil {
			p.monitor.controller.Position = pos
		}
	}
}
