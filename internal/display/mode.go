package display

import (
	"fmt"
	"strings"
)

type (
	ModeID       uint32
	OutputID     uint32
	ControllerID uint32
)

// ModeFlags carries the scan type bits of a mode. The values match the
// RandR wire encoding.
type ModeFlags uint32

const (
	ModeFlagInterlace  ModeFlags = 1 << 4
	ModeFlagDoubleScan ModeFlags = 1 << 5
)

// Mode is an immutable resolution, refresh and scan type triple.
type Mode struct {
	ID       ModeID
	Width    int
	Height   int
	DotClock uint32
	HTotal   int
	VTotal   int
	Flags    ModeFlags
}

func (m *Mode) Interlaced() bool {
	return m.Flags&ModeFlagInterlace != 0
}

func (m *Mode) DoubleScan() bool {
	return m.Flags&ModeFlagDoubleScan != 0
}

// Name returns the resolution as shown to users, for ex. "1366x768".
func (m *Mode) Name() string {
	name := fmt.Sprintf("%dx%d", m.Width, m.Height)
	if m.Interlaced() {
		name += "i"
	}
	return name
}

// RefreshRate returns the actual refresh rate of the mode, not the doubled
// (DoubleScan) or halved (Interlace) field rate.
func (m *Mode) RefreshRate() float64 {
	vtotal := float64(m.VTotal)
	if m.DoubleScan() {
		vtotal *= 2
	}
	if m.Interlaced() {
		vtotal /= 2
	}
	if m.HTotal == 0 || vtotal == 0 {
		return 0
	}

	return float64(m.DotClock) / (float64(m.HTotal) * vtotal)
}

func (m *Mode) String() string {
	s := fmt.Sprintf("%s@%.2fHz", m.Name(), m.RefreshRate())
	if m.DoubleScan() {
		s += "d"
	}
	return s
}

// Rotation values match the RandR rotation bits.
type Rotation uint16

const (
	RotateNormal   Rotation = 1
	RotateLeft     Rotation = 2
	RotateInverted Rotation = 4
	RotateRight    Rotation = 8
)

func ParseRotation(s string) (Rotation, error) {
	switch strings.ToLower(s) {
	case "", "normal":
		return RotateNormal, nil
	case "left":
		return RotateLeft, nil
	case "inverted":
		return RotateInverted, nil
	case "right":
		return RotateRight, nil
	}
	return 0, fmt.Errorf("invalid rotation: %s", s)
}

func (r Rotation) String() string {
	switch r {
	case RotateNormal:
		return "normal"
	case RotateLeft:
		return "left"
	case RotateInverted:
		return "inverted"
	case RotateRight:
		return "right"
	}
	return fmt.Sprintf("rotation(%d)", uint16(r))
}

// swapsAxes is true for the quarter turns, where width and height trade places.
func (r Rotation) swapsAxes() bool {
	return r == RotateLeft || r == RotateRight
}
