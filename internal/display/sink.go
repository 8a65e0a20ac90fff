package display

import (
	"context"
	"io"

	"github.com/davecgh/go-spew/spew"
)

// Assignment is one resolved monitor: which controller drives the output, in
// which mode, at which position.
type Assignment struct {
	Output     OutputID
	Name       string
	Mode       ModeID
	Controller ControllerID
	Position   Position
	// Width and Height are the footprint after rotation.
	Width    int
	Height   int
	Rotation Rotation
	Enabled  bool
	Primary  bool
}

// Batch is everything a configuration pass wants applied at once.
type Batch struct {
	Assignments []Assignment
	// Released controllers are switched off unless also assigned.
	Released []ControllerID
	Primary  OutputID

	Width    int
	Height   int
	WidthMM  int
	HeightMM int
}

func (b *Batch) Assignment(output OutputID) (Assignment, bool) {
	for _, a := range b.Assignments {
		if a.Output == output {
			return a, true
		}
	}
	return Assignment{}, false
}

// Sink applies a batch to the display server. Implementations must make the
// whole batch visible at once.
type Sink interface {
	Commit(ctx context.Context, b *Batch) error
}

// DumpSink writes the batch instead of applying it.
type DumpSink struct {
	W io.Writer
}

func (d DumpSink) Commit(_ context.Context, b *Batch) error {
	cfg := spew.ConfigState{
		Indent:                  "  ",
		DisablePointerAddresses: true,
		DisableCapacities:       true,
	}
	cfg.Fdump(d.W, b)
	return nil
}
