package display

import "errors"

var (
	// ErrCapabilityMismatch: the controller cannot drive the output.
	ErrCapabilityMismatch = errors.New("controller cannot drive output")
	// ErrNoController: every controller able to drive the output is taken.
	ErrNoController = errors.New("no controller available")
	// ErrUnsatisfiable: the monitor lacks an output, mode or controller.
	ErrUnsatisfiable = errors.New("monitor is unsatisfiable")
	// ErrOverlap: the monitor would cover a monitor already placed.
	ErrOverlap = errors.New("monitor overlaps layout")
	// ErrUnreachable: the monitor is not linked into the primary's wing
	// graph. Such monitors are disabled, it is never returned by Commit.
	ErrUnreachable = errors.New("monitor unreachable from primary")

	ErrMissingPrimary   = errors.New("no primary monitor")
	ErrUnknownMonitor   = errors.New("monitor not owned by this configuration")
	ErrAlreadyCommitted = errors.New("configuration already committed")
	ErrCommitSink       = errors.New("commit failed")
	ErrPassInProgress   = errors.New("configuration pass in progress")
)
