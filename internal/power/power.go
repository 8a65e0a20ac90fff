// Package power decides whether the machine should suspend and talks to
// logind and UPower over the system bus.
package power

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

type Reason int

const (
	ReasonLid Reason = iota
	ReasonButton
)

var (
	ErrNoDock = errors.New("dock is not sane or present")
	ErrDocked = errors.New("ignoring lid event while docked")
)

func (r Reason) String() string {
	switch r {
	case ReasonLid:
		return "lid"
	case ReasonButton:
		return "button"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

func ParseReason(s string) (Reason, error) {
	switch s {
	case "lid":
		return ReasonLid, nil
	case "button":
		return ReasonButton, nil
	}
	return 0, fmt.Errorf("invalid suspend reason: %s", s)
}

type Suspender interface {
	Suspend(ctx context.Context) error
}

type DockState interface {
	Probe() bool
	IsDocked() bool
}

type Manager struct {
	Suspender Suspender
	Dock      DockState
}

// RequestSuspend suspends unless reason is the lid and the machine sits in
// its dock.
func (m *Manager) RequestSuspend(ctx context.Context, reason Reason) error {
	switch reason {
	case ReasonButton:
	case ReasonLid:
		if !m.Dock.Probe() {
			return ErrNoDock
		}
		if m.Dock.IsDocked() {
			slog.Info("not suspending", "reason", reason, "error", ErrDocked)
			return ErrDocked
		}
	default:
		return fmt.Errorf("invalid suspend reason %d", int(reason))
	}

	slog.Info("suspending", "reason", reason)
	if err := m.Suspender.Suspend(ctx); err != nil {
		return fmt.Errorf("suspend: %w", err)
	}
	return nil
}
