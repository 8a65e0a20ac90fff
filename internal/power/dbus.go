package power

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/godbus/dbus/v5"
)

const (
	logindDest    = "org.freedesktop.login1"
	logindPath    = "/org/freedesktop/login1"
	logindSuspend = "org.freedesktop.login1.Manager.Suspend"

	upowerDest     = "org.freedesktop.UPower"
	upowerPath     = "/org/freedesktop/UPower"
	upowerMatchIfc = "org.freedesktop.DBus.Properties"
	upowerMatchMbr = "PropertiesChanged"
	upowerMethod   = "org.freedesktop.DBus.Properties.Get"
	upowerProperty = "LidIsClosed"
)

// Logind suspends through systemd-logind.
type Logind struct {
	Conn *dbus.Conn
}

func (l *Logind) Suspend(ctx context.Context) error {
	obj := l.Conn.Object(logindDest, logindPath)
	// interactive, so polkit may ask the user
	if err := obj.CallWithContext(ctx, logindSuspend, 0, true).Err; err != nil {
		return fmt.Errorf("calling logind: %w", err)
	}
	return nil
}

// Lid reads the laptop lid switch from UPower.
type Lid struct {
	Conn *dbus.Conn
}

func (l *Lid) LidClosed(ctx context.Context) (bool, error) {
	obj := l.Conn.Object(upowerDest, upowerPath)
	var result dbus.Variant
	if err := obj.CallWithContext(ctx, upowerMethod, 0, upowerDest, upowerProperty).Store(&result); err != nil {
		return false, fmt.Errorf("reading %s: %w", upowerProperty, err)
	}

	closed, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("unexpected type for %s: %s", upowerProperty, result.Signature())
	}
	return closed, nil
}

// LidEvents sends the lid state every time it changes. The channel is closed
// when ctx ends or the bus goes away.
func (l *Lid) LidEvents(ctx context.Context) (<-chan bool, error) {
	if err := l.Conn.AddMatchSignalContext(
		ctx, dbus.WithMatchInterface(upowerMatchIfc), dbus.WithMatchMember(upowerMatchMbr),
		dbus.WithMatchObjectPath(dbus.ObjectPath(upowerPath)),
	); err != nil {
		return nil, fmt.Errorf("adding dbus match rule: %w", err)
	}

	signals := make(chan *dbus.Signal, 10)
	l.Conn.Signal(signals)

	last, err := l.LidClosed(ctx)
	if err != nil {
		l.Conn.RemoveSignal(signals)
		return nil, err
	}

	events := make(chan bool, 1)
	go func() {
		defer close(events)
		defer l.Conn.RemoveSignal(signals)

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if !lidSignal(sig) {
					continue
				}

				closed, err := l.LidClosed(ctx)
				if err != nil {
					slog.Error("reading lid state", "error", err)
					continue
				}
				if closed == last {
					continue
				}
				last = closed

				select {
				case events <- closed:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

func lidSignal(sig *dbus.Signal) bool {
	if sig.Name != upowerMatchIfc+"."+upowerMatchMbr || len(sig.Body) < 2 {
		return false
	}

	if changed, ok := sig.Body[1].(map[string]dbus.Variant); ok {
		if _, exists := changed[upowerProperty]; exists {
			return true
		}
	}

	if len(sig.Body) >= 3 {
		if invalidated, ok := sig.Body[2].([]string); ok {
			return slices.Contains(invalidated, upowerProperty)
		}
	}

	return false
}
