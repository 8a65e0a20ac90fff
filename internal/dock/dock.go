// Package dock reads the state of the ThinkPad docking station from sysfs.
package dock

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	dockDir  = "devices/platform/dock.2"
	dockID   = "acpi:IBM0079:PNP0C15:LNXDOCK:\n"
	sysRoot  = "/sys"
	docked   = "docked"
	modalias = "modalias"
)

type Dock struct {
	// Root is the sysfs mount point.
	Root string
}

func New() *Dock {
	return &Dock{Root: sysRoot}
}

func (d *Dock) path(name string) string {
	return filepath.Join(d.Root, dockDir, name)
}

// Probe reports whether the dock device is an IBM dock the kernel knows
// about. Docked state is meaningless when it is not.
func (d *Dock) Probe() bool {
	data, err := os.ReadFile(d.path(modalias))
	if err != nil {
		slog.Debug("reading dock modalias", "error", err)
		return false
	}
	return string(data) == dockID
}

func (d *Dock) IsDocked() bool {
	f, err := os.Open(d.path(docked))
	if err != nil {
		return false
	}
	defer f.Close()

	var status [1]byte
	if _, err := f.Read(status[:]); err != nil {
		return false
	}
	return status[0] == '1'
}

// Watch polls the dock every interval and sends the docked state whenever
// it changes. The first state read is not sent.
func (d *Dock) Watch(ctx context.Context, interval time.Duration) <-chan bool {
	events := make(chan bool, 1)
	last := d.IsDocked()

	go func() {
		defer close(events)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				state := d.IsDocked()
				if state == last {
					continue
				}
				last = state
				slog.Info("dock state changed", "docked", state)

				select {
				case events <- state:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events
}
