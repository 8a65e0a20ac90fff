// Package config loads the layout setups that tell dockrandr how monitors
// are arranged.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"dockrandr/internal/display"
)

const relPath = "dockrandr/config.yaml"

type Config struct {
	BackgroundCommand      string                  `yaml:"background_command"`
	DefaultExtendDirection string                  `yaml:"default_extend_direction"`
	Wait                   string                  `yaml:"wait"`
	SuspendOnLidClose      bool                    `yaml:"suspend_on_lid_close"`
	DockPollInterval       string                  `yaml:"dock_poll_interval"`
	Setups                 map[string]*SetupConfig `yaml:"setups"`
}

type SetupConfig struct {
	Outputs []OutputConfig `yaml:"outputs"`
}

// OutputConfig places one monitor. Wing fields name the monitor found on
// that side of this one, as seen from this one only.
type OutputConfig struct {
	Monitor           string  `yaml:"monitor"`
	Primary           bool    `yaml:"primary"`
	Mode              string  `yaml:"mode"`
	Refresh           float64 `yaml:"refresh"`
	Rotation          string  `yaml:"rotation"`
	Top               string  `yaml:"top"`
	Left              string  `yaml:"left"`
	Right             string  `yaml:"right"`
	Bottom            string  `yaml:"bottom"`
	Mirror            string  `yaml:"mirror"`
	Disabled          bool    `yaml:"disabled"`
	DisableOnLidClose bool    `yaml:"disable_on_lid_close"`
}

// Wings returns the declared neighbors by direction.
func (oc *OutputConfig) Wings() map[display.Wing]string {
	wings := make(map[display.Wing]string, 4)
	for w, name := range map[display.Wing]string{
		display.WingTop:    oc.Top,
		display.WingLeft:   oc.Left,
		display.WingRight:  oc.Right,
		display.WingBottom: oc.Bottom,
	} {
		if name != "" {
			wings[w] = name
		}
	}
	return wings
}

func Default() *Config {
	return &Config{
		DefaultExtendDirection: "right",
		Setups:                 map[string]*SetupConfig{},
	}
}

// DefaultPath is config.yaml in the XDG config directory.
func DefaultPath() (string, error) {
	return xdg.ConfigFile(relPath)
}

func Parse(r io.Reader) (*Config, error) {
	conf := Default()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(conf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func Load(name string) (*Config, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return conf, nil
}

// LoadOrDefault is Load, except a missing file yields the default config.
func LoadOrDefault(name string) (*Config, error) {
	conf, err := Load(name)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("no config file found, using defaults", "path", name)
		return Default(), nil
	}
	return conf, err
}

func (c *Config) Validate() error {
	if c.DefaultExtendDirection != "" {
		if _, err := display.ParseWing(c.DefaultExtendDirection); err != nil {
			return fmt.Errorf("default_extend_direction: %w", err)
		}
	}
	if _, err := parseDuration(c.Wait); err != nil {
		return fmt.Errorf("wait: %w", err)
	}
	if _, err := parseDuration(c.DockPollInterval); err != nil {
		return fmt.Errorf("dock_poll_interval: %w", err)
	}

	for name, setup := range c.Setups {
		if setup == nil || len(setup.Outputs) == 0 {
			return fmt.Errorf("setup %s: no outputs", name)
		}

		declared := make(map[string]bool, len(setup.Outputs))
		primaries := 0
		for _, oc := range setup.Outputs {
			if oc.Monitor == "" {
				return fmt.Errorf("setup %s: output without monitor", name)
			}
			if declared[oc.Monitor] {
				return fmt.Errorf("setup %s: monitor %s declared twice", name, oc.Monitor)
			}
			declared[oc.Monitor] = true
			if oc.Primary {
				primaries++
			}
			if _, err := display.ParseRotation(oc.Rotation); err != nil {
				return fmt.Errorf("setup %s: monitor %s: %w", name, oc.Monitor, err)
			}
		}
		if primaries > 1 {
			return fmt.Errorf("setup %s: %d primary monitors", name, primaries)
		}

		for _, oc := range setup.Outputs {
			for w, target := range oc.Wings() {
				if !declared[target] {
					return fmt.Errorf("setup %s: monitor %s: %s wing %s is not part of the setup",
						name, oc.Monitor, w, target)
				}
				if target == oc.Monitor {
					return fmt.Errorf("setup %s: monitor %s is its own %s wing", name, oc.Monitor, w)
				}
			}
			if oc.Mirror == "" {
				continue
			}
			if !declared[oc.Mirror] {
				return fmt.Errorf("setup %s: monitor %s: mirror %s is not part of the setup",
					name, oc.Monitor, oc.Mirror)
			}
			if oc.Mirror == oc.Monitor {
				return fmt.Errorf("setup %s: monitor %s mirrors itself", name, oc.Monitor)
			}
		}
	}

	return nil
}

func (c *Config) ExtendDirection() display.Wing {
	w, err := display.ParseWing(c.DefaultExtendDirection)
	if err != nil {
		return display.WingRight
	}
	return w
}

func (c *Config) WaitDuration() time.Duration {
	d, _ := parseDuration(c.Wait)
	return d
}

func (c *Config) DockPollDuration() time.Duration {
	d, _ := parseDuration(c.DockPollInterval)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

func (c *Config) Setup(name string) *SetupConfig {
	return c.Setups[name]
}

// OutputConfig returns the entry of setup for a monitor known by EDID
// identifier or output name.
func (c *Config) OutputConfig(setup string, output *display.Output) *OutputConfig {
	s := c.Setups[setup]
	if s == nil {
		return nil
	}

	for i := range s.Outputs {
		if matches(s.Outputs[i].Monitor, output) {
			return &s.Outputs[i]
		}
	}
	return nil
}

func matches(monitor string, output *display.Output) bool {
	return monitor == output.Name || (output.Identifier != "" && monitor == output.Identifier)
}

func setupScore(outputs []*display.Output, setup *SetupConfig) int {
	var score int

	for _, oc := range setup.Outputs {
		found := false
		for _, output := range outputs {
			if matches(oc.Monitor, output) {
				found = true
				break
			}
		}

		if !found {
			return 0
		}

		score += 1
	}

	return score
}

// FindBestSetup returns the setup whose monitors are all connected, the one
// naming most monitors winning. Ties go to the first name in sort order.
func (c *Config) FindBestSetup(outputs []*display.Output) string {
	names := make([]string, 0, len(c.Setups))
	for name := range c.Setups {
		names = append(names, name)
	}
	sort.Strings(names)

	var bestScore int
	var bestSetup string
	for _, name := range names {
		score := setupScore(outputs, c.Setups[name])
		if score > bestScore {
			bestScore = score
			bestSetup = name
		}
	}

	return bestSetup
}

// RunBackgroundCommand runs the configured command through sh, typically to
// redraw the wallpaper after the screen size changed.
func (c *Config) RunBackgroundCommand() {
	cmdline := c.BackgroundCommand
	if cmdline == "" {
		return
	}

	slog.Info("executing command", "command", cmdline)
	cmd := exec.Command("sh", "-c", cmdline)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		slog.Error("command failed", "command", cmdline, "error", err)
	}
}
