package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"dockrandr/internal/config"
	"dockrandr/internal/daemon"
	"dockrandr/internal/display"
	"dockrandr/internal/dock"
	"dockrandr/internal/power"
	"dockrandr/internal/xrandr"
)

var (
	cfgFile string
	debug   bool
	setup   string
	dryRun  bool
	reason  string
)

var rootCmd = &cobra.Command{
	Use:   "dockrandr",
	Short: "Arrange monitors when docking and undocking",
	Long: `dockrandr lays out X11 monitors with RandR from setups declared in its
config file, and re-lays them out whenever monitors are plugged, the lid
is closed or the laptop enters its dock.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "List outputs, modes and monitor identifiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := xrandr.Dial("")
		if err != nil {
			return err
		}
		defer conn.Close()

		return conn.ShowOutputs(cmd.Context(), cmd.OutOrStdout())
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Run one configuration pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := newDaemon()
		if err != nil {
			return err
		}
		defer cleanup()

		if dryRun {
			d.Sink = display.DumpSink{W: cmd.OutOrStdout()}
		}
		return d.Reconfigure(cmd.Context(), "apply")
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch for monitor, lid and dock changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		d, cleanup, err := newDaemon()
		if err != nil {
			return err
		}
		defer cleanup()

		conn := d.Provider.(*xrandr.Conn)
		var src daemon.Sources
		if src.Outputs, err = conn.OutputChanges(ctx); err != nil {
			return err
		}

		if lid, ok := d.Lid.(*power.Lid); ok {
			if src.Lid, err = lid.LidEvents(ctx); err != nil {
				slog.Warn("lid events unavailable", "error", err)
			}
		}

		dk := dock.New()
		if interval := d.Config.DockPollDuration(); interval > 0 && dk.Probe() {
			src.Dock = dk.Watch(ctx, interval)
		}

		if src.Config, err = config.Watch(ctx, d.ConfigPath); err != nil {
			slog.Warn("config file changes will be ignored", "error", err)
		}

		slog.Info("processing events")
		return d.Run(ctx, src)
	},
}

var dockCmd = &cobra.Command{
	Use:   "dock",
	Short: "Print the docking station state",
	RunE: func(cmd *cobra.Command, args []string) error {
		dk := dock.New()
		if !dk.Probe() {
			return power.ErrNoDock
		}
		state := "undocked"
		if dk.IsDocked() {
			state = "docked"
		}
		fmt.Fprintln(cmd.OutOrStdout(), state)
		return nil
	},
}

var suspendCmd = &cobra.Command{
	Use:   "suspend",
	Short: "Suspend unless the lid closed while docked",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := power.ParseReason(reason)
		if err != nil {
			return err
		}

		bus, err := dbus.SystemBus()
		if err != nil {
			return fmt.Errorf("connecting to system bus: %w", err)
		}
		m := &power.Manager{Suspender: &power.Logind{Conn: bus}, Dock: dock.New()}
		return m.RequestSuspend(cmd.Context(), r)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/dockrandr/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log layout decisions")

	applyCmd.Flags().StringVar(&setup, "setup", "", "use this setup instead of the best matching one")
	applyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the resolved layout instead of applying it")
	runCmd.Flags().StringVar(&setup, "setup", "", "always use this setup")
	suspendCmd.Flags().StringVar(&reason, "reason", "button", "what asked for the suspend: lid or button")

	rootCmd.AddCommand(showCmd, applyCmd, runCmd, dockCmd, suspendCmd)
}

func loadConfig() (*config.Config, string, error) {
	path := cfgFile
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, "", fmt.Errorf("locating config file: %w", err)
		}
	}

	conf, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, "", err
	}
	return conf, path, nil
}

// newDaemon connects to X and, when available, to the system bus.
func newDaemon() (*daemon.Daemon, func(), error) {
	conf, path, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	conn, err := xrandr.Dial("")
	if err != nil {
		return nil, nil, err
	}

	d := &daemon.Daemon{
		Provider:   conn,
		Sink:       conn,
		Config:     conf,
		ConfigPath: path,
		Setup:      setup,
	}

	bus, err := dbus.SystemBus()
	if err != nil {
		slog.Warn("no system bus, lid and suspend support disabled", "error", err)
	} else {
		d.Lid = &power.Lid{Conn: bus}
		d.Power = &power.Manager{Suspender: &power.Logind{Conn: bus}, Dock: dock.New()}
	}

	return d, conn.Close, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
