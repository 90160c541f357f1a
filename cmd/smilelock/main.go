package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/smilelock/pkg/client"
	"github.com/charlie0129/smilelock/pkg/version"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/smilelock.sock"
	configPath     = "/etc/smilelock.json"
)

var apiClient *client.Client

var (
	gBasic        = "Basic:"
	gAdvanced     = "Advanced:"
	commandGroups = []string{
		gBasic,
		gAdvanced,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: smilelock daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'smilelock daemon' or check --daemon-socket.")
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or restart the daemon with '--always-allow-non-root-access'")
	case errors.Is(err, client.ErrConflict):
		fmt.Fprintln(os.Stderr, "\nThe phone is unlocked. Run 'smilelock lock' first.")
	}
}

func main() {
	if os.Getenv("GOMAXPROCS") == "" {
		runtime.GOMAXPROCS(2)
	}

	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smilelock",
		Short: "smilelock unlocks a simulated phone when you smile",
		Long: `smilelock unlocks a simulated phone when you smile.

Start detection while the phone is locked. Each smile-quality reading
raises or lowers the unlock progress; a full bar unlocks the phone, which
locks itself again after a while.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := setupLogger(); err != nil {
				return err
			}

			apiClient = client.NewClient(unixSocketPath)

			// The daemon command talks to nobody.
			if cmd.Name() == "daemon" {
				return nil
			}

			if daemonVersion, err := apiClient.GetVersion(); err == nil {
				if daemonVersion != version.Version {
					logrus.WithFields(logrus.Fields{
						"clientVersion": version.Version,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. smilelock may not work as expected.")
				}
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "smilelock daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewStartCommand(),
		NewStopCommand(),
		NewLockCommand(),
		NewResetCommand(),
		NewSessionsCommand(),
		NewWatchCommand(),
		NewResetScheduleCommand(),
	)

	return cmd
}
