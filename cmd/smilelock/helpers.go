package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// newActionCommand builds a command that calls a single daemon endpoint and
// reports the daemon's reply.
func newActionCommand(use, short, long, done string, action func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:     use,
		Short:   short,
		Long:    long,
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := action()
			if err != nil {
				return fmt.Errorf("failed to %s: %w", use, err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			logrus.Info(done)

			return nil
		},
	}
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

// progressBar renders progress in [0, 100] as a fixed-width bar.
func progressBar(progress int) string {
	const width = 20
	filled := progress * width / 100
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	bar := make([]rune, width)
	for i := range bar {
		if i < filled {
			bar[i] = '█'
		} else {
			bar[i] = '░'
		}
	}
	return fmt.Sprintf("[%s] %3d%%", string(bar), progress)
}
