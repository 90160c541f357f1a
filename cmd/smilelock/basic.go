package main

import (
	"github.com/spf13/cobra"

	"github.com/charlie0129/smilelock/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewStartCommand() *cobra.Command {
	return newActionCommand(
		"start",
		"Start smile detection",
		`Start smile detection.

Detection can only start while the phone is locked. Progress starts from
zero every time.`,
		"smile detection started. Smile!",
		func() (string, error) { return apiClient.StartDetection() },
	)
}

func NewStopCommand() *cobra.Command {
	return newActionCommand(
		"stop",
		"Stop smile detection",
		`Stop smile detection.

Progress and quality are cleared. Stopping while unlocked leaves the phone
unlocked.`,
		"smile detection stopped",
		func() (string, error) { return apiClient.StopDetection() },
	)
}

func NewLockCommand() *cobra.Command {
	return newActionCommand(
		"lock",
		"Lock the phone now",
		`Lock the phone now.

This skips the remaining auto-relock delay and stops any running detection.`,
		"phone locked",
		func() (string, error) { return apiClient.Lock() },
	)
}

func NewResetCommand() *cobra.Command {
	return newActionCommand(
		"reset",
		"Clear session history and counters",
		`Clear session history, the streak and the total unlock count.

The lock state is left untouched.`,
		"session data cleared",
		func() (string, error) { return apiClient.ResetData() },
	)
}
