package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewResetScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reset-schedule [cron-expression]",
		Aliases: []string{"sch", "schedule"},
		Short:   "Manage automatic session data resets",
		Long: `Manage automatic session data resets.

The reset-schedule command can be used in multiple ways:
  smilelock reset-schedule 'minute hour day month weekday' Set schedule with cron expression
  smilelock reset-schedule set ''                          Disable the schedule
  smilelock reset-schedule skip                            Skip next run
  smilelock reset-schedule show                            Show current schedule`,
		Example: `  smilelock reset-schedule '0 0 * * *'  (Every day at midnight)
  smilelock reset-schedule '0 0 * * 1'  (Every Monday at midnight)
  smilelock reset-schedule '@weekly'`,
		GroupID: gAdvanced,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runResetScheduleShow(cmd)
			}
			return runResetScheduleSet(cmd, args[0])
		},
	}

	cmd.AddCommand(
		newResetScheduleSetCommand(),
		newResetScheduleSkipCommand(),
		newResetScheduleShowCommand(),
	)

	return cmd
}

func newResetScheduleSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set [cron-expression]",
		Short: "Set the data reset schedule",
		Long:  "Set the data reset schedule. An empty expression disables it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResetScheduleSet(cmd, args[0])
		},
	}
}

func newResetScheduleSkipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Skip the next scheduled data reset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ret, err := apiClient.SkipResetSchedule()
			if err != nil {
				return err
			}
			cmd.Println(ret)
			return nil
		},
	}
}

func newResetScheduleShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current data reset schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runResetScheduleShow(cmd)
		},
	}
}

func runResetScheduleSet(cmd *cobra.Command, expr string) error {
	ret, err := apiClient.SetResetSchedule(expr)
	if err != nil {
		return fmt.Errorf("failed to set reset schedule: %w", err)
	}
	cmd.Println(ret)
	return nil
}

func runResetScheduleShow(cmd *cobra.Command) error {
	next, err := apiClient.GetResetSchedule()
	if err != nil {
		return err
	}
	if next.IsZero() {
		cmd.Println("Data reset schedule is not set.")
		return nil
	}
	cmd.Printf("Next data reset: %s\n", next.Local().Format(time.DateTime))
	return nil
}
