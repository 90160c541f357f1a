package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/smilelock/pkg/config"
	"github.com/charlie0129/smilelock/pkg/unlock"
)

const statusSessionCount = 3

type statusData struct {
	state     *unlock.Snapshot
	config    *config.RawFileConfig
	nextReset time.Time
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	state, err := apiClient.GetStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	nextReset, err := apiClient.GetResetSchedule()
	if err != nil {
		return nil, fmt.Errorf("failed to get reset schedule: %w", err)
	}

	return &statusData{
		state:     state,
		config:    conf,
		nextReset: nextReset,
	}, nil
}

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of smilelock",
		Long:    `Get lock state, detection progress, recent sessions and configuration.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			if asJSON {
				return printStatusJSON(cmd, data)
			}

			printStatus(cmd, data)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")

	return cmd
}

func printStatus(cmd *cobra.Command, data *statusData) {
	s := data.state
	conf := config.NewFileFromConfig(data.config, "")

	cmd.Println(bold("Lock status:"))
	cmd.Printf("  Phase: %s\n", phaseText(s.Phase))
	cmd.Printf("  Locked: %s\n", bool2Text(s.Locked))
	cmd.Printf("  Detection active: %s\n", bool2Text(s.DetectionActive))
	cmd.Printf("  Camera active: %s\n", bool2Text(s.CameraActive))
	if s.DetectionActive {
		cmd.Printf("  Progress: %s\n", bold("%s", progressBar(s.Progress)))
		cmd.Printf("  Smile quality: %s\n", qualityText(s.Quality))
	}
	if s.RelockAt != nil {
		remaining := time.Until(*s.RelockAt).Round(time.Second)
		if remaining < 0 {
			remaining = 0
		}
		cmd.Printf("  Locks again in: %s\n", bold("%s", remaining))
	}

	cmd.Println()

	cmd.Println(bold("Sessions:"))
	cmd.Printf("  Streak: %s\n", bold("%d", s.Streak))
	cmd.Printf("  Total unlocks: %s\n", bold("%d", s.TotalUnlocks))
	if len(s.Sessions) == 0 {
		cmd.Println("  No sessions recorded yet.")
	}
	for i, sess := range s.Sessions {
		if i >= statusSessionCount {
			cmd.Printf("  ... %d more, see 'smilelock sessions'\n", len(s.Sessions)-statusSessionCount)
			break
		}
		cmd.Printf("  - %s  %s\n", sess.Timestamp.Local().Format(time.DateTime), sessionQualityText(sess.Quality))
	}

	cmd.Println()

	cmd.Println(bold("Configuration:"))
	cmd.Printf("  Sampler: %s\n", bold("%s", conf.Sampler()))
	cmd.Printf("  Tick interval: %s\n", bold("%s", conf.TickInterval()))
	cmd.Printf("  Resample interval: %s\n", bold("%s", conf.ResampleInterval()))
	cmd.Printf("  Auto-relock delay: %s\n", bold("%s", conf.RelockDelay()))
	cmd.Printf("  History limit: %s\n", bold("%d", conf.HistoryLimit()))
	if conf.ResetSchedule() == "" {
		cmd.Printf("  Scheduled data reset: %s\n", bool2Text(false))
	} else {
		cmd.Printf("  Scheduled data reset: %s\n", bold("%s", conf.ResetSchedule()))
		if !data.nextReset.IsZero() {
			cmd.Printf("    Next run: %s\n", data.nextReset.Local().Format(time.DateTime))
		}
	}
	cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(conf.AllowNonRootAccess()))
}

func phaseText(p unlock.Phase) string {
	switch p {
	case unlock.PhaseUnlocked:
		return color.New(color.Bold, color.FgGreen).Sprint(p)
	case unlock.PhaseDetecting:
		return color.New(color.Bold, color.FgYellow).Sprint(p)
	default:
		return color.New(color.Bold, color.FgRed).Sprint(p)
	}
}

func qualityText(q unlock.Quality) string {
	switch q {
	case unlock.QualityDuchenne:
		return color.GreenString("%s", q)
	case unlock.QualityArtificial:
		return color.YellowString("%s", q)
	default:
		return color.RedString("%s", q)
	}
}

func sessionQualityText(q unlock.SessionQuality) string {
	if q == unlock.SessionExcellent {
		return color.GreenString("%s", q)
	}
	return string(q)
}
