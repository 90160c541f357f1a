package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/smilelock/pkg/config"
	"github.com/charlie0129/smilelock/pkg/unlock"
)

type statusJSON struct {
	State         unlock.Snapshot  `json:"state"`
	Configuration statusConfigJSON `json:"configuration"`
}

type statusConfigJSON struct {
	Sampler                string          `json:"sampler"`
	TickIntervalMillis     int64           `json:"tickIntervalMillis"`
	ResampleIntervalMillis int64           `json:"resampleIntervalMillis"`
	RelockDelaySeconds     int64           `json:"relockDelaySeconds"`
	HistoryLimit           int             `json:"historyLimit"`
	AllowNonRootAccess     bool            `json:"allowNonRootAccess"`
	ResetSchedule          statusResetJSON `json:"resetSchedule"`
}

type statusResetJSON struct {
	Enabled     bool       `json:"enabled"`
	Cron        string     `json:"cron"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

func printStatusJSON(cmd *cobra.Command, data *statusData) error {
	conf := config.NewFileFromConfig(data.config, "")

	cron := conf.ResetSchedule()
	reset := statusResetJSON{
		Enabled: cron != "",
		Cron:    cron,
	}
	if cron != "" && !data.nextReset.IsZero() {
		reset.ScheduledAt = &data.nextReset
	}

	out := statusJSON{
		State: *data.state,
		Configuration: statusConfigJSON{
			Sampler:                conf.Sampler(),
			TickIntervalMillis:     conf.TickInterval().Milliseconds(),
			ResampleIntervalMillis: conf.ResampleInterval().Milliseconds(),
			RelockDelaySeconds:     int64(conf.RelockDelay().Seconds()),
			HistoryLimit:           conf.HistoryLimit(),
			AllowNonRootAccess:     conf.AllowNonRootAccess(),
			ResetSchedule:          reset,
		},
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
