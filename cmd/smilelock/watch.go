package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/smilelock/pkg/events"
)

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		GroupID: gBasic,
		Short:   "Follow state changes live",
		Long: `Follow state changes live until interrupted.

Every phase, progress and quality change is printed as it happens.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return apiClient.Watch(ctx, func(ev events.Event) error {
				payload, err := events.DecodeAs[events.StateEvent](ev)
				if err != nil {
					logrus.WithError(err).WithField("event", ev.Name).Warn("failed to decode event")
					return nil
				}
				cmd.Println(formatEvent(ev.Name, payload))
				return nil
			})
		},
	}
}

func formatEvent(name string, ev events.StateEvent) string {
	ts := time.UnixMilli(ev.Ts).Local().Format(time.TimeOnly)
	s := ev.State

	switch name {
	case events.Hello, events.StatePhase:
		return ts + "  phase     " + phaseText(s.Phase)
	case events.StateProgress:
		return ts + "  progress  " + progressBar(s.Progress)
	case events.StateQuality:
		return ts + "  quality   " + qualityText(s.Quality)
	case events.SessionAdded:
		if len(s.Sessions) == 0 {
			return ts + "  unlocked"
		}
		return ts + "  unlocked  " + sessionQualityText(s.Sessions[0].Quality) + bold(" (streak %d)", s.Streak)
	case events.DataReset:
		return ts + "  data reset"
	default:
		return ts + "  " + name
	}
}
