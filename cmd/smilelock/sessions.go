package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewSessionsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"history"},
		GroupID: gBasic,
		Short:   "List recorded unlock sessions",
		Long: `List recorded unlock sessions, newest first.

Only the most recent sessions are kept. See historyLimit in the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions, err := apiClient.GetSessions(limit)
			if err != nil {
				return fmt.Errorf("failed to get sessions: %w", err)
			}

			if len(sessions) == 0 {
				cmd.Println("No sessions recorded yet.")
				return nil
			}

			for _, s := range sessions {
				cmd.Printf("%s  %s  %ds  %s\n",
					s.Timestamp.Local().Format(time.DateTime),
					sessionQualityText(s.Quality),
					s.Duration,
					s.ID,
				)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", -1, "maximum number of sessions to show (negative shows all)")

	return cmd
}
