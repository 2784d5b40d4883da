package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/foresight/internal/model"
)

var timelineSince string

var timelineCmd = &cobra.Command{
	Use:   "timeline [owner-id]",
	Short: "Show an owner's time capsule, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		var since *time.Time
		if timelineSince != "" {
			ts, err := time.Parse(time.RFC3339, timelineSince)
			if err != nil {
				return eris.Wrap(err, "parse --since")
			}
			since = &ts
		}

		var entries []model.CapsuleEntry
		for entry, err := range env.Tracker.Timeline(cmd.Context(), args[0], since) {
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return printJSON(entries)
	},
}

func init() {
	timelineCmd.Flags().StringVar(&timelineSince, "since", "", "only show submissions created at or after this RFC3339 time")
	rootCmd.AddCommand(timelineCmd)
}
