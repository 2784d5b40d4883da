package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	outcomeResult      float64
	outcomeSource      string
	outcomeValidatedAt string
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome [tracking-id]",
	Short: "Record a validation outcome for a submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		var validatedAt *time.Time
		if outcomeValidatedAt != "" {
			ts, err := time.Parse(time.RFC3339, outcomeValidatedAt)
			if err != nil {
				return eris.Wrap(err, "parse --validated-at")
			}
			validatedAt = &ts
		}

		outcomeID, err := env.Tracker.RecordOutcome(cmd.Context(), args[0], outcomeResult, outcomeSource, validatedAt)
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"outcome_id": outcomeID})
	},
}

func init() {
	outcomeCmd.Flags().Float64Var(&outcomeResult, "result", 0, "validation result in [0,1] (required)")
	outcomeCmd.Flags().StringVar(&outcomeSource, "source", "", "validation source (required)")
	outcomeCmd.Flags().StringVar(&outcomeValidatedAt, "validated-at", "", "validation time, RFC3339 (default now)")
	outcomeCmd.MarkFlagRequired("result") //nolint:errcheck
	outcomeCmd.MarkFlagRequired("source") //nolint:errcheck
	rootCmd.AddCommand(outcomeCmd)
}
