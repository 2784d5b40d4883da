package main

import (
	"github.com/spf13/cobra"
)

var (
	submitOwner          string
	submitConfidence     float64
	submitClassification string
)

var submitCmd = &cobra.Command{
	Use:   "submit [text]",
	Short: "Submit a new idea and print its tracking id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		var confidence *float64
		if cmd.Flags().Changed("confidence") {
			confidence = &submitConfidence
		}

		id, err := env.Tracker.Submit(cmd.Context(), submitOwner, args[0], confidence, submitClassification)
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"tracking_id": id})
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitOwner, "owner", "", "owner id (required)")
	submitCmd.Flags().Float64Var(&submitConfidence, "confidence", 0, "declared confidence in [0,1]")
	submitCmd.Flags().StringVar(&submitClassification, "classification", "", "opaque classification tag")
	submitCmd.MarkFlagRequired("owner") //nolint:errcheck
	rootCmd.AddCommand(submitCmd)
}
