package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/foresight/internal/model"
)

var ancestorsCmd = &cobra.Command{
	Use:   "ancestors [tracking-id]",
	Short: "Walk a submission's refinement chain up to the root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		var steps []model.AncestorStep
		for step, err := range env.Tracker.Ancestors(cmd.Context(), args[0]) {
			if err != nil {
				return err
			}
			steps = append(steps, step)
		}
		return printJSON(steps)
	},
}

func init() {
	rootCmd.AddCommand(ancestorsCmd)
}
