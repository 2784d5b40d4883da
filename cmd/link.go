package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/foresight/internal/model"
)

var (
	linkRefType       string
	linkDepthIncrease float64
)

var linkCmd = &cobra.Command{
	Use:   "link [parent-id] [child-id]",
	Short: "Record a submission as a refinement of an earlier one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		edgeID, err := env.Tracker.Link(cmd.Context(), args[0], args[1],
			model.RefinementType(linkRefType), linkDepthIncrease)
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"edge_id": edgeID})
	},
}

func init() {
	linkCmd.Flags().StringVar(&linkRefType, "type", string(model.RefinementGeneralImprovement), "refinement type")
	linkCmd.Flags().Float64Var(&linkDepthIncrease, "depth-increase", 0, "depth increase in [0,1]")
	rootCmd.AddCommand(linkCmd)
}
