package main

import (
	"github.com/spf13/cobra"
)

var profileRecomputeAll bool

var profileCmd = &cobra.Command{
	Use:   "profile [owner-id]",
	Short: "Show an owner's accuracy profile",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if profileRecomputeAll {
			n, err := env.Tracker.RecomputeAll(cmd.Context(), cfg.Scoring.RecomputeConcurrency)
			if err != nil {
				return err
			}
			return printJSON(map[string]int{"profiles_recomputed": n})
		}

		if len(args) == 0 {
			return cmd.Usage()
		}

		p, err := env.Tracker.Profile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(p)
	},
}

func init() {
	profileCmd.Flags().BoolVar(&profileRecomputeAll, "recompute-all", false, "rebuild every owner profile from history")
	rootCmd.AddCommand(profileCmd)
}
