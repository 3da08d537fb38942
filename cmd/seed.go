package cmd

import (
	"github.com/spf13/cobra"

	"tripsync/tripdata"
)

func seedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "seed",
		Short:   "write the static roster and itinerary into the store",
		Long:    `seed writes the members and itinerary of the trip file (or the bundled trip) with fixed ids, so running it again overwrites the same documents.`,
		Example: `STORE_MODE=pg tripsync seed --trip trip.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if path, _ := cmd.Flags().GetString("trip"); path != "" {
				cfg.TripData = path
			}
			trip, err := tripdata.Load(cfg.TripData)
			if err != nil {
				return err
			}

			var cl closers
			defer cl.run()
			p, _, err := openPlanner(cmd.Context(), cfg, logger, &cl)
			if err != nil {
				return err
			}
			return p.Seed(cmd.Context(), trip)
		},
	}

	cmd.Flags().String("store", "pg", "Document store (mem, pg)")
	cmd.Flags().StringP("trip", "t", "", "trip YAML file (default: bundled trip)")

	return cmd
}
