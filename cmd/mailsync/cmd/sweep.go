package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shipment-tracking/internal/reconcile"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Promote stale shipment statuses by age",
		Long: `sweep applies the age heuristics once: shipments whose last email is
old enough are promoted (shipped to in transit, then to delivered) unless
the user has pinned their status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment()
			if err != nil {
				return err
			}
			defer env.close()

			engine := reconcile.NewEngine(env.db.Shipments, env.rules, env.logger)
			changed, err := engine.SweepAges(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Printf("Promoted %d shipment(s)\n", changed)
			return nil
		},
	}
}
