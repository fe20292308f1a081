package main

import (
	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	var intentID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass over pending ledger discrepancies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			if intentID != "" {
				status, err := a.reconciler.ResolveIntent(cmd.Context(), intentID)
				if err != nil {
					return err
				}
				if status == "" {
					a.log.Infof("intent %s: no discrepancy recorded", intentID)
					return nil
				}
				a.log.Infof("intent %s: %s", intentID, status)
				return nil
			}

			sum, err := a.reconciler.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			a.log.Infof("reconciled %d: resolved=%d rejected=%d retrying=%d failed=%d",
				sum.Processed, sum.Resolved, sum.Rejected, sum.Retrying, sum.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&intentID, "intent", "", "only reconcile this payment intent")
	return cmd
}
