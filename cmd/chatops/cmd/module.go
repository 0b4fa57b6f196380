package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var moduleCmd = &cobra.Command{
	Use:   "module",
	Short: "Report health/state for each internal component",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sample, summary := a.sla.Sample()
		alerts, alertsErr := a.slaStore.ActiveAlerts(context.Background())
		alertsStatus := "ok"
		if alertsErr != nil {
			alertsStatus = alertsErr.Error()
		}

		return emitJSON(map[string]any{
			"quote":      a.quote.HealthCheck(),
			"sla": map[string]any{
				"sample":        sample,
				"summary":       summary,
				"active_alerts": len(alerts),
				"status":        alertsStatus,
			},
			"compliance": map[string]any{"status": "ok"},
			"workflow":   map[string]any{"status": "ok", "db_path": a.cfg.Workflow.DBPath},
		})
	},
}
