package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mensfeld/fwmon/internal/health"
)

var (
	healthJSON    bool
	healthNetwork bool
)

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Output in JSON format")
	healthCmd.Flags().BoolVar(&healthNetwork, "network", false, "Also query the country lookup services")
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that fwmon can run on this host",
	Long: `Check journal access, the log source, the default route and optional
features (desktop notifications, audit log, API address, lookup services).

Exits non-zero when a check fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		report := health.Run(cmd.Context(), cfg, health.Options{Network: healthNetwork})

		w := cmd.OutOrStdout()
		if healthJSON {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal JSON: %w", err)
			}
			fmt.Fprintln(w, string(data))
		} else {
			fmt.Fprintf(w, "fwmon v%s health\n\n", Version)
			fmt.Fprint(w, health.Format(report))
		}

		if !report.Healthy {
			return errors.New("health check failed")
		}
		return nil
	},
}
