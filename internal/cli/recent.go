package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mensfeld/fwmon/internal/api"
	"github.com/mensfeld/fwmon/internal/monitor"
)

var (
	recentAddr string
	recentN    int
	recentJSON bool
	statusJSON bool
	clearForce bool
)

func init() {
	for _, c := range []*cobra.Command{recentCmd, statusCmd, clearCmd} {
		c.Flags().StringVar(&recentAddr, "addr", "", "Address of a running watch (default from config)")
	}
	recentCmd.Flags().IntVarP(&recentN, "limit", "n", monitor.SummaryLimit, "Number of events (0 = all)")
	recentCmd.Flags().BoolVar(&recentJSON, "json", false, "Output in JSON format")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
	clearCmd.Flags().BoolVar(&clearForce, "force", false, "Skip confirmation prompt")
}

func apiClient() *api.Client {
	addr := recentAddr
	if addr == "" {
		addr = cfg.Metrics.Listen
	}
	return api.NewClient(addr)
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the newest events of a running watch",
	Long: `Show the newest blocked connections recorded by a running 'fwmon watch --metrics'.

Examples:
  fwmon recent                 # Newest 10 events
  fwmon recent -n 0 --json     # Entire history as JSON`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiClient().Events(cmd.Context(), recentN)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		records := visibleRecords(resp.Events, protocolFilter(cfg))
		if recentJSON {
			data, err := monitor.FormatRecordsJSON(records)
			if err != nil {
				return fmt.Errorf("failed to marshal JSON: %w", err)
			}
			fmt.Fprintln(w, data)
			return nil
		}

		if cfg.Display.ShowEventCount {
			fmt.Fprintf(w, "Blocked: %s\n", monitor.FormatCount(resp.Total))
		}
		fmt.Fprint(w, monitor.FormatSummary(records, resp.Total, useColor()))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running watch",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := apiClient().Status(cmd.Context())
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if statusJSON {
			data, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal JSON: %w", err)
			}
			fmt.Fprintln(w, string(data))
			return nil
		}

		fmt.Fprintf(w, "Running:  %v\n", st.Running)
		fmt.Fprintf(w, "Source:   %s\n", st.Source)
		fmt.Fprintf(w, "Network:  %s (online: %v)\n", st.Network, st.Online)
		fmt.Fprintf(w, "Events:   %d/%d\n", st.Events, st.Capacity)
		fmt.Fprintf(w, "Warned:   %v\n", st.Warned)
		if !st.StartedAt.IsZero() {
			fmt.Fprintf(w, "Uptime:   %s\n", time.Since(st.StartedAt).Round(time.Second))
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the history of a running watch",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearForce {
			fmt.Fprint(cmd.OutOrStdout(), "Clear the event history? [y/N]: ")
			var answer string
			fmt.Fscanln(cmd.InOrStdin(), &answer)
			if answer != "y" && answer != "Y" {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
		}

		if err := apiClient().Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
		return nil
	},
}
