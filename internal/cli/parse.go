package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mensfeld/fwmon/internal/logsource"
	"github.com/mensfeld/fwmon/internal/monitor"
	"github.com/mensfeld/fwmon/internal/netctx"
)

var (
	parseJSON      bool
	parseAll       bool
	parseInterface string
	parseGateway   string
	parseLocal     []string
)

func init() {
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "Output in JSON format")
	parseCmd.Flags().BoolVar(&parseAll, "all", false, "List every stored event instead of the summary")
	parseCmd.Flags().StringVar(&parseInterface, "interface", "", "Interface of the recorded network")
	parseCmd.Flags().StringVar(&parseGateway, "gateway", "", "Gateway of the recorded network")
	parseCmd.Flags().StringSliceVar(&parseLocal, "local-addr", nil, "Own addresses on the recorded network (repeatable)")
}

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Replay recorded kernel log lines",
	Long: `Replay recorded kernel log lines from a file or stdin through the same
pipeline as watch, then print what would have been stored.

Burst detection uses the timestamps in the log, so replays reproduce the
bursts of the original capture. No notifications are sent and no lookups
are made.

Examples:
  journalctl -k -o short-iso | fwmon parse
  fwmon parse kern.log --json
  fwmon parse kern.log --gateway 192.168.1.1 --local-addr 192.168.1.20`,
	Args: cobra.MaximumNArgs(1),
	RunE: parseCommand,
}

func parseCommand(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	name := "stdin"
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open log: %w", err)
		}
		defer f.Close()
		r, name = f, args[0]
	}

	src := logsource.NewReaderSource(name, r)

	sc := sessionConfig(cfg)
	sc.EventTime = true
	sc.RestartOnExit = false

	var alerts []monitor.BurstAlert
	collect := func(b monitor.BurstAlert) { alerts = append(alerts, b) }

	network := netctx.New(netctx.StaticProber{
		Interface:      parseInterface,
		Gateway:        parseGateway,
		LocalAddresses: parseLocal,
	})

	session := monitor.NewSession(sc, func() (logsource.Source, error) { return src, nil },
		monitor.WithNetwork(network, nil),
		monitor.WithLogger(logger),
		monitor.WithHooks(monitor.Hooks{OnBurst: collect, OnWarning: collect}),
	)

	if err := session.Run(cmd.Context()); err != nil && !errors.Is(err, logsource.ErrSourceEnded) {
		return err
	}

	records := visibleRecords(session.Recent(0), protocolFilter(cfg))
	w := cmd.OutOrStdout()

	if parseJSON {
		data, err := monitor.FormatRecordsJSON(records)
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(w, data)
		return nil
	}

	if cfg.Display.ShowEventCount {
		fmt.Fprintf(w, "Blocked: %s\n", monitor.FormatCount(len(records)))
	}
	if parseAll {
		for _, rec := range records {
			fmt.Fprintln(w, monitor.FormatRecord(rec, useColor()))
		}
	} else {
		fmt.Fprint(w, monitor.FormatSummary(records, len(records), useColor()))
	}

	for _, b := range alerts {
		fmt.Fprint(w, strings.TrimSuffix(monitor.FormatBurstAlert(b, useColor()), "\n"))
		fmt.Fprintln(w)
	}
	return nil
}
