package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mensfeld/fwmon/internal/config"
)

// Version is the current version of fwmon (injected via ldflags at build time)
var Version = "dev"

var (
	// Global flags
	configPath string
	debug      bool
	noColor    bool

	// Loaded config and process logger
	cfg    *config.Config
	logger *slog.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fwmon",
	Short: "Firewall block monitor - watch what your firewall is blocking",
	Long: `fwmon follows the kernel log for firewall block messages (UFW by default),
keeps a short history of blocked connection attempts, tags each source with
its country and warns you when the network you joined starts probing your ports.

Examples:
  fwmon                        # Same as 'fwmon watch'
  fwmon watch --metrics        # Also serve the history API and /metrics
  journalctl -k | fwmon parse  # Replay recorded kernel logs
  fwmon recent -n 5            # Ask a running watch for its newest events
  fwmon health                 # Check journal access, routes and lookups
`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	// When called without subcommand, run watch
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchCmd.RunE(cmd, args)
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger, err = newLogger(cmd.ErrOrStderr(), cfg.Logging, debug)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (overrides the default locations)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "fwmon v%s\n", Version)
	},
}

// newLogger builds the process logger from the logging section.
// --debug wins over the configured level.
func newLogger(w io.Writer, lc config.LoggingConfig, debug bool) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(lc.Level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if lc.JSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// useColor reports whether terminal output should be colored
func useColor() bool {
	return cfg.Display.Color && !noColor
}
