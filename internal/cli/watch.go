package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mensfeld/fwmon/internal/alert"
	"github.com/mensfeld/fwmon/internal/api"
	"github.com/mensfeld/fwmon/internal/config"
	"github.com/mensfeld/fwmon/internal/filter"
	"github.com/mensfeld/fwmon/internal/geo"
	"github.com/mensfeld/fwmon/internal/logsource"
	"github.com/mensfeld/fwmon/internal/metrics"
	"github.com/mensfeld/fwmon/internal/monitor"
	"github.com/mensfeld/fwmon/internal/netctx"
	"github.com/mensfeld/fwmon/internal/store"
)

var (
	watchMetrics bool
	watchListen  string
	watchQuiet   bool
)

func init() {
	watchCmd.Flags().BoolVar(&watchMetrics, "metrics", false, "Serve the history API and Prometheus metrics")
	watchCmd.Flags().StringVar(&watchListen, "listen", "", "API listen address (default from config)")
	watchCmd.Flags().BoolVarP(&watchQuiet, "quiet", "q", false, "Do not print events, only alerts")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the kernel log and report blocked connections",
	Long: `Follow the kernel log and report blocked connection attempts as they happen.

Each event is printed with its country flag once the lookup completes. When one
address is blocked repeatedly within the burst window, fwmon reports a burst;
the first burst on a network raises a network security warning.

Examples:
  fwmon watch                         # Follow journalctl -k
  fwmon watch --metrics               # Serve /api/v1/events and /metrics
  fwmon watch --listen 127.0.0.1:9000 # Custom API address (implies --metrics)
  fwmon watch -q                      # Only print bursts and warnings`,
	RunE: watchCommand,
}

// printer serializes terminal output from the session and API goroutines
type printer struct {
	mu      sync.Mutex
	w       io.Writer
	color   bool
	visible filter.ProtocolFilter
	quiet   bool
}

func (p *printer) record(prefix string, rec store.Record) {
	if p.quiet || !p.visible.Visible(rec.Event) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s%s\n", prefix, monitor.FormatRecord(rec, p.color))
}

func (p *printer) alert(b monitor.BurstAlert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, monitor.FormatBurstAlert(b, p.color))
}

func (p *printer) line(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}

func watchCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.Flags().Changed("listen") {
		cfg.Metrics.Listen = watchListen
		watchMetrics = true
	}
	serveAPI := cfg.Metrics.Enabled || watchMetrics

	var m *metrics.Metrics
	if serveAPI {
		m = metrics.New()
	}

	out := &printer{
		w:       cmd.OutOrStdout(),
		color:   useColor(),
		visible: protocolFilter(cfg),
		quiet:   watchQuiet,
	}

	// Network identity
	nc := netctx.New(netctx.NewSystemProber())
	var triggers <-chan struct{}
	if cfg.Network.Watch {
		watcher := netctx.NewWatcher(cfg.Debounce(), cfg.PollInterval(), logger)
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("network change detection disabled", "error", err)
		} else {
			triggers = watcher.Triggers()
		}
	}

	// Alerting
	notifier, closeNotifier := buildNotifier()
	defer closeNotifier()

	var auditLog *monitor.AuditLog
	if cfg.Notifications.AuditLog != "" {
		var err error
		auditLog, err = monitor.NewAuditLog(config.ExpandPath(cfg.Notifications.AuditLog))
		if err != nil {
			return err
		}
		defer auditLog.Close()
	}

	responder := monitor.NewResponder(monitor.ResponderConfig{
		Enabled:  cfg.Notifications.Enabled,
		Cooldown: cfg.Cooldown(),
		Visible:  protocolFilter(cfg),
	}, notifier, auditLog, m)

	opts := []monitor.SessionOption{
		monitor.WithNetwork(nc, triggers),
		monitor.WithResponder(responder),
		monitor.WithMetrics(m),
		monitor.WithLogger(logger),
		monitor.WithHooks(monitor.Hooks{
			OnAppend:  func(rec store.Record) { out.record("", rec) },
			OnRefresh: func(rec store.Record) { out.record("  ↳ ", rec) },
			OnCleared: func() { out.line("History cleared") },
			OnBurst:   out.alert,
			OnWarning: out.alert,
			OnNetworkChange: func(old, new netctx.Identity) {
				out.line("Network changed: %s -> %s", old.Name(), new.Name())
			},
		}),
	}

	if cfg.Geo.Enabled {
		resolver := geo.NewResolver(geoEndpoints(cfg),
			geo.WithUserAgent("fwmon/"+Version),
			geo.WithTimeout(cfg.GeoTimeout()),
			geo.WithOnline(nc.Online),
			geo.WithObserver(m.RecordGeoLookup),
			geo.WithLogger(logger),
		)
		opts = append(opts, monitor.WithResolver(resolver))
	}

	openSource := func() (logsource.Source, error) {
		return logsource.New(logsource.Config{
			Kind:    cfg.Monitor.Source,
			Command: cfg.Monitor.Command,
			Logger:  logger,
		})
	}

	session := monitor.NewSession(sessionConfig(cfg), openSource, opts...)

	if serveAPI {
		server := api.NewServer(session, m.Handler(), logger)
		if err := server.Start(cfg.Metrics.Listen); err != nil {
			return err
		}
		defer func() {
			if err := server.Shutdown(context.Background()); err != nil {
				logger.Warn("api shutdown failed", "error", err)
			}
		}()
	}

	daemon := monitor.StartDaemon(ctx, session)
	logger.Info("watching for blocked connections", "source", cfg.Monitor.Source, "network", nc.Identity().Name())

	select {
	case <-ctx.Done():
		if err := daemon.Stop(); err != nil {
			return fmt.Errorf("failed to stop monitor: %w", err)
		}
		return nil
	case <-daemon.Done():
	}

	if err := daemon.Err(); err != nil {
		if nerr := responder.HandleError(context.Background(), err); nerr != nil {
			logger.Warn("failed to report error", "error", nerr)
		}
		return err
	}
	return nil
}

// buildNotifier always logs notifications and adds the desktop when enabled
func buildNotifier() (alert.Notifier, func()) {
	notifiers := alert.Multi{alert.NewLogNotifier(logger)}
	closeFn := func() {}

	if cfg.Notifications.Desktop {
		desktop, err := alert.NewDesktopNotifier(alert.DefaultExpire)
		if err != nil {
			logger.Warn("desktop notifications unavailable", "error", err)
		} else {
			notifiers = append(notifiers, desktop)
			closeFn = func() { _ = desktop.Close() }
		}
	}
	return notifiers, closeFn
}
