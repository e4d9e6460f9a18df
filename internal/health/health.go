// Package health runs environment checks for fwmon health.
package health

import (
	"context"
	"fmt"
	"strings"

	"github.com/mensfeld/fwmon/internal/config"
	"github.com/mensfeld/fwmon/internal/geo"
	"github.com/mensfeld/fwmon/internal/netctx"
)

// Status of a single check
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
)

// HealthCheck is the outcome of one check
type HealthCheck struct {
	Name    string                 `json:"name"`
	Status  Status                 `json:"status"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Report collects every check
type Report struct {
	Checks  []HealthCheck `json:"checks"`
	Healthy bool          `json:"healthy"`
}

// Options selects optional checks
type Options struct {
	Prober  netctx.Prober // nil = the host's netlink prober
	Network bool          // probe the lookup endpoints over the network
}

// Run executes all checks against cfg
func Run(ctx context.Context, cfg *config.Config, opts Options) Report {
	prober := opts.Prober
	if prober == nil {
		prober = netctx.NewSystemProber()
	}

	checks := []HealthCheck{
		CheckConfiguration(cfg),
		CheckLogSource(cfg),
		CheckJournalAccess(),
		CheckDefaultRoute(prober),
	}

	if cfg != nil {
		if cfg.Notifications.Desktop {
			checks = append(checks, CheckDesktopBus())
		}
		if cfg.Notifications.AuditLog != "" {
			checks = append(checks, CheckAuditLog(cfg.Notifications.AuditLog))
		}
		if cfg.Metrics.Enabled {
			checks = append(checks, CheckListenAddress(cfg.Metrics.Listen))
		}
		if cfg.Geo.Enabled && opts.Network {
			for _, ep := range endpointsFromConfig(cfg) {
				checks = append(checks, CheckGeoEndpoint(ctx, ep, cfg.GeoTimeout()))
			}
		}
	}

	report := Report{Checks: checks, Healthy: true}
	for _, c := range checks {
		if c.Status == StatusFailed {
			report.Healthy = false
		}
	}
	return report
}

// endpointsFromConfig builds the configured lookup endpoints
func endpointsFromConfig(cfg *config.Config) []geo.Endpoint {
	return []geo.Endpoint{
		{Name: "primary", URLTemplate: cfg.Geo.PrimaryURL, Kind: geo.KindIPAPICo},
		{Name: "fallback", URLTemplate: cfg.Geo.FallbackURL, Kind: geo.KindIPAPI},
	}
}

// Format renders a report for the terminal
func Format(r Report) string {
	var sb strings.Builder
	for _, c := range r.Checks {
		mark := "✓"
		switch c.Status {
		case StatusWarning:
			mark = "!"
		case StatusFailed:
			mark = "✗"
		}
		fmt.Fprintf(&sb, "  %s %-18s %s\n", mark, c.Name, c.Message)
	}

	if r.Healthy {
		sb.WriteString("\nStatus: healthy\n")
	} else {
		sb.WriteString("\nStatus: unhealthy\n")
	}
	return sb.String()
}
