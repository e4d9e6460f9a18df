package cli

import (
	"github.com/mensfeld/fwmon/internal/config"
	"github.com/mensfeld/fwmon/internal/filter"
	"github.com/mensfeld/fwmon/internal/geo"
	"github.com/mensfeld/fwmon/internal/monitor"
	"github.com/mensfeld/fwmon/internal/store"
)

// sessionConfig maps the loaded configuration onto the pipeline settings
func sessionConfig(c *config.Config) monitor.SessionConfig {
	return monitor.SessionConfig{
		MaxEvents:            c.Monitor.MaxEvents,
		Markers:              c.Monitor.Markers,
		FilterLocalDiscovery: c.Monitor.FilterLocalDiscovery,
		BurstWindow:          c.BurstWindow(),
		BurstThreshold:       c.Monitor.BurstThreshold,
		NetworkWarning:       c.Notifications.NetworkWarning,
		RestartOnExit:        c.Monitor.RestartOnExit,
		RestartDelay:         c.RestartDelay(),
		JanitorInterval:      c.JanitorInterval(),
	}
}

// protocolFilter returns the display toggles
func protocolFilter(c *config.Config) filter.ProtocolFilter {
	return filter.ProtocolFilter{
		ShowTCP:  c.Display.ShowTCP,
		ShowUDP:  c.Display.ShowUDP,
		ShowICMP: c.Display.ShowICMP,
	}
}

// geoEndpoints returns the configured lookup services in order
func geoEndpoints(c *config.Config) []geo.Endpoint {
	return []geo.Endpoint{
		{Name: "primary", URLTemplate: c.Geo.PrimaryURL, Kind: geo.KindIPAPICo},
		{Name: "fallback", URLTemplate: c.Geo.FallbackURL, Kind: geo.KindIPAPI},
	}
}

// visibleRecords drops records whose protocol is hidden. Storage is unaffected.
func visibleRecords(records []store.Record, f filter.ProtocolFilter) []store.Record {
	out := make([]store.Record, 0, len(records))
	for _, rec := range records {
		if f.Visible(rec.Event) {
			out = append(out, rec)
		}
	}
	return out
}
