package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/mensfeld/fwmon/internal/config"
	"github.com/mensfeld/fwmon/internal/geo"
	"github.com/mensfeld/fwmon/internal/logsource"
	"github.com/mensfeld/fwmon/internal/netctx"
)

// journalGroups grant read access to the kernel log without root
var journalGroups = []string{"systemd-journal", "adm", "wheel"}

// CheckConfiguration verifies the configuration is loaded correctly
func CheckConfiguration(cfg *config.Config) HealthCheck {
	if cfg == nil {
		return HealthCheck{
			Name:    "config",
			Status:  StatusFailed,
			Message: "Configuration not loaded",
		}
	}

	if err := cfg.Validate(); err != nil {
		return HealthCheck{
			Name:    "config",
			Status:  StatusFailed,
			Message: err.Error(),
		}
	}

	// Find which config files exist
	var loadedFrom []string
	for _, path := range config.GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			loadedFrom = append(loadedFrom, path)
		}
	}

	message := "Defaults only (no config files)"
	if len(loadedFrom) > 0 {
		message = loadedFrom[len(loadedFrom)-1] // Show highest priority
	}

	return HealthCheck{
		Name:    "config",
		Status:  StatusOK,
		Message: message,
		Details: map[string]interface{}{
			"loaded_from": loadedFrom,
		},
	}
}

// CheckLogSource verifies the configured log source can be started
func CheckLogSource(cfg *config.Config) HealthCheck {
	kind := logsource.KindCommand
	var argv []string
	if cfg != nil {
		if cfg.Monitor.Source != "" {
			kind = cfg.Monitor.Source
		}
		argv = cfg.Monitor.Command
	}

	if kind == logsource.KindJournal {
		src, err := logsource.NewJournalSource(nil)
		if err != nil {
			return HealthCheck{
				Name:    "log_source",
				Status:  StatusFailed,
				Message: fmt.Sprintf("Cannot open journal: %v", err),
			}
		}
		_ = src.Close()
		return HealthCheck{
			Name:    "log_source",
			Status:  StatusOK,
			Message: "Native journal reader",
		}
	}

	if len(argv) == 0 {
		argv = logsource.DefaultCommand()
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return HealthCheck{
			Name:    "log_source",
			Status:  StatusFailed,
			Message: fmt.Sprintf("%s not found", argv[0]),
		}
	}

	return HealthCheck{
		Name:    "log_source",
		Status:  StatusOK,
		Message: strings.Join(argv, " "),
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// CheckJournalAccess verifies the user may read kernel messages
func CheckJournalAccess() HealthCheck {
	if os.Geteuid() == 0 {
		return HealthCheck{
			Name:    "journal_access",
			Status:  StatusOK,
			Message: "Running as root",
		}
	}

	currentUser, err := user.Current()
	if err != nil {
		return HealthCheck{
			Name:    "journal_access",
			Status:  StatusWarning,
			Message: fmt.Sprintf("Could not determine current user: %v", err),
		}
	}

	groups, err := currentUser.GroupIds()
	if err != nil {
		return HealthCheck{
			Name:    "journal_access",
			Status:  StatusWarning,
			Message: fmt.Sprintf("Could not determine user groups: %v", err),
		}
	}

	for _, name := range journalGroups {
		g, err := user.LookupGroup(name)
		if err != nil {
			continue
		}
		if slices.Contains(groups, g.Gid) {
			return HealthCheck{
				Name:    "journal_access",
				Status:  StatusOK,
				Message: fmt.Sprintf("User in %s group", name),
				Details: map[string]interface{}{
					"user":  currentUser.Username,
					"group": name,
				},
			}
		}
	}

	return HealthCheck{
		Name:    "journal_access",
		Status:  StatusWarning,
		Message: fmt.Sprintf("User '%s' not in systemd-journal or adm; kernel messages may be hidden", currentUser.Username),
	}
}

// CheckDefaultRoute reports the network the host is attached to
func CheckDefaultRoute(prober netctx.Prober) HealthCheck {
	id, err := prober.Probe()
	if err != nil {
		return HealthCheck{
			Name:    "default_route",
			Status:  StatusWarning,
			Message: fmt.Sprintf("Could not read routes: %v", err),
		}
	}

	if !id.Online() {
		return HealthCheck{
			Name:    "default_route",
			Status:  StatusWarning,
			Message: "No default route (offline; geo lookups are skipped)",
		}
	}

	return HealthCheck{
		Name:    "default_route",
		Status:  StatusOK,
		Message: id.Name(),
		Details: map[string]interface{}{
			"interface":       id.Interface,
			"gateway":         id.Gateway,
			"local_addresses": id.LocalAddresses,
		},
	}
}

// CheckGeoEndpoint resolves a well-known public address through one endpoint
func CheckGeoEndpoint(ctx context.Context, ep geo.Endpoint, timeout time.Duration) HealthCheck {
	name := "geo_" + ep.Name
	testAddr := "8.8.8.8"

	host := ep.URLTemplate
	if u, err := url.Parse(strings.ReplaceAll(ep.URLTemplate, "{ip}", testAddr)); err == nil {
		host = u.Hostname()
	}

	resolver := geo.NewResolver([]geo.Endpoint{ep}, geo.WithTimeout(timeout), geo.WithUserAgent("fwmon-health"))
	indicator, err := resolver.Lookup(ctx, testAddr)
	if err != nil {
		return HealthCheck{
			Name:    name,
			Status:  StatusWarning,
			Message: fmt.Sprintf("%s unreachable or rate limited", host),
		}
	}

	return HealthCheck{
		Name:    name,
		Status:  StatusOK,
		Message: fmt.Sprintf("%s (%s -> %s)", host, testAddr, indicator),
		Details: map[string]interface{}{
			"endpoint": ep.URLTemplate,
		},
	}
}

// CheckDesktopBus verifies a session bus is available for notifications
func CheckDesktopBus() HealthCheck {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return HealthCheck{
			Name:    "desktop_bus",
			Status:  StatusWarning,
			Message: fmt.Sprintf("No session bus: %v", err),
		}
	}
	_ = conn.Close()

	return HealthCheck{
		Name:    "desktop_bus",
		Status:  StatusOK,
		Message: "Session bus available",
	}
}

// CheckAuditLog verifies the audit log directory is writable
func CheckAuditLog(path string) HealthCheck {
	dir := filepath.Dir(config.ExpandPath(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return HealthCheck{
			Name:    "audit_log",
			Status:  StatusFailed,
			Message: fmt.Sprintf("Cannot create %s: %v", dir, err),
		}
	}

	testFile := filepath.Join(dir, ".fwmon-health")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return HealthCheck{
			Name:    "audit_log",
			Status:  StatusFailed,
			Message: fmt.Sprintf("Directory not writable: %s", dir),
		}
	}
	os.Remove(testFile)

	return HealthCheck{
		Name:    "audit_log",
		Status:  StatusOK,
		Message: path,
	}
}

// CheckListenAddress verifies the API address is free
func CheckListenAddress(addr string) HealthCheck {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return HealthCheck{
			Name:    "api_listen",
			Status:  StatusWarning,
			Message: fmt.Sprintf("Cannot bind %s: %v", addr, err),
		}
	}
	_ = ln.Close()

	return HealthCheck{
		Name:    "api_listen",
		Status:  StatusOK,
		Message: addr,
	}
}
