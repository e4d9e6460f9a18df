package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load loads configuration from all available sources
// Hierarchy (lowest to highest precedence):
// 1. Built-in defaults
// 2. System config (/etc/fwmon/config.toml)
// 3. User config (~/.config/fwmon/config.toml)
// 4. FWMON_CONFIG file
// 5. explicit path (--config), which must exist
// 6. Environment variables (FWMON_*)
// The result is validated.
func Load(explicit string) (*Config, error) {
	cfg := GetDefaultConfig()

	for _, path := range GetConfigPaths() {
		if err := loadConfigFile(cfg, path); err != nil {
			// Only return error if file exists but can't be parsed
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
			}
		}
	}

	if explicit != "" {
		path := ExpandPath(explicit)
		if err := loadConfigFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadConfigFile decodes a TOML file on top of cfg. Keys absent from the file
// keep their current value, so a file only needs the settings it changes.
func loadConfigFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}

	cfg.Notifications.AuditLog = ExpandPath(cfg.Notifications.AuditLog)
	return nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(cfg *Config) error {
	if env := os.Getenv("FWMON_SOURCE"); env != "" {
		cfg.Monitor.Source = env
	}

	if env := os.Getenv("FWMON_MAX_EVENTS"); env != "" {
		n, err := strconv.Atoi(env)
		if err != nil {
			return fmt.Errorf("invalid FWMON_MAX_EVENTS %q: %w", env, err)
		}
		cfg.Monitor.MaxEvents = n
	}

	if env := os.Getenv("FWMON_NOTIFICATION_COOLDOWN"); env != "" {
		n, err := strconv.Atoi(env)
		if err != nil {
			return fmt.Errorf("invalid FWMON_NOTIFICATION_COOLDOWN %q: %w", env, err)
		}
		cfg.Notifications.CooldownSeconds = n
	}

	boolVars := []struct {
		name   string
		target *bool
	}{
		{"FWMON_NOTIFICATIONS", &cfg.Notifications.Enabled},
		{"FWMON_DESKTOP", &cfg.Notifications.Desktop},
		{"FWMON_FILTER_LOCAL_DISCOVERY", &cfg.Monitor.FilterLocalDiscovery},
		{"FWMON_RESTART_ON_EXIT", &cfg.Monitor.RestartOnExit},
		{"FWMON_GEO", &cfg.Geo.Enabled},
		{"FWMON_METRICS", &cfg.Metrics.Enabled},
	}
	for _, v := range boolVars {
		env := os.Getenv(v.name)
		if env == "" {
			continue
		}
		b, err := strconv.ParseBool(env)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", v.name, env, err)
		}
		*v.target = b
	}

	if env := os.Getenv("FWMON_LISTEN"); env != "" {
		cfg.Metrics.Listen = env
	}

	if env := os.Getenv("FWMON_AUDIT_LOG"); env != "" {
		cfg.Notifications.AuditLog = ExpandPath(env)
	}

	if env := os.Getenv("FWMON_LOG_LEVEL"); env != "" {
		cfg.Logging.Level = env
	}

	// FWMON_DEBUG=1 forces debug logging regardless of the configured level
	if os.Getenv("FWMON_DEBUG") == "1" {
		cfg.Logging.Level = "debug"
	}

	return nil
}

// WriteExample writes an example config file to the specified path
func WriteExample(path string) error {
	example := `# fwmon configuration
# Locations (later wins): /etc/fwmon/config.toml, ~/.config/fwmon/config.toml,
# $FWMON_CONFIG, --config. Only the keys you set are changed.

[monitor]
# "journalctl" follows journalctl output, "journal" reads the systemd journal directly
source = "journalctl"
# Command used by the journalctl source (default shown)
# command = ["journalctl", "-k", "-f", "--no-pager", "-o", "short-iso", "-n", "0"]
# Marker tokens identifying firewall lines
# markers = ["[UFW BLOCK]", "[UFW AUDIT]"]
# Events kept in history (10-200)
max-events = 50
# Drop mDNS, SSDP, LLMNR, IGMP and link-local chatter
filter-local-discovery = true
# Blocks from one address within the window that count as a burst
burst-window-ms = 2000
burst-threshold = 4
# Restart the log source if it exits instead of stopping
restart-on-exit = false
restart-delay = 5
janitor-interval = 30

[notifications]
enable-notifications = true
# Seconds between event notifications (1-60)
notification-cooldown = 5
# Send desktop notifications over D-Bus
desktop = false
# Warn once per network when it starts probing your ports
network-warning = true
# JSON lines log of bursts and warnings
# audit-log = "~/.local/state/fwmon/audit.jsonl"

[display]
show-event-count = true
show-tcp = true
show-udp = true
show-icmp = true
color = true

[geo]
enabled = true
primary-url = "https://ipapi.co/{ip}/json/"
fallback-url = "http://ip-api.com/json/{ip}?fields=status,message,countryCode"
timeout = 5

[network]
watch = true
poll-interval = 30
debounce-ms = 500

[metrics]
# Serves /api/v1/* and /metrics
enabled = false
listen = "127.0.0.1:9477"

[logging]
level = "info"
json = false
`

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(example), 0o644)
}
