package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Accepted ranges for user-facing settings
const (
	MinCooldownSeconds = 1
	MaxCooldownSeconds = 60
	MinMaxEvents       = 10
	MaxMaxEvents       = 200
)

// Config represents the complete configuration
type Config struct {
	Monitor       MonitorConfig       `toml:"monitor"`
	Notifications NotificationsConfig `toml:"notifications"`
	Display       DisplayConfig       `toml:"display"`
	Geo           GeoConfig           `toml:"geo"`
	Network       NetworkConfig       `toml:"network"`
	Metrics       MetricsConfig       `toml:"metrics"`
	Logging       LoggingConfig       `toml:"logging"`
}

// MonitorConfig controls ingestion, history and burst detection
type MonitorConfig struct {
	Source               string   `toml:"source"`  // "journalctl" or "journal"
	Command              []string `toml:"command"` // empty = journalctl -k -f ...
	Markers              []string `toml:"markers"` // empty = [UFW BLOCK], [UFW AUDIT]
	MaxEvents            int      `toml:"max-events"`
	FilterLocalDiscovery bool     `toml:"filter-local-discovery"`
	BurstWindowMS        int      `toml:"burst-window-ms"`
	BurstThreshold       int      `toml:"burst-threshold"`
	RestartOnExit        bool     `toml:"restart-on-exit"`
	RestartDelaySeconds  int      `toml:"restart-delay"`
	JanitorSeconds       int      `toml:"janitor-interval"`
}

// NotificationsConfig controls user alerts
type NotificationsConfig struct {
	Enabled         bool   `toml:"enable-notifications"`
	CooldownSeconds int    `toml:"notification-cooldown"`
	Desktop         bool   `toml:"desktop"`         // D-Bus notifications in addition to the log
	NetworkWarning  bool   `toml:"network-warning"` // warn once per network on a burst
	AuditLog        string `toml:"audit-log"`       // JSON lines of bursts and warnings; empty = off
}

// DisplayConfig controls what is shown to the user. It never affects storage.
type DisplayConfig struct {
	ShowEventCount bool `toml:"show-event-count"`
	ShowTCP        bool `toml:"show-tcp"`
	ShowUDP        bool `toml:"show-udp"`
	ShowICMP       bool `toml:"show-icmp"`
	Color          bool `toml:"color"`
}

// GeoConfig controls country lookups
type GeoConfig struct {
	Enabled        bool   `toml:"enabled"`
	PrimaryURL     string `toml:"primary-url"`
	FallbackURL    string `toml:"fallback-url"`
	TimeoutSeconds int    `toml:"timeout"`
}

// NetworkConfig controls network change detection
type NetworkConfig struct {
	Watch               bool `toml:"watch"` // subscribe to netlink updates
	PollIntervalSeconds int  `toml:"poll-interval"`
	DebounceMS          int  `toml:"debounce-ms"`
}

// MetricsConfig controls the HTTP API and Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// LoggingConfig controls the process logger
type LoggingConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
	JSON  bool   `toml:"json"`
}

// GetDefaultConfig returns the default configuration
func GetDefaultConfig() *Config {
	return &Config{
		Monitor: MonitorConfig{
			Source:               "journalctl",
			Command:              []string{},
			Markers:              []string{},
			MaxEvents:            50,
			FilterLocalDiscovery: true,
			BurstWindowMS:        2000,
			BurstThreshold:       4,
			RestartOnExit:        false,
			RestartDelaySeconds:  5,
			JanitorSeconds:       30,
		},
		Notifications: NotificationsConfig{
			Enabled:         true,
			CooldownSeconds: 5,
			Desktop:         false,
			NetworkWarning:  true,
			AuditLog:        "",
		},
		Display: DisplayConfig{
			ShowEventCount: true,
			ShowTCP:        true,
			ShowUDP:        true,
			ShowICMP:       true,
			Color:          true,
		},
		Geo: GeoConfig{
			Enabled:        true,
			PrimaryURL:     "https://ipapi.co/{ip}/json/",
			FallbackURL:    "http://ip-api.com/json/{ip}?fields=status,message,countryCode",
			TimeoutSeconds: 5,
		},
		Network: NetworkConfig{
			Watch:               true,
			PollIntervalSeconds: 30,
			DebounceMS:          500,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9477",
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// GetConfigPaths returns the list of config file paths to check (in order)
// If FWMON_CONFIG environment variable is set, it is added as highest priority
func GetConfigPaths() []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "/tmp"
	}

	paths := []string{
		"/etc/fwmon/config.toml",                            // System config
		filepath.Join(homeDir, ".config/fwmon/config.toml"), // User config
	}

	if envConfig := os.Getenv("FWMON_CONFIG"); envConfig != "" {
		paths = append(paths, ExpandPath(envConfig))
	}

	return paths
}

// UserConfigPath is where `fwmon config init` writes by default
func UserConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "/tmp"
	}
	return filepath.Join(homeDir, ".config/fwmon/config.toml")
}

// ExpandPath expands ~ in paths to home directory
func ExpandPath(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path // Return path as-is if home dir cannot be determined
		}
		if len(path) == 1 {
			return homeDir
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Validate checks ranges and enumerations. Any error is fatal at startup.
func (c *Config) Validate() error {
	var problems []string

	switch c.Monitor.Source {
	case "journalctl", "journal":
	default:
		problems = append(problems, fmt.Sprintf("monitor.source must be \"journalctl\" or \"journal\", got %q", c.Monitor.Source))
	}
	if c.Monitor.MaxEvents < MinMaxEvents || c.Monitor.MaxEvents > MaxMaxEvents {
		problems = append(problems, fmt.Sprintf("monitor.max-events must be between %d and %d, got %d",
			MinMaxEvents, MaxMaxEvents, c.Monitor.MaxEvents))
	}
	if c.Monitor.BurstWindowMS <= 0 {
		problems = append(problems, "monitor.burst-window-ms must be positive")
	}
	if c.Monitor.BurstThreshold < 1 {
		problems = append(problems, "monitor.burst-threshold must be at least 1")
	}
	if c.Monitor.RestartDelaySeconds < 0 {
		problems = append(problems, "monitor.restart-delay must not be negative")
	}
	if c.Monitor.JanitorSeconds <= 0 {
		problems = append(problems, "monitor.janitor-interval must be positive")
	}

	if c.Notifications.CooldownSeconds < MinCooldownSeconds || c.Notifications.CooldownSeconds > MaxCooldownSeconds {
		problems = append(problems, fmt.Sprintf("notifications.notification-cooldown must be between %d and %d seconds, got %d",
			MinCooldownSeconds, MaxCooldownSeconds, c.Notifications.CooldownSeconds))
	}

	if c.Geo.Enabled {
		for name, url := range map[string]string{"primary-url": c.Geo.PrimaryURL, "fallback-url": c.Geo.FallbackURL} {
			if url != "" && !strings.Contains(url, "{ip}") {
				problems = append(problems, fmt.Sprintf("geo.%s must contain {ip}", name))
			}
		}
		if c.Geo.PrimaryURL == "" && c.Geo.FallbackURL == "" {
			problems = append(problems, "geo needs at least one of primary-url or fallback-url")
		}
		if c.Geo.TimeoutSeconds <= 0 {
			problems = append(problems, "geo.timeout must be positive")
		}
	}

	if c.Network.PollIntervalSeconds <= 0 {
		problems = append(problems, "network.poll-interval must be positive")
	}
	if c.Network.DebounceMS < 0 {
		problems = append(problems, "network.debounce-ms must not be negative")
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		problems = append(problems, "metrics.listen is required when metrics are enabled")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Cooldown is the minimum gap between event notifications
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Notifications.CooldownSeconds) * time.Second
}

// BurstWindow is the sliding window of the burst detector
func (c *Config) BurstWindow() time.Duration {
	return time.Duration(c.Monitor.BurstWindowMS) * time.Millisecond
}

// RestartDelay is the pause before a log source is restarted
func (c *Config) RestartDelay() time.Duration {
	return time.Duration(c.Monitor.RestartDelaySeconds) * time.Second
}

// JanitorInterval is how often idle burst state is pruned
func (c *Config) JanitorInterval() time.Duration {
	return time.Duration(c.Monitor.JanitorSeconds) * time.Second
}

// GeoTimeout bounds a single geolocation request
func (c *Config) GeoTimeout() time.Duration {
	return time.Duration(c.Geo.TimeoutSeconds) * time.Second
}

// PollInterval is how often the network identity is re-probed without a trigger
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Network.PollIntervalSeconds) * time.Second
}

// Debounce coalesces bursts of netlink updates
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Network.DebounceMS) * time.Millisecond
}
