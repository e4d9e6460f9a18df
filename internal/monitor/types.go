package monitor

import (
	"time"

	"github.com/mensfeld/fwmon/internal/event"
	"github.com/mensfeld/fwmon/internal/netctx"
	"github.com/mensfeld/fwmon/internal/store"
)

// AlertKind distinguishes audit log entries
type AlertKind string

const (
	AlertKindBurst   AlertKind = "burst"
	AlertKindWarning AlertKind = "warning"
)

// BurstAlert is raised when one address crosses the burst threshold
type BurstAlert struct {
	ID        string              `json:"id"`
	Kind      AlertKind           `json:"kind"`
	Timestamp time.Time           `json:"timestamp"`
	Address   string              `json:"address"`
	Threshold int                 `json:"threshold"`
	Window    time.Duration       `json:"window_ns"`
	Network   string              `json:"network"`
	Event     event.FirewallEvent `json:"event"` // the event that crossed the threshold
}

// Hooks are the outbound notifications of a Session. They must not block and
// nil hooks are skipped. All of them run on the session goroutine except
// OnCleared, which runs synchronously on whichever goroutine called Clear
// (an API handler, for instance), so state it shares with the other hooks
// needs its own locking.
type Hooks struct {
	OnAppend        func(store.Record)
	OnRefresh       func(store.Record) // indicator of a stored event resolved
	OnCleared       func()             // caller of Clear
	OnBurst         func(BurstAlert)
	OnWarning       func(BurstAlert) // first burst on the current network
	OnNetworkChange func(old, new netctx.Identity)
	OnError         func(error) // non-fatal problems
}

// SessionConfig configures the monitoring pipeline
type SessionConfig struct {
	MaxEvents            int
	Markers              []string
	FilterLocalDiscovery bool

	BurstWindow    time.Duration
	BurstThreshold int
	// EventTime feeds the burst detector with log timestamps instead of the
	// wall clock, for replaying recorded logs
	EventTime bool

	NetworkWarning bool

	RestartOnExit   bool
	RestartDelay    time.Duration
	JanitorInterval time.Duration

	// LineBuffer is the capacity of the channel between source and session
	LineBuffer int
}

func (c *SessionConfig) applyDefaults() {
	if c.BurstWindow <= 0 {
		c.BurstWindow = 2 * time.Second
	}
	if c.BurstThreshold <= 0 {
		c.BurstThreshold = 4
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = 5 * time.Second
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = 30 * time.Second
	}
	if c.LineBuffer <= 0 {
		c.LineBuffer = 256
	}
}
