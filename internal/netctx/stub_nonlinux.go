//go:build !linux
// +build !linux

package netctx

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type unsupportedProber struct{}

// NewSystemProber returns a prober that always fails on non-Linux platforms
func NewSystemProber() Prober {
	return unsupportedProber{}
}

func (unsupportedProber) Probe() (Identity, error) {
	return Identity{}, fmt.Errorf("network identity detection is only supported on Linux")
}

// Watcher stub for non-Linux platforms; it only fires on the poll interval
type Watcher struct {
	pollInterval time.Duration
	triggers     chan struct{}
}

// NewWatcher creates a poll-only watcher
func NewWatcher(debounce, pollInterval time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{pollInterval: pollInterval, triggers: make(chan struct{}, 1)}
}

// Triggers fires on every poll tick
func (w *Watcher) Triggers() <-chan struct{} {
	return w.triggers
}

// Start begins polling until ctx is cancelled
func (w *Watcher) Start(ctx context.Context) error {
	if w.pollInterval <= 0 {
		return nil
	}
	go func() {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case w.triggers <- struct{}{}:
				default:
				}
			}
		}
	}()
	return nil
}
