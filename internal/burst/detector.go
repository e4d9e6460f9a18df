// Package burst detects rapid repeated blocks from a single source address.
package burst

import (
	"sync"
	"time"
)

// Reference thresholds: 4 blocks from one address within 2 seconds
const (
	DefaultWindow    = 2000 * time.Millisecond
	DefaultThreshold = 4
)

// Detector is a per-address sliding-window counter. Addresses are independent.
type Detector struct {
	window    time.Duration
	threshold int
	history   map[string][]time.Time
	mu        sync.Mutex
}

// New creates a detector; non-positive arguments select the defaults
func New(window time.Duration, threshold int) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{
		window:    window,
		threshold: threshold,
		history:   make(map[string][]time.Time),
	}
}

// Observe records a block from addr at now and reports whether the address
// reached the threshold within the window. After a crossing the address's
// history is reset, so the next single observation cannot re-cross.
func (d *Detector) Observe(addr string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	times := prune(append(d.history[addr], now), now.Add(-d.window))
	if len(times) >= d.threshold {
		delete(d.history, addr)
		return true
	}
	d.history[addr] = times
	return false
}

// Count returns the number of observations for addr still inside the window
func (d *Detector) Count(addr string, now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := now.Add(-d.window)
	n := 0
	for _, t := range d.history[addr] {
		if !t.Before(cutoff) {
			n++
		}
	}
	return n
}

// Reset forgets the history of a single address
func (d *Detector) Reset(addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, addr)
}

// Clear forgets all addresses (used on network change)
func (d *Detector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = make(map[string][]time.Time)
}

// Prune drops expired observations and evicts addresses left with none.
// Returns the number of evicted addresses.
func (d *Detector) Prune(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := now.Add(-d.window)
	evicted := 0
	for addr, times := range d.history {
		times = prune(times, cutoff)
		if len(times) == 0 {
			delete(d.history, addr)
			evicted++
			continue
		}
		d.history[addr] = times
	}
	return evicted
}

// Len returns the number of tracked addresses
func (d *Detector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.history)
}

// prune keeps timestamps not older than cutoff, compacting in place. Replayed
// logs can step backwards in time, so every entry is checked rather than
// stopping at the first one still inside the window.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
