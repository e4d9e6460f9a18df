// Package netctx tracks which network the host is attached to.
//
// A network identity is the tuple (default-route interface, gateway, local
// addresses). Block history and warning state only make sense within one
// identity, so consumers reset that state when Refresh reports a change.
package netctx

import (
	"fmt"
	"net/netip"
	"slices"
	"sync"
)

// Identity identifies the network the host is currently attached to
type Identity struct {
	Interface      string   `json:"interface"`
	Gateway        string   `json:"gateway"`
	LocalAddresses []string `json:"local_addresses"`
}

// Equal reports whether two identities describe the same network
func (id Identity) Equal(other Identity) bool {
	return id.Interface == other.Interface &&
		id.Gateway == other.Gateway &&
		slices.Equal(id.LocalAddresses, other.LocalAddresses)
}

// Online reports whether the identity has a default route
func (id Identity) Online() bool {
	return id.Interface != "" || id.Gateway != ""
}

// IsLocal reports whether addr is one of the host's own addresses
func (id Identity) IsLocal(addr string) bool {
	return slices.ContainsFunc(id.LocalAddresses, func(local string) bool {
		return SameAddress(local, addr)
	})
}

// SameAddress reports whether a and b name the same IP address. Zero-padded
// IPv6 groups, letter case and zones are ignored; values that do not parse as
// addresses are compared verbatim.
func SameAddress(a, b string) bool {
	pa, errA := netip.ParseAddr(a)
	pb, errB := netip.ParseAddr(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return pa.WithZone("").Unmap() == pb.WithZone("").Unmap()
}

// Name returns a human-readable network name for warnings
func (id Identity) Name() string {
	switch {
	case id.Interface != "" && id.Gateway != "":
		return fmt.Sprintf("%s via %s", id.Interface, id.Gateway)
	case id.Interface != "":
		return id.Interface
	default:
		return "Unknown Network"
	}
}

// Prober reads the current network identity from the host
type Prober interface {
	Probe() (Identity, error)
}

// StaticProber always reports the same identity. It stands in for the host
// when replaying recorded logs.
type StaticProber Identity

// Probe returns a copy of the fixed identity
func (p StaticProber) Probe() (Identity, error) {
	id := Identity(p)
	id.LocalAddresses = slices.Clone(id.LocalAddresses)
	return id, nil
}

// Context holds the most recently probed identity
type Context struct {
	prober  Prober
	mu      sync.RWMutex
	current Identity
	probed  bool
	changes chan Identity
}

// New creates a network context backed by prober. Call Refresh to populate it.
func New(prober Prober) *Context {
	return &Context{
		prober:  prober,
		changes: make(chan Identity, 1),
	}
}

// Refresh re-probes the network and reports whether the identity changed.
// The first successful probe establishes the baseline and is not a change.
func (c *Context) Refresh() (bool, error) {
	id, err := c.prober.Probe()
	if err != nil {
		return false, fmt.Errorf("failed to probe network identity: %w", err)
	}
	slices.Sort(id.LocalAddresses)

	c.mu.Lock()
	changed := c.probed && !c.current.Equal(id)
	c.current = id
	c.probed = true
	c.mu.Unlock()

	if changed {
		// Latest identity wins if nobody drained the previous one
		select {
		case <-c.changes:
		default:
		}
		select {
		case c.changes <- id:
		default:
		}
	}
	return changed, nil
}

// Changes delivers the new identity after each refresh that detected a change
func (c *Context) Changes() <-chan Identity {
	return c.changes
}

// Identity returns a copy of the current identity
func (c *Context) Identity() Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id := c.current
	id.LocalAddresses = slices.Clone(c.current.LocalAddresses)
	return id
}

// CurrentInterface returns the default-route interface name
func (c *Context) CurrentInterface() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Interface
}

// CurrentGateway returns the default gateway address
func (c *Context) CurrentGateway() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Gateway
}

// LocalAddresses returns the non-loopback addresses bound to this host
func (c *Context) LocalAddresses() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.current.LocalAddresses)
}

// Online reports whether a default route was present at the last refresh
func (c *Context) Online() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Online()
}
