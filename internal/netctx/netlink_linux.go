//go:build linux
// +build linux

package netctx

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/vishvananda/netlink"
)

// NetlinkProber reads the default route and interface addresses over netlink
type NetlinkProber struct{}

// NewSystemProber returns the prober for this platform
func NewSystemProber() Prober {
	return NetlinkProber{}
}

// Probe derives the identity from the default-route table and the address table
func (NetlinkProber) Probe() (Identity, error) {
	var id Identity

	// Prefer IPv4 default routes, fall back to IPv6
	for _, family := range []int{netlink.FAMILY_V4, netlink.FAMILY_V6} {
		routes, err := netlink.RouteList(nil, family)
		if err != nil {
			continue
		}
		if route, ok := defaultRoute(routes); ok {
			if link, err := netlink.LinkByIndex(route.LinkIndex); err == nil {
				id.Interface = link.Attrs().Name
			}
			if route.Gw != nil {
				id.Gateway = route.Gw.String()
			}
			break
		}
	}

	addrs, err := netlink.AddrList(nil, netlink.FAMILY_ALL)
	if err != nil {
		return id, fmt.Errorf("failed to list addresses: %w", err)
	}
	for _, addr := range addrs {
		if addr.IPNet == nil || addr.IP.IsLoopback() {
			continue
		}
		id.LocalAddresses = append(id.LocalAddresses, addr.IP.String())
	}

	return id, nil
}

// defaultRoute picks the lowest-metric route with no destination or a /0 destination
func defaultRoute(routes []netlink.Route) (netlink.Route, bool) {
	var best netlink.Route
	found := false
	for _, r := range routes {
		if !isDefaultDst(r.Dst) {
			continue
		}
		if !found || r.Priority < best.Priority {
			best = r
			found = true
		}
	}
	return best, found
}

func isDefaultDst(dst *net.IPNet) bool {
	if dst == nil {
		return true
	}
	ones, _ := dst.Mask.Size()
	return ones == 0 && dst.IP.IsUnspecified()
}

// Watcher turns netlink route/address notifications into change triggers
type Watcher struct {
	debounce     time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
	triggers     chan struct{}
}

// NewWatcher creates a watcher. Bursts of netlink updates within debounce
// collapse into one trigger; pollInterval > 0 adds a periodic trigger.
func NewWatcher(debounce, pollInterval time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		debounce:     debounce,
		pollInterval: pollInterval,
		logger:       logger,
		triggers:     make(chan struct{}, 1),
	}
}

// Triggers fires whenever the network identity may have changed
func (w *Watcher) Triggers() <-chan struct{} {
	return w.triggers
}

// Start subscribes to netlink updates until ctx is cancelled
func (w *Watcher) Start(ctx context.Context) error {
	addrUpdates := make(chan netlink.AddrUpdate)
	if err := netlink.AddrSubscribe(addrUpdates, ctx.Done()); err != nil {
		return fmt.Errorf("failed to subscribe to address updates: %w", err)
	}

	// Route subscription is optional
	routeUpdates := make(chan netlink.RouteUpdate)
	if err := netlink.RouteSubscribe(routeUpdates, ctx.Done()); err != nil {
		w.logger.Warn("could not subscribe to route updates", "error", err)
		routeUpdates = nil
	}

	go w.run(ctx, addrUpdates, routeUpdates)
	return nil
}

func (w *Watcher) run(ctx context.Context, addrUpdates chan netlink.AddrUpdate, routeUpdates chan netlink.RouteUpdate) {
	var poll <-chan time.Time
	if w.pollInterval > 0 {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	// Armed only by updates
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-addrUpdates:
			if !ok {
				addrUpdates = nil
				continue
			}
			debounce.Reset(w.debounce)
		case _, ok := <-routeUpdates:
			if !ok {
				routeUpdates = nil
				continue
			}
			debounce.Reset(w.debounce)
		case <-debounce.C:
			w.fire()
		case <-poll:
			w.fire()
		}
	}
}

func (w *Watcher) fire() {
	select {
	case w.triggers <- struct{}{}:
	default:
	}
}
