// Package filter decides which firewall events are worth keeping and showing.
package filter

import (
	"net/netip"
	"strings"

	"github.com/mensfeld/fwmon/internal/event"
	"github.com/mensfeld/fwmon/internal/netctx"
)

// LLMNRPort is the UDP port used by Link-Local Multicast Name Resolution
const LLMNRPort = "5355"

// Exclusion reasons reported by Reason
const (
	ReasonGateway   = "gateway"
	ReasonLocal     = "local_address"
	ReasonDiscovery = "discovery_destination"
	ReasonIGMP      = "igmp"
	ReasonLinkLocal = "link_local_source"
	ReasonLLMNR     = "llmnr"
)

// discoveryAddresses are multicast/broadcast destinations used by local service discovery
var discoveryAddresses = map[netip.Addr]bool{
	netip.MustParseAddr("224.0.0.1"):       true, // all hosts
	netip.MustParseAddr("224.0.0.251"):     true, // mDNS
	netip.MustParseAddr("224.0.0.252"):     true, // LLMNR
	netip.MustParseAddr("239.255.255.250"): true, // SSDP
	netip.MustParseAddr("255.255.255.255"): true, // broadcast
	netip.MustParseAddr("ff02::1"):         true, // all nodes
	netip.MustParseAddr("ff02::fb"):        true, // mDNS
	netip.MustParseAddr("ff02::1:3"):       true, // LLMNR
	netip.MustParseAddr("ff02::c"):         true, // SSDP
}

// Options configures noise filtering
type Options struct {
	FilterLocalDiscovery bool
}

// ShouldKeep reports whether ev is a real block event rather than benign local noise
func ShouldKeep(ev event.FirewallEvent, id netctx.Identity, opts Options) bool {
	_, drop := Reason(ev, id, opts)
	return !drop
}

// Reason returns the first exclusion rule that matches ev. All rules are
// independent, so the order only affects which reason is reported.
func Reason(ev event.FirewallEvent, id netctx.Identity, opts Options) (string, bool) {
	// Router chatter
	if id.Gateway != "" && netctx.SameAddress(ev.SourceAddress, id.Gateway) {
		return ReasonGateway, true
	}
	if id.IsLocal(ev.SourceAddress) {
		return ReasonLocal, true
	}

	if !opts.FilterLocalDiscovery {
		return "", false
	}

	if isDiscoveryDestination(ev.DestAddress) {
		return ReasonDiscovery, true
	}
	if ev.Protocol == event.ProtoIGMP {
		return ReasonIGMP, true
	}
	if isLinkLocalSource(ev.SourceAddress) {
		return ReasonLinkLocal, true
	}
	if ev.Protocol == event.ProtoUDP && ev.DestPort == LLMNRPort {
		return ReasonLLMNR, true
	}

	return "", false
}

// isDiscoveryDestination matches dst in any textual form the kernel may log,
// including zero-padded IPv6 groups
func isDiscoveryDestination(dst string) bool {
	addr, err := netip.ParseAddr(dst)
	if err != nil {
		return false
	}
	return discoveryAddresses[addr.WithZone("").Unmap()]
}

func isLinkLocalSource(src string) bool {
	addr, err := netip.ParseAddr(src)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(src), "fe80:")
	}
	return addr.Is6() && !addr.Is4In6() && addr.IsLinkLocalUnicast()
}

// ProtocolFilter holds the display-only show-tcp/show-udp/show-icmp switches.
// It never affects storage, only what is shown and notified.
type ProtocolFilter struct {
	ShowTCP  bool
	ShowUDP  bool
	ShowICMP bool
}

// Visible reports whether ev should be displayed. Protocols without a switch
// are always visible.
func (f ProtocolFilter) Visible(ev event.FirewallEvent) bool {
	switch ev.Protocol {
	case event.ProtoTCP:
		return f.ShowTCP
	case event.ProtoUDP:
		return f.ShowUDP
	case event.ProtoICMP:
		return f.ShowICMP
	default:
		return true
	}
}
