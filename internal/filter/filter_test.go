package filter

import (
	"testing"

	"github.com/mensfeld/fwmon/internal/event"
	"github.com/mensfeld/fwmon/internal/netctx"
)

var homeNetwork = netctx.Identity{
	Interface:      "wlan0",
	Gateway:        "192.168.1.1",
	LocalAddresses: []string{"192.168.1.20", "fe80::abcd"},
}

func blockEvent(src, dst, proto, dport string) event.FirewallEvent {
	return event.FirewallEvent{
		SourceAddress: src,
		DestAddress:   dst,
		Protocol:      proto,
		SourcePort:    "40000",
		DestPort:      dport,
		Interface:     "wlan0",
	}
}

func TestMDNSDependsOnDiscoveryOption(t *testing.T) {
	ev := blockEvent("192.168.1.50", "224.0.0.251", "UDP", "5353")

	if ShouldKeep(ev, homeNetwork, Options{FilterLocalDiscovery: true}) {
		t.Error("mDNS event should be dropped when filter-local-discovery is enabled")
	}
	if !ShouldKeep(ev, homeNetwork, Options{FilterLocalDiscovery: false}) {
		t.Error("mDNS event should be kept when filter-local-discovery is disabled")
	}
}

func TestShouldKeep(t *testing.T) {
	on := Options{FilterLocalDiscovery: true}
	off := Options{}

	tests := []struct {
		name   string
		ev     event.FirewallEvent
		opts   Options
		keep   bool
		reason string
	}{
		{"internet scanner", blockEvent("203.0.113.5", "192.168.1.20", "TCP", "22"), on, true, ""},
		{"gateway chatter", blockEvent("192.168.1.1", "192.168.1.20", "UDP", "1900"), off, false, ReasonGateway},
		{"own address", blockEvent("192.168.1.20", "192.168.1.255", "UDP", "137"), off, false, ReasonLocal},
		{"SSDP", blockEvent("192.168.1.30", "239.255.255.250", "UDP", "1900"), on, false, ReasonDiscovery},
		{"broadcast", blockEvent("192.168.1.30", "255.255.255.255", "UDP", "67"), on, false, ReasonDiscovery},
		{"IPv6 mDNS upper case", blockEvent("2001:db8::5", "FF02::FB", "UDP", "5353"), on, false, ReasonDiscovery},
		{"IGMP", blockEvent("192.168.1.30", "224.0.0.22", "IGMP", "N/A"), on, false, ReasonIGMP},
		{"IGMP without option", blockEvent("192.168.1.30", "224.0.0.22", "IGMP", "N/A"), off, true, ""},
		{"link-local source", blockEvent("fe80::1234", "ff02::16", "ICMPv6", "N/A"), on, false, ReasonLinkLocal},
		{"LLMNR unicast", blockEvent("192.168.1.30", "192.168.1.20", "UDP", "5355"), on, false, ReasonLLMNR},
		{"TCP to 5355 is not LLMNR", blockEvent("192.168.1.30", "192.168.1.20", "TCP", "5355"), on, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldKeep(tt.ev, homeNetwork, tt.opts); got != tt.keep {
				t.Errorf("ShouldKeep = %v, want %v", got, tt.keep)
			}
			reason, dropped := Reason(tt.ev, homeNetwork, tt.opts)
			if dropped == tt.keep {
				t.Errorf("Reason dropped = %v, inconsistent with keep = %v", dropped, tt.keep)
			}
			if reason != tt.reason {
				t.Errorf("Reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

// The kernel LOG target prints IPv6 addresses as eight zero-padded groups,
// while netlink reports them compressed.
func TestShouldKeepKernelFormIPv6(t *testing.T) {
	v6Network := netctx.Identity{
		Interface:      "wlan0",
		Gateway:        "fe80::1",
		LocalAddresses: []string{"192.168.1.20", "2001:db8::1"},
	}
	on := Options{FilterLocalDiscovery: true}
	off := Options{}

	tests := []struct {
		name   string
		ev     event.FirewallEvent
		opts   Options
		keep   bool
		reason string
	}{
		{"mDNS destination", blockEvent("2001:0db8:0000:0000:0000:0000:0000:0005", "ff02:0000:0000:0000:0000:0000:0000:00fb", "UDP", "5353"), on, false, ReasonDiscovery},
		{"LLMNR destination", blockEvent("2001:0db8:0000:0000:0000:0000:0000:0005", "ff02:0000:0000:0000:0000:0000:0001:0003", "UDP", "5355"), on, false, ReasonDiscovery},
		{"SSDP destination", blockEvent("2001:0db8:0000:0000:0000:0000:0000:0005", "FF02:0000:0000:0000:0000:0000:0000:000C", "UDP", "1900"), on, false, ReasonDiscovery},
		{"all-nodes destination", blockEvent("2001:0db8:0000:0000:0000:0000:0000:0005", "ff02:0000:0000:0000:0000:0000:0000:0001", "ICMPv6", "N/A"), on, false, ReasonDiscovery},
		{"own address", blockEvent("2001:0db8:0000:0000:0000:0000:0000:0001", "2001:0db8:0000:0000:0000:0000:0000:0002", "TCP", "22"), off, false, ReasonLocal},
		{"gateway", blockEvent("fe80:0000:0000:0000:0000:0000:0000:0001", "2001:0db8:0000:0000:0000:0000:0000:0001", "UDP", "547"), off, false, ReasonGateway},
		{"link-local source", blockEvent("fe80:0000:0000:0000:0210:5aff:feaa:20a2", "ff02:0000:0000:0000:0000:0000:0000:0016", "ICMPv6", "N/A"), on, false, ReasonLinkLocal},
		{"remote host", blockEvent("2001:0db8:0000:0000:0000:0000:0000:0005", "2001:0db8:0000:0000:0000:0000:0000:0001", "TCP", "22"), on, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, dropped := Reason(tt.ev, v6Network, tt.opts)
			if dropped == tt.keep {
				t.Errorf("Reason dropped = %v, want keep = %v", dropped, tt.keep)
			}
			if reason != tt.reason {
				t.Errorf("Reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

func TestShouldKeepWithoutGateway(t *testing.T) {
	ev := blockEvent("", "192.168.1.20", "TCP", "22")
	if !ShouldKeep(ev, netctx.Identity{}, Options{}) {
		t.Error("An empty gateway must not match an empty source")
	}
}

func TestProtocolFilterVisible(t *testing.T) {
	f := ProtocolFilter{ShowTCP: true, ShowUDP: false, ShowICMP: true}

	tests := []struct {
		proto string
		want  bool
	}{
		{"TCP", true},
		{"UDP", false},
		{"ICMP", true},
		{"IGMP", true},
		{"47", true},
	}

	for _, tt := range tests {
		ev := blockEvent("203.0.113.5", "192.168.1.20", tt.proto, "22")
		if got := f.Visible(ev); got != tt.want {
			t.Errorf("Visible(%s) = %v, want %v", tt.proto, got, tt.want)
		}
	}
}
