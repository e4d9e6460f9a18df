package event

import (
	"log/slog"
	"net/netip"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMarkers are the UFW log prefixes that identify block/audit entries
var DefaultMarkers = []string{"[UFW BLOCK]", "[UFW AUDIT]"}

// timestampRe matches the short-iso prefix written by `journalctl -o short-iso`
// Example: "2026-02-07T19:21:55+0300 host kernel: ..."
var timestampRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?)(Z|[+-]\d{2}:?\d{2})?`)

var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
}

// fieldRes holds one precompiled matcher per KEY= token
var fieldRes = map[string]*regexp.Regexp{}

func init() {
	for _, key := range []string{"SRC", "DST", "PROTO", "SPT", "DPT", "IN"} {
		fieldRes[key] = regexp.MustCompile(`(?:^|\s)` + key + `=(\S*)`)
	}
}

// Parser converts raw kernel log lines into FirewallEvents
type Parser struct {
	markers []string
	now     func() time.Time
	logger  *slog.Logger
}

// ParserOption configures a Parser
type ParserOption func(*Parser)

// WithClock sets the clock used when a line carries no timestamp
func WithClock(now func() time.Time) ParserOption {
	return func(p *Parser) {
		p.now = now
	}
}

// WithLogger sets the logger used for recovered parse failures
func WithLogger(logger *slog.Logger) ParserOption {
	return func(p *Parser) {
		p.logger = logger
	}
}

// NewParser creates a parser that accepts lines containing any of markers.
// An empty marker list falls back to DefaultMarkers.
func NewParser(markers []string, opts ...ParserOption) *Parser {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	p := &Parser{
		markers: markers,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse converts one log line into a FirewallEvent.
// It returns false for lines without a marker, without SRC= or without PROTO=.
// Malformed lines are expected on a live stream and are never reported as errors.
func (p *Parser) Parse(line string) (ev FirewallEvent, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("recovered while parsing firewall log line", "panic", r, "line", line)
			ev, ok = FirewallEvent{}, false
		}
	}()

	marker := p.matchMarker(line)
	if marker == "" {
		return FirewallEvent{}, false
	}

	src := extractField(line, "SRC")
	proto := extractField(line, "PROTO")
	if src == "" || proto == "" {
		return FirewallEvent{}, false
	}

	return FirewallEvent{
		ID:            uuid.New(),
		Timestamp:     p.parseTimestamp(line),
		Marker:        marker,
		SourceAddress: canonicalAddress(src),
		DestAddress:   orDefault(canonicalAddress(extractField(line, "DST")), UnknownAddress),
		Protocol:      NormalizeProtocol(proto),
		SourcePort:    orDefault(extractField(line, "SPT"), NoPort),
		DestPort:      orDefault(extractField(line, "DPT"), NoPort),
		Interface:     orDefault(extractField(line, "IN"), UnknownInterface),
	}, true
}

// matchMarker returns the first configured marker present in line
func (p *Parser) matchMarker(line string) string {
	for _, m := range p.markers {
		if strings.Contains(line, m) {
			return m
		}
	}
	return ""
}

// parseTimestamp reads the leading ISO-8601 timestamp, falling back to the clock.
// Lines without a zone offset are interpreted in local time.
func (p *Parser) parseTimestamp(line string) time.Time {
	m := timestampRe.FindStringSubmatch(line)
	if m == nil {
		return p.now()
	}
	if m[2] == "" {
		if ts, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", m[1], time.Local); err == nil {
			return ts
		}
		return p.now()
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, m[1]+m[2]); err == nil {
			return ts
		}
	}
	return p.now()
}

// extractField extracts the value of a KEY= token from a log line
// Example: "SRC=10.47.62.50" -> "10.47.62.50"
func extractField(line, key string) string {
	re, ok := fieldRes[key]
	if !ok {
		return ""
	}
	matches := re.FindStringSubmatch(line)
	if len(matches) > 1 {
		return matches[1]
	}
	return ""
}

// canonicalAddress rewrites the zero-padded IPv6 form written by the kernel
// (ff02:0000:...:00fb) into the compressed form netlink and the geo endpoint
// use. Values that are not addresses are kept as logged.
func canonicalAddress(s string) string {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return s
	}
	return addr.WithZone("").Unmap().String()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
