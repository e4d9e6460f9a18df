package event

import (
	"time"

	"github.com/google/uuid"
)

// Field placeholders used when a token is missing from the log line
const (
	UnknownAddress   = "unknown"
	UnknownInterface = "unknown"
	NoPort           = "N/A"
)

// Normalized protocol names
const (
	ProtoTCP  = "TCP"
	ProtoUDP  = "UDP"
	ProtoICMP = "ICMP"
	ProtoIGMP = "IGMP"
)

// FirewallEvent is a single blocked connection attempt parsed from a kernel log line.
// Events are values; once stored their fields never change. The geo indicator lives
// beside the event in the store, keyed by ID.
type FirewallEvent struct {
	ID            uuid.UUID `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Marker        string    `json:"marker"`
	SourceAddress string    `json:"source_address"`
	DestAddress   string    `json:"dest_address"`
	Protocol      string    `json:"protocol"`
	SourcePort    string    `json:"source_port"`
	DestPort      string    `json:"dest_port"`
	Interface     string    `json:"interface"`
}

// protocolNames maps IP protocol numbers to names
var protocolNames = map[string]string{
	"1":  ProtoICMP,
	"2":  ProtoIGMP,
	"6":  ProtoTCP,
	"17": ProtoUDP,
}

// NormalizeProtocol maps numeric protocol identifiers to their names.
// Unrecognized tokens are returned unchanged.
func NormalizeProtocol(token string) string {
	if name, ok := protocolNames[token]; ok {
		return name
	}
	return token
}
