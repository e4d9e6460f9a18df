package monitor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mensfeld/fwmon/internal/alert"
	"github.com/mensfeld/fwmon/internal/event"
	"github.com/mensfeld/fwmon/internal/store"
)

// SummaryLimit is how many events the summary lists before collapsing the rest
const SummaryLimit = 10

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
	colorYellow = "\033[33m"
	colorDim    = "\033[2m"
)

// protocolColor matches the panel palette: TCP red, UDP teal, ICMP yellow
func protocolColor(proto string) string {
	switch proto {
	case event.ProtoTCP:
		return colorRed
	case event.ProtoUDP:
		return colorCyan
	case event.ProtoICMP:
		return colorYellow
	}
	return ""
}

// EventNotification is the transient "Connection Blocked" message
func EventNotification(ev event.FirewallEvent) alert.Notification {
	return alert.Notification{
		Title:     "Connection Blocked",
		Body:      fmt.Sprintf("%s tried to connect to port %s (%s)", ev.SourceAddress, ev.DestPort, ev.Protocol),
		Severity:  alert.SeverityInfo,
		Transient: true,
	}
}

// WarningNotification is the once-per-network probing warning
func WarningNotification(b BurstAlert) alert.Notification {
	var sb strings.Builder
	sb.WriteString("The network you are connected to is probing your ports!\n\n")
	fmt.Fprintf(&sb, "Network: %s\n", b.Network)
	fmt.Fprintf(&sb, "First attack from: %s\n", b.Address)
	fmt.Fprintf(&sb, "Target port: %s (%s)\n\n", b.Event.DestPort, b.Event.Protocol)
	sb.WriteString("Your firewall is protecting you. This is normal on public networks,\n")
	sb.WriteString("but be cautious about what you share on this connection.")

	return alert.Notification{
		Title:    "Network Security Warning",
		Body:     sb.String(),
		Severity: alert.SeverityWarning,
	}
}

// ErrorNotification reports a problem that stops or degrades monitoring
func ErrorNotification(err error) alert.Notification {
	return alert.Notification{
		Title:    "Error",
		Body:     err.Error(),
		Severity: alert.SeverityError,
	}
}

// FormatRecord renders one history line: time, flag, source, port, protocol
func FormatRecord(rec store.Record, color bool) string {
	ev := rec.Event
	line := fmt.Sprintf("%s:%s → :%s (%s)", ev.SourceAddress, ev.SourcePort, ev.DestPort, ev.Protocol)
	if c := protocolColor(ev.Protocol); color && c != "" {
		line = c + line + colorReset
	}
	return fmt.Sprintf("[%s] %s %s", ev.Timestamp.Format("15:04:05"), rec.Indicator, line)
}

// FormatSummary renders the newest events (newest first) the way the panel
// menu shows them: at most SummaryLimit lines, then "... and N more".
// total is the number of stored events, which may exceed len(records).
func FormatSummary(records []store.Record, total int, color bool) string {
	if len(records) == 0 || total == 0 {
		return "No blocked connections\n"
	}

	var sb strings.Builder
	shown := records
	if len(shown) > SummaryLimit {
		shown = shown[:SummaryLimit]
	}
	for _, rec := range shown {
		sb.WriteString(FormatRecord(rec, color))
		sb.WriteString("\n")
	}

	if total > len(shown) {
		more := fmt.Sprintf("... and %d more", total-len(shown))
		if color {
			more = colorDim + more + colorReset
		}
		sb.WriteString(more)
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatCount is the panel counter label
func FormatCount(n int) string {
	return fmt.Sprintf("%d", n)
}

// FormatRecordsJSON formats records as indented JSON
func FormatRecordsJSON(records []store.Record) (string, error) {
	if records == nil {
		records = []store.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FormatBurstAlert formats a burst or warning as a colored terminal alert
func FormatBurstAlert(b BurstAlert, color bool) string {
	c, reset := colorYellow, colorReset
	title := fmt.Sprintf("⚠ BURST: %s blocked %d times within %v", b.Address, b.Threshold, b.Window)
	if b.Kind == AlertKindWarning {
		c = colorRed
		title = "⚠ NETWORK SECURITY WARNING"
	}
	if !color {
		c, reset = "", ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%s%s%s\n", c, title, reset)
	if b.Kind == AlertKindWarning {
		sb.WriteString(WarningNotification(b).Body)
		sb.WriteString("\n")
	} else {
		fmt.Fprintf(&sb, "Network: %s, target port %s (%s)\n", b.Network, b.Event.DestPort, b.Event.Protocol)
	}
	sb.WriteString("\n")
	return sb.String()
}
