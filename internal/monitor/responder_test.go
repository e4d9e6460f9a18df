package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mensfeld/fwmon/internal/alert"
	"github.com/mensfeld/fwmon/internal/event"
	"github.com/mensfeld/fwmon/internal/filter"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []alert.Notification
	err  error
}

func (c *captureNotifier) Notify(ctx context.Context, n alert.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return c.err
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

var showAll = filter.ProtocolFilter{ShowTCP: true, ShowUDP: true, ShowICMP: true}

func tcpEvent(src, dpt string) event.FirewallEvent {
	return event.FirewallEvent{SourceAddress: src, DestPort: dpt, Protocol: event.ProtoTCP}
}

func TestResponderCooldown(t *testing.T) {
	notifier := &captureNotifier{}
	r := NewResponder(ResponderConfig{Enabled: true, Cooldown: 5 * time.Second, Visible: showAll}, notifier, nil, nil)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.clock = func() time.Time { return now }

	steps := []struct {
		advance time.Duration
		want    int
	}{
		{0, 1},               // first event always notifies
		{time.Second, 1},     // inside cooldown
		{4 * time.Second, 1}, // exactly at the cooldown boundary: still suppressed
		{time.Millisecond, 2},
		{10 * time.Second, 3},
	}

	for i, step := range steps {
		now = now.Add(step.advance)
		if err := r.HandleEvent(context.Background(), tcpEvent("203.0.113.5", "22")); err != nil {
			t.Fatalf("HandleEvent() error = %v", err)
		}
		if got := notifier.count(); got != step.want {
			t.Errorf("Step %d: %d notifications, want %d", i, got, step.want)
		}
	}
}

func TestResponderDisabled(t *testing.T) {
	notifier := &captureNotifier{}
	r := NewResponder(ResponderConfig{Enabled: false, Cooldown: time.Second, Visible: showAll}, notifier, nil, nil)

	_ = r.HandleEvent(context.Background(), tcpEvent("203.0.113.5", "22"))
	if notifier.count() != 0 {
		t.Error("Disabled notifications should not be sent")
	}
}

func TestResponderHiddenProtocol(t *testing.T) {
	notifier := &captureNotifier{}
	r := NewResponder(ResponderConfig{
		Enabled: true,
		Visible: filter.ProtocolFilter{ShowTCP: false, ShowUDP: true, ShowICMP: true},
	}, notifier, nil, nil)

	_ = r.HandleEvent(context.Background(), tcpEvent("203.0.113.5", "22"))
	if notifier.count() != 0 {
		t.Error("Hidden protocol should not notify")
	}

	// A hidden event must not consume the cooldown
	udp := event.FirewallEvent{SourceAddress: "203.0.113.5", DestPort: "53", Protocol: event.ProtoUDP}
	_ = r.HandleEvent(context.Background(), udp)
	if notifier.count() != 1 {
		t.Error("Visible protocol should notify")
	}
}

func TestResponderNotifierError(t *testing.T) {
	boom := errors.New("no session bus")
	r := NewResponder(ResponderConfig{Enabled: true, Visible: showAll}, &captureNotifier{err: boom}, nil, nil)

	err := r.HandleEvent(context.Background(), tcpEvent("203.0.113.5", "22"))
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped notifier error, got %v", err)
	}
}

func TestResponderWarningBypassesCooldown(t *testing.T) {
	notifier := &captureNotifier{}
	r := NewResponder(ResponderConfig{Enabled: true, Cooldown: time.Minute, Visible: showAll}, notifier, nil, nil)

	_ = r.HandleEvent(context.Background(), tcpEvent("203.0.113.5", "22"))
	b := BurstAlert{Kind: AlertKindWarning, Address: "203.0.113.5", Network: "wlan0 via 10.0.0.1", Event: tcpEvent("203.0.113.5", "22")}
	if err := r.HandleWarning(context.Background(), b); err != nil {
		t.Fatalf("HandleWarning() error = %v", err)
	}

	if notifier.count() != 2 {
		t.Fatalf("Expected event and warning notifications, got %d", notifier.count())
	}
	if notifier.sent[1].Severity != alert.SeverityWarning {
		t.Errorf("Warning severity = %q", notifier.sent[1].Severity)
	}
}

func TestResponderAuditLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")
	auditLog, err := NewAuditLog(path)
	if err != nil {
		t.Fatalf("NewAuditLog() error = %v", err)
	}

	r := NewResponder(ResponderConfig{}, nil, auditLog, nil)
	burst := BurstAlert{ID: "b1", Kind: AlertKindBurst, Address: "203.0.113.5", Threshold: 4, Window: 2 * time.Second}
	warning := burst
	warning.ID, warning.Kind = "w1", AlertKindWarning

	if err := r.HandleBurst(burst); err != nil {
		t.Fatalf("HandleBurst() error = %v", err)
	}
	if err := r.HandleWarning(context.Background(), warning); err != nil {
		t.Fatalf("HandleWarning() error = %v", err)
	}
	if err := auditLog.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := auditLog.Close(); err != nil {
		t.Errorf("Second Close() should be a no-op, got %v", err)
	}

	alerts, err := ReadAuditLog(path)
	if err != nil {
		t.Fatalf("ReadAuditLog() error = %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("Expected 2 audit entries, got %d", len(alerts))
	}
	if alerts[0].Kind != AlertKindBurst || alerts[1].Kind != AlertKindWarning {
		t.Errorf("Unexpected kinds: %s, %s", alerts[0].Kind, alerts[1].Kind)
	}
	if alerts[0].Window != 2*time.Second || alerts[0].Threshold != 4 {
		t.Errorf("Unexpected burst entry: %+v", alerts[0])
	}

	if err := auditLog.WriteAlert(burst); err == nil {
		t.Error("Writing to a closed audit log should fail")
	}
}
