package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mensfeld/fwmon/internal/alert"
	"github.com/mensfeld/fwmon/internal/event"
	"github.com/mensfeld/fwmon/internal/filter"
	"github.com/mensfeld/fwmon/internal/metrics"
)

// Notification kinds, used as metric labels
const (
	notifyEvent   = "event"
	notifyWarning = "warning"
	notifyError   = "error"
)

// ResponderConfig configures user alerting
type ResponderConfig struct {
	Enabled  bool                  // enable-notifications
	Cooldown time.Duration         // minimum gap between event notifications
	Visible  filter.ProtocolFilter // show-tcp / show-udp / show-icmp
}

// Responder turns pipeline signals into notifications and audit entries
type Responder struct {
	cfg      ResponderConfig
	notifier alert.Notifier
	auditLog *AuditLog
	metrics  *metrics.Metrics
	clock    func() time.Time

	mu               sync.Mutex
	lastNotification time.Time
}

// NewResponder creates a responder. auditLog and m may be nil.
func NewResponder(cfg ResponderConfig, notifier alert.Notifier, auditLog *AuditLog, m *metrics.Metrics) *Responder {
	if notifier == nil {
		notifier = alert.Discard
	}
	return &Responder{
		cfg:      cfg,
		notifier: notifier,
		auditLog: auditLog,
		metrics:  m,
		clock:    time.Now,
	}
}

// HandleEvent sends a rate-limited notification for a stored event.
// Disabled notifications, hidden protocols and events inside the cooldown
// are skipped silently.
func (r *Responder) HandleEvent(ctx context.Context, ev event.FirewallEvent) error {
	if !r.cfg.Enabled || !r.cfg.Visible.Visible(ev) {
		return nil
	}

	r.mu.Lock()
	now := r.clock()
	if !r.lastNotification.IsZero() && now.Sub(r.lastNotification) <= r.cfg.Cooldown {
		r.mu.Unlock()
		return nil
	}
	r.lastNotification = now
	r.mu.Unlock()

	err := r.notifier.Notify(ctx, EventNotification(ev))
	r.metrics.RecordNotification(notifyEvent, err)
	if err != nil {
		return fmt.Errorf("failed to send event notification: %w", err)
	}
	return nil
}

// HandleBurst records a burst crossing in the audit log
func (r *Responder) HandleBurst(b BurstAlert) error {
	return r.logAlert(b)
}

// HandleWarning records the warning and shows it. Warnings are already
// limited to one per network, so the cooldown does not apply.
func (r *Responder) HandleWarning(ctx context.Context, b BurstAlert) error {
	if err := r.logAlert(b); err != nil {
		return err
	}

	err := r.notifier.Notify(ctx, WarningNotification(b))
	r.metrics.RecordNotification(notifyWarning, err)
	if err != nil {
		return fmt.Errorf("failed to send network warning: %w", err)
	}
	return nil
}

// HandleError shows a fatal or persistent problem to the user
func (r *Responder) HandleError(ctx context.Context, cause error) error {
	err := r.notifier.Notify(ctx, ErrorNotification(cause))
	r.metrics.RecordNotification(notifyError, err)
	return err
}

// logAlert writes the alert to the audit log
func (r *Responder) logAlert(b BurstAlert) error {
	if r.auditLog != nil {
		return r.auditLog.WriteAlert(b)
	}
	return nil
}
