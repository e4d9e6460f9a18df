package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/esiqveland/notify"
	"github.com/godbus/dbus/v5"
)

// Freedesktop urgency levels
const (
	urgencyLow      byte = 0
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// DefaultExpire is how long transient notifications stay on screen
const DefaultExpire = 5 * time.Second

// DesktopNotifier sends notifications over the D-Bus session bus
type DesktopNotifier struct {
	mu     sync.Mutex
	conn   *dbus.Conn
	expire time.Duration
	lastID uint32
}

// NewDesktopNotifier connects to the session bus. It fails when no desktop
// session is available (headless hosts, system services).
func NewDesktopNotifier(expire time.Duration) (*DesktopNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	if expire <= 0 {
		expire = DefaultExpire
	}
	return &DesktopNotifier{conn: conn, expire: expire}, nil
}

// Notify shows n on the desktop
func (d *DesktopNotifier) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return fmt.Errorf("desktop notifier is closed")
	}
	id, err := notify.SendNotification(d.conn, desktopNotification(n, d.expire))
	if err != nil {
		return fmt.Errorf("failed to send desktop notification: %w", err)
	}
	d.lastID = id
	return nil
}

// Close releases the bus connection
func (d *DesktopNotifier) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

// desktopNotification maps n onto the freedesktop notification payload
func desktopNotification(n Notification, expire time.Duration) notify.Notification {
	icon := "security-high-symbolic"
	urgency := urgencyNormal
	switch n.Severity {
	case SeverityWarning:
		icon = "dialog-warning-symbolic"
		urgency = urgencyCritical
	case SeverityError:
		icon = "dialog-error-symbolic"
		urgency = urgencyCritical
	default:
		if n.Transient {
			urgency = urgencyLow
		}
	}

	timeout := expire
	if !n.Transient {
		// 0 asks the server to keep it until dismissed
		timeout = 0
	}

	return notify.Notification{
		AppName: AppName,
		AppIcon: icon,
		Summary: n.Title,
		Body:    n.Body,
		Hints: map[string]dbus.Variant{
			"urgency":   dbus.MakeVariant(urgency),
			"transient": dbus.MakeVariant(n.Transient),
		},
		ExpireTimeout: timeout,
	}
}
