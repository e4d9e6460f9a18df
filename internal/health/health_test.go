package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mensfeld/fwmon/internal/config"
	"github.com/mensfeld/fwmon/internal/geo"
	"github.com/mensfeld/fwmon/internal/netctx"
)

type failingProber struct{}

func (failingProber) Probe() (netctx.Identity, error) {
	return netctx.Identity{}, errors.New("netlink unavailable")
}

func TestCheckConfiguration(t *testing.T) {
	if c := CheckConfiguration(nil); c.Status != StatusFailed {
		t.Errorf("nil config: status = %s", c.Status)
	}

	cfg := config.GetDefaultConfig()
	if c := CheckConfiguration(cfg); c.Status != StatusOK {
		t.Errorf("Default config: status = %s (%s)", c.Status, c.Message)
	}

	cfg.Monitor.MaxEvents = 5000
	if c := CheckConfiguration(cfg); c.Status != StatusFailed {
		t.Errorf("Invalid config: status = %s", c.Status)
	}
}

func TestCheckLogSource(t *testing.T) {
	cfg := config.GetDefaultConfig()

	cfg.Monitor.Command = []string{"definitely-not-a-real-binary-fwmon"}
	if c := CheckLogSource(cfg); c.Status != StatusFailed {
		t.Errorf("Missing binary: status = %s", c.Status)
	}

	cfg.Monitor.Command = []string{"sh", "-c", "true"}
	if c := CheckLogSource(cfg); c.Status != StatusOK {
		t.Errorf("sh should be found: %s", c.Message)
	}
}

func TestCheckDefaultRoute(t *testing.T) {
	tests := []struct {
		name   string
		prober netctx.Prober
		want   Status
	}{
		{"online", netctx.StaticProber{Interface: "eth0", Gateway: "10.0.0.1"}, StatusOK},
		{"offline", netctx.StaticProber{}, StatusWarning},
		{"probe error", failingProber{}, StatusWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckDefaultRoute(tt.prober); got.Status != tt.want {
				t.Errorf("Status = %s, want %s (%s)", got.Status, tt.want, got.Message)
			}
		})
	}
}

func TestCheckGeoEndpoint(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"country_code":"US"}`))
	}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer bad.Close()

	good := CheckGeoEndpoint(context.Background(), geo.Endpoint{Name: "primary", URLTemplate: ok.URL + "/{ip}/json/", Kind: geo.KindIPAPICo}, time.Second)
	if good.Status != StatusOK || !strings.Contains(good.Message, "🇺🇸") {
		t.Errorf("Reachable endpoint: %+v", good)
	}
	if good.Name != "geo_primary" {
		t.Errorf("Name = %q", good.Name)
	}

	limited := CheckGeoEndpoint(context.Background(), geo.Endpoint{Name: "fallback", URLTemplate: bad.URL + "/{ip}", Kind: geo.KindIPAPI}, time.Second)
	if limited.Status != StatusWarning {
		t.Errorf("Rate limited endpoint: %+v", limited)
	}
}

func TestCheckAuditLog(t *testing.T) {
	dir := t.TempDir()
	if c := CheckAuditLog(filepath.Join(dir, "sub", "audit.jsonl")); c.Status != StatusOK {
		t.Errorf("Writable dir: %s", c.Message)
	}
	if _, err := os.Stat(filepath.Join(dir, "sub", ".fwmon-health")); !os.IsNotExist(err) {
		t.Error("Probe file should be removed")
	}
}

func TestCheckListenAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	if c := CheckListenAddress(ln.Addr().String()); c.Status != StatusWarning {
		t.Errorf("Busy address: status = %s", c.Status)
	}
	if c := CheckListenAddress("127.0.0.1:0"); c.Status != StatusOK {
		t.Errorf("Free address: status = %s", c.Status)
	}
}

func TestRunAndFormat(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Monitor.Command = []string{"sh"}

	report := Run(context.Background(), cfg, Options{Prober: netctx.StaticProber{Interface: "eth0", Gateway: "10.0.0.1"}})
	if !report.Healthy {
		t.Errorf("Expected healthy report:\n%s", Format(report))
	}

	names := map[string]bool{}
	for _, c := range report.Checks {
		names[c.Name] = true
	}
	for _, want := range []string{"config", "log_source", "journal_access", "default_route"} {
		if !names[want] {
			t.Errorf("Missing check %q", want)
		}
	}
	if names["geo_primary"] {
		t.Error("Network checks should only run when requested")
	}

	cfg.Monitor.Command = []string{"definitely-not-a-real-binary-fwmon"}
	report = Run(context.Background(), cfg, Options{Prober: netctx.StaticProber{}})
	if report.Healthy {
		t.Error("A failed check makes the report unhealthy")
	}
	if !strings.Contains(Format(report), "Status: unhealthy") {
		t.Errorf("Format() = %s", Format(report))
	}
}
