// Package monitor runs the firewall log pipeline: it reads lines, parses
// and filters them into events, stores them, detects bursts, enriches events
// with geolocation and alerts the user.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mensfeld/fwmon/internal/burst"
	"github.com/mensfeld/fwmon/internal/event"
	"github.com/mensfeld/fwmon/internal/filter"
	"github.com/mensfeld/fwmon/internal/geo"
	"github.com/mensfeld/fwmon/internal/logsource"
	"github.com/mensfeld/fwmon/internal/metrics"
	"github.com/mensfeld/fwmon/internal/netctx"
	"github.com/mensfeld/fwmon/internal/store"
)

// SourceFactory opens a fresh log source. It is called at start and again
// for every restart.
type SourceFactory func() (logsource.Source, error)

// Status is a point-in-time view of a session
type Status struct {
	Running   bool            `json:"running"`
	Source    string          `json:"source"`
	Events    int             `json:"events"`
	Capacity  int             `json:"capacity"`
	Network   string          `json:"network"`
	Identity  netctx.Identity `json:"identity"`
	Online    bool            `json:"online"`
	Warned    bool            `json:"warned"`
	StartedAt time.Time       `json:"started_at,omitempty"`
}

// Session owns one monitoring pipeline. All pipeline state is mutated on the
// goroutine running Run; the store may be read concurrently.
type Session struct {
	cfg        SessionConfig
	hooks      Hooks
	openSource SourceFactory

	parser    *event.Parser
	store     *store.Store
	detector  *burst.Detector
	resolver  *geo.Resolver
	network   *netctx.Context
	triggers  <-chan struct{}
	responder *Responder
	metrics   *metrics.Metrics
	logger    *slog.Logger
	clock     func() time.Time

	// session goroutine only
	lastEventTime time.Time

	running   atomic.Bool
	warned    atomic.Bool
	startedAt atomic.Int64
	source    atomic.Value // string
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithHooks sets the outbound hooks
func WithHooks(h Hooks) SessionOption {
	return func(s *Session) {
		s.hooks = h
	}
}

// WithResolver enables geolocation enrichment
func WithResolver(r *geo.Resolver) SessionOption {
	return func(s *Session) {
		s.resolver = r
	}
}

// WithNetwork sets the network context and the channel that signals a
// possible network change (nil for none)
func WithNetwork(nc *netctx.Context, triggers <-chan struct{}) SessionOption {
	return func(s *Session) {
		s.network = nc
		s.triggers = triggers
	}
}

// WithResponder enables notifications and audit logging
func WithResponder(r *Responder) SessionOption {
	return func(s *Session) {
		s.responder = r
	}
}

// WithMetrics records pipeline metrics
func WithMetrics(m *metrics.Metrics) SessionOption {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithClock overrides the wall clock used for burst detection
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.clock = now
	}
}

// NewSession wires a session. Without WithNetwork the network identity is
// empty, so only the local discovery rules filter noise.
func NewSession(cfg SessionConfig, openSource SourceFactory, opts ...SessionOption) *Session {
	cfg.applyDefaults()

	s := &Session{
		cfg:        cfg,
		openSource: openSource,
		logger:     slog.Default(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.network == nil {
		s.network = netctx.New(netctx.StaticProber{})
	}

	s.parser = event.NewParser(cfg.Markers, event.WithLogger(s.logger), event.WithClock(s.clock))
	s.store = store.New(cfg.MaxEvents, geo.Placeholder)
	s.detector = burst.New(cfg.BurstWindow, cfg.BurstThreshold)
	s.source.Store("")
	return s
}

// Run processes the log until ctx is cancelled (returns nil) or the source
// fails. A source that ends is fatal unless RestartOnExit is set.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session is already running")
	}
	defer s.running.Store(false)
	s.startedAt.Store(s.clock().UnixNano())

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if _, err := s.network.Refresh(); err != nil {
		s.reportError(fmt.Errorf("network identity unavailable: %w", err))
	}

	lines := make(chan string, s.cfg.LineBuffer)
	sourceDone := make(chan error, 1)

	start := func() error {
		src, err := s.openSource()
		if err != nil {
			return fmt.Errorf("failed to open log source: %w", err)
		}
		s.source.Store(src.Name())
		s.logger.Info("reading firewall log", "source", src.Name())

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer src.Close()
			sourceDone <- src.Stream(ctx, lines)
		}()
		return nil
	}
	if err := start(); err != nil {
		return err
	}

	var geoResults <-chan geo.Result
	if s.resolver != nil {
		geoResults = s.resolver.Results()
	}

	janitor := time.NewTicker(s.cfg.JanitorInterval)
	defer janitor.Stop()

	var restart <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case line := <-lines:
			s.handleLine(ctx, line)

		case res := <-geoResults:
			s.handleGeoResult(res)

		case <-s.triggers:
			s.handleNetworkTrigger()

		case now := <-janitor.C:
			s.janitor(now)

		case err := <-sourceDone:
			// The source sends every line before returning
			s.drainLines(ctx, lines)
			if ctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = logsource.ErrSourceEnded
			}
			if !s.cfg.RestartOnExit || !errors.Is(err, logsource.ErrSourceEnded) {
				return fmt.Errorf("log source stopped: %w", err)
			}
			s.logger.Warn("log source ended, restarting", "error", err, "delay", s.cfg.RestartDelay)
			s.reportError(err)
			restart = time.After(s.cfg.RestartDelay)

		case <-restart:
			restart = nil
			if err := start(); err != nil {
				s.reportError(err)
				restart = time.After(s.cfg.RestartDelay)
				continue
			}
			s.metrics.RecordSourceRestart()
		}
	}
}

// drainLines handles lines already buffered when the source ended
func (s *Session) drainLines(ctx context.Context, lines <-chan string) {
	for {
		select {
		case line := <-lines:
			s.handleLine(ctx, line)
		default:
			return
		}
	}
}

// handleLine runs one line through parse, filter, store, alerting, burst
// detection and enrichment. It is the only place events are appended.
func (s *Session) handleLine(ctx context.Context, line string) {
	s.metrics.RecordLine()

	ev, ok := s.parser.Parse(line)
	if !ok {
		s.metrics.RecordRejected()
		return
	}
	s.metrics.RecordParsed(ev.Protocol)

	id := s.network.Identity()
	if reason, drop := filter.Reason(ev, id, filter.Options{FilterLocalDiscovery: s.cfg.FilterLocalDiscovery}); drop {
		s.metrics.RecordFiltered(reason)
		s.logger.Debug("event filtered", "reason", reason, "src", ev.SourceAddress, "dst", ev.DestAddress)
		return
	}

	rec := s.store.Append(ev)
	s.metrics.RecordStored(s.store.Count(), ev.Timestamp)
	if s.hooks.OnAppend != nil {
		s.hooks.OnAppend(rec)
	}

	if s.responder != nil {
		if err := s.responder.HandleEvent(ctx, ev); err != nil {
			s.reportError(err)
		}
	}

	now := s.clock()
	if s.cfg.EventTime {
		now = ev.Timestamp
		s.lastEventTime = now
	}
	if s.detector.Observe(ev.SourceAddress, now) {
		s.handleBurst(ctx, ev, id)
	}

	s.enrich(ctx, ev)
}

// handleBurst raises the burst signal and, once per network, the warning
func (s *Session) handleBurst(ctx context.Context, ev event.FirewallEvent, id netctx.Identity) {
	b := BurstAlert{
		ID:        uuid.NewString(),
		Kind:      AlertKindBurst,
		Timestamp: ev.Timestamp,
		Address:   ev.SourceAddress,
		Threshold: s.cfg.BurstThreshold,
		Window:    s.cfg.BurstWindow,
		Network:   id.Name(),
		Event:     ev,
	}

	s.metrics.RecordBurst()
	s.logger.Info("burst detected", "address", b.Address, "network", b.Network)
	if s.hooks.OnBurst != nil {
		s.hooks.OnBurst(b)
	}
	if s.responder != nil {
		if err := s.responder.HandleBurst(b); err != nil {
			s.reportError(err)
		}
	}

	if !s.cfg.NetworkWarning || s.warned.Load() {
		return
	}
	s.warned.Store(true)

	b.ID = uuid.NewString()
	b.Kind = AlertKindWarning
	s.metrics.RecordWarning()
	s.logger.Warn("network is probing ports", "network", b.Network, "address", b.Address, "port", ev.DestPort)
	if s.hooks.OnWarning != nil {
		s.hooks.OnWarning(b)
	}
	if s.responder != nil {
		if err := s.responder.HandleWarning(ctx, b); err != nil {
			s.reportError(err)
		}
	}
}

// enrich applies a cached indicator or starts a background lookup
func (s *Session) enrich(ctx context.Context, ev event.FirewallEvent) {
	if s.resolver == nil {
		return
	}
	if ind, ok := s.resolver.Cached(ev.SourceAddress); ok {
		if s.store.SetIndicator(ev.ID, ind) {
			s.refreshed(ev.ID)
		}
		return
	}
	s.resolver.Resolve(ctx, geo.Request{EventID: ev.ID, Address: ev.SourceAddress})
}

// handleGeoResult patches the indicator of a still-stored event. Results for
// evicted or cleared events are dropped by the store.
func (s *Session) handleGeoResult(res geo.Result) {
	s.metrics.SetGeoCacheSize(s.resolver.CacheSize())
	if !res.Resolved {
		return
	}
	if s.store.SetIndicator(res.EventID, res.Indicator) {
		s.refreshed(res.EventID)
	}
}

func (s *Session) refreshed(id uuid.UUID) {
	if s.hooks.OnRefresh == nil {
		return
	}
	if rec, ok := s.store.Get(id); ok {
		s.hooks.OnRefresh(rec)
	}
}

// handleNetworkTrigger re-probes the network; a new identity starts a fresh
// threat context
func (s *Session) handleNetworkTrigger() {
	old := s.network.Identity()
	changed, err := s.network.Refresh()
	if err != nil {
		s.logger.Debug("network refresh failed", "error", err)
		return
	}
	if !changed {
		return
	}

	current := s.network.Identity()
	s.detector.Clear()
	s.warned.Store(false)
	s.metrics.RecordNetworkChange()
	s.logger.Info("network changed", "from", old.Name(), "to", current.Name())
	if s.hooks.OnNetworkChange != nil {
		s.hooks.OnNetworkChange(old, current)
	}
}

func (s *Session) janitor(now time.Time) {
	// Replayed logs run on their own clock
	if s.cfg.EventTime {
		now = s.lastEventTime
	}
	if n := s.detector.Prune(now); n > 0 {
		s.logger.Debug("pruned idle burst state", "addresses", n)
	}
	if s.resolver != nil {
		s.metrics.SetGeoCacheSize(s.resolver.CacheSize())
	}
}

func (s *Session) reportError(err error) {
	s.logger.Warn("monitor error", "error", err)
	if s.hooks.OnError != nil {
		s.hooks.OnError(err)
	}
}

// Recent returns up to n newest records (all when n <= 0)
func (s *Session) Recent(n int) []store.Record {
	return s.store.Recent(n)
}

// Count returns the number of stored events
func (s *Session) Count() int {
	return s.store.Count()
}

// Clear empties the history. It may be called from any goroutine; OnCleared
// runs on the caller's goroutine.
func (s *Session) Clear() {
	s.store.Clear()
	s.metrics.SetStoreSize(0)
	if s.hooks.OnCleared != nil {
		s.hooks.OnCleared()
	}
}

// Network returns the current network identity
func (s *Session) Network() netctx.Identity {
	return s.network.Identity()
}

// Status returns a snapshot for the API and CLI
func (s *Session) Status() Status {
	id := s.network.Identity()
	st := Status{
		Running:  s.running.Load(),
		Source:   s.source.Load().(string),
		Events:   s.store.Count(),
		Capacity: s.store.Capacity(),
		Network:  id.Name(),
		Identity: id,
		Online:   id.Online(),
		Warned:   s.warned.Load(),
	}
	if ns := s.startedAt.Load(); ns != 0 {
		st.StartedAt = time.Unix(0, ns)
	}
	return st
}
