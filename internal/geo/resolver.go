// Package geo resolves source addresses to country flag indicators.
//
// Lookups go to a primary HTTP endpoint and fall back to a secondary one.
// Every outcome, including failure, is cached for the life of the process.
// Resolution is best-effort: failures never escape this package.
package geo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds a single endpoint request
const DefaultTimeout = 5 * time.Second

// maxBodyBytes caps how much of a lookup response is read
const maxBodyBytes = 64 << 10

// ErrUnresolved is returned for addresses whose lookup failed before (or now)
var ErrUnresolved = errors.New("address could not be resolved")

// cgnat is the shared address space (RFC 6598), never routable on the internet
var cgnat = netip.MustParsePrefix("100.64.0.0/10")

// Request asks for the indicator of the event's source address
type Request struct {
	EventID uuid.UUID
	Address string
}

// Result carries a completed resolution back to the requester
type Result struct {
	EventID   uuid.UUID
	Address   string
	Indicator string
	Resolved  bool
}

type cacheEntry struct {
	indicator string
	resolved  bool
}

// Resolver performs asynchronous, memoized country lookups
type Resolver struct {
	endpoints []Endpoint
	client    *http.Client
	userAgent string
	timeout   time.Duration
	online    func() bool
	observe   func(endpoint, outcome string)
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
	group singleflight.Group

	results chan Result
	wg      sync.WaitGroup
}

// Option configures a Resolver
type Option func(*Resolver)

// WithHTTPClient sets the HTTP client used for lookups
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		r.client = client
	}
}

// WithUserAgent sets the User-Agent header identifying the tool
func WithUserAgent(ua string) Option {
	return func(r *Resolver) {
		r.userAgent = ua
	}
}

// WithTimeout bounds each endpoint request
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithOnline sets the connectivity probe; lookups are skipped while it reports false
func WithOnline(online func() bool) Option {
	return func(r *Resolver) {
		r.online = online
	}
}

// WithObserver receives one callback per endpoint attempt and per cache hit
func WithObserver(observe func(endpoint, outcome string)) Option {
	return func(r *Resolver) {
		r.observe = observe
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithResultBuffer sets the capacity of the results channel
func WithResultBuffer(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.results = make(chan Result, n)
		}
	}
}

// NewResolver creates a resolver that tries endpoints in order
func NewResolver(endpoints []Endpoint, opts ...Option) *Resolver {
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints()
	}
	r := &Resolver{
		endpoints: endpoints,
		client:    &http.Client{},
		userAgent: "fwmon",
		timeout:   DefaultTimeout,
		online:    func() bool { return true },
		observe:   func(string, string) {},
		logger:    slog.Default(),
		cache:     make(map[string]cacheEntry),
		results:   make(chan Result, 64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Results delivers completed asynchronous resolutions
func (r *Resolver) Results() <-chan Result {
	return r.results
}

// Cached returns the cached indicator for addr. A cached failure returns the
// placeholder with ok=true: it is final and will not be retried.
func (r *Resolver) Cached(addr string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[addr]
	if !ok {
		return "", false
	}
	return entry.indicator, true
}

// Eligible reports whether addr is worth a network lookup right now
func (r *Resolver) Eligible(addr string) bool {
	return IsPublic(addr) && r.online()
}

// Resolve starts a lookup in the background and returns immediately.
// It returns false, and delivers nothing, when the address is not public or
// the host is offline. Otherwise exactly one Result is sent on Results unless
// ctx is cancelled first.
func (r *Resolver) Resolve(ctx context.Context, req Request) bool {
	if !r.Eligible(req.Address) {
		return false
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		indicator, err := r.Lookup(ctx, req.Address)
		res := Result{
			EventID:   req.EventID,
			Address:   req.Address,
			Indicator: indicator,
			Resolved:  err == nil,
		}

		select {
		case r.results <- res:
		case <-ctx.Done():
		}
	}()
	return true
}

// Lookup resolves addr synchronously, consulting the cache first. Concurrent
// lookups of the same address share a single request sequence. On failure it
// returns the placeholder and ErrUnresolved.
func (r *Resolver) Lookup(ctx context.Context, addr string) (string, error) {
	if entry, ok := r.cachedEntry(addr); ok {
		r.observe("cache", "hit")
		return entryResult(entry)
	}

	v, _, _ := r.group.Do(addr, func() (interface{}, error) {
		// Another caller may have filled the cache while we waited
		if entry, ok := r.cachedEntry(addr); ok {
			return entry, nil
		}
		entry := r.fetch(ctx, addr)
		// A cancelled lookup says nothing about the address; do not cache it
		if ctx.Err() == nil || entry.resolved {
			r.mu.Lock()
			r.cache[addr] = entry
			r.mu.Unlock()
		}
		return entry, nil
	})

	return entryResult(v.(cacheEntry))
}

func entryResult(entry cacheEntry) (string, error) {
	if !entry.resolved {
		return Placeholder, ErrUnresolved
	}
	return entry.indicator, nil
}

func (r *Resolver) cachedEntry(addr string) (cacheEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[addr]
	return entry, ok
}

// fetch walks the endpoints in order until one yields a country code
func (r *Resolver) fetch(ctx context.Context, addr string) cacheEntry {
	for _, ep := range r.endpoints {
		code, err := r.query(ctx, ep, addr)
		if err != nil {
			r.observe(ep.Name, "failure")
			r.logger.Debug("geo lookup failed", "endpoint", ep.Name, "address", addr, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		r.observe(ep.Name, "success")
		flag, _ := Flag(code)
		r.logger.Debug("geo lookup resolved", "endpoint", ep.Name, "address", addr, "country", code)
		return cacheEntry{indicator: flag, resolved: true}
	}
	return cacheEntry{indicator: Placeholder, resolved: false}
}

// query performs one request against one endpoint
func (r *Resolver) query(ctx context.Context, ep Endpoint, addr string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL(addr), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return ep.Decode(body)
}

// Wait blocks until all background lookups have finished
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// CacheSize returns the number of cached addresses
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// IsPublic reports whether addr is a globally routable unicast address.
// Private, loopback, link-local, multicast, CGNAT and unparsable addresses
// are never looked up.
func IsPublic(addr string) bool {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	ip = ip.WithZone("").Unmap()
	switch {
	case ip.IsPrivate(), ip.IsLoopback(), ip.IsUnspecified(),
		ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(), ip.IsMulticast():
		return false
	case ip.Is4() && cgnat.Contains(ip):
		return false
	case ip.Is4() && ip.As4()[0] == 255:
		return false
	}
	return ip.IsGlobalUnicast()
}
