// Package geo resolves a network address to an approximate location
// through an external city-lookup web service. Results and failures are
// cached with a bounded lifetime so repeated requests from the same
// origin do not re-trigger an external lookup.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"pagegate.org/internal/obs"
)

// Location is the resolved approximate origin of an address.
type Location struct {
	Country string
	City    string
}

// String renders the location for log lines, with "unknown" parts when
// resolution failed.
func (l Location) String() string {
	country, city := l.Country, l.City
	if country == "" {
		country = "unknown"
	}
	if city == "" {
		city = "unknown"
	}
	return country + ", " + city
}

// Resolver is a shared, thread-safe handle. It is constructed once and
// injected into whichever worker needs it; there is no process-wide
// singleton.
type Resolver struct {
	client   *http.Client
	endpoint string
	account  string
	license  string
	lifetime time.Duration
	now      func() time.Time

	mu        sync.Mutex
	hits      map[string]Location
	misses    map[string]struct{}
	expiresAt time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		if c != nil {
			r.client = c
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewResolver builds a resolver against the configured lookup endpoint.
// The whole cache (successes and failures alike) is reset once per
// lifetime window.
func NewResolver(endpoint, account, license string, lifetime time.Duration, opts ...Option) *Resolver {
	r := &Resolver{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: endpoint,
		account:  account,
		license:  license,
		lifetime: lifetime,
		now:      time.Now,
		hits:     make(map[string]Location),
		misses:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.expiresAt = r.now().Add(lifetime)
	return r
}

// Resolve returns the location for remoteAddr, or ok=false when the
// lookup failed. Failures are remembered for the cache lifetime so the
// upstream service is asked at most once per address per window.
func (r *Resolver) Resolve(ctx context.Context, remoteAddr string) (Location, bool) {
	r.mu.Lock()
	r.handleExpired()
	if loc, ok := r.hits[remoteAddr]; ok {
		r.mu.Unlock()
		return loc, true
	}
	if _, failed := r.misses[remoteAddr]; failed {
		r.mu.Unlock()
		return Location{}, false
	}
	r.mu.Unlock()

	loc, err := r.lookup(ctx, remoteAddr)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		obs.Error("failed to resolve location", map[string]any{"addr": remoteAddr, "error": err.Error()})
		r.misses[remoteAddr] = struct{}{}
		return Location{}, false
	}
	r.hits[remoteAddr] = loc
	return loc, true
}

func (r *Resolver) lookup(ctx context.Context, remoteAddr string) (Location, error) {
	if r.endpoint == "" {
		return Location{}, fmt.Errorf("no lookup endpoint configured")
	}
	// The upstream resolves the caller's own address for loopback
	// origins, which only occur in local deployments anyway.
	path := r.endpoint + "/city/me"
	if ip := net.ParseIP(remoteAddr); ip != nil && !ip.IsLoopback() {
		path = r.endpoint + "/city/" + remoteAddr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Location{}, err
	}
	if r.account != "" {
		req.SetBasicAuth(r.account, r.license)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Location{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("lookup returned status %d", resp.StatusCode)
	}

	var payload struct {
		Country struct {
			Names map[string]string `json:"names"`
		} `json:"country"`
		City struct {
			Names map[string]string `json:"names"`
		} `json:"city"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Location{}, fmt.Errorf("decode lookup response: %w", err)
	}
	return Location{
		Country: payload.Country.Names["en"],
		City:    payload.City.Names["en"],
	}, nil
}

// handleExpired resets the cache when the lifetime window has elapsed.
// Caller holds the lock.
func (r *Resolver) handleExpired() {
	if r.now().Before(r.expiresAt) {
		return
	}
	clear(r.hits)
	clear(r.misses)
	r.expiresAt = r.now().Add(r.lifetime)
}
