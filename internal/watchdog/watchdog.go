// Package watchdog tracks peer liveness with hysteresis, so a single
// dropped probe doesn't flap the sender loop: it takes a run of
// consecutive failures to declare the peer down, and a single success to
// declare it back up. Grounded on the reference bridge's watchdog: a
// health endpoint is the primary liveness source, with a bare TCP dial
// falling back when no health endpoint is configured or it errors.
package watchdog

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"
)

// Watchdog is safe for concurrent use; Tick is called by the sender loop
// before each delivery attempt.
type Watchdog struct {
	host                     string
	port                     string
	healthURL                string
	interval                 time.Duration
	probeTimeout             time.Duration
	consecutiveFailThreshold int
	httpClient               *http.Client

	mu            sync.Mutex
	fail          int
	up            bool
	nextCheck     time.Time
}

// Config carries the watchdog's tunables, sourced from the peer section of
// the application configuration.
type Config struct {
	Host                     string
	Port                     string
	HealthURL                string
	Interval                 time.Duration
	ProbeTimeout             time.Duration
	ConsecutiveFailThreshold int
}

// New builds a Watchdog that starts optimistically up, matching the
// reference implementation's initial state.
func New(cfg Config) *Watchdog {
	threshold := cfg.ConsecutiveFailThreshold
	if threshold <= 0 {
		threshold = 3
	}
	return &Watchdog{
		host:                     cfg.Host,
		port:                     cfg.Port,
		healthURL:                cfg.HealthURL,
		interval:                 cfg.Interval,
		probeTimeout:             cfg.ProbeTimeout,
		consecutiveFailThreshold: threshold,
		httpClient:               &http.Client{Timeout: cfg.ProbeTimeout},
		up:                       true,
	}
}

// Tick probes the peer if the check interval has elapsed, otherwise
// returns the cached state. When the peer is currently down, the next
// check is scheduled sooner (capped at 500ms) so recovery is detected
// quickly instead of waiting out a full healthy-state interval.
func (w *Watchdog) Tick(ctx context.Context) bool {
	now := time.Now()

	w.mu.Lock()
	if now.Before(w.nextCheck) {
		up := w.up
		w.mu.Unlock()
		return up
	}

	nextInterval := w.interval
	if !w.up {
		accelerated := 500 * time.Millisecond
		if accelerated < nextInterval {
			nextInterval = accelerated
		}
	}
	w.nextCheck = now.Add(nextInterval)
	w.mu.Unlock()

	ok := w.probe(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if ok {
		w.fail = 0
	} else {
		w.fail++
	}
	w.up = w.fail < w.consecutiveFailThreshold
	if !w.up {
		if accelerated := now.Add(500 * time.Millisecond); accelerated.Before(w.nextCheck) {
			w.nextCheck = accelerated
		}
	}
	return w.up
}

func (w *Watchdog) probe(ctx context.Context) bool {
	if w.healthURL != "" {
		if w.healthOK(ctx) {
			return true
		}
		if w.host == "" {
			return false
		}
		return w.dialOK(ctx)
	}
	return w.dialOK(ctx)
}

func (w *Watchdog) healthOK(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (w *Watchdog) dialOK(ctx context.Context) bool {
	if w.host == "" {
		return true
	}
	port := w.port
	if port == "" {
		port = "80"
	}
	d := net.Dialer{Timeout: w.probeTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(w.host, port))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// IsUp returns the last-known liveness state without probing.
func (w *Watchdog) IsUp() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.up
}
