// Package sender runs the outbox delivery loop: poll for the next due job,
// attempt delivery, and either delete it on success or reschedule it with
// exponential backoff on failure. Structured the way the teacher's
// background jobs are (Start/Stop/run, ticker-driven, graceful shutdown).
package sender

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tss-ch/mas004-databridge/internal/httpclient"
	"github.com/tss-ch/mas004-databridge/internal/logstore"
	"github.com/tss-ch/mas004-databridge/internal/store"
	"github.com/tss-ch/mas004-databridge/internal/watchdog"
)

// pollInterval is how often the loop checks for a due job; each tick
// handles at most one job, whether or not the last pass found one.
const pollInterval = 200 * time.Millisecond

// logEvictInterval is how often the log ring buffers are swept for
// entries older than their configured retention.
const logEvictInterval = time.Minute

// Sender drains the durable outbox against the peer.
type Sender struct {
	store      *store.Store
	http       *httpclient.Client
	watchdog   *watchdog.Watchdog
	logs       *logstore.Store
	retryBase  time.Duration
	retryCap   time.Duration
	log        *slog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// Config carries the sender's tunables.
type Config struct {
	RetryBase time.Duration
	RetryCap  time.Duration
	// Logs, if set, is swept for stale entries on a slower cadence
	// alongside outbox delivery, per spec §4.11.
	Logs *logstore.Store
}

// New builds a Sender over the given store and HTTP client. watchdog may
// be nil, in which case the peer is always considered reachable.
func New(st *store.Store, httpClient *httpclient.Client, wd *watchdog.Watchdog, cfg Config, log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	base, cap := cfg.RetryBase, cfg.RetryCap
	if base <= 0 {
		base = time.Second
	}
	if cap <= 0 {
		cap = 60 * time.Second
	}
	return &Sender{
		store:     st,
		http:      httpClient,
		watchdog:  wd,
		logs:      cfg.Logs,
		retryBase: base,
		retryCap:  cap,
		log:       log,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the delivery loop in a background goroutine.
func (s *Sender) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()
	s.log.Info("sender started")
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Sender) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("sender stopped")
}

func (s *Sender) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var evictTicker *time.Ticker
	var evictC <-chan time.Time
	if s.logs != nil {
		evictTicker = time.NewTicker(logEvictInterval)
		defer evictTicker.Stop()
		evictC = evictTicker.C
	}

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-evictC:
			s.logs.Evict()
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce attempts to deliver a single due job, if any. It reports whether
// a job was found (delivered or rescheduled), for tests and manual triggers.
func (s *Sender) RunOnce(ctx context.Context) bool {
	if s.watchdog != nil && !s.watchdog.Tick(ctx) {
		return false
	}

	job, err := s.store.NextDue()
	if err != nil {
		s.log.Error("sender: next_due failed", "error", err)
		return false
	}
	if job == nil {
		return false
	}

	_, err = s.http.Do(ctx, job.Method, job.URL, job.Headers, job.Body)
	if err == nil {
		if delErr := s.store.DeleteOutbox(job.ID); delErr != nil {
			s.log.Error("sender: delete delivered job failed", "id", job.ID, "error", delErr)
		}
		return true
	}

	retryCount := job.RetryCount + 1
	delay := store.Backoff(retryCount, s.retryBase, s.retryCap)
	next := time.Now().Add(delay)
	s.log.Warn("sender: delivery failed, rescheduling", "id", job.ID, "retry_count", retryCount, "delay", delay, "error", err)
	if rescheduleErr := s.store.Reschedule(job.ID, retryCount, next); rescheduleErr != nil {
		s.log.Error("sender: reschedule failed", "id", job.ID, "error", rescheduleErr)
	}
	return true
}
