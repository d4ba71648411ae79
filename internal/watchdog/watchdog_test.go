package watchdog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatchdog_HysteresisThreeFailuresDown(t *testing.T) {
	// Property 8: with threshold=3, three consecutive failures flip state to
	// down.
	w := New(Config{
		Host:                     "127.0.0.1",
		Port:                     "1", // nothing listens here
		Interval:                 0,
		ProbeTimeout:             20 * time.Millisecond,
		ConsecutiveFailThreshold: 3,
	})
	assert.True(t, w.IsUp())

	ctx := context.Background()
	assert.True(t, w.Tick(ctx))
	assert.True(t, w.Tick(ctx))
	assert.False(t, w.Tick(ctx))
	assert.False(t, w.IsUp())
}

func TestWatchdog_HealthyEndpointKeepsUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := New(Config{
		Host:                     "127.0.0.1",
		Port:                     "1",
		HealthURL:                srv.URL,
		Interval:                 0,
		ProbeTimeout:             200 * time.Millisecond,
		ConsecutiveFailThreshold: 3,
	})

	ctx := context.Background()
	w.Tick(ctx)
	w.Tick(ctx)
	w.Tick(ctx)
	assert.True(t, w.IsUp(), "healthy endpoint should keep the watchdog up")
}

func TestWatchdog_AcceleratedRecheckWhenDown(t *testing.T) {
	w := New(Config{
		Host:                     "127.0.0.1",
		Port:                     "1",
		Interval:                 time.Hour,
		ProbeTimeout:             20 * time.Millisecond,
		ConsecutiveFailThreshold: 1,
	})

	ctx := context.Background()
	assert.False(t, w.Tick(ctx))

	time.Sleep(510 * time.Millisecond)
	// Despite a 1-hour configured interval, the down state schedules the
	// next check at <=500ms so this tick actually re-probes.
	assert.False(t, w.Tick(ctx))
}
