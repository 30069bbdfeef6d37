package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/gridironlabs/draftpulse/internal/latency"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestPoller_RecordsSamplesOnTick(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","timestamp_ms":1700000000000}`))
	}))
	defer srv.Close()

	fc := clockwork.NewFakeClock()
	tracker := latency.NewTracker(latency.DefaultWindowSize)
	sampler := NewSamplerWithClock(srv.Client(), fc)
	poller := NewPoller(sampler, tracker, srv.URL, time.Second, fc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}

	fc.Advance(time.Second)
	if !waitFor(t, func() bool { return tracker.Stats().Count == 1 }, 2*time.Second) {
		t.Fatalf("count=%d after first tick, want 1", tracker.Stats().Count)
	}

	fc.Advance(time.Second)
	if !waitFor(t, func() bool { return tracker.Stats().Count == 2 }, 2*time.Second) {
		t.Fatalf("count=%d after second tick, want 2", tracker.Stats().Count)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}

func TestPoller_LateResultDiscardedAfterCancellation(t *testing.T) {
	t.Parallel()

	fc := clockwork.NewFakeClock()
	tracker := latency.NewTracker(latency.DefaultWindowSize)
	sampler := NewSamplerWithClock(http.DefaultClient, fc)
	poller := NewPoller(sampler, tracker, "http://draft-api.internal/healthz", time.Second, fc)

	// A probe that completed just as the session tore down must be dropped
	// rather than applied to the abandoned tracker.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	poller.record(ctx, latency.Measurement{RoundTripTimeMS: 75})

	if got := tracker.Stats().Count; got != 0 {
		t.Fatalf("count=%d after cancelled record, want 0", got)
	}
}

func TestPoller_CancelWhileProbeInFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.Write([]byte("OK"))
	}))
	defer srv.Close()

	fc := clockwork.NewFakeClock()
	tracker := latency.NewTracker(latency.DefaultWindowSize)
	sampler := NewSamplerWithClock(srv.Client(), fc)
	poller := NewPoller(sampler, tracker, srv.URL, time.Second, fc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}
	fc.Advance(time.Second)

	// The probe is now blocked in the handler; tear the session down
	// underneath it.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
	if got := tracker.Stats().Count; got != 0 {
		t.Fatalf("count=%d after mid-flight cancellation, want 0", got)
	}
}

func TestPoller_FailedProbeDoesNotPolluteTracker(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	fc := clockwork.NewFakeClock()
	tracker := latency.NewTracker(latency.DefaultWindowSize)
	tracker.Add(latency.Measurement{RoundTripTimeMS: 40})
	before := tracker.Stats()

	sampler := NewSamplerWithClock(srv.Client(), fc)
	poller := NewPoller(sampler, tracker, srv.URL, time.Second, fc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx)

	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}
	fc.Advance(time.Second)

	// Give the failed probe time to complete, then confirm nothing changed.
	time.Sleep(200 * time.Millisecond)
	after := tracker.Stats()
	if after != before {
		t.Fatalf("stats changed across failed probe: before=%+v after=%+v", before, after)
	}
}
