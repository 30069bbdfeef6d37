package probe

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/gridironlabs/draftpulse/internal/latency"
)

// DefaultInterval is how often a poller probes unless configured otherwise.
const DefaultInterval = 5 * time.Second

// Poller periodically measures latency to one endpoint and feeds successful
// samples to a tracker. It is the repeating-task shape of the "sample on an
// interval while the draft room is open" pattern: the owning session starts
// Run with a context and cancels it on teardown.
type Poller struct {
	sampler     *Sampler
	tracker     *latency.Tracker
	endpointURL string
	interval    time.Duration
	clock       clockwork.Clock
}

// NewPoller creates a poller that probes endpointURL every interval and
// records results into tracker.
func NewPoller(sampler *Sampler, tracker *latency.Tracker, endpointURL string, interval time.Duration, clock clockwork.Clock) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		sampler:     sampler,
		tracker:     tracker,
		endpointURL: endpointURL,
		interval:    interval,
		clock:       clock,
	}
}

// Run blocks until ctx is cancelled, probing once per interval. Failed
// probes are logged and skipped; the tracker only ever sees real samples.
func (p *Poller) Run(ctx context.Context) {
	log.Info().
		Str("endpoint", p.endpointURL).
		Dur("interval", p.interval).
		Msg("latency poller started")

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("endpoint", p.endpointURL).Msg("latency poller stopped")
			return
		case <-ticker.Chan():
			p.sampleOnce(ctx)
		}
	}
}

func (p *Poller) sampleOnce(ctx context.Context) {
	m, err := p.sampler.Measure(ctx, p.endpointURL)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", p.endpointURL).Msg("latency probe failed, skipping sample")
		return
	}
	p.record(ctx, m)
}

// record applies a completed measurement. The session may have torn down
// while the probe was in flight; a late result must not be applied to a
// tracker the owner has abandoned.
func (p *Poller) record(ctx context.Context, m latency.Measurement) {
	if ctx.Err() != nil {
		log.Debug().Str("endpoint", p.endpointURL).Msg("discarding late probe result after shutdown")
		return
	}

	p.tracker.Add(m)

	log.Debug().
		Str("endpoint", p.endpointURL).
		Float64("rtt_ms", m.RoundTripTimeMS).
		Float64("estimated_ms", p.tracker.EstimatedLatency()).
		Msg("latency sample recorded")
}
