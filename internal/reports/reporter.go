package reports

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is how often room snapshots are published unless
// configured otherwise.
const DefaultInterval = 30 * time.Second

// StatsSource supplies the current per-room latency snapshots. The gateway's
// connection manager implements this.
type StatsSource interface {
	RoomSnapshots() []Snapshot
}

// Reporter periodically publishes room latency snapshots.
type Reporter struct {
	source    StatsSource
	publisher Publisher
	interval  time.Duration
	clock     clockwork.Clock
}

// NewReporter creates a reporter publishing source's snapshots every interval.
func NewReporter(source StatsSource, publisher Publisher, interval time.Duration, clock clockwork.Clock) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		source:    source,
		publisher: publisher,
		interval:  interval,
		clock:     clock,
	}
}

// Run blocks until ctx is cancelled, publishing one snapshot per room on
// each tick. Publish failures are logged and skipped; the next tick tries
// again with fresh data.
func (r *Reporter) Run(ctx context.Context) {
	log.Info().Dur("interval", r.interval).Msg("latency reporter started")

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("latency reporter stopped")
			return
		case <-ticker.Chan():
			r.publishAll(ctx)
		}
	}
}

func (r *Reporter) publishAll(ctx context.Context) {
	for _, snapshot := range r.source.RoomSnapshots() {
		if err := r.publisher.Publish(ctx, snapshot); err != nil {
			log.Warn().
				Err(err).
				Str("room_id", snapshot.RoomID).
				Msg("failed to publish latency snapshot")
		}
	}
}
