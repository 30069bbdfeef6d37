package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/gridironlabs/draftpulse/internal/latency"
)

// Snapshot is one room's latency picture at a point in time, published for
// ops dashboards. Purely observational; nothing reads these back.
type Snapshot struct {
	RoomID      string        `json:"room_id"`
	Connections int           `json:"connections"`
	Latency     latency.Stats `json:"latency"`
	CapturedAt  time.Time     `json:"captured_at"`
}

// Publisher sends latency snapshots somewhere.
type Publisher interface {
	Publish(ctx context.Context, snapshot Snapshot) error
	Close()
}

// NoOpPublisher is used when no message broker is configured.
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(ctx context.Context, snapshot Snapshot) error { return nil }
func (NoOpPublisher) Close()                                               {}

// NATSPublisher publishes snapshots to latency report subjects.
type NATSPublisher struct {
	nc            *nats.Conn
	subjectPrefix string
}

// NATSConfig holds connection settings for the report publisher.
type NATSConfig struct {
	URL           string
	SubjectPrefix string // e.g. "latency.reports"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default NATS publisher configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "latency.reports",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NewNATSPublisher connects to NATS with reconnect handling.
func NewNATSPublisher(config NATSConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSPublisher{nc: nc, subjectPrefix: config.SubjectPrefix}, nil
}

// Publish sends one snapshot to <prefix>.<room_id>.
func (p *NATSPublisher) Publish(ctx context.Context, snapshot Snapshot) error {
	payload, err := marshalEnvelope(snapshot, uuid.New().String())
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, snapshot.RoomID)
	if err := p.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish snapshot to %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("failed to drain NATS connection")
	}
}

// envelope is the wire shape for a published snapshot.
type envelope struct {
	EventID   string   `json:"event_id"`
	EventType string   `json:"event_type"`
	Payload   Snapshot `json:"payload"`
}

func marshalEnvelope(snapshot Snapshot, eventID string) ([]byte, error) {
	payload, err := json.Marshal(envelope{
		EventID:   eventID,
		EventType: "LatencySnapshot",
		Payload:   snapshot,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot envelope: %w", err)
	}
	return payload, nil
}
