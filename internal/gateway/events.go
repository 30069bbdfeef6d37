package gateway

import (
	"time"

	"github.com/google/uuid"

	"github.com/gridironlabs/draftpulse/internal/latency"
)

// EventType identifies a gateway event sent to draft-room clients.
type EventType string

const (
	// EventTypeTimerSync carries a latency-compensated countdown value.
	EventTypeTimerSync EventType = "TimerSync"
)

// TimerSyncEvent tells one client how much pick time remains. The server's
// countdown is authoritative; the compensated value pads it by half that
// client's measured round trip so every client's display reaches zero in
// rough agreement with the server deadline.
type TimerSyncEvent struct {
	ID                 string    `json:"id"`
	RoomID             string    `json:"room_id"`
	Type               EventType `json:"type"`
	ServerTimerMS      float64   `json:"server_timer_ms"`
	CompensatedTimerMS float64   `json:"compensated_timer_ms"`
	EstimatedLatencyMS float64   `json:"estimated_latency_ms"`
	SentAt             time.Time `json:"sent_at"`
}

// newTimerSyncEvent builds the per-connection timer event. The displayed
// countdown is floored at zero here; CompensateTimer itself never clamps.
func newTimerSyncEvent(roomID uuid.UUID, serverTimerMS, estimatedLatencyMS float64, now time.Time) TimerSyncEvent {
	compensated := latency.CompensateTimer(serverTimerMS, estimatedLatencyMS)
	if compensated < 0 {
		compensated = 0
	}
	return TimerSyncEvent{
		ID:                 uuid.New().String(),
		RoomID:             roomID.String(),
		Type:               EventTypeTimerSync,
		ServerTimerMS:      serverTimerMS,
		CompensatedTimerMS: compensated,
		EstimatedLatencyMS: estimatedLatencyMS,
		SentAt:             now,
	}
}
