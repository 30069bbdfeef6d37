package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/gridironlabs/draftpulse/internal/latency"
	"github.com/gridironlabs/draftpulse/internal/reports"
)

// ConnectionManager manages WebSocket connections for draft-room timer sync.
// Connections are pooled per room; each connection carries its own latency
// tracker fed by ping/pong round trips, so timer events can be compensated
// per client rather than per room.
type ConnectionManager struct {
	roomConnections map[uuid.UUID]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clock    clockwork.Clock
}

// Connection represents one draft-room client. Send is never closed;
// unregistering closes done instead, so a broadcast holding a stale snapshot
// of the room can still send harmlessly into the abandoned buffer.
type Connection struct {
	ID      string
	RoomID  uuid.UUID
	Conn    *websocket.Conn
	Send    chan []byte
	done    chan struct{}
	Latency *latency.Tracker

	manager *ConnectionManager

	// pingSentAt is the send time of the last unanswered ping, guarded by
	// pingMu because the write pump stamps it and the read pump consumes it.
	pingMu     sync.Mutex
	pingSentAt time.Time

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	LatencyWindow   int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    5 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		LatencyWindow:   latency.DefaultWindowSize,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
// Non-positive ping intervals fall back to the default; time.NewTicker
// panics on zero.
func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultConnectionConfig().PingInterval
	}
	return &ConnectionManager{
		roomConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		clock:  clock,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and registers
// it with the given room.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, roomID uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		done:        make(chan struct{}),
		Latency:     latency.NewTracker(cm.config.LatencyWindow),
		manager:     cm,
		ConnectedAt: cm.clock.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("room_id", roomID.String()).
		Msg("WebSocket connection established")

	return nil
}

// BroadcastTimerSync sends the server's remaining pick time to every
// connection in a room, compensated per connection by that client's
// estimated latency.
func (cm *ConnectionManager) BroadcastTimerSync(roomID uuid.UUID, serverTimerMS float64) {
	cm.mu.RLock()
	connections := make([]*Connection, 0, len(cm.roomConnections[roomID]))
	for conn := range cm.roomConnections[roomID] {
		connections = append(connections, conn)
	}
	cm.mu.RUnlock()

	now := cm.clock.Now()
	for _, conn := range connections {
		event := newTimerSyncEvent(roomID, serverTimerMS, conn.Latency.EstimatedLatency(), now)
		payload, err := json.Marshal(event)
		if err != nil {
			log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to marshal timer sync event")
			continue
		}

		select {
		case conn.Send <- payload:
		default:
			log.Warn().
				Str("connection_id", conn.ID).
				Str("room_id", roomID.String()).
				Msg("send buffer full, dropping timer sync event")
		}
	}

	log.Debug().
		Str("room_id", roomID.String()).
		Float64("server_timer_ms", serverTimerMS).
		Int("connections", len(connections)).
		Msg("timer sync broadcasted")
}

// RoomSnapshots returns one latency snapshot per active room, aggregated
// over the room's connections. Implements reports.StatsSource.
func (cm *ConnectionManager) RoomSnapshots() []reports.Snapshot {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	now := cm.clock.Now()
	snapshots := make([]reports.Snapshot, 0, len(cm.roomConnections))
	for roomID, connections := range cm.roomConnections {
		var agg latency.Stats
		sampled := 0
		for conn := range connections {
			s := conn.Latency.Stats()
			if s.Count == 0 {
				continue
			}
			if sampled == 0 || s.MinMS < agg.MinMS {
				agg.MinMS = s.MinMS
			}
			if s.MaxMS > agg.MaxMS {
				agg.MaxMS = s.MaxMS
			}
			agg.AverageMS += s.AverageMS
			agg.CurrentMS = s.CurrentMS
			agg.Count += s.Count
			sampled++
		}
		if sampled > 0 {
			agg.AverageMS /= float64(sampled)
		}

		snapshots = append(snapshots, reports.Snapshot{
			RoomID:      roomID.String(),
			Connections: len(connections),
			Latency:     agg,
			CapturedAt:  now,
		})
	}

	return snapshots
}

// ConnectionStats returns coarse connection counts for the stats endpoint.
func (cm *ConnectionManager) ConnectionStats() (total int, rooms int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, connections := range cm.roomConnections {
		total += len(connections)
	}
	return total, len(cm.roomConnections)
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.RoomID] == nil {
		cm.roomConnections[conn.RoomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID.String()).
		Int("room_connections", len(cm.roomConnections[conn.RoomID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.roomConnections[conn.RoomID]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.done)

			if len(connections) == 0 {
				delete(cm.roomConnections, conn.RoomID)
			}

			log.Debug().
				Str("connection_id", conn.ID).
				Str("room_id", conn.RoomID.String()).
				Msg("connection unregistered")
		}
	}
}

// writePump handles sending messages and pings to the WebSocket connection.
// Ping send times are stamped here; the pong handler in readPump turns them
// into round-trip measurements.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.manager.unregisterConnection(c)
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.pingMu.Lock()
			c.pingSentAt = c.manager.clock.Now()
			c.pingMu.Unlock()

			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection and feeds
// pong round trips into the connection's latency tracker.
func (c *Connection) readPump() {
	defer func() {
		c.manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		c.recordPong()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		log.Debug().
			Str("connection_id", c.ID).
			RawJSON("message", message).
			Msg("received client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}

// recordPong converts the pending ping into a round-trip measurement. A pong
// with no outstanding ping (e.g. an unsolicited one) is ignored.
func (c *Connection) recordPong() {
	c.pingMu.Lock()
	sentAt := c.pingSentAt
	c.pingSentAt = time.Time{}
	c.pingMu.Unlock()

	if sentAt.IsZero() {
		return
	}

	now := c.manager.clock.Now()
	rtt := now.Sub(sentAt)
	if rtt < 0 {
		return
	}

	c.Latency.Add(latency.Measurement{
		RoundTripTimeMS:   float64(rtt) / float64(time.Millisecond),
		ClientTimestampMS: sentAt.UnixMilli(),
	})

	log.Debug().
		Str("connection_id", c.ID).
		Float64("rtt_ms", float64(rtt)/float64(time.Millisecond)).
		Float64("estimated_ms", c.Latency.EstimatedLatency()).
		Msg("pong round trip recorded")
}
