package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handler handles WebSocket upgrade requests for draft-room connections.
type Handler struct {
	connectionManager *ConnectionManager
}

// NewHandler creates a new WebSocket handler.
func NewHandler(cm *ConnectionManager) *Handler {
	return &Handler{connectionManager: cm}
}

// HandleRoomConnection handles WebSocket connections for a specific room.
func (h *Handler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	roomIDStr := r.URL.Query().Get("room_id")
	if roomIDStr == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}

	roomID, err := uuid.Parse(roomIDStr)
	if err != nil {
		http.Error(w, "invalid room_id format", http.StatusBadRequest)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, roomID); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID.String()).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleStats returns connection counts and per-room latency aggregates.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	total, rooms := h.connectionManager.ConnectionStats()
	response := map[string]interface{}{
		"total_connections": total,
		"active_rooms":      rooms,
		"rooms":             h.connectionManager.RoomSnapshots(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("failed to write stats response")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/draft", h.HandleRoomConnection)
	mux.HandleFunc("/ws/stats", h.HandleStats)
}
