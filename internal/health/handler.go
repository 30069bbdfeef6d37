package health

import (
	"encoding/json"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Response is the liveness payload. The timestamp lets latency samplers
// record the server's clock alongside their own.
type Response struct {
	Status      string `json:"status"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// Handler serves the liveness endpoint that draft-room clients probe to
// measure round-trip time.
type Handler struct {
	clock clockwork.Clock
}

// NewHandler creates a health handler using the given clock.
func NewHandler(clock clockwork.Clock) *Handler {
	return &Handler{clock: clock}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := Response{
		Status:      "ok",
		TimestampMS: h.clock.Now().UnixMilli(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}

// RegisterRoutes registers the health endpoint on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/healthz", h)
}
