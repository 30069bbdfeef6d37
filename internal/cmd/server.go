package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/gridironlabs/draftpulse/internal/gateway"
	"github.com/gridironlabs/draftpulse/internal/health"
	"github.com/gridironlabs/draftpulse/internal/latency"
)

func setupServer(config Config, gatewayHandler *gateway.Handler, healthHandler *health.Handler, selfTracker *latency.Tracker) *http.Server {
	mux := http.NewServeMux()

	gatewayHandler.RegisterRoutes(mux)
	healthHandler.RegisterRoutes(mux)

	// Self-probe stats, when the gateway is polling an upstream target.
	if selfTracker != nil {
		mux.HandleFunc("/debug/latency", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(selfTracker.Stats()); err != nil {
				log.Error().Err(err).Msg("failed to write self-probe stats")
			}
		})
	}

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet, http.MethodPost},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", config.Port),
		Handler: c.Handler(mux),
	}
}
