package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gridironlabs/draftpulse/internal/gateway"
	"github.com/gridironlabs/draftpulse/internal/health"
	"github.com/gridironlabs/draftpulse/internal/latency"
	"github.com/gridironlabs/draftpulse/internal/probe"
	"github.com/gridironlabs/draftpulse/internal/reports"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", config.Port).
		Int("window_size", config.WindowSize).
		Str("nats_url", config.NATSURL).
		Msg("starting draftpulse gateway")

	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Gateway: per-connection latency tracking and timer sync
	gatewayConfig := gateway.DefaultConnectionConfig()
	gatewayConfig.PingInterval = time.Duration(config.PingIntervalSec) * time.Second
	gatewayConfig.LatencyWindow = config.WindowSize
	connectionManager := gateway.NewConnectionManager(gatewayConfig, clock)
	gatewayHandler := gateway.NewHandler(connectionManager)

	// Latency report publishing
	var publisher reports.Publisher = reports.NoOpPublisher{}
	if config.NATSURL != "" {
		natsConfig := reports.DefaultNATSConfig()
		natsConfig.URL = config.NATSURL
		natsConfig.SubjectPrefix = config.NATSSubjectPrefix
		natsPublisher, err := reports.NewNATSPublisher(natsConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect report publisher")
		}
		publisher = natsPublisher
	}
	defer publisher.Close()

	reporter := reports.NewReporter(connectionManager, publisher, time.Duration(config.ReportIntervalSec)*time.Second, clock)
	go reporter.Run(ctx)

	// Optional self-probe against an upstream target (e.g. the draft API)
	var selfTracker *latency.Tracker
	if config.ProbeTargetURL != "" {
		selfTracker = latency.NewTracker(config.WindowSize)
		sampler := probe.NewSampler(probe.DefaultTimeout)
		poller := probe.NewPoller(sampler, selfTracker, config.ProbeTargetURL, time.Duration(config.ProbeIntervalSec)*time.Second, clock)
		go poller.Run(ctx)
	}

	healthHandler := health.NewHandler(clock)
	srv := setupServer(config, gatewayHandler, healthHandler, selfTracker)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("draftpulse gateway stopped")
}
