package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"live-slide-sync-service/internal/api/ws"
	"live-slide-sync-service/internal/config"
	"live-slide-sync-service/internal/events"
	"live-slide-sync-service/internal/observability"
	"live-slide-sync-service/internal/observability/logging"
	"live-slide-sync-service/internal/service/match"
	"live-slide-sync-service/internal/service/recognition/gateway"
	googlestt "live-slide-sync-service/internal/service/recognition/google"
	"live-slide-sync-service/internal/service/session"
	"live-slide-sync-service/internal/service/wake"
	"live-slide-sync-service/internal/setlist"
)

func main() {
	cfg := config.Load()

	logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})

	// Session event feed for downstream consumers (planning dashboards,
	// archives). Degrades to log-only mode when Kafka is disabled.
	publisher := events.New(&events.Config{
		Enabled:          cfg.Kafka.Enabled,
		Brokers:          cfg.Kafka.Brokers,
		TopicTransitions: cfg.Kafka.TopicTransitions,
		TopicLifecycle:   cfg.Kafka.TopicLifecycle,
		Principal:        cfg.Kafka.Principal,
	})
	defer publisher.Close()

	gw := gateway.New(gateway.Config{
		DefaultProvider:   cfg.STT.Provider,
		PendingQueueSize:  cfg.STT.PendingQueueSize,
		ReconnectCooldown: cfg.STT.ReconnectCooldown,
		Google: googlestt.Config{
			LanguageCode:   cfg.STT.LanguageCode,
			SampleRateHz:   cfg.STT.SampleRateHz,
			InterimResults: cfg.STT.InterimResults,
			AudioEncoding:  cfg.STT.AudioEncoding,
		},
	}, nil)

	hub := session.NewHub(session.HubOptions{
		Session: session.Config{
			ViewerQueueSize:    cfg.Session.ViewerQueueSize,
			HeartbeatTimeout:   cfg.Session.HeartbeatTimeout,
			IdleTimeout:        cfg.Session.IdleTimeout,
			ProviderPreference: cfg.STT.Provider,
		},
		Match: match.Config{
			ConfidenceThreshold: cfg.Match.ConfidenceThreshold,
			AdvanceMargin:       cfg.Match.AdvanceMargin,
			WindowWords:         cfg.Match.WindowWords,
		},
		Wake: wake.Config{
			Enabled:   cfg.Wake.Enabled,
			Cooldown:  cfg.Wake.Cooldown,
			MinTokens: cfg.Wake.MinTokens,
		},
		Source:    setlist.FileSource{Dir: cfg.Session.SetlistDir},
		Gateway:   gw,
		Publisher: publisher,
	})

	obsServer := observability.NewServer(":"+cfg.Service.ObsPort, func() bool { return true })
	obsServer.Start()

	wsServer := ws.NewServer(":"+cfg.Service.HTTPPort, hub)
	wsServer.Start()

	log.Info().
		Str("httpPort", cfg.Service.HTTPPort).
		Str("obsPort", cfg.Service.ObsPort).
		Str("sttProvider", cfg.STT.Provider).
		Bool("wakeEnabled", cfg.Wake.Enabled).
		Msg("Slide sync service started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	hub.Shutdown(ctx, "service shutdown")
	if err := wsServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Websocket server shutdown error")
	}
	if err := obsServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Observability server shutdown error")
	}
}
