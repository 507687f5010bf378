// Command mailjet-relay receives Mailjet event callbacks for every configured
// connector and forwards unsubscribes to the hub. It also exposes the secured
// action that refreshes the webhook registered at Mailjet.
package main

import (
	"context"
	"embed"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/homemade/mailjet-sync/sync"
)

//go:embed mappings
var mappingsFS embed.FS

var embeddedMappings = sync.EmbeddedMappings{Root: "mappings", Files: mappingsFS}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	s, err := loadSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid settings")
	}
	logger := newLogger(s)

	sync.Init(sync.Hub2Mailjet)

	locker, closeLocker, err := newLocker(s)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer closeLocker()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r, err := newRelay(relayOptions{
		Mappings:       embeddedMappings,
		Sink:           sync.NewHubCommitClient(s.HubCommitURL, s.HubCommitToken, logger),
		Locker:         locker,
		Registry:       registry,
		ActionsToken:   s.ActionsToken,
		RecordRequests: s.RecordRequests,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load connectors")
	}
	if s.ActionsToken == "" {
		logger.Warn().Msg("ACTIONS_TOKEN not set, secured actions are disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := newServer(s.Port, r.echo())
	go func() {
		logger.Info().Int("port", s.Port).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shutdown server")
	}
	logger.Info().Msg("Server closed")
}

func newLogger(s settings) zerolog.Logger {
	level, err := zerolog.ParseLevel(s.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if s.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	logger = logger.With().Timestamp().Str("service", "mailjet-relay").Logger()
	log.Logger = logger
	return logger
}

// newLocker shares reconcile locks through redis when REDIS_ADDR is set.
func newLocker(s settings) (sync.Locker, func(), error) {
	if s.RedisAddr == "" {
		return &sync.LocalLocker{}, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), sync.HTTPRequestTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return sync.RedisLocker{Client: client, TTL: s.LockTTL}, func() { _ = client.Close() }, nil
}
