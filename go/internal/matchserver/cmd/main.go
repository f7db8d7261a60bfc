package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordduel/go/internal/config"
	"github.com/mcdev12/wordduel/go/internal/matchserver"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	sc := cfg.Server

	clock := clockwork.NewRealClock()
	rules := matchserver.Rules{StartingCoins: sc.StartingCoins, MaxHints: sc.MaxHints}
	words := matchserver.NewStaticWords(rand.New(rand.NewSource(time.Now().UnixNano())))
	svc := matchserver.NewService(matchserver.NewStore(), words, rules, clock)

	hub := matchserver.NewHub(matchserver.DefaultHubConfig(), svc.SyncEvent)
	svc.AddNotifier(hub)

	if sc.NATSURL != "" {
		pub, err := matchserver.NewNATSPublisher(sc.NATSURL, sc.SubjectPrefix, svc.SyncEvent)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect event publisher")
		}
		defer pub.Close()
		svc.AddNotifier(pub)
	}

	auth := matchserver.NewAuthenticator(sc.JWTSecret, sc.TokenTTL, clock)
	srv := matchserver.NewServer(svc, hub, auth, matchserver.Options{
		DevLogin:       sc.DevLogin,
		AllowedOrigins: sc.AllowedOrigin,
	})
	server := matchserver.NewHTTPServer(fmt.Sprintf(":%s", sc.Port), srv.Handler())

	log.Info().
		Str("port", sc.Port).
		Str("nats_url", sc.NATSURL).
		Bool("dev_login", sc.DevLogin).
		Int("starting_coins", rules.StartingCoins).
		Msg("starting match server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Start(ctx)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	cancel()

	log.Info().Msg("match server shutdown complete")
}
