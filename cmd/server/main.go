package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/streamloop/streamloop/internal/adapters/http"
	"github.com/streamloop/streamloop/internal/adapters/ws"
	"github.com/streamloop/streamloop/internal/config"
	"github.com/streamloop/streamloop/internal/core"
	"github.com/streamloop/streamloop/internal/relay"
	"github.com/streamloop/streamloop/internal/store"
	"github.com/streamloop/streamloop/internal/transcode"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()

	rel := &relay.Relay{
		Registry: core.NewRegistry(),
		Rooms:    core.NewRooms(),
		Books:    db,
	}
	starter := transcode.NewStarter(transcode.Options{
		FFmpegPath:       cfg.Transcode.FFmpegPath,
		FrameRate:        cfg.Transcode.FrameRate,
		KeyframeInterval: cfg.Transcode.KeyframeInterval,
		VideoBitrate:     cfg.Transcode.VideoBitrate,
		AudioBitrate:     cfg.Transcode.AudioBitrate,
		Destination:      cfg.Destination(),
	})
	rel.Jobs = transcode.NewManager(cfg.Transcode.BufferChunks, starter, rel.OnJobState)

	wsCtl := ws.NewController(rel, cfg.ReadLimit, cfg.PingPeriod)
	streams := &router.StreamsController{Store: db}
	r := router.SetupRouter(ctx, cfg, wsCtl, streams, router.TokenAuthenticator{})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("streamloop server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	rel.Jobs.StopAll()
	log.Info().Msg("Server exited gracefully")
}
