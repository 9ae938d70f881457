package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ent0n29/stemvoice/internal/audio"
	"github.com/ent0n29/stemvoice/internal/config"
	"github.com/ent0n29/stemvoice/internal/feedback"
	"github.com/ent0n29/stemvoice/internal/host"
	"github.com/ent0n29/stemvoice/internal/httpapi"
	"github.com/ent0n29/stemvoice/internal/library"
	"github.com/ent0n29/stemvoice/internal/logging"
	"github.com/ent0n29/stemvoice/internal/observability"
	"github.com/ent0n29/stemvoice/internal/session"
	"github.com/ent0n29/stemvoice/internal/signals"
	"github.com/ent0n29/stemvoice/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := library.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("library store init failed")
	}
	defer store.Close()

	endpoint, err := transport.BuildURL(cfg.TranscribeBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid transcription base url")
	}

	bus := signals.NewBus()
	hub := host.NewHub(bus, metrics, logging.Component(logger, "host"))
	defer hub.Close()

	synth := newSynthesizer(cfg, hub, logger)
	speech := feedback.NewEmitter(synth, logging.Component(logger, "speech"), metrics)

	capture := audio.NewFFmpegCapture(audio.Config{
		Command:       cfg.CaptureCommand,
		InputFormat:   cfg.CaptureInputFormat,
		InputDevice:   cfg.CaptureInputDevice,
		OutputFormat:  cfg.CaptureOutputFormat,
		Codec:         cfg.CaptureCodec,
		SampleRate:    cfg.SampleRate,
		Channels:      cfg.Channels,
		ChunkInterval: cfg.ChunkInterval,
	})

	controller := session.NewController(session.Config{
		Endpoint:          endpoint,
		IdleTimeout:       cfg.IdleTimeout,
		TranscriptDisplay: cfg.TranscriptDisplay,
		SpeechCooldown:    cfg.SpeechCooldown,
		ConnectTimeout:    cfg.ConnectTimeout,
	}, session.Deps{
		Capture: capture,
		Dialer:  transport.NewWSDialer(cfg.ConnectTimeout, logging.Component(logger, "transport")),
		Host:    hub,
		Speech:  speech,
		Library: store,
		Bus:     bus,
		Metrics: metrics,
		Logger:  logging.Component(logger, "session"),
	})
	defer controller.Close()

	api := httpapi.New(cfg, controller, hub, store, metrics, logging.Component(logger, "http"))
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info().Str("addr", cfg.BindAddr).Str("transcribe", endpoint).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutdown signal received")

	controller.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	logger.Info().Msg("shutdown complete")
}

func newSynthesizer(cfg config.Config, hub *host.Hub, logger zerolog.Logger) feedback.Synthesizer {
	switch cfg.SpeechProvider {
	case "host":
		logger.Info().Msg("spoken feedback: host UI")
		return hub
	case "command":
		synth, err := feedback.NewCommandSynthesizer(cfg.SpeechCommand, cfg.SpeechVoice, logging.Component(logger, "speech"))
		if err != nil {
			logger.Warn().Err(err).Msg("speech command unavailable; spoken feedback disabled")
			return feedback.NopSynthesizer{}
		}
		logger.Info().Str("command", cfg.SpeechCommand).Msg("spoken feedback: local command")
		return synth
	default:
		logger.Info().Msg("spoken feedback disabled")
		return feedback.NopSynthesizer{}
	}
}
