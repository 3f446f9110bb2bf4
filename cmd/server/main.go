package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/charlie-brunold/Hexpert/internal/ai"
	"github.com/charlie-brunold/Hexpert/internal/config"
	"github.com/charlie-brunold/Hexpert/internal/metrics"
	"github.com/charlie-brunold/Hexpert/internal/pipeline"
	"github.com/charlie-brunold/Hexpert/internal/responder"
	"github.com/charlie-brunold/Hexpert/internal/server"
	"github.com/charlie-brunold/Hexpert/internal/session"
)

const (
	serviceName    = "hexpert"
	serviceVersion = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional, defaults apply)")
	flag.Parse()

	// Load .env if present before reading configuration
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("address", cfg.Server.Address),
		slog.Int("flush_threshold", cfg.Audio.FlushThreshold),
		slog.Int("session_timeout", cfg.Audio.SessionTimeout),
		slog.String("transcription_model", cfg.OpenAI.TranscriptionModel),
		slog.String("generation_model", cfg.OpenAI.GenerationModel),
		slog.String("tts_model", cfg.OpenAI.TTSModel),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	promReg := prometheus.NewRegistry()
	appMetrics := metrics.NewMetrics(promReg)

	// Initialize session registry and start the idle sweeper
	registry := session.NewRegistry(logger, cfg.Audio.GetSessionTimeoutDuration())
	registry.Start(ctx)

	// Initialize the AI provider client
	aiClient, err := ai.NewClient(ai.Config{
		APIKey:             cfg.OpenAI.APIKey,
		BaseURL:            cfg.OpenAI.BaseURL,
		TranscriptionModel: cfg.OpenAI.TranscriptionModel,
		GenerationModel:    cfg.OpenAI.GenerationModel,
		TTSModel:           cfg.OpenAI.TTSModel,
		TTSVoice:           cfg.OpenAI.TTSVoice,
		Timeout:            cfg.OpenAI.GetRequestTimeoutDuration(),
	}, logger)
	if err != nil {
		logger.Error("Failed to create AI client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the responder
	answerer := responder.New(aiClient, logger)
	answerer.OnFallback = appMetrics.ResponderFallbacks.Inc

	// Initialize the HTTP/WebSocket server and the dispatch pipeline.
	// The server is the pipeline's events sink.
	srv := server.NewServer(cfg, logger, registry, appMetrics, promReg)

	dispatcher := pipeline.NewDispatcher(registry, aiClient, answerer, aiClient,
		srv, appMetrics, logger, pipeline.Config{
			FlushThreshold: cfg.Audio.FlushThreshold,
		})
	srv.SetDispatcher(dispatcher)

	// Evicted idle sessions get their connection closed too
	registry.OnEvict = srv.CloseSession

	// Start serving
	if err := srv.Start(); err != nil {
		logger.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("listen_address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop accepting new connections and close existing ones
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping server", slog.String("error", err.Error()))
	}

	// Drain in-flight transcription rounds and synthesis tasks
	dispatcher.Wait()

	// Stop the session sweeper
	registry.Stop()

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
