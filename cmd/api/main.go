package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nyashahama/climate-risk-backend/internal/ai"
	"github.com/nyashahama/climate-risk-backend/internal/api"
	"github.com/nyashahama/climate-risk-backend/internal/config"
	"github.com/nyashahama/climate-risk-backend/internal/events"
	"github.com/nyashahama/climate-risk-backend/internal/observability"
	"github.com/nyashahama/climate-risk-backend/internal/pipeline"
	"github.com/nyashahama/climate-risk-backend/internal/worker"
)

// serviceName is the name reported by the gRPC health service.
const serviceName = "climate-risk"

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	// JSON in production, text in development. LOG_LEVEL overrides the level.
	logger := observability.NewLogger(os.Stdout, os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// ── Config ────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	// Rebuild now that .env values are visible.
	logger = observability.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("config loaded", "env", cfg.Env, "port", cfg.Port)

	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	// ── AI ────────────────────────────────────────────────────────────────────
	// OpenAI is primary. Anthropic is the fallback when ANTHROPIC_API_KEY is
	// also set. A missing OpenAI key is not fatal: runs fail with the API-key
	// alert until one is configured.
	httpClient := &http.Client{Timeout: cfg.ModelTimeout}
	var completer ai.Completer = ai.NewOpenAIClient(httpClient, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	switch {
	case cfg.OpenAIAPIKey != "" && cfg.AnthropicAPIKey != "":
		secondary := ai.NewAnthropicClient(httpClient, cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.AnthropicModel)
		completer = ai.NewFallbackCompleter(completer, secondary, logger)
		logger.Info("ai: using OpenAI with Anthropic fallback", "model", cfg.OpenAIModel)
	case cfg.OpenAIAPIKey == "" && cfg.AnthropicAPIKey != "":
		completer = ai.NewAnthropicClient(httpClient, cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.AnthropicModel)
		logger.Info("ai: using Anthropic only", "model", cfg.AnthropicModel)
	case cfg.OpenAIAPIKey == "":
		logger.Warn("ai: OPENAI_API_KEY is not set, every run will fail until it is")
	default:
		logger.Info("ai: using OpenAI only", "model", cfg.OpenAIModel)
	}

	// ── Events ────────────────────────────────────────────────────────────────
	var publisher events.Publisher
	if cfg.KafkaEnabled() {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		logger.Info("events: publishing to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		publisher = events.NewLogPublisher(logger)
		logger.Info("events: KAFKA_BROKERS not set, completed runs are only logged")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("events: close publisher", "error", err)
		}
	}()

	// ── Worker ────────────────────────────────────────────────────────────────
	runner := worker.NewRunner(worker.NewJob(publisher, logger), worker.RunnerConfig{
		Workers:    cfg.EventWorkers,
		QueueSize:  cfg.EventQueueSize,
		MaxRetries: cfg.EventMaxRetries,
	}, metrics, clock, logger)

	// ── Pipeline ──────────────────────────────────────────────────────────────
	orchestrator := pipeline.New(completer, runner, metrics, clock, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.NewServer(orchestrator, api.Config{
		Env:            cfg.Env,
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RunBudget(),
	}, logger)

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RunBudget() + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// ── gRPC health ───────────────────────────────────────────────────────────
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	// ── Listener ──────────────────────────────────────────────────────────────
	// One port: HTTP/2 with a gRPC content-type goes to gRPC, everything else
	// to the HTTP router.
	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	mux := cmux.New(lis)
	grpcL := mux.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := mux.Match(cmux.Any())

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerDone := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(workerDone)
	}()

	serverErr := make(chan error, 3)
	go func() {
		if err := grpcSrv.Serve(grpcL); err != nil && !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, cmux.ErrListenerClosed) {
			serverErr <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		if err := srv.Serve(httpL); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, cmux.ErrListenerClosed) {
			serverErr <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		logger.Info("server listening", "addr", lis.Addr().String())
		if err := mux.Serve(); err != nil && !errors.Is(err, net.ErrClosed) {
			serverErr <- fmt.Errorf("cmux: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	healthSrv.Shutdown()

	// Give in-flight runs time to finish their model calls.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RunBudget())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	grpcSrv.GracefulStop()
	_ = lis.Close()

	// The runner exits once ctx is cancelled (already done).
	<-workerDone
	logger.Info("shutdown complete")
	return nil
}
