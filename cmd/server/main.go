package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/assistant"
	"github.com/cnrosu/yt-ai-summariser/internal/cache"
	"github.com/cnrosu/yt-ai-summariser/internal/config"
	"github.com/cnrosu/yt-ai-summariser/internal/conversation"
	"github.com/cnrosu/yt-ai-summariser/internal/detached"
	"github.com/cnrosu/yt-ai-summariser/internal/events"
	"github.com/cnrosu/yt-ai-summariser/internal/handler"
	"github.com/cnrosu/yt-ai-summariser/internal/jobapi"
	"github.com/cnrosu/yt-ai-summariser/internal/jobs"
	"github.com/cnrosu/yt-ai-summariser/internal/orchestrator"
	"github.com/cnrosu/yt-ai-summariser/internal/postprocess"
	"github.com/cnrosu/yt-ai-summariser/internal/scheduler"
	"github.com/cnrosu/yt-ai-summariser/internal/worker"
	"github.com/cnrosu/yt-ai-summariser/pkg/middleware"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	config.InitLogger(cfg)

	slog.Info("Starting transcript summariser service",
		"version", version,
		"storage_backend", cfg.StorageBackend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	store, err := openStorage(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer store.close()

	transcripts := cache.NewStore(store.entries)

	// Detached calls (kills, run cancels, save_qa) run on a bounded pool
	pool := worker.NewWorkerPool(cfg.WorkerPoolSize, cfg.WorkerQueueSize)
	pool.Start()
	breakers := detached.NewBreakers(cfg.BreakerFailureThreshold, cfg.BreakerSuccessThreshold, cfg.BreakerTimeout)
	dispatcher := detached.NewDispatcher(pool, breakers, cfg.DetachedRetry, cfg.DetachedAttemptTimeout)
	jobServerCalls := dispatcher.Remote("job_server")
	assistantCalls := dispatcher.Remote("assistant")

	// Remote collaborators
	jobClient := jobapi.NewClient(cfg.JobServerURL, jobapi.NewHTTPClient(cfg.JobServerTimeout))
	backend := assistant.NewOpenAI(assistant.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.AssistantTimeout,
	})
	if cfg.OpenAIAPIKey == "" || cfg.AssistantID == "" {
		slog.Warn("Assistant is not fully configured, conversation turns will fail",
			"has_api_key", cfg.OpenAIAPIKey != "",
			"has_assistant_id", cfg.AssistantID != "",
		)
	}

	registry := jobs.NewRegistry(jobClient, transcripts, jobServerCalls, cfg.StatusPollInterval)
	conversations := conversation.NewManager(
		backend,
		store.threads,
		store.turns,
		transcripts,
		jobClient,
		jobServerCalls,
		assistantCalls,
		conversation.Config{
			AssistantID:          cfg.AssistantID,
			PollInterval:         cfg.RunPollInterval,
			MaxTransportFailures: cfg.RunMaxTransportFailures,
		},
	)
	uploader := postprocess.NewUploader(postprocess.Config{
		URL:     cfg.PostProcessURL,
		Headers: cfg.PostProcessHeaders,
		Timeout: cfg.PostProcessTimeout,
		Retry:   cfg.PostProcessRetry,
		Ack:     cfg.PostProcessAck,
	})

	orch := orchestrator.New(orchestrator.Deps{
		Cache:         transcripts,
		Jobs:          registry,
		Conversations: conversations,
		Loader:        jobClient,
		Suggester:     backend,
		PostProcessor: uploader,
		Events:        events.NewHub(cfg.EventBufferSize),
	}, cfg.TurnTimeout)

	// Idle context reaper
	var reaper *scheduler.Scheduler
	if cfg.ReaperEnabled {
		reaper, err = scheduler.NewScheduler(orch, cfg.ReaperSchedule, cfg.ContextIdleTTL)
		if err != nil {
			slog.Error("Failed to create context reaper", "error", err)
			os.Exit(1)
		}
		reaper.Start(ctx)
	} else {
		slog.Info("Context reaper is disabled by configuration")
	}

	// Handlers
	contextHandler := handler.NewContextHandler(orch, cfg.EventsMaxWait)
	stats := func() handler.RuntimeStats {
		return handler.RuntimeStats{
			Contexts:      orch.Contexts(),
			ActiveJobs:    registry.Active(),
			QueuedCalls:   dispatcher.Queued(),
			CircuitStates: dispatcher.BreakerStates(),
		}
	}
	healthHandler := handler.NewHealthHandler(store.pinger, stats, cfg.StorageBackend, version)

	corsConfig := middleware.CORSConfig{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   cfg.CORSAllowedMethods,
		AllowedHeaders:   cfg.CORSAllowedHeaders,
		AllowCredentials: cfg.CORSAllowCredentials,
		MaxAge:           cfg.CORSMaxAge,
	}

	router := handler.NewRouter(contextHandler, healthHandler, corsConfig)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	go func() {
		slog.Info("Starting HTTP server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("Received shutdown signal, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if reaper != nil {
		slog.Info("Stopping context reaper...")
		reaper.Stop(shutdownCtx)
	}

	slog.Info("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Tearing down contexts queues job kills, so the dispatcher drains after it
	slog.Info("Tearing down contexts...")
	if err := orch.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Post-processing still running at shutdown", "error", err)
	}
	registry.Close()

	slog.Info("Draining detached calls...")
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		slog.Warn("Detached calls abandoned at shutdown", "error", err)
	}

	slog.Info("Transcript summariser service stopped")
}
