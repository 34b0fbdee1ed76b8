// TokenScope server: evidence-first risk scans for fungible tokens on Base.
// Serves the HTTP API, runs the scan queue worker, and wires the chain,
// explorer, DEX, honeypot, holders, and LLM providers from the environment.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/joho/godotenv"

	"github.com/tokenscope/tokenscope/pkg/api"
	"github.com/tokenscope/tokenscope/pkg/cleanup"
	"github.com/tokenscope/tokenscope/pkg/config"
	"github.com/tokenscope/tokenscope/pkg/database"
	"github.com/tokenscope/tokenscope/pkg/llm"
	"github.com/tokenscope/tokenscope/pkg/pipeline"
	"github.com/tokenscope/tokenscope/pkg/providers"
	"github.com/tokenscope/tokenscope/pkg/queue"
	"github.com/tokenscope/tokenscope/pkg/services"
	"github.com/tokenscope/tokenscope/pkg/tools"
	"github.com/tokenscope/tokenscope/pkg/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting TokenScope",
		"http_port", cfg.HTTPPort,
		"chain", config.Network,
		"scanner_version", version.Scanner,
		"score_version", version.Score,
		"llm", cfg.HasLLM(),
		"explorer", cfg.HasExplorer(),
		"holders", cfg.HasHolders())

	ctx := context.Background()

	// Database and migrations.
	dbClient, err := database.NewClient(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// Domain services.
	scanService := services.NewScanService(dbClient.DB())
	eventService := services.NewEventService(dbClient.DB())
	jobService := services.NewJobService(dbClient.DB())

	// Providers. Conditional clients stay nil when unconfigured; the tool
	// registry derives tool availability from what is wired.
	chainClient, err := providers.NewChainClient(cfg.ChainRPCURL)
	if err != nil {
		slog.Error("Failed to dial chain RPC", "error", err)
		os.Exit(1)
	}
	defer chainClient.Close()

	deps := tools.Deps{
		Chain:    chainClient,
		Dex:      providers.NewDexClient(cfg.DexBaseURL, config.Network),
		Honeypot: providers.NewHoneypotClient(cfg.HoneypotBaseURL, cfg.HoneypotAPIKey, config.ChainID),
		Config:   cfg,
	}
	if cfg.HasExplorer() {
		deps.Explorer = providers.NewExplorerClient(cfg.ExplorerBaseURL, cfg.ExplorerAPIKey, config.ChainID)
	}
	if cfg.HasHolders() {
		deps.Holders = providers.NewHoldersClient(cfg.HoldersEndpoint, cfg.HoldersToken, config.Network)
	}
	registry := tools.NewRegistry(deps)

	// LLM planner, assessor, and chat run only with an API key; the runner
	// falls back to the baseline plan and deterministic assessment without.
	var (
		planner  pipeline.PlanBuilder
		assessor pipeline.AssessmentProducer
		chat     api.ChatProvider
	)
	if cfg.HasLLM() {
		llmClient := llm.NewClient(cfg.LLMAPIKey, cfg.LLMBaseURL)
		planner = llm.NewPlanner(llmClient, cfg.LLMModel, cfg.LLMFallbackModel)
		assessor = llm.NewAssessor(llmClient, cfg.LLMModel, cfg.LLMFallbackModel)
		chat = services.NewChatService(scanService, llmClient, cfg.LLMModel)
		slog.Info("LLM configured", "model", cfg.LLMModel, "fallback_model", cfg.LLMFallbackModel)
	} else {
		slog.Warn("No LLM API key; planning and assessment run in fallback mode")
	}

	runner := pipeline.NewRunner(scanService, eventService, registry, planner, assessor, logger)
	worker := queue.NewWorker(jobService, runner, logger)

	// Drain any jobs left pending by a previous process.
	worker.Trigger()

	var retention *cleanup.Service
	if cfg.RetentionDays > 0 {
		retention = cleanup.NewService(scanService, cfg.RetentionDays, time.Hour)
		retention.Start(ctx)
	}

	// HTTP server.
	server := api.NewServer(scanService, eventService, jobService, worker, chat,
		chainClient, dbClient, cfg.CacheTTLSeconds)
	e := echo.New()
	server.RegisterRoutes(e)

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Stop accepting requests, then let the worker finish its current drain.
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if retention != nil {
		retention.Stop()
	}

	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker drained")
	case <-time.After(30 * time.Second):
		slog.Warn("Worker shutdown timeout exceeded; in-flight scan left running")
	}

	slog.Info("Shutdown complete")
}
