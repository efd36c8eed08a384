package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/21andrewchang/hermes/internal/api"
	"github.com/21andrewchang/hermes/internal/config"
	"github.com/21andrewchang/hermes/internal/docai"
	"github.com/21andrewchang/hermes/internal/extract"
	"github.com/21andrewchang/hermes/internal/llm"
	"github.com/21andrewchang/hermes/internal/match"
	"github.com/21andrewchang/hermes/internal/pipeline"
	"github.com/21andrewchang/hermes/internal/report"
	"github.com/21andrewchang/hermes/internal/repository"
	"github.com/21andrewchang/hermes/internal/storage"
	"github.com/21andrewchang/hermes/internal/worker"
	"github.com/21andrewchang/hermes/pkg/database"
	"github.com/21andrewchang/hermes/pkg/logging"
)

func main() {
	// Local development credentials; missing file is fine
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting invoice processing service",
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.Storage.BaseDir, 0755); err != nil {
		logger.Fatal("Failed to create storage directory", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories
	invoiceRepo := repository.NewInvoiceRepository(db.DB, cfg.Worker.MaxAttempts, logger)
	issueRepo := repository.NewIssueRepository(db.DB, logger)

	// Claims interrupted by a previous crash are orphans; no worker is
	// running yet, so everything in processing goes back on the queue.
	released, err := invoiceRepo.ReleaseStuck(ctx)
	if err != nil {
		logger.Fatal("Failed to release stuck invoices", zap.Error(err))
	}
	if released > 0 {
		logger.Info("Requeued invoices from interrupted runs", zap.Int("count", released))
	}

	// File storage
	fileStorage := storage.NewLocalFileStorage(cfg.Storage.BaseDir, logger)

	// External clients
	docaiClient, err := docai.NewClient(ctx, docai.Config{
		ProjectID:   cfg.DocAI.ProjectID,
		Location:    cfg.DocAI.Location,
		ProcessorID: cfg.DocAI.ProcessorID,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Document AI client", zap.Error(err))
	}
	defer docaiClient.Close()

	llmClient := llm.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, logger)

	// Pipeline
	enricher := extract.NewEnricher(llmClient, logger)
	matcher := match.NewMatcher(llmClient, logger)
	orchestrator := pipeline.NewOrchestrator(
		fileStorage,
		docaiClient,
		enricher,
		matcher,
		invoiceRepo,
		issueRepo,
		cfg.Worker.StageTimeout,
		logger,
	)

	// Background extraction queue
	queueWorker := worker.NewQueueWorker(worker.QueueWorkerConfig{
		PollInterval:   cfg.Worker.PollInterval,
		BatchSize:      cfg.Worker.BatchSize,
		ProcessTimeout: cfg.Worker.ProcessTimeout,
	}, invoiceRepo, orchestrator, logger)

	manager := worker.NewManager(logger)
	manager.Register(queueWorker)
	if err := manager.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}
	defer manager.StopAll()

	// HTTP server
	handlers := api.NewHandlers(
		invoiceRepo,
		issueRepo,
		fileStorage,
		queueWorker,
		report.NewExporter(logger),
		logger,
	)
	server := api.NewServer(api.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handlers, logger)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
