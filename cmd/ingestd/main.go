package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/craftbooks/invoice-ingest/internal/ai"
	"github.com/craftbooks/invoice-ingest/internal/async"
	"github.com/craftbooks/invoice-ingest/internal/common"
	"github.com/craftbooks/invoice-ingest/internal/dedup"
	"github.com/craftbooks/invoice-ingest/internal/export"
	"github.com/craftbooks/invoice-ingest/internal/extract"
	"github.com/craftbooks/invoice-ingest/internal/match"
	"github.com/craftbooks/invoice-ingest/internal/ocr"
	"github.com/craftbooks/invoice-ingest/internal/pipeline"
	"github.com/craftbooks/invoice-ingest/internal/repository"
	"github.com/craftbooks/invoice-ingest/internal/score"
	"github.com/craftbooks/invoice-ingest/internal/server"
	"github.com/craftbooks/invoice-ingest/internal/validate"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Connect(ctx, cfg.Database.DSN, logger)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	results := repository.NewOCRResultRepository(pool, logger)
	suppliers := repository.NewSupplierRepository(pool, logger)
	invoices := repository.NewInvoiceRepository(pool, logger)
	companies := repository.NewCompanyRepository(pool, logger)
	audit := repository.NewAuditRepository(pool, logger)

	engine, err := ocr.NewTesseractEngine(ocr.Config{
		Tesseract:        cfg.OCR.Tesseract,
		Languages:        cfg.OCR.Languages,
		FallbackLang:     cfg.OCR.FallbackLang,
		TessdataDir:      cfg.OCR.TessdataDir,
		ArtifactCacheDir: cfg.OCR.ArtifactCacheDir,
		Timeout:          cfg.OCR.Timeout,
	}, logger)
	if err != nil {
		logger.Error("recognition engine init failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = engine.Close() }()

	var model ai.InvoiceExtractor
	if cfg.AI.APIKey != "" {
		model = ai.NewClient(ai.Config{
			APIKey:          cfg.AI.APIKey,
			BaseURL:         cfg.AI.BaseURL,
			Model:           cfg.AI.Model,
			Temperature:     cfg.AI.Temperature,
			Timeout:         cfg.AI.Timeout,
			LenientOptional: true,
		}, logger)
		logger.Info("model extraction enabled", "model", cfg.AI.Model)
	} else {
		logger.Warn("no model API key configured, using pattern extraction only")
	}

	committer := pipeline.NewCommitter(suppliers, invoices, results, audit, logger)
	orch := pipeline.NewOrchestrator(
		pipeline.Config{RunTimeout: cfg.Pipeline.RunTimeout},
		engine,
		extract.NewExtractor(logger),
		model,
		score.NewScorer(),
		validate.NewEngine(validate.Config{RoundingTolerance: cfg.Pipeline.RoundingTolerance}),
		match.NewResolver(suppliers, match.Config{MinScore: cfg.Pipeline.MatchThreshold}, logger),
		dedup.NewDetector(invoices, logger),
		results,
		companies,
		committer,
		audit,
		logger,
	)

	queue := async.NewQueue(orch, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithRunTimeout(cfg.Pipeline.RunTimeout),
	)

	srv := server.New(server.Config{}, orch, queue, results, export.NewService(invoices, logger), logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}
