// Command ingest-batch runs the pipeline over every invoice document in a
// directory, with bounded parallelism, and prints a summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/craftbooks/invoice-ingest/constants"
	"github.com/craftbooks/invoice-ingest/internal/ai"
	"github.com/craftbooks/invoice-ingest/internal/common"
	"github.com/craftbooks/invoice-ingest/internal/dedup"
	"github.com/craftbooks/invoice-ingest/internal/extract"
	"github.com/craftbooks/invoice-ingest/internal/match"
	"github.com/craftbooks/invoice-ingest/internal/ocr"
	"github.com/craftbooks/invoice-ingest/internal/pipeline"
	"github.com/craftbooks/invoice-ingest/internal/repository"
	"github.com/craftbooks/invoice-ingest/internal/score"
	"github.com/craftbooks/invoice-ingest/internal/validate"
)

func main() {
	var (
		dir         = flag.String("dir", "", "directory with invoice documents (required)")
		companyStr  = flag.String("company", "", "company UUID (required)")
		autoApprove = flag.Bool("auto-approve", false, "import valid invoices without review")
		parallel    = flag.Int("parallel", 2, "concurrent pipeline runs")
	)
	flag.Parse()

	if *dir == "" || *companyStr == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest-batch --dir <path> --company <uuid> [--auto-approve] [--parallel n]")
		os.Exit(2)
	}
	companyID, err := uuid.Parse(*companyStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --company: %v\n", err)
		os.Exit(2)
	}
	if *parallel < 1 {
		*parallel = 1
	}

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

	ctx := context.Background()
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

	files, err := collectFiles(*dir)
	if err != nil {
		logger.Error("directory scan failed", "dir", *dir, "error", err)
		os.Exit(1)
	}
	logger.Info("batch start", "dir", *dir, "files", len(files), "parallel", *parallel)

	var imported, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallel)
	for _, path := range files {
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				logger.Error("read failed", "path", path, "error", err)
				failed.Add(1)
				return nil
			}
			res := orch.Run(gctx, pipeline.Submission{
				CompanyID:   companyID,
				Filename:    filepath.Base(path),
				MimeType:    mimeTypeOf(path),
				Data:        data,
				AutoApprove: *autoApprove,
			}, nil)
			switch {
			case res.Success:
				imported.Add(1)
			case res.Code == constants.CodeDuplicateFile || res.Code == constants.CodeDuplicateInvoice:
				logger.Warn("skipped duplicate", "path", path, "code", res.Code)
				skipped.Add(1)
			default:
				logger.Error("pipeline failed", "path", path, "code", res.Code, "error", res.Error)
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("batch done",
		"processed", imported.Load(),
		"skipped", skipped.Load(),
		"failed", failed.Load(),
	)
	if failed.Load() > 0 {
		os.Exit(1)
	}
}

// collectFiles returns the supported documents directly inside dir, skipping
// hidden files and subdirectories.
func collectFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if constants.IsAllowedMime(mimeTypeOf(e.Name())) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

func mimeTypeOf(path string) string {
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return mt
}
