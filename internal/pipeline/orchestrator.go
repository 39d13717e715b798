// Package pipeline drives the staged ingestion of one invoice document:
// company context, file-hash dedup, recognition, extraction (model-backed
// with deterministic fallback), scoring, validation, supplier resolution,
// duplicate classification, and the import decision.
package pipeline

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/craftbooks/invoice-ingest/constants"
	"github.com/craftbooks/invoice-ingest/internal/ai"
	"github.com/craftbooks/invoice-ingest/internal/common"
	"github.com/craftbooks/invoice-ingest/internal/dedup"
	"github.com/craftbooks/invoice-ingest/internal/entity"
	"github.com/craftbooks/invoice-ingest/internal/extract"
	"github.com/craftbooks/invoice-ingest/internal/match"
	"github.com/craftbooks/invoice-ingest/internal/ocr"
	"github.com/craftbooks/invoice-ingest/internal/repository"
	"github.com/craftbooks/invoice-ingest/internal/score"
	"github.com/craftbooks/invoice-ingest/internal/validate"
)

// Submission is one document handed to the pipeline.
type Submission struct {
	CompanyID   uuid.UUID
	Filename    string
	MimeType    string
	Data        []byte
	AutoApprove bool
}

type Config struct {
	// RunTimeout bounds one full pipeline run. Zero means 2 minutes.
	RunTimeout time.Duration
}

// Orchestrator owns the stage machine. Each run is single-threaded and
// independent; concurrent runs only meet through the repositories.
type Orchestrator struct {
	cfg       Config
	engine    ocr.Engine
	pattern   *extract.Extractor
	model     ai.InvoiceExtractor // nil disables the model strategy
	scorer    *score.Scorer
	validator *validate.Engine
	resolver  *match.Resolver
	detector  *dedup.Detector
	results   repository.OCRResultRepository
	companies repository.CompanyRepository
	committer *Committer
	audit     repository.AuditRepository
	log       *slog.Logger
}

func NewOrchestrator(
	cfg Config,
	engine ocr.Engine,
	pattern *extract.Extractor,
	model ai.InvoiceExtractor,
	scorer *score.Scorer,
	validator *validate.Engine,
	resolver *match.Resolver,
	detector *dedup.Detector,
	results repository.OCRResultRepository,
	companies repository.CompanyRepository,
	committer *Committer,
	audit repository.AuditRepository,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		engine:    engine,
		pattern:   pattern,
		model:     model,
		scorer:    scorer,
		validator: validator,
		resolver:  resolver,
		detector:  detector,
		results:   results,
		companies: companies,
		committer: committer,
		audit:     audit,
		log:       logger,
	}
}

// Run processes one submission to a terminal result. It never returns an
// error: every failure mode is mapped into the result's Error/Code fields.
func (o *Orchestrator) Run(ctx context.Context, sub Submission, progress ProgressFunc) (result *entity.PipelineImportResult) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()

	rep := newReporter(progress)
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("pipeline.run.panic", "panic", r, "filename", sub.Filename)
			rep.report(constants.StageError, rep.last, "internal error", nil)
			result = &entity.PipelineImportResult{
				Success: false,
				Error:   fmt.Sprintf("internal error: %v", r),
				Code:    constants.CodeInternal,
			}
		}
	}()

	start := time.Now()
	o.log.Info("pipeline.run.start",
		"company_id", sub.CompanyID,
		"filename", sub.Filename,
		"mime_type", sub.MimeType,
		"size", len(sub.Data),
		"auto_approve", sub.AutoApprove,
	)

	// tenant context is resolved before any extraction work
	company, err := o.companies.GetByID(ctx, sub.CompanyID)
	if err != nil {
		if errors.Is(err, common.ErrCompanyNotFound) {
			return o.fail(rep, constants.StageError, constants.CodeCompanyNotFound,
				fmt.Sprintf("company %s not found", sub.CompanyID))
		}
		return o.fail(rep, constants.StageError, constants.CodeInternal, err.Error())
	}

	if !constants.IsAllowedMime(sub.MimeType) {
		return o.fail(rep, constants.StageUpload, constants.CodeValidationError,
			fmt.Sprintf("unsupported content type %q", sub.MimeType))
	}
	rep.report(constants.StageUpload, progressUpload, "file received", nil)

	// content-hash fast path: a byte-identical re-upload never reaches the
	// recognition engine
	hash := sha256.Sum256(sub.Data)
	prior, err := o.results.FindByContentHash(ctx, company.ID, hash[:])
	if err != nil {
		return o.fail(rep, constants.StageError, constants.CodeInternal, err.Error())
	}
	if prior != nil {
		res := o.fail(rep, constants.StageUpload, constants.CodeDuplicateFile,
			fmt.Sprintf("identical file already processed as %s", prior.ID))
		res.OCRResultID = &prior.ID
		return res
	}

	rec, err := o.engine.Recognize(ctx, sub.Data, sub.MimeType)
	if err != nil {
		code := common.CodeOf(err)
		if code == "" {
			code = constants.CodeEngineUnavailable
		}
		return o.fail(rep, constants.StageOCR, code, err.Error())
	}
	rep.report(constants.StageOCR, progressOCR, "text recognized", nil)

	data, strategy := o.extractFields(ctx, sub, rec.Text, company)
	scores := o.scorer.Score(data, strategy)
	quality := score.TextQuality(rec.Text)
	rep.report(constants.StageOCR, progressExtraction, "fields extracted", map[string]any{
		"strategy":     strategy,
		"confidence":   scores.Overall,
		"text_quality": quality,
	})

	ocrRes := &entity.OCRResult{
		CompanyID:        company.ID,
		ContentHash:      hash[:],
		Filename:         sub.Filename,
		FileSize:         len(sub.Data),
		MimeType:         sub.MimeType,
		OCREngine:        rec.EngineName,
		OCREngineVersion: rec.EngineVersion,
		ExtractedText:    rec.Text,
		StructuredData:   data,
		Confidence:       scores,
		Status:           constants.OCRStatusPending,
		ProcessingErrors: rec.Warnings,
	}
	if quality < 0.35 {
		ocrRes.ProcessingErrors = append(ocrRes.ProcessingErrors,
			fmt.Sprintf("low text quality (%.2f), extraction may be unreliable", quality))
	}
	if err := o.results.Create(ctx, ocrRes); err != nil {
		return o.fail(rep, constants.StageError, constants.CodeInternal, err.Error())
	}
	o.appendAudit(ctx, company.ID, &ocrRes.ID, "extraction_completed", map[string]any{
		"strategy":     string(strategy),
		"confidence":   scores.Overall,
		"text_quality": quality,
		"engine":       rec.EngineName,
		"degraded":     rec.Degraded,
	})

	vr := o.validator.Validate(data, company)
	rep.report(constants.StageValidation, progressValidation, "validation finished", vr)
	if !vr.Valid {
		notes := strings.Join(vr.Errors, "; ")
		if err := o.results.UpdateStatus(ctx, ocrRes.ID, constants.OCRStatusPending, notes); err != nil {
			o.log.Warn("pipeline.run.notes_update_failed", "ocr_result_id", ocrRes.ID, "error", err)
		}
		o.appendAudit(ctx, company.ID, &ocrRes.ID, "validation_failed", map[string]any{"errors": vr.Errors})
		res := o.fail(rep, constants.StageValidation, constants.CodeValidationError,
			"validation failed: "+notes)
		res.OCRResultID = &ocrRes.ID
		res.ValidationResult = &vr
		return res
	}
	if err := o.results.UpdateStatus(ctx, ocrRes.ID, constants.OCRStatusValidated, strings.Join(vr.Warnings, "; ")); err != nil {
		return o.fail(rep, constants.StageError, constants.CodeInternal, err.Error())
	}

	matches, err := o.resolver.Resolve(ctx, company.ID, data.Supplier)
	if err != nil {
		return o.fail(rep, constants.StageError, constants.CodeInternal, err.Error())
	}
	var topMatch *entity.SupplierMatch
	if len(matches) > 0 {
		topMatch = &matches[0]
	}
	rep.report(constants.StageSupplierMatch, progressSupplier, "supplier resolved", topMatch)

	warnings, err := o.detectDuplicates(ctx, company.ID, data, topMatch)
	if err != nil {
		return o.fail(rep, constants.StageError, constants.CodeInternal, err.Error())
	}
	rep.report(constants.StageDuplicateCheck, progressDuplicate, "duplicate check finished", warnings)
	if blocking, ok := dedup.Blocking(warnings); ok {
		if err := o.results.MarkRejectedDuplicate(ctx, ocrRes.ID, blocking.ExistingInvoiceID,
			"exact duplicate of an imported invoice"); err != nil {
			o.log.Warn("pipeline.run.reject_update_failed", "ocr_result_id", ocrRes.ID, "error", err)
		}
		o.appendAudit(ctx, company.ID, &ocrRes.ID, "duplicate_blocked", map[string]any{
			"warnings":            len(warnings),
			"existing_invoice_id": blocking.ExistingInvoiceID,
		})
		res := o.fail(rep, constants.StageDuplicateCheck, constants.CodeDuplicateInvoice,
			"exact duplicate of an already imported invoice")
		res.OCRResultID = &ocrRes.ID
		res.DuplicateWarnings = warnings
		return res
	}

	result = &entity.PipelineImportResult{
		Success:           true,
		OCRResultID:       &ocrRes.ID,
		ValidationResult:  &vr,
		DuplicateWarnings: warnings,
	}
	if topMatch != nil {
		result.SupplierID = &topMatch.SupplierID
	}

	if !sub.AutoApprove {
		// stays at validated, awaiting a human decision
		rep.report(constants.StageComplete, progressComplete, "awaiting review", nil)
		o.log.Info("pipeline.run.done",
			"ocr_result_id", ocrRes.ID, "imported", false,
			"elapsed_ms", time.Since(start).Milliseconds())
		return result
	}

	rep.report(constants.StageImport, progressImport, "importing invoice", nil)
	outcome, err := o.committer.Commit(ctx, company, ocrRes, topMatch, true)
	if err != nil {
		code := constants.CodeImportFailed
		if errors.Is(err, common.ErrInvoiceExists) {
			code = constants.CodeDuplicateInvoice
		}
		// result stays validated; the caller may retry the import
		res := o.fail(rep, constants.StageImport, code, err.Error())
		res.OCRResultID = &ocrRes.ID
		res.ValidationResult = &vr
		res.DuplicateWarnings = warnings
		return res
	}

	result.InvoiceID = &outcome.InvoiceID
	result.SupplierID = &outcome.SupplierID
	result.SupplierWasCreated = outcome.SupplierWasCreated
	rep.report(constants.StageComplete, progressComplete, "invoice imported", nil)
	o.log.Info("pipeline.run.done",
		"ocr_result_id", ocrRes.ID,
		"invoice_id", outcome.InvoiceID,
		"imported", true,
		"elapsed_ms", time.Since(start).Milliseconds())
	return result
}

// extractFields tries the model strategy first when configured; any model
// failure silently downgrades to the deterministic extractor.
func (o *Orchestrator) extractFields(ctx context.Context, sub Submission, text string, company *entity.Company) (*entity.StructuredInvoiceData, constants.ExtractionStrategy) {
	if o.model != nil {
		data, _, err := o.model.ExtractInvoice(ctx, ai.ExtractRequest{
			OCRText:         text,
			FilenameHint:    sub.Filename,
			DefaultCurrency: company.DefaultCurrency,
		})
		if err == nil {
			return data, constants.StrategyAI
		}
		o.log.Warn("pipeline.extract.model_fallback", "filename", sub.Filename, "error", err)
	}
	return o.pattern.Extract(text), constants.StrategyPattern
}

func (o *Orchestrator) detectDuplicates(ctx context.Context, companyID uuid.UUID, data *entity.StructuredInvoiceData, topMatch *entity.SupplierMatch) ([]entity.DuplicateWarning, error) {
	if topMatch == nil {
		// without a resolved supplier the comparison is not meaningful
		return nil, nil
	}
	date, err := time.Parse("2006-01-02", data.Invoice.Date)
	if err != nil {
		// validation has already required a parseable date
		return nil, nil
	}
	return o.detector.Detect(ctx, companyID, dedup.Candidate{
		SupplierID: topMatch.SupplierID,
		Number:     data.Invoice.Number,
		Date:       date,
		Gross:      data.Totals.Gross,
	})
}

// fail emits a terminal status at the halting stage. Recoverable halts keep
// their stage; internal faults arrive here as StageError.
func (o *Orchestrator) fail(rep *reporter, stage constants.Stage, code, message string) *entity.PipelineImportResult {
	rep.report(stage, rep.last, message, nil)
	o.log.Warn("pipeline.run.failed", "stage", stage, "code", code, "error", message)
	return &entity.PipelineImportResult{
		Success: false,
		Error:   message,
		Code:    code,
	}
}

func (o *Orchestrator) appendAudit(ctx context.Context, companyID uuid.UUID, resultID *uuid.UUID, action string, detail map[string]any) {
	if o.audit == nil {
		return
	}
	err := o.audit.Append(ctx, repository.AuditEvent{
		CompanyID:   companyID,
		OCRResultID: resultID,
		Action:      action,
		Detail:      detail,
	})
	if err != nil {
		o.log.Warn("pipeline.audit.append_failed", "action", action, "error", err)
	}
}
