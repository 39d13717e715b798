package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftbooks/invoice-ingest/constants"
	"github.com/craftbooks/invoice-ingest/internal/common"
	"github.com/craftbooks/invoice-ingest/internal/entity"
)

type OCRResultRepository interface {
	Create(ctx context.Context, res *entity.OCRResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.OCRResult, error)
	// FindByContentHash returns the prior result for a byte-identical file,
	// or nil when the hash is unseen for this company.
	FindByContentHash(ctx context.Context, companyID uuid.UUID, hash []byte) (*entity.OCRResult, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status constants.OCRStatus, notes string) error
	// MarkRejectedDuplicate rejects a result and records which already
	// imported invoice it duplicates.
	MarkRejectedDuplicate(ctx context.Context, id uuid.UUID, duplicateOf uuid.UUID, notes string) error
	// UpdateStructuredData replaces the structured payload and confidence
	// after a human edit or a re-validation run.
	UpdateStructuredData(ctx context.Context, id uuid.UUID, data *entity.StructuredInvoiceData, scores entity.ConfidenceScores) error
	AppendProcessingError(ctx context.Context, id uuid.UUID, msg string) error
}

type ocrResultRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewOCRResultRepository(pool *pgxpool.Pool, logger *slog.Logger) OCRResultRepository {
	return &ocrResultRepository{pool: pool, logger: logger}
}

const ocrResultColumns = `id, company_id, content_hash, filename, file_size, mime_type,
	ocr_engine, ocr_engine_version, extracted_text, structured_data, confidence_scores,
	status, validation_notes, processing_errors, duplicate_of, created_at, validated_at, updated_at`

func (r *ocrResultRepository) Create(ctx context.Context, res *entity.OCRResult) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	now := time.Now().UTC()
	res.CreatedAt = now
	res.UpdatedAt = now

	structured, err := json.Marshal(res.StructuredData)
	if err != nil {
		return fmt.Errorf("marshal structured data: %w", err)
	}
	scores, err := json.Marshal(res.Confidence)
	if err != nil {
		return fmt.Errorf("marshal confidence scores: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO ocr_results (id, company_id, content_hash, filename, file_size, mime_type,
			ocr_engine, ocr_engine_version, extracted_text, structured_data, confidence_scores,
			status, validation_notes, processing_errors, duplicate_of, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		res.ID, res.CompanyID, res.ContentHash, res.Filename, res.FileSize, res.MimeType,
		res.OCREngine, res.OCREngineVersion, res.ExtractedText, structured, scores,
		res.Status, res.ValidationNotes, res.ProcessingErrors, res.DuplicateOf, res.CreatedAt, res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ocr result: %w", err)
	}

	r.logger.Debug("repository.ocr_results.created", "id", res.ID, "company_id", res.CompanyID)
	return nil
}

func (r *ocrResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.OCRResult, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+ocrResultColumns+` FROM ocr_results WHERE id = $1`, id)
	res, err := scanOCRResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return res, err
}

func (r *ocrResultRepository) FindByContentHash(ctx context.Context, companyID uuid.UUID, hash []byte) (*entity.OCRResult, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+ocrResultColumns+` FROM ocr_results WHERE company_id = $1 AND content_hash = $2
		 ORDER BY created_at LIMIT 1`, companyID, hash)
	res, err := scanOCRResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (r *ocrResultRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status constants.OCRStatus, notes string) error {
	var validatedAt *time.Time
	if status == constants.OCRStatusValidated {
		now := time.Now().UTC()
		validatedAt = &now
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE ocr_results
		SET status = $2, validation_notes = $3,
		    validated_at = COALESCE($4, validated_at),
		    updated_at = now()
		WHERE id = $1`, id, status, notes, validatedAt)
	if err != nil {
		return fmt.Errorf("update ocr result status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *ocrResultRepository) MarkRejectedDuplicate(ctx context.Context, id uuid.UUID, duplicateOf uuid.UUID, notes string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ocr_results
		SET status = 'rejected', duplicate_of = $2, validation_notes = $3, updated_at = now()
		WHERE id = $1`, id, duplicateOf, notes)
	if err != nil {
		return fmt.Errorf("mark ocr result rejected duplicate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *ocrResultRepository) UpdateStructuredData(ctx context.Context, id uuid.UUID, data *entity.StructuredInvoiceData, scores entity.ConfidenceScores) error {
	structured, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal structured data: %w", err)
	}
	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("marshal confidence scores: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE ocr_results
		SET structured_data = $2, confidence_scores = $3, updated_at = now()
		WHERE id = $1 AND status <> 'imported'`, id, structured, scoresJSON)
	if err != nil {
		return fmt.Errorf("update structured data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *ocrResultRepository) AppendProcessingError(ctx context.Context, id uuid.UUID, msg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE ocr_results
		SET processing_errors = array_append(processing_errors, $2), updated_at = now()
		WHERE id = $1`, id, msg)
	if err != nil {
		return fmt.Errorf("append processing error: %w", err)
	}
	return nil
}

func scanOCRResult(row pgx.Row) (*entity.OCRResult, error) {
	var (
		res        entity.OCRResult
		structured []byte
		scores     []byte
	)
	err := row.Scan(&res.ID, &res.CompanyID, &res.ContentHash, &res.Filename, &res.FileSize,
		&res.MimeType, &res.OCREngine, &res.OCREngineVersion, &res.ExtractedText,
		&structured, &scores, &res.Status, &res.ValidationNotes, &res.ProcessingErrors,
		&res.DuplicateOf, &res.CreatedAt, &res.ValidatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(structured) > 0 {
		res.StructuredData = &entity.StructuredInvoiceData{}
		if err := json.Unmarshal(structured, res.StructuredData); err != nil {
			return nil, fmt.Errorf("unmarshal structured data: %w", err)
		}
	}
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &res.Confidence); err != nil {
			return nil, fmt.Errorf("unmarshal confidence scores: %w", err)
		}
	}
	return &res, nil
}
