package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/craftbooks/invoice-ingest/constants"
	"github.com/craftbooks/invoice-ingest/internal/entity"
)

// ErrResultImmutable marks a revalidation attempt on an imported result.
var ErrResultImmutable = errors.New("ocr result is already imported and immutable")

// Revalidate supports the fix-and-retry loop: a human edits the structured
// data and the result is validated again without re-running recognition.
// A nil edit re-validates the stored data as-is.
func (o *Orchestrator) Revalidate(ctx context.Context, resultID uuid.UUID, edited *entity.StructuredInvoiceData) (*entity.ValidationResult, error) {
	res, err := o.results.GetByID(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if res.Status == constants.OCRStatusImported {
		return nil, fmt.Errorf("ocr result %s: %w", resultID, ErrResultImmutable)
	}
	company, err := o.companies.GetByID(ctx, res.CompanyID)
	if err != nil {
		return nil, err
	}

	data := res.StructuredData
	if edited != nil {
		data = edited
		scores := o.scorer.Score(data, constants.StrategyPattern)
		if err := o.results.UpdateStructuredData(ctx, resultID, data, scores); err != nil {
			return nil, err
		}
	}

	vr := o.validator.Validate(data, company)
	status := constants.OCRStatusPending
	notes := strings.Join(vr.Errors, "; ")
	if vr.Valid {
		status = constants.OCRStatusValidated
		notes = strings.Join(vr.Warnings, "; ")
	}
	if err := o.results.UpdateStatus(ctx, resultID, status, notes); err != nil {
		return nil, err
	}

	o.appendAudit(ctx, res.CompanyID, &resultID, "revalidated", map[string]any{
		"valid":  vr.Valid,
		"edited": edited != nil,
	})
	o.log.Info("pipeline.revalidate.done", "ocr_result_id", resultID, "valid", vr.Valid)
	return &vr, nil
}
