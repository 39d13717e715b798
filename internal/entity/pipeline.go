package entity

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/craftbooks/invoice-ingest/constants"
)

// SupplierMatch is one ranked candidate from supplier resolution. Transient,
// computed per resolution call, not persisted.
type SupplierMatch struct {
	SupplierID  uuid.UUID `json:"supplier_id"`
	MatchScore  float64   `json:"match_score"`
	MatchReason string    `json:"match_reason"`
	Supplier    *Supplier `json:"supplier,omitempty"`
}

// DuplicateWarning classifies a candidate invoice against a prior import.
type DuplicateWarning struct {
	ExistingInvoiceID uuid.UUID               `json:"existing_invoice_id"`
	DuplicateType     constants.DuplicateType `json:"duplicate_type"`
	Confidence        float64                 `json:"confidence"`
	Detail            DuplicateDetail         `json:"detail"`
}

type DuplicateDetail struct {
	ExistingNumber     string          `json:"existing_number"`
	ExistingDate       string          `json:"existing_date"`
	ExistingAmount     decimal.Decimal `json:"existing_amount"`
	ExistingSupplier   string          `json:"existing_supplier"`
	DateDifferenceDays int             `json:"date_difference_days"`
	AmountDifference   decimal.Decimal `json:"amount_difference"`
}

// PipelineStatus is a transient progress report emitted to an observer during
// a single pipeline run; never persisted.
type PipelineStatus struct {
	Stage    constants.Stage `json:"stage"`
	Progress int             `json:"progress"` // 0..100
	Message  string          `json:"message"`
	Details  any             `json:"details,omitempty"`
}

// ValidationResult is the outcome of running the validation engine over a
// StructuredInvoiceData in a company context.
type ValidationResult struct {
	Valid            bool              `json:"valid"`
	Errors           []string          `json:"errors"`
	Warnings         []string          `json:"warnings"`
	CalculatedTotals *CalculatedTotals `json:"calculated_totals,omitempty"`
}

type CalculatedTotals struct {
	NetFromItems     decimal.Decimal `json:"net_from_items"`
	TaxFromBreakdown decimal.Decimal `json:"tax_from_breakdown"`
}

// PipelineImportResult is the terminal outcome of one pipeline run.
type PipelineImportResult struct {
	Success            bool               `json:"success"`
	OCRResultID        *uuid.UUID         `json:"ocr_result_id,omitempty"`
	InvoiceID          *uuid.UUID         `json:"invoice_id,omitempty"`
	SupplierID         *uuid.UUID         `json:"supplier_id,omitempty"`
	SupplierWasCreated bool               `json:"supplier_was_created,omitempty"`
	ValidationResult   *ValidationResult  `json:"validation_result,omitempty"`
	DuplicateWarnings  []DuplicateWarning `json:"duplicate_warnings,omitempty"`
	Error              string             `json:"error,omitempty"`
	Code               string             `json:"code,omitempty"`
}
