package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/craftbooks/invoice-ingest/constants"
)

// OCRResult is the persisted unit of work for one submitted document.
type OCRResult struct {
	ID               uuid.UUID              `json:"id"`
	CompanyID        uuid.UUID              `json:"company_id"`
	ContentHash      []byte                 `json:"content_hash"`
	Filename         string                 `json:"filename"`
	FileSize         int                    `json:"file_size"`
	MimeType         string                 `json:"mime_type"`
	OCREngine        string                 `json:"ocr_engine"`
	OCREngineVersion string                 `json:"ocr_engine_version,omitempty"`
	ExtractedText    string                 `json:"extracted_text"`
	StructuredData   *StructuredInvoiceData `json:"structured_data"`
	Confidence       ConfidenceScores       `json:"confidence_scores"`
	Status           constants.OCRStatus    `json:"status"`
	ValidationNotes  string                 `json:"validation_notes,omitempty"`
	ProcessingErrors []string               `json:"processing_errors,omitempty"`
	DuplicateOf      *uuid.UUID             `json:"duplicate_of,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	ValidatedAt      *time.Time             `json:"validated_at,omitempty"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// Company is the tenant context a submission belongs to.
type Company struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	VatID           string    `json:"vat_id,omitempty"`
	TaxNumber       string    `json:"tax_number,omitempty"`
	RequireVAT      bool      `json:"require_vat"`
	DefaultCurrency string    `json:"default_currency"`
}

// Supplier is a known issuing party on the company's roster.
type Supplier struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	Name      string    `json:"name"`
	VatID     string    `json:"vat_id,omitempty"`
	IBAN      string    `json:"iban,omitempty"`
	BIC       string    `json:"bic,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Invoice is the imported accounting entity derived from an OCRResult.
// Rows are immutable once written; accounting corrections supersede, they
// never update in place.
type Invoice struct {
	ID           uuid.UUID       `json:"id"`
	CompanyID    uuid.UUID       `json:"company_id"`
	SupplierID   uuid.UUID       `json:"supplier_id"`
	Number       string          `json:"number"`
	Date         time.Time       `json:"date"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	Currency     string          `json:"currency"`
	NetTotal     decimal.Decimal `json:"net_total"`
	GrossTotal   decimal.Decimal `json:"gross_total"`
	OCRResultID  *uuid.UUID      `json:"ocr_result_id,omitempty"`
	AutoApproved bool            `json:"auto_approved"`
	SupplierName string          `json:"supplier_name,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
