package constants

// OCRStatus is the canonical lifecycle status for rows in ocr_results.
type OCRStatus string

// Stable values (store these exact strings in DB).
const (
	OCRStatusPending   OCRStatus = "pending"   // extraction completed, awaiting validation
	OCRStatusValidated OCRStatus = "validated" // validation passed, ready for import
	OCRStatusRejected  OCRStatus = "rejected"  // rejected by a human or automated decision
	OCRStatusImported  OCRStatus = "imported"  // invoice entity created; immutable from here
)

// Stage identifies a pipeline stage for progress reporting.
type Stage string

const (
	StageUpload         Stage = "upload"
	StageOCR            Stage = "ocr"
	StageValidation     Stage = "validation"
	StageSupplierMatch  Stage = "supplier_match"
	StageDuplicateCheck Stage = "duplicate_check"
	StageImport         Stage = "import"
	StageComplete       Stage = "complete"
	StageError          Stage = "error"
)

// DuplicateType grades how strongly a candidate matches a prior invoice.
type DuplicateType string

const (
	DuplicateExact         DuplicateType = "exact"
	DuplicateLikely        DuplicateType = "likely"
	DuplicatePossible      DuplicateType = "possible"
	DuplicateCrossSupplier DuplicateType = "cross_supplier"
)

// ExtractionStrategy names which extraction path produced a result.
type ExtractionStrategy string

const (
	StrategyPattern ExtractionStrategy = "pattern"
	StrategyAI      ExtractionStrategy = "ai"
)

// TaxType classifies a tax breakdown line.
type TaxType string

const (
	TaxStandard      TaxType = "standard"
	TaxReduced       TaxType = "reduced"
	TaxReverseCharge TaxType = "reverse_charge"
	TaxExempt        TaxType = "exempt"
)
