// Package score assigns per-field confidence to extracted invoice data.
// Scores are heuristics over plausibility, not calibrated probabilities;
// they drive the review UI and the auto-approve gate.
package score

import (
	"time"
	"unicode"

	"github.com/craftbooks/invoice-ingest/constants"
	"github.com/craftbooks/invoice-ingest/internal/entity"
)

// Field keys are the dotted paths into StructuredInvoiceData, matching the
// paths ConfidenceScores.Field is looked up with.
const (
	FieldInvoiceNumber = "invoice.number"
	FieldInvoiceDate   = "invoice.date"
	FieldSupplierName  = "supplier.name"
	FieldGrossTotal    = "totals.gross"
	FieldVatID         = "supplier.vat_id"
)

// AI replies already passed schema validation, so field presence carries a
// flat high baseline instead of the shape heuristics.
var aiBaselines = map[string]float64{
	FieldInvoiceNumber: 0.9,
	FieldInvoiceDate:   0.9,
	FieldSupplierName:  0.9,
	FieldGrossTotal:    0.9,
	FieldVatID:         0.95,
}

// earliest plausible invoice date; older documents are treated as misreads
var minInvoiceDate = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

type Scorer struct {
	now func() time.Time
}

func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// Score rates every scored field and the overall mean. The overall value is
// the mean of the populated (positive) field scores only, so a missing
// optional field does not drag the document down.
func (s *Scorer) Score(data *entity.StructuredInvoiceData, strategy constants.ExtractionStrategy) entity.ConfidenceScores {
	fields := map[string]float64{}
	if strategy == constants.StrategyAI {
		s.scoreAI(data, fields)
	} else {
		s.scorePattern(data, fields)
	}

	sum, n := 0.0, 0
	for _, v := range fields {
		if v > 0 {
			sum += v
			n++
		}
	}
	overall := 0.0
	if n > 0 {
		overall = sum / float64(n)
	}
	return entity.ConfidenceScores{Overall: overall, Fields: fields}
}

func (s *Scorer) scoreAI(data *entity.StructuredInvoiceData, fields map[string]float64) {
	if data.HasInvoiceNumber() {
		fields[FieldInvoiceNumber] = aiBaselines[FieldInvoiceNumber]
	} else {
		fields[FieldInvoiceNumber] = 0.3
	}
	if s.dateInPlausibleRange(data.Invoice.Date) {
		fields[FieldInvoiceDate] = aiBaselines[FieldInvoiceDate]
	} else {
		fields[FieldInvoiceDate] = 0.2
	}
	if data.Supplier.Name != "" && data.Supplier.Name != entity.UnknownSupplierName {
		fields[FieldSupplierName] = aiBaselines[FieldSupplierName]
	}
	if data.Totals.Gross.IsPositive() {
		fields[FieldGrossTotal] = aiBaselines[FieldGrossTotal]
	} else {
		fields[FieldGrossTotal] = 0.1
	}
	if data.Supplier.VatID != "" {
		fields[FieldVatID] = aiBaselines[FieldVatID]
	}
}

func (s *Scorer) scorePattern(data *entity.StructuredInvoiceData, fields map[string]float64) {
	if data.HasInvoiceNumber() && containsDigit(data.Invoice.Number) {
		fields[FieldInvoiceNumber] = 0.9
	} else {
		fields[FieldInvoiceNumber] = 0.3
	}

	if s.dateInPlausibleRange(data.Invoice.Date) {
		fields[FieldInvoiceDate] = 0.95
	} else {
		fields[FieldInvoiceDate] = 0.2
	}

	if name := data.Supplier.Name; name != entity.UnknownSupplierName && len(name) > 3 {
		fields[FieldSupplierName] = 0.8
	}

	if data.Totals.Gross.IsPositive() {
		fields[FieldGrossTotal] = 0.85
	} else {
		fields[FieldGrossTotal] = 0.1
	}

	if data.Supplier.VatID != "" {
		if vatIDShapeValid(data.Supplier.VatID) {
			fields[FieldVatID] = 0.95
		} else {
			fields[FieldVatID] = 0.4
		}
	}
}

// dateInPlausibleRange accepts ISO dates between 2020-01-01 and 30 days into
// the future; invoices are routinely dated slightly ahead.
func (s *Scorer) dateInPlausibleRange(iso string) bool {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return false
	}
	return !t.Before(minInvoiceDate) && !t.After(s.now().AddDate(0, 0, 30))
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// vatIDShapeValid checks the EU VAT ID shape: country prefix plus 8-12
// alphanumerics.
func vatIDShapeValid(id string) bool {
	if len(id) < 10 || len(id) > 14 {
		return false
	}
	if !unicode.IsUpper(rune(id[0])) || !unicode.IsUpper(rune(id[1])) {
		return false
	}
	for _, r := range id[2:] {
		if !unicode.IsDigit(r) && !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
