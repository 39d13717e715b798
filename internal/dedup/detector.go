// Package dedup classifies a candidate invoice against previously imported
// invoices. Classification is graded; only the exact tier blocks an import,
// everything else is surfaced as a warning for the reviewer.
package dedup

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/craftbooks/invoice-ingest/constants"
	"github.com/craftbooks/invoice-ingest/internal/entity"
)

// tier thresholds
var (
	tightAmountTolerance = decimal.RequireFromString("0.01")
	nearAmountTolerance  = decimal.RequireFromString("1.00")
)

const (
	tightDateToleranceDays = 1
	nearDateToleranceDays  = 7
	// LookbackDays bounds how far back prior invoices are compared.
	LookbackDays = 400
)

// Candidate is the identity of the invoice about to be imported.
type Candidate struct {
	SupplierID uuid.UUID
	Number     string
	Date       time.Time
	Gross      decimal.Decimal
}

// InvoiceSource lists prior imported invoices in the comparison window.
type InvoiceSource interface {
	ListSince(ctx context.Context, companyID uuid.UUID, since time.Time) ([]entity.Invoice, error)
}

type Detector struct {
	invoices InvoiceSource
	now      func() time.Time
	log      *slog.Logger
}

func NewDetector(invoices InvoiceSource, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{invoices: invoices, now: time.Now, log: logger}
}

// Detect classifies the candidate against the company's prior invoices.
// A zero supplier id skips the check entirely: without a resolved supplier
// the comparison is not meaningful.
func (d *Detector) Detect(ctx context.Context, companyID uuid.UUID, cand Candidate) ([]entity.DuplicateWarning, error) {
	if cand.SupplierID == uuid.Nil {
		return nil, nil
	}
	since := d.now().AddDate(0, 0, -LookbackDays)
	prior, err := d.invoices.ListSince(ctx, companyID, since)
	if err != nil {
		return nil, err
	}

	var warnings []entity.DuplicateWarning
	for i := range prior {
		if w, ok := classify(cand, &prior[i]); ok {
			warnings = append(warnings, w)
		}
	}
	sort.SliceStable(warnings, func(i, j int) bool {
		return warnings[i].Confidence > warnings[j].Confidence
	})

	d.log.Debug("dedup.detect.done",
		"company_id", companyID,
		"supplier_id", cand.SupplierID,
		"number", cand.Number,
		"prior", len(prior),
		"warnings", len(warnings),
	)
	return warnings, nil
}

// HasBlocking reports whether any warning is of the exact tier.
func HasBlocking(warnings []entity.DuplicateWarning) bool {
	_, ok := Blocking(warnings)
	return ok
}

// Blocking returns the first exact-tier warning, if any.
func Blocking(warnings []entity.DuplicateWarning) (entity.DuplicateWarning, bool) {
	for _, w := range warnings {
		if w.DuplicateType == constants.DuplicateExact {
			return w, true
		}
	}
	return entity.DuplicateWarning{}, false
}

func classify(cand Candidate, prior *entity.Invoice) (entity.DuplicateWarning, bool) {
	sameSupplier := prior.SupplierID == cand.SupplierID
	sameNumber := numbersEqual(cand.Number, prior.Number)
	dateDiff := dateDiffDays(cand.Date, prior.Date)
	amountDiff := cand.Gross.Sub(prior.GrossTotal).Abs()

	var (
		dupType    constants.DuplicateType
		confidence float64
	)
	switch {
	case sameSupplier && sameNumber &&
		dateDiff <= tightDateToleranceDays &&
		amountDiff.LessThanOrEqual(tightAmountTolerance):
		dupType, confidence = constants.DuplicateExact, 1.0

	case sameSupplier && sameNumber:
		// number reuse with drifting date or amount: a correction or a misread
		dupType, confidence = constants.DuplicateLikely, 0.8

	case sameSupplier &&
		dateDiff <= nearDateToleranceDays &&
		amountDiff.LessThanOrEqual(nearAmountTolerance):
		dupType, confidence = constants.DuplicatePossible, 0.6

	case !sameSupplier && sameNumber &&
		dateDiff <= nearDateToleranceDays &&
		amountDiff.LessThanOrEqual(tightAmountTolerance):
		// same document resolved to a different supplier on a prior run
		dupType, confidence = constants.DuplicateCrossSupplier, 0.5

	default:
		return entity.DuplicateWarning{}, false
	}

	return entity.DuplicateWarning{
		ExistingInvoiceID: prior.ID,
		DuplicateType:     dupType,
		Confidence:        confidence,
		Detail: entity.DuplicateDetail{
			ExistingNumber:     prior.Number,
			ExistingDate:       prior.Date.Format("2006-01-02"),
			ExistingAmount:     prior.GrossTotal,
			ExistingSupplier:   prior.SupplierName,
			DateDifferenceDays: dateDiff,
			AmountDifference:   amountDiff,
		},
	}, true
}

func numbersEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func dateDiffDays(a, b time.Time) int {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}
