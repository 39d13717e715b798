package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftbooks/invoice-ingest/constants"
	"github.com/craftbooks/invoice-ingest/internal/entity"
)

type invoiceStub struct {
	invoices []entity.Invoice
	err      error
}

func (s *invoiceStub) ListSince(context.Context, uuid.UUID, time.Time) ([]entity.Invoice, error) {
	return s.invoices, s.err
}

var (
	companyID  = uuid.New()
	supplierID = uuid.New()
	otherID    = uuid.New()
)

func priorInvoice() entity.Invoice {
	return entity.Invoice{
		ID:           uuid.New(),
		CompanyID:    companyID,
		SupplierID:   supplierID,
		Number:       "RE-2024-001",
		Date:         time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		GrossTotal:   decimal.RequireFromString("1190.00"),
		SupplierName: "Müller Elektrotechnik GmbH",
	}
}

func candidate() Candidate {
	return Candidate{
		SupplierID: supplierID,
		Number:     "RE-2024-001",
		Date:       time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Gross:      decimal.RequireFromString("1190.00"),
	}
}

func detect(t *testing.T, prior []entity.Invoice, cand Candidate) []entity.DuplicateWarning {
	t.Helper()
	d := NewDetector(&invoiceStub{invoices: prior}, nil)
	warnings, err := d.Detect(context.Background(), companyID, cand)
	require.NoError(t, err)
	return warnings
}

func TestDetect_ExactDuplicate(t *testing.T) {
	warnings := detect(t, []entity.Invoice{priorInvoice()}, candidate())

	require.Len(t, warnings, 1)
	assert.Equal(t, constants.DuplicateExact, warnings[0].DuplicateType)
	assert.Equal(t, 1.0, warnings[0].Confidence)
	assert.Equal(t, 0, warnings[0].Detail.DateDifferenceDays)
	assert.True(t, HasBlocking(warnings))
}

func TestDetect_ExactToleratesTinyDrift(t *testing.T) {
	cand := candidate()
	cand.Date = cand.Date.AddDate(0, 0, 1)
	cand.Gross = decimal.RequireFromString("1190.01")

	warnings := detect(t, []entity.Invoice{priorInvoice()}, cand)
	require.Len(t, warnings, 1)
	assert.Equal(t, constants.DuplicateExact, warnings[0].DuplicateType)
}

func TestDetect_NumberCaseAndSpacingInsensitive(t *testing.T) {
	cand := candidate()
	cand.Number = "  re-2024-001 "

	warnings := detect(t, []entity.Invoice{priorInvoice()}, cand)
	require.Len(t, warnings, 1)
	assert.Equal(t, constants.DuplicateExact, warnings[0].DuplicateType)
}

func TestDetect_SameNumberDriftedAmountIsLikely(t *testing.T) {
	cand := candidate()
	cand.Gross = decimal.RequireFromString("1250.00")

	warnings := detect(t, []entity.Invoice{priorInvoice()}, cand)
	require.Len(t, warnings, 1)
	assert.Equal(t, constants.DuplicateLikely, warnings[0].DuplicateType)
	assert.False(t, HasBlocking(warnings))
}

func TestDetect_DifferentNumberNearbyIsPossible(t *testing.T) {
	cand := candidate()
	cand.Number = "RE-2024-002"
	cand.Date = cand.Date.AddDate(0, 0, 3)
	cand.Gross = decimal.RequireFromString("1190.50")

	warnings := detect(t, []entity.Invoice{priorInvoice()}, cand)
	require.Len(t, warnings, 1)
	assert.Equal(t, constants.DuplicatePossible, warnings[0].DuplicateType)
}

func TestDetect_SameNumberOtherSupplierIsCrossSupplier(t *testing.T) {
	cand := candidate()
	cand.SupplierID = otherID

	warnings := detect(t, []entity.Invoice{priorInvoice()}, cand)
	require.Len(t, warnings, 1)
	assert.Equal(t, constants.DuplicateCrossSupplier, warnings[0].DuplicateType)
	assert.Equal(t, "Müller Elektrotechnik GmbH", warnings[0].Detail.ExistingSupplier)
}

func TestDetect_UnrelatedInvoiceNoWarning(t *testing.T) {
	cand := candidate()
	cand.Number = "RE-2024-099"
	cand.Date = cand.Date.AddDate(0, 1, 0)
	cand.Gross = decimal.RequireFromString("420.00")

	warnings := detect(t, []entity.Invoice{priorInvoice()}, cand)
	assert.Empty(t, warnings)
}

func TestDetect_NoSupplierSkipsCheck(t *testing.T) {
	cand := candidate()
	cand.SupplierID = uuid.Nil

	d := NewDetector(&invoiceStub{err: assert.AnError}, nil)
	warnings, err := d.Detect(context.Background(), companyID, cand)
	require.NoError(t, err) // source must not even be consulted
	assert.Empty(t, warnings)
}

func TestDetect_RankedByConfidence(t *testing.T) {
	exact := priorInvoice()
	likely := priorInvoice()
	likely.GrossTotal = decimal.RequireFromString("900.00")

	warnings := detect(t, []entity.Invoice{likely, exact}, candidate())
	require.Len(t, warnings, 2)
	assert.Equal(t, constants.DuplicateExact, warnings[0].DuplicateType)
	assert.Equal(t, constants.DuplicateLikely, warnings[1].DuplicateType)
}
