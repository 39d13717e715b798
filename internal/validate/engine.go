// Package validate checks completeness and arithmetic consistency of
// extracted invoice data against the owning company's policy. Validation is
// a pure function of its inputs so a human can edit the structured data and
// re-validate without re-running recognition.
package validate

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/craftbooks/invoice-ingest/constants"
	"github.com/craftbooks/invoice-ingest/internal/entity"
)

type Config struct {
	// RoundingTolerance bounds the accepted gross vs net+tax drift.
	RoundingTolerance decimal.Decimal
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.RoundingTolerance.IsZero() {
		cfg.RoundingTolerance = decimal.RequireFromString("0.02")
	}
	return &Engine{cfg: cfg}
}

// Validate applies hard rules (errors, block import) and soft rules
// (warnings, surfaced but non-blocking) to the structured data.
func (e *Engine) Validate(data *entity.StructuredInvoiceData, company *entity.Company) entity.ValidationResult {
	res := entity.ValidationResult{Valid: true}

	addError := func(format string, args ...any) {
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
		res.Valid = false
	}
	addWarning := func(format string, args ...any) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	if !data.HasInvoiceNumber() {
		addError("invoice number is missing")
	}
	invoiceDate, dateErr := time.Parse("2006-01-02", data.Invoice.Date)
	if dateErr != nil {
		addError("invoice date is missing or not a valid ISO date: %q", data.Invoice.Date)
	}
	if data.Supplier.Name == "" || data.Supplier.Name == entity.UnknownSupplierName {
		addError("supplier name could not be determined")
	}
	if !data.Totals.Gross.IsPositive() {
		addError("gross total must be positive, got %s", data.Totals.Gross)
	}
	if data.Totals.Net.IsNegative() {
		addError("net total must not be negative, got %s", data.Totals.Net)
	}
	if company != nil && company.RequireVAT && data.Supplier.VatID == "" && !isReverseCharge(data) {
		addError("company policy requires a supplier VAT id")
	}

	// arithmetic consistency: gross == net + sum(taxes.amount) within tolerance
	taxTotal := data.Totals.TaxTotal()
	if data.Totals.Gross.IsPositive() && data.Totals.Net.IsPositive() {
		drift := data.Totals.Gross.Sub(data.Totals.Net).Sub(taxTotal).Abs()
		if drift.GreaterThan(e.cfg.RoundingTolerance) {
			addWarning("gross %s does not equal net %s + taxes %s (off by %s)",
				data.Totals.Gross, data.Totals.Net, taxTotal, drift)
		}
	}

	if company != nil && company.RequireVAT && len(data.Totals.Taxes) == 0 {
		addWarning("company policy expects VAT but the invoice carries no tax lines")
	}

	for i, tax := range data.Totals.Taxes {
		if tax.Rate.IsNegative() || tax.Rate.GreaterThan(decimal.NewFromInt(100)) {
			addWarning("tax line %d has an implausible rate %s%%", i+1, tax.Rate)
		}
		if tax.Type != constants.TaxReverseCharge && tax.Type != constants.TaxExempt && !tax.Amount.IsPositive() {
			addWarning("tax line %d has a non-positive amount %s", i+1, tax.Amount)
		}
	}

	if data.Invoice.DueDate == "" {
		addWarning("no due date found")
	} else if dueDate, err := time.Parse("2006-01-02", data.Invoice.DueDate); err != nil {
		addWarning("due date %q is not a valid ISO date", data.Invoice.DueDate)
	} else if dateErr == nil && dueDate.Before(invoiceDate) {
		addWarning("due date %s lies before the invoice date %s", data.Invoice.DueDate, data.Invoice.Date)
	}

	if company != nil && company.DefaultCurrency != "" && data.Invoice.Currency != company.DefaultCurrency {
		addWarning("invoice currency %s differs from the company default %s",
			data.Invoice.Currency, company.DefaultCurrency)
	}

	netFromItems := decimal.Zero
	for _, it := range data.Items {
		netFromItems = netFromItems.Add(it.Net)
	}
	if len(data.Items) > 0 && data.Totals.Net.IsPositive() {
		if netFromItems.Sub(data.Totals.Net).Abs().GreaterThan(e.cfg.RoundingTolerance) {
			addWarning("line items sum to %s but the net total is %s", netFromItems, data.Totals.Net)
		}
	}

	res.CalculatedTotals = &entity.CalculatedTotals{
		NetFromItems:     netFromItems,
		TaxFromBreakdown: taxTotal,
	}
	return res
}

func isReverseCharge(data *entity.StructuredInvoiceData) bool {
	for _, tax := range data.Totals.Taxes {
		if tax.Type == constants.TaxReverseCharge {
			return true
		}
	}
	return false
}
