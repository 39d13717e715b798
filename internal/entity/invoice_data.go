package entity

import (
	"github.com/shopspring/decimal"

	"github.com/craftbooks/invoice-ingest/constants"
)

// UnknownInvoiceNumber is the sentinel stored when no invoice number could be
// extracted. Confidence scoring and validation key off this value.
const UnknownInvoiceNumber = "Unknown"

// UnknownSupplierName is the sentinel for an unextractable issuing party.
const UnknownSupplierName = "Unknown Supplier"

// StructuredInvoiceData is the canonical extraction output. Every extraction
// strategy produces this shape; unfound fields hold sentinel or zero values,
// never leave the struct partially constructed.
type StructuredInvoiceData struct {
	Supplier   SupplierInfo `json:"supplier"`
	Invoice    InvoiceInfo  `json:"invoice"`
	Totals     Totals       `json:"totals"`
	Items      []LineItem   `json:"items,omitempty"`
	References References   `json:"references,omitempty"`
}

type SupplierInfo struct {
	Name      string `json:"name"`
	VatID     string `json:"vat_id,omitempty"`
	TaxNumber string `json:"tax_number,omitempty"`
	IBAN      string `json:"iban,omitempty"`
	BIC       string `json:"bic,omitempty"`
	Address   string `json:"address,omitempty"`
}

type InvoiceInfo struct {
	Number       string `json:"number"`
	Date         string `json:"date"` // YYYY-MM-DD
	DueDate      string `json:"due_date,omitempty"`
	Currency     string `json:"currency"`
	PaymentTerms string `json:"payment_terms,omitempty"`
}

type Totals struct {
	Net   decimal.Decimal `json:"net"`
	Gross decimal.Decimal `json:"gross"`
	Taxes []TaxLine       `json:"taxes"`
}

type TaxLine struct {
	Rate   decimal.Decimal   `json:"rate"`
	Base   decimal.Decimal   `json:"base"`
	Amount decimal.Decimal   `json:"amount"`
	Type   constants.TaxType `json:"type,omitempty"`
}

type LineItem struct {
	Pos             int             `json:"pos,omitempty"`
	Description     string          `json:"description"`
	Qty             decimal.Decimal `json:"qty"`
	Unit            string          `json:"unit,omitempty"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent,omitempty"`
	Net             decimal.Decimal `json:"net"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	TaxAmount       decimal.Decimal `json:"tax_amount,omitempty"`
}

type References struct {
	ProjectID      string `json:"project_id,omitempty"`
	OrderID        string `json:"order_id,omitempty"`
	DeliveryNote   string `json:"delivery_note,omitempty"`
	CustomerNumber string `json:"customer_number,omitempty"`
}

// TaxTotal sums the tax amounts over all breakdown lines.
func (t Totals) TaxTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range t.Taxes {
		sum = sum.Add(line.Amount)
	}
	return sum
}

// HasInvoiceNumber reports whether a real (non-sentinel) number was extracted.
func (d *StructuredInvoiceData) HasInvoiceNumber() bool {
	return d.Invoice.Number != "" && d.Invoice.Number != UnknownInvoiceNumber
}
