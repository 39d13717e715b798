package ai

import (
	"github.com/shopspring/decimal"

	"github.com/craftbooks/invoice-ingest/constants"
	"github.com/craftbooks/invoice-ingest/internal/entity"
)

// invoiceFields is the wire shape the model replies with. Money travels as
// decimal strings per the schema and is parsed here, never as floats.
type invoiceFields struct {
	SupplierName   string      `json:"supplier_name"`
	VatID          string      `json:"vat_id,omitempty"`
	TaxNumber      string      `json:"tax_number,omitempty"`
	IBAN           string      `json:"iban,omitempty"`
	BIC            string      `json:"bic,omitempty"`
	Address        string      `json:"address,omitempty"`
	InvoiceNumber  string      `json:"invoice_number"`
	InvoiceDate    string      `json:"invoice_date"`
	DueDate        string      `json:"due_date,omitempty"`
	Currency       string      `json:"currency"`
	PaymentTerms   string      `json:"payment_terms,omitempty"`
	NetTotal       string      `json:"net_total,omitempty"`
	GrossTotal     string      `json:"gross_total"`
	Taxes          []taxField  `json:"taxes,omitempty"`
	Items          []itemField `json:"items,omitempty"`
	ProjectRef     string      `json:"project_ref,omitempty"`
	OrderNumber    string      `json:"order_number,omitempty"`
	DeliveryNote   string      `json:"delivery_note,omitempty"`
	CustomerNumber string      `json:"customer_number,omitempty"`
}

type taxField struct {
	Rate   string `json:"rate"`
	Base   string `json:"base,omitempty"`
	Amount string `json:"amount"`
	Type   string `json:"type,omitempty"`
}

type itemField struct {
	Description string `json:"description"`
	Qty         string `json:"qty"`
	Unit        string `json:"unit,omitempty"`
	UnitPrice   string `json:"unit_price"`
	Net         string `json:"net"`
	TaxRate     string `json:"tax_rate,omitempty"`
}

func (f invoiceFields) toEntity() *entity.StructuredInvoiceData {
	data := &entity.StructuredInvoiceData{
		Supplier: entity.SupplierInfo{
			Name:      orDefault(f.SupplierName, entity.UnknownSupplierName),
			VatID:     f.VatID,
			TaxNumber: f.TaxNumber,
			IBAN:      f.IBAN,
			BIC:       f.BIC,
			Address:   f.Address,
		},
		Invoice: entity.InvoiceInfo{
			Number:       orDefault(f.InvoiceNumber, entity.UnknownInvoiceNumber),
			Date:         f.InvoiceDate,
			DueDate:      f.DueDate,
			Currency:     orDefault(f.Currency, "EUR"),
			PaymentTerms: f.PaymentTerms,
		},
		Totals: entity.Totals{
			Net:   parseDecimal(f.NetTotal),
			Gross: parseDecimal(f.GrossTotal),
		},
		References: entity.References{
			ProjectID:      f.ProjectRef,
			OrderID:        f.OrderNumber,
			DeliveryNote:   f.DeliveryNote,
			CustomerNumber: f.CustomerNumber,
		},
	}
	for _, t := range f.Taxes {
		data.Totals.Taxes = append(data.Totals.Taxes, entity.TaxLine{
			Rate:   parseDecimal(t.Rate),
			Base:   parseDecimal(t.Base),
			Amount: parseDecimal(t.Amount),
			Type:   taxType(t.Type),
		})
	}
	for _, it := range f.Items {
		data.Items = append(data.Items, entity.LineItem{
			Description: it.Description,
			Qty:         parseDecimal(it.Qty),
			Unit:        it.Unit,
			UnitPrice:   parseDecimal(it.UnitPrice),
			Net:         parseDecimal(it.Net),
			TaxRate:     parseDecimal(it.TaxRate),
		})
	}
	return data
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func taxType(s string) constants.TaxType {
	switch constants.TaxType(s) {
	case constants.TaxReduced, constants.TaxReverseCharge, constants.TaxExempt:
		return constants.TaxType(s)
	default:
		return constants.TaxStandard
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
