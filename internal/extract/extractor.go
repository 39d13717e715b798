// Package extract implements the deterministic, pattern-based structured
// field extractor. It never fails: anything it cannot find is expressed
// through sentinel or zero values and ends up as low confidence downstream.
package extract

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/craftbooks/invoice-ingest/constants"
	"github.com/craftbooks/invoice-ingest/internal/entity"
)

var (
	standardRate = decimal.NewFromInt(19)
	reducedRate  = decimal.NewFromInt(7)
	hundred      = decimal.NewFromInt(100)
)

// Extractor turns cleaned recognition text into StructuredInvoiceData.
type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract parses raw text into the canonical structure. It always returns a
// complete record; callers distinguish found from unfound fields via the
// sentinels and the confidence scorer, not via errors.
func (e *Extractor) Extract(rawText string) *entity.StructuredInvoiceData {
	text := CleanText(rawText)
	flat := flatten(text)
	lines := splitLines(text)

	number := firstMatch(flat, invoiceNumberPatterns)
	if number == "" {
		number = entity.UnknownInvoiceNumber
	}
	invoiceDate, dueDate := extractDates(flat)
	supplier := extractSupplier(text, flat, lines)
	am := extractAmounts(flat)
	taxes := extractTaxes(flat)
	items := extractLineItems(lines)

	if len(taxes) == 0 {
		taxes = deriveDefaultTax(am)
	}
	if am.net.IsZero() && am.gross.IsPositive() {
		// back out the net from the tax breakdown when only a gross was read
		am.net = am.gross.Sub(sumTaxAmounts(taxes))
		if am.net.IsNegative() {
			am.net = decimal.Zero
		}
	}

	data := &entity.StructuredInvoiceData{
		Supplier: supplier,
		Invoice: entity.InvoiceInfo{
			Number:       number,
			Date:         invoiceDate,
			DueDate:      dueDate,
			Currency:     detectCurrency(flat),
			PaymentTerms: firstMatch(text, paymentTermsPatterns),
		},
		Totals: entity.Totals{
			Net:   am.net,
			Gross: am.gross,
			Taxes: taxes,
		},
		Items: items,
		References: entity.References{
			ProjectID:      firstMatch(flat, projectRefPatterns),
			OrderID:        firstMatch(flat, orderNumberPatterns),
			DeliveryNote:   firstMatch(flat, deliveryNotePatterns),
			CustomerNumber: firstMatch(flat, customerNumberPatterns),
		},
	}

	e.logger.Debug("pattern extraction done",
		"number", data.Invoice.Number,
		"date", data.Invoice.Date,
		"supplier", data.Supplier.Name,
		"gross", data.Totals.Gross.String(),
		"tax_lines", len(data.Totals.Taxes),
		"items", len(data.Items),
	)
	return data
}

// extractDates scans date-shaped tokens in document order. The first is
// taken as the invoice date, the second as the due date. No label semantics
// are applied; that is a documented limitation of this strategy.
func extractDates(text string) (invoiceDate, dueDate string) {
	matches := datePattern.FindAllStringSubmatch(text, -1)
	dates := make([]string, 0, len(matches))
	for _, m := range matches {
		dates = append(dates, fmt.Sprintf("%s-%s-%s", m[3], pad2(m[2]), pad2(m[1])))
	}
	if len(dates) > 0 {
		invoiceDate = dates[0]
	}
	if len(dates) > 1 {
		dueDate = dates[1]
	}
	return invoiceDate, dueDate
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func extractSupplier(text, flat string, lines []string) entity.SupplierInfo {
	info := entity.SupplierInfo{Name: entity.UnknownSupplierName}

	for _, ln := range lines {
		if m := legalEntityLine.FindStringSubmatch(ln); len(m) > 1 {
			info.Name = strings.TrimSpace(m[1])
			break
		}
	}
	if info.Name == entity.UnknownSupplierName {
		for i, ln := range lines {
			if i >= 10 {
				break
			}
			if capitalizedLine.MatchString(ln) && len(ln) >= 4 {
				info.Name = ln
				break
			}
		}
	}

	info.VatID = firstMatch(flat, vatIDPatterns)
	if m := taxNumberPattern.FindStringSubmatch(flat); len(m) > 1 {
		info.TaxNumber = m[1]
	}
	if iban := firstMatch(flat, ibanPatterns); iban != "" {
		info.IBAN = strings.ReplaceAll(iban, " ", "")
	}
	info.BIC = firstMatch(flat, bicPatterns)
	if m := addressPattern.FindStringSubmatch(text); len(m) > 2 {
		info.Address = strings.TrimSpace(m[1]) + ", " + strings.TrimSpace(m[2])
	}
	return info
}

func extractTaxes(text string) []entity.TaxLine {
	var taxes []entity.TaxLine
	seen := map[string]struct{}{}

	add := func(rate, base, amount decimal.Decimal) {
		if rate.IsNegative() || rate.GreaterThan(hundred) || !amount.IsPositive() {
			return
		}
		key := rate.String()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		taxes = append(taxes, entity.TaxLine{
			Rate:   rate,
			Base:   base,
			Amount: amount,
			Type:   taxTypeForRate(rate),
		})
	}

	for _, m := range taxTriple.FindAllStringSubmatch(text, -1) {
		add(parseRate(m[1]), ParseAmount(m[2]), ParseAmount(m[3]))
	}
	for _, m := range taxPair.FindAllStringSubmatch(text, -1) {
		amount := ParseAmount(m[2])
		rate := parseRate(m[1])
		base := decimal.Zero
		if rate.IsPositive() {
			base = amount.Div(rate).Mul(hundred).Round(2)
		}
		add(rate, base, amount)
	}

	for _, p := range reverseChargePatterns {
		if p.MatchString(text) {
			taxes = append(taxes, entity.TaxLine{
				Rate: decimal.Zero,
				Type: constants.TaxReverseCharge,
			})
			break
		}
	}
	return taxes
}

func parseRate(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func taxTypeForRate(rate decimal.Decimal) constants.TaxType {
	switch {
	case rate.Equal(reducedRate):
		return constants.TaxReduced
	case rate.IsZero():
		return constants.TaxExempt
	default:
		return constants.TaxStandard
	}
}

// deriveDefaultTax reconstructs a standard 19% line from the gross when the
// document carried no recognizable tax breakdown at all.
func deriveDefaultTax(am amounts) []entity.TaxLine {
	if !am.gross.IsPositive() {
		return nil
	}
	if am.vat.IsPositive() {
		base := am.net
		if base.IsZero() {
			base = am.gross.Sub(am.vat)
		}
		return []entity.TaxLine{{
			Rate:   standardRate,
			Base:   base,
			Amount: am.vat,
			Type:   constants.TaxStandard,
		}}
	}
	net := am.gross.Div(decimal.NewFromFloat(1.19)).Round(2)
	return []entity.TaxLine{{
		Rate:   standardRate,
		Base:   net,
		Amount: am.gross.Sub(net),
		Type:   constants.TaxStandard,
	}}
}

func sumTaxAmounts(taxes []entity.TaxLine) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range taxes {
		sum = sum.Add(t.Amount)
	}
	return sum
}

func detectCurrency(text string) string {
	switch {
	case strings.Contains(text, "CHF"):
		return "CHF"
	case strings.Contains(text, "$") || strings.Contains(text, "USD"):
		return "USD"
	default:
		return "EUR"
	}
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, ln := range raw {
		if t := strings.TrimSpace(ln); t != "" {
			lines = append(lines, t)
		}
	}
	return lines
}
