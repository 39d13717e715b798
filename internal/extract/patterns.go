package extract

import "regexp"

// Ordered pattern families for German trade invoices. Within each family the
// first match wins, so more specific label-anchored patterns come first and
// bare-shape fallbacks last.

var invoiceNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Rechnungs[\s-]*(?:Nr\.?|Nummer)\s*[:.]?\s*([A-Z0-9\-/._]+)`),
	regexp.MustCompile(`(?i)Rechnung\s*(?:Nr\.?|Nummer)?\s*[:.]\s*([A-Z0-9\-/._]+)`),
	regexp.MustCompile(`(?i)\b(?:Rg|Re)[\s-]*(?:Nr\.?|Nummer)\s*[:.]?\s*([A-Z0-9\-/._]+)`),
	regexp.MustCompile(`(?i)Invoice\s*(?:No\.?|Number)?\s*[:.]?\s*([A-Z0-9\-/._]+)`),
	regexp.MustCompile(`(?i)Beleg[\s-]*(?:Nr\.?|Nummer)?\s*[:.]\s*([A-Z0-9\-/._]+)`),
	regexp.MustCompile(`(?i)\bNr\.?\s*[:.]?\s*([A-Z0-9\-/._]{3,})`),
}

// D[./-]M[./-]YYYY tokens anywhere in the document, scanned in order.
var datePattern = regexp.MustCompile(`\b(\d{1,2})[./-](\d{1,2})[./-](\d{4})\b`)

// Legal-entity suffixes mark the most reliable supplier-name lines.
var legalEntityLine = regexp.MustCompile(`^([A-ZÄÖÜ][A-Za-zäöüÄÖÜß\s&.\-]+(?:GmbH\s*&\s*Co\.\s*KG|GmbH|AG|KG|OHG|UG|e\.K\.|Ltd|Inc|Corp))\b`)

// Fallback: a plausibly-long capitalized line.
var capitalizedLine = regexp.MustCompile(`^[A-ZÄÖÜ][A-Za-zäöüÄÖÜß\s&.\-]{2,49}$`)

var vatIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:USt[.\s-]*Id(?:Nr)?\.?|Umsatzsteuer[\s-]*ID|VAT[.\s-]*ID)\s*[:.]?\s*([A-Z]{2}[0-9A-Z]{8,12})`),
	regexp.MustCompile(`\b(DE[0-9]{9})\b`),
	regexp.MustCompile(`\b([A-Z]{2}[0-9A-Z]{8,12})\b`),
}

var taxNumberPattern = regexp.MustCompile(`(?i)(?:Steuer[\s-]*Nr\.?|Steuernummer)\s*[:.]?\s*(\d{2,4}/\d{3,4}/\d{4,6})`)

var ibanPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)IBAN\s*[:.]?\s*([A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,3})?)`),
	regexp.MustCompile(`\b([A-Z]{2}\d{2}[A-Z0-9]{4}\d{7}[A-Z0-9]{0,16})\b`),
}

var bicPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:BIC|SWIFT)\s*[:.]?\s*([A-Z]{6}[A-Z0-9]{2}(?:[A-Z0-9]{3})?)\b`),
}

// Matched against the line-preserving text so the street capture cannot
// bleed backwards across a line join.
var addressPattern = regexp.MustCompile(`(?i)([A-Za-zäöüÄÖÜß .\-]+(?:straße|str\.|weg|platz|gasse|allee)\s*\d+[a-z]?)[, ]+(\d{5} +[A-Za-zäöüÄÖÜß \-]+)`)

// Amount token: <digits>[,.]<2 digits>, optionally with thousands separators.
var amountToken = regexp.MustCompile(`\b\d{1,3}(?:[.\s]\d{3})*[,.]\d{2}\b|\b\d+[,.]\d{2}\b`)

// Labeled totals. Tried before the positional heuristic; the positional scan
// stays as the deterministic fallback when no labels are present.
var grossLabeled = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:Gesamtbetrag|Bruttobetrag|Brutto|Endsumme|Rechnungsbetrag|Zahlbetrag|Zu zahlen)\s*[:.]?\s*€?\s*(\d{1,3}(?:[.\s]\d{3})*[,.]\d{2}|\d+[,.]\d{2})`),
	regexp.MustCompile(`(?i)(?:Gesamt|Total|Summe)\s*[:.]?\s*€?\s*(\d{1,3}(?:[.\s]\d{3})*[,.]\d{2}|\d+[,.]\d{2})\s*€?`),
}

var netLabeled = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:Netto(?:betrag|summe)?|Summe Netto|Zwischensumme)\s*[:.]?\s*€?\s*(\d{1,3}(?:[.\s]\d{3})*[,.]\d{2}|\d+[,.]\d{2})`),
}

var vatLabeled = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:MwSt|USt|Mehrwertsteuer|Umsatzsteuer|VAT)\.?\s*(?:\d{1,2}(?:[,.]\d{1,2})?\s*%)?\s*[:.]?\s*€?\s*(\d{1,3}(?:[.\s]\d{3})*[,.]\d{2}|\d+[,.]\d{2})`),
}

// rate% ... base ... amount triples in a tax breakdown table.
var taxTriple = regexp.MustCompile(`(\d{1,2}(?:[,.]\d{1,2})?)\s*%\D{0,24}?(\d{1,3}(?:[.\s]\d{3})*[,.]\d{2}|\d+[,.]\d{2})\D{0,24}?(\d{1,3}(?:[.\s]\d{3})*[,.]\d{2}|\d+[,.]\d{2})`)

// Explicit VAT-labeled rate + amount pairs.
var taxPair = regexp.MustCompile(`(?i)(?:MwSt|USt|VAT)\.?\s*[:.]?\s*(\d{1,2}(?:[,.]\d{1,2})?)\s*%\s*[:.]?\s*€?\s*(\d{1,3}(?:[.\s]\d{3})*[,.]\d{2}|\d+[,.]\d{2})`)

var reverseChargePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)reverse[\s-]*charge`),
	regexp.MustCompile(`(?i)steuerschuldnerschaft des leistungsempfängers`),
	regexp.MustCompile(`(?i)§\s*13b\s*UStG`),
}

var paymentTermsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:Zahlungsziel|Zahlbar|Zahlungsbedingungen|Payment terms)[: ]\s*([^\n]{5,50})`),
	regexp.MustCompile(`(?i)(\d{1,3}\s+Tage(?:\s+netto)?)`),
}

var orderNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:Bestell[\s-]*Nr\.?|Auftrag(?:s)?[\s-]*Nr\.?)\s*[:.]?\s*([A-Z0-9\-/]+)`),
	regexp.MustCompile(`(?i)(?:Order|PO)[\s-]*(?:No\.?|Number)\s*[:.]?\s*([A-Z0-9\-/]+)`),
}

var deliveryNotePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:Lieferschein[\s-]*Nr\.?|LS[\s-]*Nr\.?)\s*[:.]?\s*([A-Z0-9\-/]+)`),
}

var projectRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Projekt(?:[\s-]*Nr\.?)?\s*[:.]\s*([A-Z0-9\-/]+)`),
}

var customerNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Kunden[\s-]*(?:Nr\.?|Nummer)\s*[:.]?\s*([A-Z0-9\-/]+)`),
}

// Items section boundaries.
var itemsHeaderLine = regexp.MustCompile(`(?i)\b(?:Pos\.?|Artikel|Beschreibung|Menge|Einzelpreis|Preis)\b`)
var itemsFooterLine = regexp.MustCompile(`(?i)\b(?:Summe|Gesamt|Netto|Brutto|MwSt|USt|Total|Zwischensumme)\b`)

// pos? description qty unit? unit_price net
var itemLine = regexp.MustCompile(`^(\d+)?\s*(.+?)\s+(\d+(?:[,.]\d+)?)\s+([A-Za-zäöü]+\.?)?\s*(\d{1,3}(?:[.\s]\d{3})*[,.]\d{2,4}|\d+[,.]\d{2,4})\s+(\d{1,3}(?:[.\s]\d{3})*[,.]\d{2}|\d+[,.]\d{2})\s*€?$`)

func firstMatch(text string, patterns []*regexp.Regexp) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); len(m) > 1 && m[1] != "" {
			return trimMatch(m[1])
		}
	}
	return ""
}
