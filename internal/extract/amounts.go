package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	reGermanFormat  = regexp.MustCompile(`^\d{1,3}(\.\d{3})*,\d{2}$`)
	reEnglishFormat = regexp.MustCompile(`^\d{1,3}(,\d{3})*\.\d{2}$`)
	reAmountJunk    = regexp.MustCompile(`[^\d,.\-]`)
)

// ParseAmount parses a money token in German (1.234,56), English (1,234.56)
// or plain (1234,56 / 1234.56) notation. Unparseable input yields zero.
func ParseAmount(s string) decimal.Decimal {
	cleaned := reAmountJunk.ReplaceAllString(strings.TrimSpace(s), "")
	if cleaned == "" {
		return decimal.Zero
	}
	switch {
	case reGermanFormat.MatchString(cleaned):
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	case reEnglishFormat.MatchString(cleaned):
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	default:
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
		// more than one dot left means mixed separators we can't trust
		if strings.Count(cleaned, ".") > 1 {
			return decimal.Zero
		}
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

type amounts struct {
	net     decimal.Decimal
	vat     decimal.Decimal
	gross   decimal.Decimal
	labeled bool
}

// extractAmounts reads totals from the document. Label-anchored matches
// (Netto/MwSt/Brutto family) take priority; when no labels are present the
// positional heuristic over all amount tokens applies: first is net, second
// is VAT, last is gross. The positional path is known-fragile and kept as the
// deterministic fallback.
func extractAmounts(text string) amounts {
	var a amounts

	if s := firstMatch(text, grossLabeled); s != "" {
		a.gross = ParseAmount(s)
		a.labeled = true
	}
	if s := firstMatch(text, netLabeled); s != "" {
		a.net = ParseAmount(s)
		a.labeled = true
	}
	if s := firstMatch(text, vatLabeled); s != "" {
		a.vat = ParseAmount(s)
	}
	if a.labeled && a.gross.IsPositive() {
		if a.net.IsZero() && a.vat.IsPositive() {
			a.net = a.gross.Sub(a.vat)
		}
		return a
	}

	tokens := amountToken.FindAllString(text, -1)
	parsed := make([]decimal.Decimal, 0, len(tokens))
	for _, t := range tokens {
		if v := ParseAmount(t); v.IsPositive() {
			parsed = append(parsed, v)
		}
	}
	// the positional fill only completes fields a label did not already set
	switch len(parsed) {
	case 0:
	case 1:
		if a.gross.IsZero() {
			a.gross = parsed[0]
		}
	case 2:
		if a.net.IsZero() {
			a.net = parsed[0]
		}
		if a.gross.IsZero() {
			a.gross = parsed[1]
		}
	default:
		if a.net.IsZero() {
			a.net = parsed[0]
		}
		if a.vat.IsZero() {
			a.vat = parsed[1]
		}
		if a.gross.IsZero() {
			a.gross = parsed[len(parsed)-1]
		}
	}
	return a
}
