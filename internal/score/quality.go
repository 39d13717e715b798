package score

import (
	"regexp"
	"strings"
)

var (
	reDateish   = regexp.MustCompile(`\b\d{1,2}[./-]\d{1,2}[./-]\d{2,4}\b|\b20\d{2}-\d{2}-\d{2}\b`)
	reCurrency  = regexp.MustCompile(`\b(eur|chf|usd|gbp)\b|[€$£]`)
	reAmountish = regexp.MustCompile(`\b\d{1,3}(\.\d{3})*,\d{2}\b|\b\d{1,3}(,\d{3})*\.\d{2}\b`)
	reInvoicey  = regexp.MustCompile(`(?i)rechnung|invoice|mwst|ust|netto|brutto|gesamt`)
)

// TextQuality estimates how usable recognized text is for field extraction,
// based on the artifacts an invoice is expected to carry. Returns a value in
// [0,1]; it is a property of the raw text, separate from per-field confidence.
func TextQuality(txt string) float64 {
	if strings.TrimSpace(txt) == "" {
		return 0
	}
	lower := strings.ToLower(txt)
	quality := 0.2
	if reDateish.MatchString(lower) {
		quality += 0.2
	}
	if reCurrency.MatchString(lower) {
		quality += 0.15
	}
	if reAmountish.MatchString(lower) {
		quality += 0.15
	}
	if reInvoicey.MatchString(lower) {
		quality += 0.2
	}
	if len(txt) > 120 {
		quality += 0.1
	}
	if quality > 1.0 {
		quality = 1.0
	}
	return quality
}
