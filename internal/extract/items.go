package extract

import (
	"strconv"
	"strings"

	"github.com/craftbooks/invoice-ingest/internal/entity"
)

// extractLineItems parses item rows between the items header (Pos/Artikel/
// Menge...) and the totals footer (Summe/Gesamt/MwSt...). Rows outside that
// window are ignored so address blocks and totals never masquerade as items.
func extractLineItems(lines []string) []entity.LineItem {
	var items []entity.LineItem
	inSection := false

	for _, ln := range lines {
		if !inSection {
			if itemsHeaderLine.MatchString(ln) {
				inSection = true
			}
			continue
		}
		if itemsFooterLine.MatchString(ln) {
			break
		}
		m := itemLine.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		item := entity.LineItem{
			Description: strings.TrimSpace(m[2]),
			Qty:         ParseAmount(m[3]),
			Unit:        strings.TrimSpace(m[4]),
			UnitPrice:   ParseAmount(m[5]),
			Net:         ParseAmount(m[6]),
			TaxRate:     standardRate,
		}
		if pos, err := strconv.Atoi(m[1]); err == nil {
			item.Pos = pos
		}
		if acceptItem(item) {
			items = append(items, item)
		}
	}
	return items
}

// acceptItem filters the noise the loose row regex lets through.
func acceptItem(it entity.LineItem) bool {
	return len(it.Description) > 2 &&
		it.Qty.IsPositive() &&
		it.UnitPrice.IsPositive() &&
		it.Net.IsPositive()
}
