package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

var moneyFields = []string{"net_total", "gross_total"}

var knownKeys = map[string]struct{}{
	"supplier_name": {}, "vat_id": {}, "tax_number": {}, "iban": {}, "bic": {},
	"address": {}, "invoice_number": {}, "invoice_date": {}, "due_date": {},
	"currency": {}, "payment_terms": {}, "net_total": {}, "gross_total": {},
	"taxes": {}, "items": {}, "project_ref": {}, "order_number": {},
	"delivery_note": {}, "customer_number": {},
}

// SanitizeOptionalFields repairs the common ways models bend the schema:
// - renames known synonyms (total -> gross_total, net -> net_total)
// - drops null / empty-string optionals
// - coerces numeric money values to decimal strings
// - removes unknown keys (additionalProperties = false friendliness)
// Returns the cleaned JSON and a list of applied repairs.
func SanitizeOptionalFields(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	applied := make([]string, 0, 8)
	rename := func(from, to string) {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			applied = append(applied, from+"->"+to)
		}
	}
	rename("total", "gross_total")
	rename("gross", "gross_total")
	rename("net", "net_total")
	rename("number", "invoice_number")
	rename("date", "invoice_date")

	for _, k := range moneyFields {
		coerceMoney(m, k, &applied)
	}
	if items, ok := m["items"].([]any); ok {
		for _, it := range items {
			if obj, ok := it.(map[string]any); ok {
				for _, k := range []string{"qty", "unit_price", "net", "tax_rate"} {
					coerceMoney(obj, k, &applied)
				}
			}
		}
	}
	if taxes, ok := m["taxes"].([]any); ok {
		for _, tl := range taxes {
			if obj, ok := tl.(map[string]any); ok {
				for _, k := range []string{"rate", "base", "amount"} {
					coerceMoney(obj, k, &applied)
				}
			}
		}
	}

	for k, v := range m {
		if _, known := knownKeys[k]; !known {
			delete(m, k)
			applied = append(applied, k+"(unknown)")
			continue
		}
		if v == nil {
			delete(m, k)
			applied = append(applied, k+"(null)")
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			delete(m, k)
			applied = append(applied, k+"(empty)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, nil, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, applied, nil
}

func coerceMoney(m map[string]any, k string, applied *[]string) {
	v, ok := m[k]
	if !ok {
		return
	}
	switch t := v.(type) {
	case float64:
		m[k] = fmt.Sprintf("%.2f", t)
		*applied = append(*applied, k+"(number)")
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			delete(m, k)
			*applied = append(*applied, k+"(empty)")
		} else {
			m[k] = s
		}
	}
}
