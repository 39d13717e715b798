package ai

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. It is sent to the model as a structured-output constraint and
// used locally to validate the reply.
func BuildInvoiceJSONSchema() map[string]any {
	taxLine := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"rate":   decimalProp(),
			"base":   decimalProp(),
			"amount": decimalProp(),
			"type": map[string]any{
				"type": "string",
				"enum": []string{"standard", "reduced", "reverse_charge", "exempt"},
			},
		},
		"required": []string{"rate", "amount"},
	}

	lineItem := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"description": map[string]any{"type": "string", "minLength": 1},
			"qty":         decimalProp(),
			"unit":        map[string]any{"type": "string"},
			"unit_price":  decimalProp(),
			"net":         decimalProp(),
			"tax_rate":    decimalProp(),
		},
		"required": []string{"description", "qty", "unit_price", "net"},
	}

	props := map[string]any{
		"supplier_name":   map[string]any{"type": "string", "minLength": 1},
		"vat_id":          map[string]any{"type": "string"},
		"tax_number":      map[string]any{"type": "string"},
		"iban":            map[string]any{"type": "string"},
		"bic":             map[string]any{"type": "string"},
		"address":         map[string]any{"type": "string"},
		"invoice_number":  map[string]any{"type": "string", "minLength": 1},
		"invoice_date":    map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"due_date":        map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"currency":        map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
		"payment_terms":   map[string]any{"type": "string"},
		"net_total":       decimalProp(),
		"gross_total":     decimalProp(),
		"taxes":           map[string]any{"type": "array", "items": taxLine},
		"items":           map[string]any{"type": "array", "items": lineItem},
		"project_ref":     map[string]any{"type": "string"},
		"order_number":    map[string]any{"type": "string"},
		"delivery_note":   map[string]any{"type": "string"},
		"customer_number": map[string]any{"type": "string"},
	}
	required := []string{"supplier_name", "invoice_number", "invoice_date", "gross_total", "currency"}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^-?\d+(\.\d{1,4})?$`,
	}
}

// validateInvoiceReply checks a model reply against the invoice schema before
// it is decoded into structured data.
func validateInvoiceReply(schemaMap map[string]any, reply []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal invoice schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("invoice.schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("register invoice schema: %w", err)
	}
	schema, err := compiler.Compile("invoice.schema.json")
	if err != nil {
		return fmt.Errorf("compile invoice schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(reply, &v); err != nil {
		return fmt.Errorf("model reply is not valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("model reply violates the invoice schema: %w", err)
	}
	return nil
}
