package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftbooks/invoice-ingest/constants"
)

func completionReply(t *testing.T, content map[string]any) string {
	t.Helper()
	inner, err := json.Marshal(content)
	require.NoError(t, err)
	outer, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": string(inner)}},
		},
	})
	require.NoError(t, err)
	return string(outer)
}

func validReply() map[string]any {
	return map[string]any{
		"supplier_name":  "Müller Elektrotechnik GmbH",
		"vat_id":         "DE123456789",
		"invoice_number": "RE-2024-001",
		"invoice_date":   "2024-03-15",
		"currency":       "EUR",
		"net_total":      "1000.00",
		"gross_total":    "1190.00",
		"taxes": []map[string]any{
			{"rate": "19", "base": "1000.00", "amount": "190.00", "type": "standard"},
		},
	}
}

func TestExtractInvoice_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(completionReply(t, validReply())))
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL}, nil)
	data, raw, err := client.ExtractInvoice(context.Background(), ExtractRequest{
		OCRText:         "Rechnungs-Nr.: RE-2024-001",
		DefaultCurrency: "EUR",
	})
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.NotEmpty(t, raw)

	assert.Equal(t, "Müller Elektrotechnik GmbH", data.Supplier.Name)
	assert.Equal(t, "RE-2024-001", data.Invoice.Number)
	assert.Equal(t, "2024-03-15", data.Invoice.Date)
	assert.True(t, data.Totals.Gross.Equal(decimal.RequireFromString("1190.00")))
	require.Len(t, data.Totals.Taxes, 1)
	assert.Equal(t, constants.TaxStandard, data.Totals.Taxes[0].Type)
	assert.True(t, data.Totals.Taxes[0].Amount.Equal(decimal.RequireFromString("190.00")))
}

func TestExtractInvoice_LenientSanitizeRepairsReply(t *testing.T) {
	reply := validReply()
	delete(reply, "gross_total")
	reply["total"] = 1190.0 // wrong name, wrong type
	reply["vat_id"] = nil
	reply["hallucinated_field"] = "x"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionReply(t, reply)))
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: srv.URL, LenientOptional: true}, nil)
	data, _, err := client.ExtractInvoice(context.Background(), ExtractRequest{OCRText: "x"})
	require.NoError(t, err)
	assert.True(t, data.Totals.Gross.Equal(decimal.RequireFromString("1190.00")), "gross = %s", data.Totals.Gross)
	assert.Empty(t, data.Supplier.VatID)
}

func TestExtractInvoice_SchemaViolationFailsStrict(t *testing.T) {
	reply := validReply()
	reply["invoice_date"] = "15.03.2024" // not ISO

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionReply(t, reply)))
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, _, err := client.ExtractInvoice(context.Background(), ExtractRequest{OCRText: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
}

func TestExtractInvoice_UpstreamErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, _, err := client.ExtractInvoice(context.Background(), ExtractRequest{OCRText: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestSanitizeOptionalFields(t *testing.T) {
	in := []byte(`{"supplier_name":"A","total":10.5,"net":"","vat_id":null,"bogus":1,"gross_total":"12.00"}`)

	out, applied, err := SanitizeOptionalFields(in)
	require.NoError(t, err)
	assert.NotEmpty(t, applied)

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	// existing gross_total must not be overwritten by the renamed 'total'
	assert.Equal(t, "12.00", m["gross_total"])
	assert.NotContains(t, m, "total")
	assert.NotContains(t, m, "net_total") // renamed from empty 'net', then dropped
	assert.NotContains(t, m, "vat_id")
	assert.NotContains(t, m, "bogus")
}
