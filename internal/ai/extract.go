package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/craftbooks/invoice-ingest/internal/entity"
)

// ExtractInvoice implements InvoiceExtractor using text-only chat/completions.
func (c *Client) ExtractInvoice(ctx context.Context, req ExtractRequest) (*entity.StructuredInvoiceData, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("ai.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(req.OCRText),
		"default_currency", req.DefaultCurrency,
	)

	schema := BuildInvoiceJSONSchema()
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": buildSystemPrompt(req)},
			{"role": "user", "content": buildUserPrompt(req.OCRText, req.FilenameHint) + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, httpErr := c.post(ctx, endpoint, body)
	if httpErr != nil {
		c.log.Error("ai.extract.http_error",
			"req_id", rid, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, nil, httpErr
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("ai.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, raw, fmt.Errorf("decode completion response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.log.Error("ai.extract.no_choices",
			"req_id", rid, "raw", string(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, raw, fmt.Errorf("no choices in completion response")
	}
	rawContent := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	if err := validateInvoiceReply(schema, rawContent); err != nil {
		if !c.cfg.LenientOptional {
			c.log.Error("ai.extract.schema_validation_failed",
				"req_id", rid, "error", err, "content", string(rawContent),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return nil, rawContent, fmt.Errorf("schema validation failed: %w", err)
		}
		cleaned, applied, sErr := SanitizeOptionalFields(rawContent)
		if sErr != nil {
			c.log.Error("ai.extract.sanitize_failed",
				"req_id", rid, "error", sErr,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return nil, rawContent, fmt.Errorf("sanitize failed: %w", sErr)
		}
		if vErr := validateInvoiceReply(schema, cleaned); vErr != nil {
			c.log.Error("ai.extract.schema_validation_failed",
				"req_id", rid, "error", vErr, "content", string(rawContent),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return nil, rawContent, fmt.Errorf("schema validation failed: %w", vErr)
		}
		c.log.Warn("ai.extract.lenient_sanitize_applied",
			"req_id", rid, "applied", applied,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		rawContent = cleaned
	}

	var fields invoiceFields
	if err := json.Unmarshal(rawContent, &fields); err != nil {
		c.log.Error("ai.extract.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, rawContent, fmt.Errorf("unmarshal fields: %w", err)
	}

	data := fields.toEntity()
	c.log.Info("ai.extract.ok",
		"req_id", rid,
		"supplier", data.Supplier.Name,
		"number", data.Invoice.Number,
		"date", data.Invoice.Date,
		"gross", data.Totals.Gross.String(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return data, rawContent, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion http error: %w", err)
	}
	defer func(body io.ReadCloser) {
		if cerr := body.Close(); cerr != nil {
			c.log.Warn("ai.extract.body_close_error", "error", cerr)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("completion status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

func buildSystemPrompt(req ExtractRequest) string {
	currency := req.DefaultCurrency
	if currency == "" {
		currency = "EUR"
	}
	parts := []string{
		"You are an invoice parser for German trade businesses. Return ONLY JSON that matches the JSON Schema provided.",
		"Use ISO-8601 dates (YYYY-MM-DD). German date formats like 15.03.2024 must be converted.",
		"All money values are decimal strings with a dot separator, e.g. \"1234.56\". Convert German notation (1.234,56).",
		"Currency must be a 3-letter ISO 4217 code; default to " + currency + " if uncertain.",
		"Extract the supplier (the party issuing the invoice), never the recipient.",
		"Include the VAT breakdown per rate under 'taxes'. Mark Reverse-Charge invoices (§13b UStG) with type 'reverse_charge' and rate \"0\".",
		"Never output null. If a field is not present, omit it.",
	}
	return strings.Join(parts, " ")
}

func buildUserPrompt(ocr, filename string) string {
	var b strings.Builder
	b.WriteString("Filename: ")
	b.WriteString(filename)
	b.WriteString("\n\nOCR text (first ~6k chars):\n")
	if len(ocr) > 6000 {
		b.WriteString(ocr[:6000])
	} else {
		b.WriteString(ocr)
	}
	return b.String()
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
