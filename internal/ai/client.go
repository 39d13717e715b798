// Package ai implements the model-backed extraction strategy: OCR text goes
// to a chat/completions endpoint constrained by a JSON schema, and the reply
// is validated, sanitized and converted into the canonical invoice structure.
package ai

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/craftbooks/invoice-ingest/internal/entity"
)

// Config for the extraction client.
type Config struct {
	APIKey          string        // if empty, falls back to env AI_API_KEY
	BaseURL         string        // default https://api.openai.com/v1
	Model           string        // e.g. "gpt-4o-mini"
	Temperature     float32       // 0..2
	Timeout         time.Duration // http client timeout
	LenientOptional bool
}

// ExtractRequest carries the recognized text plus hints for the model.
type ExtractRequest struct {
	OCRText         string
	FilenameHint    string
	DefaultCurrency string
}

// InvoiceExtractor is the interface the pipeline depends on for the
// model-backed strategy.
type InvoiceExtractor interface {
	ExtractInvoice(ctx context.Context, req ExtractRequest) (*entity.StructuredInvoiceData, []byte /*rawJSON*/, error)
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("AI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}
