// Package ocr wraps the external text recognition engine. The engine is an
// explicitly owned resource: constructed once in main, injected into the
// pipeline, shut down on exit.
package ocr

import (
	"context"
	"time"
)

// RecognitionResult is raw engine output for one document.
type RecognitionResult struct {
	Text          string
	EngineName    string
	EngineVersion string
	Language      string // language configuration actually used
	Pages         int
	Degraded      bool // true when multi-language init failed and we fell back
	Duration      time.Duration
	Warnings      []string
}

// Engine turns document bytes into raw text. Implementations must be safe for
// concurrent use or serialize internally.
type Engine interface {
	Recognize(ctx context.Context, data []byte, mimeType string) (RecognitionResult, error)
	Close() error
}
