package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/craftbooks/invoice-ingest/internal/common"
)

const engineName = "tesseract"

// Config for the tesseract-backed engine.
type Config struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Pdftotext string // if empty -> "pdftotext"
	Pdftoppm  string // if empty -> "pdftoppm"

	Languages    string // e.g. "deu+eng"
	FallbackLang string // single language used when multi-language init fails
	TessdataDir  string

	DPI      int // rasterization DPI for scanned PDFs, default 300
	MaxPages int // 0 = no limit

	ArtifactCacheDir string
	Timeout          time.Duration // per Recognize call; 0 = no bound
}

// TesseractEngine implements Engine over the tesseract / poppler binaries.
// Language configuration is resolved once at construction: the configured
// multi-language set is probed, and when unavailable the engine degrades to
// the single fallback language. Only when the fallback also fails does
// construction return ErrEngineUnavailable.
type TesseractEngine struct {
	cfg      Config
	runner   Runner
	logger   *slog.Logger
	version  string
	lang     string
	degraded bool
}

func NewTesseractEngine(cfg Config, logger *slog.Logger) (*TesseractEngine, error) {
	return newTesseractEngine(cfg, execRunner{}, logger)
}

func newTesseractEngine(cfg Config, runner Runner, logger *slog.Logger) (*TesseractEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Languages == "" {
		cfg.Languages = "deu+eng"
	}
	if cfg.FallbackLang == "" {
		cfg.FallbackLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.ArtifactCacheDir == "" {
		cfg.ArtifactCacheDir = "./tmp"
	}

	e := &TesseractEngine{cfg: cfg, runner: runner, logger: logger}

	ctx := context.Background()
	version, err := e.probeVersion(ctx)
	if err != nil {
		logger.Error("tesseract not available", "bin", cfg.Tesseract, "error", err)
		return nil, common.NewAppError("ENGINE_UNAVAILABLE", "recognition engine could not be initialized", common.ErrEngineUnavailable)
	}
	e.version = version

	available, err := e.listLangs(ctx)
	switch {
	case err != nil:
		// --list-langs failing is not fatal on its own; assume the configured
		// set and let the first Recognize surface any real problem.
		e.lang = cfg.Languages
		logger.Warn("could not list tesseract languages, assuming configured set", "langs", cfg.Languages, "error", err)
	case hasAllLangs(available, cfg.Languages):
		e.lang = cfg.Languages
	case hasAllLangs(available, cfg.FallbackLang):
		// Recoverable degradation: primary-language pack missing.
		e.lang = cfg.FallbackLang
		e.degraded = true
		logger.Warn("multi-language init failed, degrading to single language",
			"requested", cfg.Languages, "fallback", cfg.FallbackLang)
	default:
		logger.Error("no usable language packs", "requested", cfg.Languages, "fallback", cfg.FallbackLang)
		return nil, common.NewAppError("ENGINE_UNAVAILABLE", "no usable language packs after fallback", common.ErrEngineUnavailable)
	}

	logger.Info("recognition engine ready", "engine", engineName, "version", e.version, "lang", e.lang, "degraded", e.degraded)
	return e, nil
}

// Recognize writes the document to the artifact cache and runs the matching
// extraction strategy for its mime type.
func (e *TesseractEngine) Recognize(ctx context.Context, data []byte, mimeType string) (RecognitionResult, error) {
	start := time.Now()
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	tmpDir, err := os.MkdirTemp(e.cfg.ArtifactCacheDir, "ocr-*")
	if err != nil {
		// fall back to the system temp dir when the cache dir is missing
		tmpDir, err = os.MkdirTemp("", "ocr-*")
		if err != nil {
			return RecognitionResult{}, fmt.Errorf("create work dir: %w", err)
		}
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			e.logger.Warn("failed to remove ocr work dir", "dir", tmpDir, "error", rmErr)
		}
	}()

	in := filepath.Join(tmpDir, "input"+extForMime(mimeType))
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return RecognitionResult{}, fmt.Errorf("write input: %w", err)
	}

	var (
		text     string
		pages    int
		warnings []string
	)
	if mimeType == "application/pdf" {
		text, pages, warnings, err = e.extractPDF(ctx, in, tmpDir)
	} else {
		text, warnings, err = e.tesseractOCR(ctx, in)
		pages = 1
	}
	if err != nil {
		return RecognitionResult{Warnings: warnings}, err
	}

	res := RecognitionResult{
		Text:          normalize(text),
		EngineName:    engineName,
		EngineVersion: e.version,
		Language:      e.lang,
		Pages:         pages,
		Degraded:      e.degraded,
		Duration:      time.Since(start),
		Warnings:      warnings,
	}
	e.logger.Debug("recognition done", "pages", res.Pages, "bytes", len(res.Text), "elapsed_ms", res.Duration.Milliseconds())
	return res, nil
}

// Close releases the engine. The exec-backed engine holds no persistent
// resources; Close exists to honor the owned-lifecycle contract.
func (e *TesseractEngine) Close() error { return nil }

// Degraded reports whether the engine runs in single-language fallback mode.
func (e *TesseractEngine) Degraded() bool { return e.degraded }

func (e *TesseractEngine) probeVersion(ctx context.Context) (string, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, "--version")
	if err != nil {
		return "", err
	}
	// tesseract prints the version banner on stderr on most builds
	banner := string(out)
	if strings.TrimSpace(banner) == "" {
		banner = string(errb)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(banner), "\n")
	return strings.TrimSpace(strings.TrimPrefix(line, "tesseract ")), nil
}

func (e *TesseractEngine) listLangs(ctx context.Context) (map[string]struct{}, error) {
	args := []string{"--list-langs"}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return nil, fmt.Errorf("list langs: %w (%s)", err, truncate(string(errb), 256))
	}
	langs := make(map[string]struct{})
	for _, ln := range strings.Split(string(out), "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "List of") {
			continue
		}
		langs[ln] = struct{}{}
	}
	return langs, nil
}

func hasAllLangs(available map[string]struct{}, spec string) bool {
	for _, l := range strings.Split(spec, "+") {
		if _, ok := available[l]; !ok {
			return false
		}
	}
	return len(spec) > 0
}

func (e *TesseractEngine) tesseractOCR(ctx context.Context, path string) (string, []string, error) {
	args := []string{path, "stdout", "-l", e.lang}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", []string{string(errb)}, fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil, nil
}

func (e *TesseractEngine) extractPDF(ctx context.Context, path, tmpDir string) (string, int, []string, error) {
	// pdftotext first: born-digital PDFs need no OCR at all.
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err == nil {
		text := string(out)
		if len(strings.TrimSpace(text)) >= 32 {
			return text, 1 + strings.Count(text, "\f"), nil, nil
		}
	}

	// Scanned PDF: rasterize pages and OCR each one.
	var warns []string
	if err != nil {
		warns = append(warns, string(errb))
	}
	prefix := filepath.Join(tmpDir, "page")
	if _, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix); err != nil {
		return "", 0, append(warns, string(errb)), fmt.Errorf("pdftoppm: %w", err)
	}
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", 0, append(warns, "pdftoppm produced no images"), fmt.Errorf("no pages rendered")
	}

	var b strings.Builder
	for _, img := range matches {
		txt, w, err := e.tesseractOCR(ctx, img)
		if err != nil {
			warns = append(warns, err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(txt)
		warns = append(warns, w...)
	}
	return b.String(), len(matches), warns, nil
}

func extForMime(mime string) string {
	switch mime {
	case "application/pdf":
		return ".pdf"
	case "image/png":
		return ".png"
	case "image/tiff":
		return ".tif"
	default:
		return ".jpg"
	}
}
