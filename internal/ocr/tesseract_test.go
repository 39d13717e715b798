package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftbooks/invoice-ingest/internal/common"
)

// fakeRunner dispatches on the binary name and records every invocation.
type fakeRunner struct {
	calls    []string
	handlers map[string]func(args []string) (stdout, stderr []byte, err error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	h, ok := f.handlers[name]
	if !ok {
		return nil, nil, fmt.Errorf("unexpected command %q", name)
	}
	return h(args)
}

func healthyRunner() *fakeRunner {
	return &fakeRunner{handlers: map[string]func([]string) ([]byte, []byte, error){
		"tesseract": func(args []string) ([]byte, []byte, error) {
			switch args[0] {
			case "--version":
				return nil, []byte("tesseract 5.3.0\n leptonica-1.83.1"), nil
			case "--list-langs":
				return []byte("List of available languages (3):\ndeu\neng\nosd\n"), nil, nil
			default:
				return []byte("Rechnung RE-1\nGesamtbetrag 119,00"), nil, nil
			}
		},
	}}
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{ArtifactCacheDir: t.TempDir()}
}

func TestNewTesseractEngine_ResolvesVersionAndLanguages(t *testing.T) {
	e, err := newTesseractEngine(testConfig(t), healthyRunner(), nil)
	require.NoError(t, err)

	assert.Equal(t, "5.3.0", e.version)
	assert.Equal(t, "deu+eng", e.lang)
	assert.False(t, e.Degraded())
}

func TestNewTesseractEngine_DegradesToFallbackLanguage(t *testing.T) {
	runner := healthyRunner()
	runner.handlers["tesseract"] = func(args []string) ([]byte, []byte, error) {
		switch args[0] {
		case "--version":
			return nil, []byte("tesseract 5.3.0"), nil
		case "--list-langs":
			return []byte("List of available languages (2):\neng\nosd\n"), nil, nil
		default:
			return []byte("text"), nil, nil
		}
	}

	e, err := newTesseractEngine(testConfig(t), runner, nil)
	require.NoError(t, err)
	assert.Equal(t, "eng", e.lang)
	assert.True(t, e.Degraded())
}

func TestNewTesseractEngine_MissingBinary(t *testing.T) {
	runner := &fakeRunner{handlers: map[string]func([]string) ([]byte, []byte, error){
		"tesseract": func([]string) ([]byte, []byte, error) {
			return nil, nil, errors.New("executable file not found")
		},
	}}

	_, err := newTesseractEngine(testConfig(t), runner, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrEngineUnavailable)
	assert.Equal(t, "ENGINE_UNAVAILABLE", common.CodeOf(err))
}

func TestNewTesseractEngine_NoUsableLanguagePacks(t *testing.T) {
	runner := healthyRunner()
	runner.handlers["tesseract"] = func(args []string) ([]byte, []byte, error) {
		switch args[0] {
		case "--version":
			return nil, []byte("tesseract 5.3.0"), nil
		case "--list-langs":
			return []byte("List of available languages (1):\nosd\n"), nil, nil
		default:
			return nil, nil, errors.New("unreachable")
		}
	}

	_, err := newTesseractEngine(testConfig(t), runner, nil)
	assert.ErrorIs(t, err, common.ErrEngineUnavailable)
}

func TestRecognize_ImageRunsTesseract(t *testing.T) {
	runner := healthyRunner()
	e, err := newTesseractEngine(testConfig(t), runner, nil)
	require.NoError(t, err)

	res, err := e.Recognize(context.Background(), []byte{0xFF, 0xD8, 0xFF}, "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, "Rechnung RE-1\nGesamtbetrag 119,00", res.Text)
	assert.Equal(t, "tesseract", res.EngineName)
	assert.Equal(t, "5.3.0", res.EngineVersion)
	assert.Equal(t, 1, res.Pages)

	last := runner.calls[len(runner.calls)-1]
	assert.Contains(t, last, "-l deu+eng")
	assert.Contains(t, last, ".jpg")
}

func TestRecognize_BornDigitalPDFSkipsOCR(t *testing.T) {
	runner := healthyRunner()
	runner.handlers["pdftotext"] = func([]string) ([]byte, []byte, error) {
		return []byte("Rechnungs-Nr.: RE-2024-001\nGesamtbetrag: 1.190,00 EUR\nSeite 1\f"), nil, nil
	}

	e, err := newTesseractEngine(testConfig(t), runner, nil)
	require.NoError(t, err)

	res, err := e.Recognize(context.Background(), []byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)

	assert.Contains(t, res.Text, "RE-2024-001")
	assert.Equal(t, 2, res.Pages)
	for _, call := range runner.calls {
		assert.NotContains(t, call, "pdftoppm")
	}
}

func TestRecognize_ScannedPDFRasterizesPages(t *testing.T) {
	runner := healthyRunner()
	runner.handlers["pdftotext"] = func([]string) ([]byte, []byte, error) {
		// image-only PDF yields almost no embedded text
		return []byte("  \n"), nil, nil
	}
	runner.handlers["pdftoppm"] = func(args []string) ([]byte, []byte, error) {
		prefix := args[len(args)-1]
		for i := 1; i <= 2; i++ {
			path := fmt.Sprintf("%s-%d.png", prefix, i)
			if err := os.WriteFile(path, []byte("png"), 0o600); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	}

	e, err := newTesseractEngine(testConfig(t), runner, nil)
	require.NoError(t, err)

	res, err := e.Recognize(context.Background(), []byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.Contains(t, res.Text, "Rechnung RE-1")

	var ocrCalls int
	for _, call := range runner.calls {
		if strings.Contains(call, "page-") && strings.Contains(call, "stdout") {
			ocrCalls++
		}
	}
	assert.Equal(t, 2, ocrCalls)
}

func TestRecognize_TesseractFailureSurfaces(t *testing.T) {
	runner := healthyRunner()
	e, err := newTesseractEngine(testConfig(t), runner, nil)
	require.NoError(t, err)

	runner.handlers["tesseract"] = func(args []string) ([]byte, []byte, error) {
		return nil, []byte("Error in pixReadStream"), errors.New("exit status 1")
	}

	_, err = e.Recognize(context.Background(), []byte("junk"), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tesseract")
}

func TestNormalize(t *testing.T) {
	in := "Zeile 1\r\nZeile\t\t2   mit  Raum\r\n\n\n\n\nEnde  \n"
	out := normalize(in)
	assert.Equal(t, "Zeile 1\nZeile 2 mit Raum\n\nEnde", out)
}
