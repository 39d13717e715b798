package constants

import "strings"

// AllowedMimeTypes holds the accepted upload content types for invoice documents.
var AllowedMimeTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/png":       {},
	"image/tiff":      {},
}

// Error codes returned in PipelineImportResult.Code.
const (
	CodeEngineUnavailable = "ENGINE_UNAVAILABLE"
	CodeDuplicateFile     = "DUPLICATE_FILE"
	CodeValidationError   = "VALIDATION_ERROR"
	CodeDuplicateInvoice  = "DUPLICATE_INVOICE"
	CodeCompanyNotFound   = "COMPANY_NOT_FOUND"
	CodeImportFailed      = "IMPORT_FAILED"
	CodeInternal          = "INTERNAL_ERROR"
)

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedMime reports whether the upload content type is accepted.
func IsAllowedMime(mime string) bool {
	_, ok := AllowedMimeTypes[strings.ToLower(strings.TrimSpace(mime))]
	return ok
}
