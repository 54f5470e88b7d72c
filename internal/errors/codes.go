// Package errors provides structured error handling for stamzoek.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Store/IO errors
//   - 3XX: Collaborator (network) errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStore indicates index store and disk I/O errors.
	CategoryStore Category = "STORE"
	// CategoryCollaborator indicates errors from external collaborators
	// (embedding service, answering service).
	CategoryCollaborator Category = "COLLABORATOR"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but the batch can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Store errors (200-299)
	ErrCodeStoreOpen     = "ERR_201_STORE_OPEN"
	ErrCodeStoreLocked   = "ERR_202_STORE_LOCKED"
	ErrCodeCorruptIndex  = "ERR_203_CORRUPT_INDEX"
	ErrCodeChunkNotFound = "ERR_204_CHUNK_NOT_FOUND"

	// Collaborator errors (300-399)
	ErrCodeEmbedTimeout     = "ERR_301_EMBED_TIMEOUT"
	ErrCodeEmbedUnavailable = "ERR_302_EMBED_UNAVAILABLE"
	ErrCodeAnswerFailed     = "ERR_303_ANSWER_FAILED"
	ErrCodeEmbedFailed      = "ERR_304_EMBED_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty    = "ERR_402_QUERY_EMPTY"
	ErrCodeInvalidPage   = "ERR_403_INVALID_PAGE"
	ErrCodeDimMismatch   = "ERR_404_DIMENSION_MISMATCH"
	ErrCodeUnknownEntity = "ERR_405_UNKNOWN_ENTITY"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeSignatureFailed  = "ERR_502_SIGNATURE_FAILED"
	ErrCodeRetrievalFailed  = "ERR_503_RETRIEVAL_FAILED"
	ErrCodeChunkingFailed   = "ERR_504_CHUNKING_FAILED"
	ErrCodeIngestFailed     = "ERR_505_INGEST_FAILED"
	ErrCodeGraphWalkStopped = "ERR_506_GRAPH_WALK_STOPPED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStore
	case '3':
		return CategoryCollaborator
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from error code.
// Collaborator and signature errors degrade; store and config errors abort.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryConfig, CategoryStore:
		return SeverityFatal
	case CategoryCollaborator:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// retryableCodes lists codes where retrying the operation can succeed.
var retryableCodes = map[string]bool{
	ErrCodeEmbedTimeout:     true,
	ErrCodeEmbedUnavailable: true,
	ErrCodeAnswerFailed:     true,
	ErrCodeStoreLocked:      true,
}

// isRetryableCode reports whether the given code marks a retryable error.
func isRetryableCode(code string) bool {
	return retryableCodes[code]
}
