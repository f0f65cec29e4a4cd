// Package errors defines the stable error taxonomy shared by all apikb
// components. File-level extraction failures are never represented here;
// those are recorded per file in the manifest and surfaced as warnings.
package errors

import (
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ManifestStale indicates the manifest schema version does not match the
	// reader's expected version; callers should trigger a full regeneration
	ManifestStale ErrorCode = "MANIFEST_STALE"
	// ManifestCorrupt indicates the manifest file failed structural validation
	ManifestCorrupt ErrorCode = "MANIFEST_CORRUPT"
	// ManifestMissing indicates no manifest has been generated yet
	ManifestMissing ErrorCode = "MANIFEST_MISSING"
	// EmbeddingsUnavailable indicates the embedding backend is not reachable.
	// Exact lookups keep working; only semantic search is disabled.
	EmbeddingsUnavailable ErrorCode = "EMBEDDINGS_UNAVAILABLE"
	// IndexStale indicates the vector index was built from a different
	// manifest version than the current one
	IndexStale ErrorCode = "INDEX_STALE"
	// IndexMissing indicates no vector index has been built
	IndexMissing ErrorCode = "INDEX_MISSING"
	// ConfigInvalid indicates invalid configuration values
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// ScanFailed indicates the file walk itself failed (not a per-file error)
	ScanFailed ErrorCode = "SCAN_FAILED"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// KbError represents an apikb error with a stable code and message
type KbError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new KbError
func New(code ErrorCode, message string, cause error) *KbError {
	return &KbError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *KbError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *KbError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *KbError) WithDetails(details interface{}) *KbError {
	e.Details = details
	return e
}

// CodeOf returns the ErrorCode carried by err, or InternalError when err is
// not a KbError.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if kb, ok := err.(*KbError); ok {
		return kb.Code
	}
	return InternalError
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if kb, ok := err.(*KbError); ok && kb.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
