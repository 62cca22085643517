package models

import "errors"

var (
	// ErrExtractionFailed means upstream text extraction produced empty or unreadable input.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrEmbeddingFailed means the embedding provider failed after the single retry.
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrDuplicateKey means a chunk id was added to the vector index twice.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrGenerationFailed means every configured LLM provider failed, or none is configured.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrNotFound means the requested document or chunk does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest means a caller supplied arguments that violate an operation's contract.
	ErrInvalidRequest = errors.New("invalid request")
)
