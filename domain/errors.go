package domain

import "errors"

var (
	// ErrInvalidConfiguration is returned for chunk size/overlap settings that
	// cannot produce progress, and other unusable settings.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrUpstreamUnavailable covers the document store and the vector store
	// being unreachable or answering with an error.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrAuthenticationFailed is returned when the credential exchange fails.
	ErrAuthenticationFailed = errors.New("authentication failed")

	ErrEmbeddingFailed  = errors.New("embedding failed")
	ErrGenerationFailed = errors.New("generation failed")

	// ErrGenerationUnavailable means no chat model is configured.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)
