package types

import "errors"

// Error taxonomy shared by the embedder, searchers and aggregator.
var (
	// ErrInvalidInput is returned for empty or malformed queries. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderUnavailable covers network failures and 5xx/429 responses from the
	// embedding provider. Retried with backoff before it surfaces.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrProviderRejected covers 4xx responses. Surfaced immediately.
	ErrProviderRejected = errors.New("embedding provider rejected request")

	// ErrSourceUnavailable reports a failing corpus index. The aggregator drops the
	// source instead of failing the query.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrAllSourcesUnavailable is returned when every selected source failed. It is
	// distinct from a successful query with no matches.
	ErrAllSourcesUnavailable = errors.New("all sources unavailable")
)
