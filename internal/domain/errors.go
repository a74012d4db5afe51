package domain

import "errors"

// Sentinel errors for the engine. Per-request provider failures are
// recovered locally and surface as typed results, never as failed
// requests; only reference-load failures at startup are fatal.
var (
	ErrEmptyTerm           = errors.New("term cannot be empty")
	ErrInvalidDomain       = errors.New("invalid domain tag")
	ErrReferenceLoad       = errors.New("reference data load failed")
	ErrProviderUnavailable = errors.New("external provider unavailable")
	ErrMalformedReply      = errors.New("external provider reply failed validation")
)
