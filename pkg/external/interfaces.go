// Package external contains the client for the AI normalization and
// classification provider. Every field of a provider reply is untrusted
// input: replies are schema-validated before anything downstream sees
// them, and calls are bounded by timeouts, a rate limiter and a circuit
// breaker.
package external

import "context"

// NormalizationCandidate is one canonical-name suggestion from the
// provider, ordered by likelihood. Candidates are suggestions only; the
// resolver re-validates each one against the reference store and discards
// anything the store does not know.
type NormalizationCandidate struct {
	Name       string  `json:"name"`
	Likelihood float64 `json:"likelihood"`
}

// NormalizationReply is a validated normalization response.
type NormalizationReply struct {
	Candidates []NormalizationCandidate `json:"candidates"`
}

// BatchItem is one unit in a batched classification request. Index ties
// the reply back to the caller's ordering.
type BatchItem struct {
	Index  int    `json:"index"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// BatchResult is one validated classification from a batch reply.
type BatchResult struct {
	Index          int    `json:"index"`
	Classification string `json:"classification"`
	Restriction    string `json:"restriction,omitempty"`
}

// BatchReply is a validated batch classification response. Results may
// cover fewer indexes than were requested; callers fill the gaps with
// fallback defaults.
type BatchReply struct {
	Results []BatchResult `json:"results"`
}

// Provider is the external AI normalization/classification collaborator.
type Provider interface {
	NormalizeTerm(ctx context.Context, term, domain string) (*NormalizationReply, error)
	ClassifyBatch(ctx context.Context, items []BatchItem) (*BatchReply, error)
}
