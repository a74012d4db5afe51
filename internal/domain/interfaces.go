package domain

import "context"

// Resolver maps a free-text term to a canonical code through the layered
// resolution pipeline.
type Resolver interface {
	Resolve(ctx context.Context, raw string, tag DomainTag) (*ResolutionResult, error)
}

// Browser exposes hierarchical code browsing over the reference store.
type Browser interface {
	BrowseCategories(query string) []HeadGroup
	BrowseDetails(headKey string) []CodeEntry
}

// ConsistencyValidator scores a diagnosis against its procedures and drugs.
// Implementations are pure: no I/O, mapping tables already resident.
type ConsistencyValidator interface {
	Validate(diagnosisCode string, procedureCodes, drugIDs []string) ConsistencyResult
}

// BatchValidator classifies a batch of items in one external round trip,
// degrading to fallback defaults on partial or total provider failure.
type BatchValidator interface {
	ValidateBatch(ctx context.Context, items []BatchValidationItem) []BatchValidationResult
}

// ClaimAnalyzer is the composed entry point consumed by the routing layer.
type ClaimAnalyzer interface {
	AnalyzeClaim(ctx context.Context, input ClaimInput) (*ClaimAnalysis, error)
}

// AnalysisCache stores completed claim analyses keyed by their normalized
// request signature. Get must treat expired entries as absent; backing
// failures degrade to always-miss and never fail the request.
type AnalysisCache interface {
	Get(ctx context.Context, key string) (*ClaimAnalysis, bool)
	Put(ctx context.Context, key string, analysis *ClaimAnalysis)
}
