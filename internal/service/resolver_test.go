package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klaimedis/engine/internal/domain"
	"github.com/klaimedis/engine/pkg/external"
)

func TestResolveRejectsBadInput(t *testing.T) {
	resolver := NewTermResolver(newTestStore(t), nil, ResolverConfig{}, testLogger())

	_, err := resolver.Resolve(context.Background(), "   ", domain.DomainDiagnosis)
	assert.ErrorIs(t, err, domain.ErrEmptyTerm)

	_, err = resolver.Resolve(context.Background(), "pneumonia", domain.DomainTag("lab"))
	assert.ErrorIs(t, err, domain.ErrInvalidDomain)
}

func TestResolveExactMatch(t *testing.T) {
	provider := &fakeProvider{}
	resolver := NewTermResolver(newTestStore(t), provider, ResolverConfig{}, testLogger())

	result, err := resolver.Resolve(context.Background(), "  Pneumonia   UNSPECIFIED ", domain.DomainDiagnosis)
	require.NoError(t, err)

	assert.True(t, result.Resolved())
	assert.Equal(t, "J18.9", result.Code())
	assert.Equal(t, 100, result.Confidence)
	assert.Equal(t, domain.SourceExact, result.Source)

	// An exact hit never reaches the external layer.
	assert.Zero(t, provider.normalizeCalls)
}

func TestResolveDictionaryTranslation(t *testing.T) {
	provider := &fakeProvider{}
	resolver := NewTermResolver(newTestStore(t), provider, ResolverConfig{}, testLogger())

	result, err := resolver.Resolve(context.Background(), "paru2 basah", domain.DomainDiagnosis)
	require.NoError(t, err)

	assert.True(t, result.Resolved())
	assert.Equal(t, "J18.9", result.Code())
	assert.Equal(t, 100, result.Confidence)
	assert.Equal(t, domain.SourceDictionary, result.Source)
	assert.Zero(t, provider.normalizeCalls)
}

func TestResolveAutocorrect(t *testing.T) {
	provider := &fakeProvider{}
	resolver := NewTermResolver(newTestStore(t), provider, ResolverConfig{}, testLogger())

	result, err := resolver.Resolve(context.Background(), "pneumonia unspecifed", domain.DomainDiagnosis)
	require.NoError(t, err)

	assert.True(t, result.Resolved())
	assert.Equal(t, "J18.9", result.Code())
	assert.Equal(t, domain.SourceAutocorrect, result.Source)
	assert.GreaterOrEqual(t, result.Confidence, 84)
	assert.Less(t, result.Confidence, 100)
	assert.Zero(t, provider.normalizeCalls)
}

func TestResolveAutocorrectThroughDictionary(t *testing.T) {
	resolver := NewTermResolver(newTestStore(t), nil, ResolverConfig{}, testLogger())

	// A typo in the colloquial key still lands on the canonical code.
	result, err := resolver.Resolve(context.Background(), "paru2 basa", domain.DomainDiagnosis)
	require.NoError(t, err)

	assert.True(t, result.Resolved())
	assert.Equal(t, "J18.9", result.Code())
	assert.Equal(t, domain.SourceAutocorrect, result.Source)
}

func TestResolveIdempotent(t *testing.T) {
	resolver := NewTermResolver(newTestStore(t), nil, ResolverConfig{}, testLogger())

	first, err := resolver.Resolve(context.Background(), "paru2 basah", domain.DomainDiagnosis)
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), "paru2 basah", domain.DomainDiagnosis)
	require.NoError(t, err)

	assert.Equal(t, first.Code(), second.Code())
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Source, second.Source)
}

func TestResolveAISingleValidatedCandidate(t *testing.T) {
	provider := &fakeProvider{
		normalizeReply: &external.NormalizationReply{
			Candidates: []external.NormalizationCandidate{
				{Name: "Pneumonia unspecified", Likelihood: 0.92},
				{Name: "Walking pneumonia syndrome", Likelihood: 0.85},
			},
		},
	}
	resolver := NewTermResolver(newTestStore(t), provider, ResolverConfig{}, testLogger())

	result, err := resolver.Resolve(context.Background(), "radang paru kronis berat", domain.DomainDiagnosis)
	require.NoError(t, err)

	// The hallucinated second candidate is not in the reference store and
	// never surfaces; the single survivor is accepted.
	assert.True(t, result.Resolved())
	assert.Equal(t, "J18.9", result.Code())
	assert.Equal(t, domain.SourceAIValidated, result.Source)
	assert.Equal(t, 95, result.Confidence)
	assert.Equal(t, 1, provider.normalizeCalls)
}

func TestResolveAIAmbiguous(t *testing.T) {
	provider := &fakeProvider{
		normalizeReply: &external.NormalizationReply{
			Candidates: []external.NormalizationCandidate{
				{Name: "Pneumonia unspecified", Likelihood: 0.8},
				{Name: "Bronchopneumonia", Likelihood: 0.7},
			},
		},
	}
	resolver := NewTermResolver(newTestStore(t), provider, ResolverConfig{}, testLogger())

	result, err := resolver.Resolve(context.Background(), "radang paru kronis berat", domain.DomainDiagnosis)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAmbiguous, result.Status)
	assert.False(t, result.Resolved())
	require.Len(t, result.Candidates, 2)
	for _, cand := range result.Candidates {
		assert.True(t, cand.Validated)
	}
	assert.Equal(t, "J18.9", result.Candidates[0].Entry.Code)
}

func TestResolveAIAllCandidatesHallucinated(t *testing.T) {
	provider := &fakeProvider{
		normalizeReply: &external.NormalizationReply{
			Candidates: []external.NormalizationCandidate{
				{Name: "Imaginary disease one", Likelihood: 0.9},
				{Name: "Imaginary disease two", Likelihood: 0.8},
			},
		},
	}
	resolver := NewTermResolver(newTestStore(t), provider, ResolverConfig{}, testLogger())

	result, err := resolver.Resolve(context.Background(), "radang paru kronis berat", domain.DomainDiagnosis)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusNotResolved, result.Status)
	assert.Empty(t, result.Candidates)
	assert.NotEmpty(t, result.Hint)
}

func TestResolveProviderFailureDegrades(t *testing.T) {
	provider := &fakeProvider{normalizeErr: errors.New("connection refused")}
	resolver := NewTermResolver(newTestStore(t), provider, ResolverConfig{}, testLogger())

	result, err := resolver.Resolve(context.Background(), "radang paru kronis berat", domain.DomainDiagnosis)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusNotResolved, result.Status)
}

func TestResolveNilProviderSkipsAILayer(t *testing.T) {
	resolver := NewTermResolver(newTestStore(t), nil, ResolverConfig{}, testLogger())

	result, err := resolver.Resolve(context.Background(), "radang paru kronis berat", domain.DomainDiagnosis)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusNotResolved, result.Status)
}

func TestResolveDeduplicatesAICandidates(t *testing.T) {
	provider := &fakeProvider{
		normalizeReply: &external.NormalizationReply{
			Candidates: []external.NormalizationCandidate{
				{Name: "Pneumonia unspecified", Likelihood: 0.9},
				{Name: "PNEUMONIA UNSPECIFIED", Likelihood: 0.85},
			},
		},
	}
	resolver := NewTermResolver(newTestStore(t), provider, ResolverConfig{}, testLogger())

	result, err := resolver.Resolve(context.Background(), "radang paru kronis berat", domain.DomainDiagnosis)
	require.NoError(t, err)

	// Both rows name the same code, so this is a single-candidate accept,
	// not an ambiguity.
	assert.True(t, result.Resolved())
	assert.Equal(t, "J18.9", result.Code())
}

func TestResolverStats(t *testing.T) {
	resolver := NewTermResolver(newTestStore(t), nil, ResolverConfig{}, testLogger())
	ctx := context.Background()

	resolver.Resolve(ctx, "pneumonia unspecified", domain.DomainDiagnosis)
	resolver.Resolve(ctx, "paru2 basah", domain.DomainDiagnosis)
	resolver.Resolve(ctx, "pneumonia unspecifed", domain.DomainDiagnosis)
	resolver.Resolve(ctx, "radang paru kronis berat", domain.DomainDiagnosis)

	stats := resolver.GetStats()
	assert.Equal(t, int64(1), stats.Exact)
	assert.Equal(t, int64(1), stats.Dictionary)
	assert.Equal(t, int64(1), stats.Autocorrect)
	assert.Equal(t, int64(1), stats.NotResolved)
}
