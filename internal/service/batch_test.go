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

func TestValidateBatchLocalFormularyShortCircuit(t *testing.T) {
	provider := &fakeProvider{batchReply: &external.BatchReply{}}
	coordinator := NewBatchCoordinator(newTestStore(t), provider, BatchConfig{}, testLogger())

	results := coordinator.ValidateBatch(context.Background(), []domain.BatchValidationItem{
		{ID: "Ceftriaxone inj", Name: "Ceftriaxone", Domain: domain.DomainDrug},
	})

	require.Len(t, results, 1)
	assert.Equal(t, domain.BatchClassified, results[0].Status)
	assert.Equal(t, domain.FormularyListed, results[0].Classification)

	// Everything answered locally; no external round happened.
	assert.Zero(t, provider.batchCalls)
}

func TestValidateBatchMixedLocalAndRemote(t *testing.T) {
	provider := &fakeProvider{
		batchReply: &external.BatchReply{Results: []external.BatchResult{
			{Index: 1, Classification: "restricted", Restriction: "specialist approval"},
		}},
	}
	coordinator := NewBatchCoordinator(newTestStore(t), provider, BatchConfig{}, testLogger())

	results := coordinator.ValidateBatch(context.Background(), []domain.BatchValidationItem{
		{ID: "Ceftriaxone", Name: "Ceftriaxone", Domain: domain.DomainDrug},
		{ID: "Meropenem", Name: "Meropenem", Domain: domain.DomainDrug},
	})

	require.Len(t, results, 2)

	assert.Equal(t, domain.FormularyListed, results[0].Classification)
	assert.Equal(t, domain.FormularyRestricted, results[1].Classification)
	assert.Equal(t, "specialist approval", results[1].Restriction)

	// Only the unanswerable item went out, carrying its original index.
	assert.Equal(t, 1, provider.batchCalls)
	require.Len(t, provider.lastBatch, 1)
	assert.Equal(t, 1, provider.lastBatch[0].Index)
}

func TestValidateBatchTotalProviderFailure(t *testing.T) {
	provider := &fakeProvider{batchErr: errors.New("connection refused")}
	coordinator := NewBatchCoordinator(newTestStore(t), provider, BatchConfig{}, testLogger())

	items := []domain.BatchValidationItem{
		{ID: "Meropenem", Name: "Meropenem", Domain: domain.DomainDrug},
		{ID: "Ceftriaxone", Name: "Ceftriaxone", Domain: domain.DomainDrug},
		{ID: "Vancomycin", Name: "Vancomycin", Domain: domain.DomainDrug},
	}
	results := coordinator.ValidateBatch(context.Background(), items)

	// Output length and order always mirror the input; unanswered items
	// degrade instead of disappearing.
	require.Len(t, results, len(items))
	assert.Equal(t, domain.BatchFallbackDefault, results[0].Status)
	assert.Equal(t, domain.FormularyUnknown, results[0].Classification)
	assert.Equal(t, domain.BatchClassified, results[1].Status)
	assert.Equal(t, domain.BatchFallbackDefault, results[2].Status)

	for i, res := range results {
		assert.Equal(t, i, res.Index)
		assert.Equal(t, items[i].ID, res.ID)
	}
}

func TestValidateBatchPartialReply(t *testing.T) {
	provider := &fakeProvider{
		batchReply: &external.BatchReply{Results: []external.BatchResult{
			{Index: 0, Classification: "unlisted"},
		}},
	}
	coordinator := NewBatchCoordinator(newTestStore(t), provider, BatchConfig{}, testLogger())

	results := coordinator.ValidateBatch(context.Background(), []domain.BatchValidationItem{
		{ID: "Meropenem", Name: "Meropenem", Domain: domain.DomainDrug},
		{ID: "Vancomycin", Name: "Vancomycin", Domain: domain.DomainDrug},
	})

	require.Len(t, results, 2)
	assert.Equal(t, domain.FormularyUnlisted, results[0].Classification)
	assert.Equal(t, domain.BatchFallbackDefault, results[1].Status)
}

func TestValidateBatchNilProvider(t *testing.T) {
	coordinator := NewBatchCoordinator(newTestStore(t), nil, BatchConfig{}, testLogger())

	results := coordinator.ValidateBatch(context.Background(), []domain.BatchValidationItem{
		{ID: "Ceftriaxone", Name: "Ceftriaxone", Domain: domain.DomainDrug},
		{ID: "Meropenem", Name: "Meropenem", Domain: domain.DomainDrug},
	})

	require.Len(t, results, 2)
	assert.Equal(t, domain.BatchClassified, results[0].Status)
	assert.Equal(t, domain.BatchFallbackDefault, results[1].Status)
}

func TestValidateBatchEmptyInput(t *testing.T) {
	coordinator := NewBatchCoordinator(newTestStore(t), &fakeProvider{}, BatchConfig{}, testLogger())
	assert.Nil(t, coordinator.ValidateBatch(context.Background(), nil))
}
