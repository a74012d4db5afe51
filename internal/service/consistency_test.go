package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/klaimedis/engine/internal/domain"
)

func TestValidateFullyConsistentClaim(t *testing.T) {
	validator := NewValidator(newTestStore(t), testLogger())

	result := validator.Validate("J18.9", []string{"93.96"}, []string{"Ceftriaxone inj"})

	assert.Equal(t, domain.TierMatch, result.DxTx.Tier)
	assert.Equal(t, domain.TierMatch, result.DxDrug.Tier)
	assert.Equal(t, domain.TierMatch, result.TxDrug.Tier)
	assert.Equal(t, 3.0, result.Score)
	assert.Equal(t, domain.AggregateHigh, result.Tier)
}

func TestValidateEmptyProcedures(t *testing.T) {
	validator := NewValidator(newTestStore(t), testLogger())

	result := validator.Validate("J18.9", nil, []string{"ceftriaxone"})

	assert.Equal(t, domain.TierMismatch, result.DxTx.Tier)
	assert.True(t, result.DxTx.EmptyActual)

	// Without procedures there are no procedure-derived drug expectations
	// either; the present drugs cannot match them.
	assert.Equal(t, domain.TierMismatch, result.TxDrug.Tier)
	assert.False(t, result.TxDrug.EmptyActual)

	assert.Equal(t, domain.TierMatch, result.DxDrug.Tier)
	assert.Equal(t, 1.0, result.Score)
	assert.Equal(t, domain.AggregateLow, result.Tier)
}

func TestValidatePartialDrugOverlap(t *testing.T) {
	validator := NewValidator(newTestStore(t), testLogger())

	// One of two drugs is expected: ratio 0.5 sits below both drug
	// thresholds, so both relations grade partial.
	result := validator.Validate("J18.9", []string{"93.96"}, []string{"ceftriaxone", "metformin"})

	assert.Equal(t, domain.TierPartial, result.DxDrug.Tier)
	assert.InDelta(t, 0.5, result.DxDrug.Ratio, 1e-9)

	assert.Equal(t, domain.TierPartial, result.TxDrug.Tier)
	assert.InDelta(t, 0.5, result.TxDrug.Ratio, 1e-9)
}

func TestValidateUnmappedDiagnosis(t *testing.T) {
	validator := NewValidator(newTestStore(t), testLogger())

	// A09 has no mapping rows; every populated relation mismatches.
	result := validator.Validate("A09", []string{"93.96"}, []string{"ceftriaxone"})

	assert.Equal(t, domain.TierMismatch, result.DxTx.Tier)
	assert.Zero(t, result.DxTx.Matched)
	assert.Equal(t, domain.TierMismatch, result.DxDrug.Tier)
	assert.Equal(t, domain.AggregateLow, result.Tier)
}

func TestValidateDeduplicatesInputs(t *testing.T) {
	validator := NewValidator(newTestStore(t), testLogger())

	// Duplicate lines and dosage-form variants collapse before scoring.
	result := validator.Validate("J18.9",
		[]string{"93.96", "93.96"},
		[]string{"Ceftriaxone", "ceftriaxone inj", "CEFTRIAXONE TAB"})

	assert.Equal(t, 1, result.DxTx.Actual)
	assert.Equal(t, 1, result.DxDrug.Actual)
	assert.Equal(t, 3.0, result.Score)
}

func TestValidateDxTxMonotonic(t *testing.T) {
	validator := NewValidator(newTestStore(t), testLogger())

	// Adding an expected procedure never lowers the dx_tx ratio relative
	// to the same claim without it.
	one := validator.Validate("J18.9", []string{"93.96", "87.44"}, nil)
	two := validator.Validate("J18.9", []string{"93.96", "96.04"}, nil)

	assert.GreaterOrEqual(t, two.DxTx.Ratio, one.DxTx.Ratio)
	assert.Equal(t, domain.TierMatch, two.DxTx.Tier)
	assert.Equal(t, domain.TierPartial, one.DxTx.Tier)
}

func TestValidateTierBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		ratio    float64
		thresh   float64
		expected domain.RelationTier
	}{
		{"exactly at threshold is partial", 0.80, DxTxMatchThreshold, domain.TierPartial},
		{"above threshold matches", 0.81, DxTxMatchThreshold, domain.TierMatch},
		{"zero mismatches", 0.0, DxTxMatchThreshold, domain.TierMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual := make(map[string]struct{})
			expected := make(map[string]struct{})
			// Build sets producing the desired ratio out of 100 items.
			for i := 0; i < 100; i++ {
				key := string(rune('a'+i%26)) + string(rune('0'+i/26))
				actual[key] = struct{}{}
				if float64(len(expected)) < tt.ratio*100 {
					expected[key] = struct{}{}
				}
			}
			rel := scoreRelation(domain.RelationDxTx, actual, expected, tt.thresh)
			assert.Equal(t, tt.expected, rel.Tier)
		})
	}
}
