package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTerm(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Pneumonia", "pneumonia"},
		{"trims whitespace", "  demam berdarah  ", "demam berdarah"},
		{"collapses internal whitespace", "demam   berdarah\tdengue", "demam berdarah dengue"},
		{"strips diacritics", "céfixime", "cefixime"},
		{"empty input", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTerm(tt.input))
		})
	}
}

func TestNormalizeTermIdempotent(t *testing.T) {
	inputs := []string{"Paru2 Basah", "  CEFTRIAXONE  Inj ", "démam"}
	for _, in := range inputs {
		once := NormalizeTerm(in)
		assert.Equal(t, once, NormalizeTerm(once))
	}
}

func TestCanonicalDrugID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"drops tablet marker", "Paracetamol Tab", "paracetamol"},
		{"drops injection marker", "Ceftriaxone inj", "ceftriaxone"},
		{"drops indonesian syrup marker", "Ambroxol Sirup", "ambroxol"},
		{"keeps dose strength", "amoxicillin 500mg kaplet", "amoxicillin 500mg"},
		{"no marker untouched", "metformin", "metformin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanonicalDrugID(tt.input))
		})
	}
}

func TestHeadKeyOf(t *testing.T) {
	tests := []struct {
		code     string
		expected string
	}{
		{"J18.9", "J18"},
		{"j18", "J18"},
		{"93.96", "93"},
		{"A09", "A09"},
		{"E11.65", "E11"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, HeadKeyOf(tt.code))
		})
	}
}

func TestDomainTagValidity(t *testing.T) {
	assert.True(t, DomainDiagnosis.IsValid())
	assert.True(t, DomainProcedure.IsValid())
	assert.True(t, DomainDrug.IsValid())
	assert.False(t, DomainTag("lab").IsValid())
}

func TestResolutionStatusValidity(t *testing.T) {
	assert.True(t, StatusResolved.IsValid())
	assert.True(t, StatusAmbiguous.IsValid())
	assert.True(t, StatusNotResolved.IsValid())
	assert.False(t, ResolutionStatus("maybe").IsValid())
}

func TestNotResolvedShape(t *testing.T) {
	result := NotResolved(NewTerm("xyzzy"), DomainDiagnosis)

	assert.Equal(t, StatusNotResolved, result.Status)
	assert.False(t, result.Resolved())
	assert.Empty(t, result.Code())
	assert.NotEmpty(t, result.Hint)
}

func TestRelationTierWeight(t *testing.T) {
	assert.Equal(t, 1.0, TierMatch.Weight())
	assert.Equal(t, 0.5, TierPartial.Weight())
	assert.Equal(t, 0.0, TierMismatch.Weight())
}

func TestFallbackResult(t *testing.T) {
	item := BatchValidationItem{ID: "ceftriaxone", Name: "Ceftriaxone", Domain: DomainDrug}
	result := FallbackResult(3, item)

	assert.Equal(t, 3, result.Index)
	assert.Equal(t, "ceftriaxone", result.ID)
	assert.Equal(t, BatchFallbackDefault, result.Status)
	assert.Equal(t, FormularyUnknown, result.Classification)
}
