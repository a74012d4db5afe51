package service

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/klaimedis/engine/internal/domain"
	"github.com/klaimedis/engine/internal/reference"
)

// Per-relation match thresholds. The asymmetry is a clinical-tolerance
// product decision carried over from the claim review practice, not an
// algorithmic derivation; keep them as named constants.
const (
	DxTxMatchThreshold   = 0.80
	DxDrugMatchThreshold = 0.70
	TxDrugMatchThreshold = 0.50
)

// Aggregate tier cutoffs over the 0.0-3.0 score range.
const (
	HighTierScore   = 2.5
	MediumTierScore = 1.5
)

// Validator scores the mutual consistency of a diagnosis, its procedures
// and its drugs against the reference mapping tables. Pure: the tables
// are resident in the store and no I/O happens here.
type Validator struct {
	store *reference.Store
	log   *logrus.Logger
}

// NewValidator creates a consistency validator over the given store.
func NewValidator(store *reference.Store, logger *logrus.Logger) *Validator {
	return &Validator{store: store, log: logger}
}

// Validate scores the three relations and aggregates them.
func (v *Validator) Validate(diagnosisCode string, procedureCodes, drugIDs []string) domain.ConsistencyResult {
	procedures := canonicalSet(procedureCodes, func(s string) string {
		return strings.ToUpper(strings.TrimSpace(s))
	})
	drugs := canonicalSet(drugIDs, domain.CanonicalDrugID)

	expectedTx, _ := v.store.ExpectedProcedures(diagnosisCode)
	expectedDrugs, _ := v.store.ExpectedDrugs(diagnosisCode)

	// TxDrug expectations are the union over the claim's procedures.
	expectedTxDrugs := make(map[string]struct{})
	for proc := range procedures {
		if set, ok := v.store.ExpectedDrugsForProcedure(proc); ok {
			for d := range set {
				expectedTxDrugs[d] = struct{}{}
			}
		}
	}

	result := domain.ConsistencyResult{
		DxTx:   scoreRelation(domain.RelationDxTx, procedures, expectedTx, DxTxMatchThreshold),
		DxDrug: scoreRelation(domain.RelationDxDrug, drugs, expectedDrugs, DxDrugMatchThreshold),
		TxDrug: scoreRelation(domain.RelationTxDrug, drugs, expectedTxDrugs, TxDrugMatchThreshold),
	}

	result.Score = result.DxTx.Tier.Weight() + result.DxDrug.Tier.Weight() + result.TxDrug.Tier.Weight()
	switch {
	case result.Score >= HighTierScore:
		result.Tier = domain.AggregateHigh
	case result.Score >= MediumTierScore:
		result.Tier = domain.AggregateMedium
	default:
		result.Tier = domain.AggregateLow
	}

	v.log.WithField("diagnosis", diagnosisCode).WithFields(result.LogFields()).Debug("Consistency scored")

	return result
}

// scoreRelation computes matched/actual for one relation. An empty actual
// set can never match, whatever the expectation; a missing mapping row
// means an empty expected set and flows into the same mismatch path.
func scoreRelation(kind domain.RelationKind, actual, expected map[string]struct{}, matchThreshold float64) domain.ConsistencyRelation {
	rel := domain.ConsistencyRelation{
		Kind:     kind,
		Expected: len(expected),
		Actual:   len(actual),
	}

	if len(actual) == 0 {
		rel.EmptyActual = true
		rel.Tier = domain.TierMismatch
		return rel
	}

	for item := range actual {
		if _, ok := expected[item]; ok {
			rel.Matched++
		}
	}
	rel.Ratio = float64(rel.Matched) / float64(rel.Actual)

	switch {
	case rel.Ratio > matchThreshold:
		rel.Tier = domain.TierMatch
	case rel.Ratio > 0:
		rel.Tier = domain.TierPartial
	default:
		rel.Tier = domain.TierMismatch
	}
	return rel
}

// canonicalSet deduplicates inputs under a canonicalization, dropping
// blanks.
func canonicalSet(items []string, canon func(string) string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		c := canon(item)
		if c == "" {
			continue
		}
		set[c] = struct{}{}
	}
	return set
}
