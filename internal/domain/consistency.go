package domain

// RelationKind names one of the three pairwise clinical relations scored
// by the consistency validator.
type RelationKind string

const (
	RelationDxTx   RelationKind = "dx_tx"
	RelationDxDrug RelationKind = "dx_drug"
	RelationTxDrug RelationKind = "tx_drug"
)

func (k RelationKind) IsValid() bool {
	switch k {
	case RelationDxTx, RelationDxDrug, RelationTxDrug:
		return true
	default:
		return false
	}
}

func (k RelationKind) String() string {
	return string(k)
}

// RelationTier grades a single relation.
type RelationTier string

const (
	TierMatch    RelationTier = "match"
	TierPartial  RelationTier = "partial"
	TierMismatch RelationTier = "mismatch"
)

func (t RelationTier) IsValid() bool {
	switch t {
	case TierMatch, TierPartial, TierMismatch:
		return true
	default:
		return false
	}
}

func (t RelationTier) String() string {
	return string(t)
}

// Weight returns the tier's contribution to the aggregate score.
func (t RelationTier) Weight() float64 {
	switch t {
	case TierMatch:
		return 1.0
	case TierPartial:
		return 0.5
	default:
		return 0.0
	}
}

// AggregateTier grades the whole triad.
type AggregateTier string

const (
	AggregateHigh   AggregateTier = "high"
	AggregateMedium AggregateTier = "medium"
	AggregateLow    AggregateTier = "low"
)

func (t AggregateTier) IsValid() bool {
	switch t {
	case AggregateHigh, AggregateMedium, AggregateLow:
		return true
	default:
		return false
	}
}

func (t AggregateTier) String() string {
	return string(t)
}

// ConsistencyRelation is the scored outcome for one relation.
//
// EmptyActual distinguishes a mismatch caused by an empty input set from a
// mismatch caused by a non-overlapping one; callers message the two cases
// differently.
type ConsistencyRelation struct {
	Kind        RelationKind `json:"kind"`
	Matched     int          `json:"matched"`
	Expected    int          `json:"expected"`
	Actual      int          `json:"actual"`
	Ratio       float64      `json:"ratio"`
	Tier        RelationTier `json:"tier"`
	EmptyActual bool         `json:"empty_actual"`
}

// ConsistencyResult aggregates the three relations. Score ranges 0.0-3.0.
type ConsistencyResult struct {
	DxTx   ConsistencyRelation `json:"dx_tx"`
	DxDrug ConsistencyRelation `json:"dx_drug"`
	TxDrug ConsistencyRelation `json:"tx_drug"`
	Score  float64             `json:"score"`
	Tier   AggregateTier       `json:"tier"`
}

// LogFields returns structured logging fields for consistency audit lines.
func (c *ConsistencyResult) LogFields() map[string]any {
	return map[string]any{
		"score":        c.Score,
		"tier":         c.Tier.String(),
		"dx_tx_tier":   c.DxTx.Tier.String(),
		"dx_drug_tier": c.DxDrug.Tier.String(),
		"tx_drug_tier": c.TxDrug.Tier.String(),
	}
}
