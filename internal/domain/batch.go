package domain

// BatchStatus tells a caller whether a batch item carries a real
// classification or a degraded default.
type BatchStatus string

const (
	BatchClassified      BatchStatus = "classified"
	BatchFallbackDefault BatchStatus = "fallback_default"
)

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchClassified, BatchFallbackDefault:
		return true
	default:
		return false
	}
}

func (s BatchStatus) String() string {
	return string(s)
}

// FormularyStatus classifies a drug or procedure against the formulary
// compliance reference.
type FormularyStatus string

const (
	FormularyListed     FormularyStatus = "listed"
	FormularyRestricted FormularyStatus = "restricted"
	FormularyUnlisted   FormularyStatus = "unlisted"
	// FormularyUnknown is the degraded default applied when the external
	// classification could not be obtained.
	FormularyUnknown FormularyStatus = "unknown"
)

func (s FormularyStatus) IsValid() bool {
	switch s {
	case FormularyListed, FormularyRestricted, FormularyUnlisted, FormularyUnknown:
		return true
	default:
		return false
	}
}

func (s FormularyStatus) String() string {
	return string(s)
}

// BatchValidationItem is one unit of work for the batch orchestrator.
// Items are identified by position; the output list always has the same
// length and order as the input list.
type BatchValidationItem struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Domain DomainTag `json:"domain"`
}

// BatchValidationResult is the per-item outcome of a batch validation
// round. Status BatchFallbackDefault marks items whose classification was
// degraded rather than dropped.
type BatchValidationResult struct {
	Index          int             `json:"index"`
	ID             string          `json:"id"`
	Status         BatchStatus     `json:"status"`
	Classification FormularyStatus `json:"classification"`
	Restriction    string          `json:"restriction,omitempty"`
}

// FallbackResult builds the degraded outcome for an item the external
// provider did not answer for.
func FallbackResult(index int, item BatchValidationItem) BatchValidationResult {
	return BatchValidationResult{
		Index:          index,
		ID:             item.ID,
		Status:         BatchFallbackDefault,
		Classification: FormularyUnknown,
	}
}
