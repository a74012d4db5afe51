package domain

// ResolutionCandidate is one possible canonical mapping for a term.
// Validated is true only when the candidate's code exists in the reference
// store; unvalidated candidates are never surfaced to callers.
type ResolutionCandidate struct {
	Entry      CodeEntry        `json:"entry"`
	Confidence int              `json:"confidence"`
	Source     ResolutionSource `json:"source"`
	Validated  bool             `json:"validated"`
}

// ResolutionResult is the outcome of resolving one free-text term.
//
// Exactly one of the three shapes applies:
//   - StatusResolved: Entry, Confidence and Source are set.
//   - StatusAmbiguous: Candidates holds two or more validated options.
//   - StatusNotResolved: Hint carries an actionable caller-facing message.
type ResolutionResult struct {
	Status     ResolutionStatus      `json:"status"`
	Term       Term                  `json:"term"`
	Domain     DomainTag             `json:"domain"`
	Entry      *CodeEntry            `json:"entry,omitempty"`
	Confidence int                   `json:"confidence,omitempty"`
	Source     ResolutionSource      `json:"source,omitempty"`
	Candidates []ResolutionCandidate `json:"candidates,omitempty"`
	Hint       string                `json:"hint,omitempty"`
}

// Resolved reports whether the result carries a single validated entry.
func (r *ResolutionResult) Resolved() bool {
	return r.Status == StatusResolved && r.Entry != nil
}

// Code returns the resolved code, or "" when the term did not resolve to a
// single entry.
func (r *ResolutionResult) Code() string {
	if r.Resolved() {
		return r.Entry.Code
	}
	return ""
}

// LogFields returns structured logging fields for resolution audit lines.
func (r *ResolutionResult) LogFields() map[string]any {
	fields := map[string]any{
		"status": r.Status.String(),
		"term":   r.Term.Normalized,
		"domain": r.Domain.String(),
	}
	if r.Resolved() {
		fields["code"] = r.Entry.Code
		fields["confidence"] = r.Confidence
		fields["source"] = r.Source.String()
	}
	if r.Status == StatusAmbiguous {
		fields["candidates"] = len(r.Candidates)
	}
	return fields
}

// NotResolved builds the typed not-resolved outcome with a caller-facing
// hint. It is a result, not an error: callers render it, they never fail.
func NotResolved(term Term, tag DomainTag) *ResolutionResult {
	return &ResolutionResult{
		Status: StatusNotResolved,
		Term:   term,
		Domain: tag,
		Hint:   "term could not be matched to a standard code; rephrase it or provide more detail",
	}
}
