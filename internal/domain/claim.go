package domain

import "time"

// ClaimInput is the composed analysis request: one diagnosis plus the
// procedure and drug lines of the claim.
type ClaimInput struct {
	DiagnosisTerm  string   `json:"diagnosis_term"`
	ProcedureTerms []string `json:"procedure_terms"`
	DrugTerms      []string `json:"drug_terms"`
}

// ClaimAnalysis is the composed analysis result. Procedures and Drugs
// preserve the order of the input lines regardless of sub-task completion
// order.
type ClaimAnalysis struct {
	RequestID      string                  `json:"request_id"`
	Cached         bool                    `json:"cached"`
	Diagnosis      ResolutionResult        `json:"diagnosis"`
	Procedures     []ResolutionResult      `json:"procedures"`
	Drugs          []ResolutionResult      `json:"drugs"`
	Consistency    ConsistencyResult       `json:"consistency"`
	Formulary      []BatchValidationResult `json:"formulary"`
	ProcessingTime time.Duration           `json:"processing_time"`
	AnalyzedAt     time.Time               `json:"analyzed_at"`
}
