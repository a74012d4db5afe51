// Package domain contains the core entities of the medical term resolution
// and clinical consistency engine: free-text terms, canonical code entries,
// resolution outcomes, consistency scores and batch validation records.
package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DomainTag identifies which clinical vocabulary a term belongs to.
type DomainTag string

const (
	DomainDiagnosis DomainTag = "diagnosis"
	DomainProcedure DomainTag = "procedure"
	DomainDrug      DomainTag = "drug"
)

// IsValid reports whether the tag names a known vocabulary.
func (d DomainTag) IsValid() bool {
	switch d {
	case DomainDiagnosis, DomainProcedure, DomainDrug:
		return true
	default:
		return false
	}
}

// String returns the string representation of the tag.
func (d DomainTag) String() string {
	return string(d)
}

// ResolutionSource records which layer of the resolution pipeline produced
// a candidate.
type ResolutionSource string

const (
	SourceExact       ResolutionSource = "exact"
	SourceDictionary  ResolutionSource = "dictionary"
	SourceAutocorrect ResolutionSource = "autocorrect"
	SourceAIValidated ResolutionSource = "ai_validated"
)

// IsValid reports whether the source names a known pipeline layer.
func (s ResolutionSource) IsValid() bool {
	switch s {
	case SourceExact, SourceDictionary, SourceAutocorrect, SourceAIValidated:
		return true
	default:
		return false
	}
}

func (s ResolutionSource) String() string {
	return string(s)
}

// ResolutionStatus is the outcome class of a resolution attempt.
type ResolutionStatus string

const (
	// StatusResolved means a single validated code entry was selected.
	StatusResolved ResolutionStatus = "resolved"
	// StatusAmbiguous means several validated candidates remain and the
	// caller must disambiguate. Never auto-picked.
	StatusAmbiguous ResolutionStatus = "ambiguous"
	// StatusNotResolved means no layer produced a validated candidate.
	StatusNotResolved ResolutionStatus = "not_resolved"
)

func (s ResolutionStatus) IsValid() bool {
	switch s {
	case StatusResolved, StatusAmbiguous, StatusNotResolved:
		return true
	default:
		return false
	}
}

func (s ResolutionStatus) String() string {
	return string(s)
}

// Term is a free-text clinical term together with its normalized form.
// Terms are created per request and never mutated.
type Term struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
	Language   string `json:"language,omitempty"`
}

// NewTerm builds a Term from raw input. Normalization lowercases, trims,
// collapses internal whitespace and strips diacritic marks so that lookups
// and cache keys are stable across typing variants.
func NewTerm(raw string) Term {
	return Term{Raw: raw, Normalized: NormalizeTerm(raw)}
}

// diacriticStripper removes combining marks after canonical decomposition.
var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeTerm returns the canonical lookup form of a free-text term.
func NormalizeTerm(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Join(strings.Fields(s), " ")
	if stripped, _, err := transform.String(diacriticStripper, s); err == nil {
		s = stripped
	}
	return s
}

// CanonicalDrugID normalizes a drug identifier for mapping lookups and
// cache signatures. Dosage-form suffixes carry no identity and are dropped.
func CanonicalDrugID(raw string) string {
	s := NormalizeTerm(raw)
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		if dosageFormTokens[f] {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// dosageFormTokens are pharmacy dosage-form markers commonly appended to
// drug names on claim lines.
var dosageFormTokens = map[string]bool{
	"tab":     true,
	"tablet":  true,
	"kaplet":  true,
	"caps":    true,
	"kapsul":  true,
	"inj":     true,
	"injeksi": true,
	"syr":     true,
	"sirup":   true,
	"drops":   true,
	"iv":      true,
}

// CodeEntry is one canonical code row from the reference dataset.
// Entries are loaded once at startup and shared read-only afterwards.
type CodeEntry struct {
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	HeadKey  string    `json:"head_key"`
	Category DomainTag `json:"category"`
}

// HeadKeyOf derives the head-group key for a hierarchical code: the short
// prefix before the subcode separator, capped at three characters per the
// ICD-style convention of the reference dataset.
func HeadKeyOf(code string) string {
	head, _, _ := strings.Cut(code, ".")
	if len(head) > 3 {
		head = head[:3]
	}
	return strings.ToUpper(head)
}

// HeadGroup is a browse result row: one top-level category with its
// representative name and member count.
type HeadGroup struct {
	HeadKey     string `json:"head_key"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`

	// Leaf marks a head with no subcodes. A leaf head is itself the
	// resolvable unit and Selected carries its entry directly, sparing
	// the caller a second disambiguation step.
	Leaf     bool       `json:"leaf"`
	Selected *CodeEntry `json:"selected,omitempty"`
}
