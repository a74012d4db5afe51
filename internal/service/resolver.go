// Package service implements the engine's term resolution pipeline,
// hierarchy browsing, consistency scoring, batch validation and the
// composed claim analyzer.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/klaimedis/engine/internal/domain"
	"github.com/klaimedis/engine/internal/reference"
	"github.com/klaimedis/engine/pkg/external"
)

// AutocorrectThreshold is the minimum similarity a fuzzy match must reach
// before the resolver accepts it as a typo correction.
const AutocorrectThreshold = 0.84

// aiAcceptConfidence is the confidence assigned to a single store-validated
// provider candidate.
const aiAcceptConfidence = 95

// ResolverConfig tunes the resolution pipeline.
type ResolverConfig struct {
	SimilarityThreshold float64
	ProviderTimeout     time.Duration
}

// ResolverStats counts resolutions per pipeline layer.
type ResolverStats struct {
	Exact       int64 `json:"exact"`
	Dictionary  int64 `json:"dictionary"`
	Autocorrect int64 `json:"autocorrect"`
	AIValidated int64 `json:"ai_validated"`
	Ambiguous   int64 `json:"ambiguous"`
	NotResolved int64 `json:"not_resolved"`
}

// TermResolver maps free-text terms to canonical codes through four
// layers: dictionary translation, canonical exact match, fuzzy typo
// correction, and AI normalization with store re-validation. Later layers
// run only when earlier ones produce nothing confident.
type TermResolver struct {
	store    *reference.Store
	provider external.Provider
	log      *logrus.Logger

	threshold       float64
	providerTimeout time.Duration

	// fuzzyCorpus holds, per domain, the sorted dictionary keys followed
	// by the canonical names. Built once; tie-breaking stays
	// deterministic because slice order is fixed.
	fuzzyCorpus map[domain.DomainTag][]string

	statsMu sync.Mutex
	stats   ResolverStats
}

// NewTermResolver creates the resolution pipeline. A nil provider disables
// the AI fallback layer; terms the local layers cannot place then resolve
// to the not-resolved outcome.
func NewTermResolver(store *reference.Store, provider external.Provider, config ResolverConfig, logger *logrus.Logger) *TermResolver {
	if config.SimilarityThreshold <= 0 || config.SimilarityThreshold > 1 {
		config.SimilarityThreshold = AutocorrectThreshold
	}
	if config.ProviderTimeout <= 0 {
		config.ProviderTimeout = 10 * time.Second
	}

	r := &TermResolver{
		store:           store,
		provider:        provider,
		log:             logger,
		threshold:       config.SimilarityThreshold,
		providerTimeout: config.ProviderTimeout,
		fuzzyCorpus:     make(map[domain.DomainTag][]string),
	}

	for _, tag := range []domain.DomainTag{domain.DomainDiagnosis, domain.DomainProcedure, domain.DomainDrug} {
		keys := make([]string, 0, len(store.DictionaryEntries(tag)))
		for k := range store.DictionaryEntries(tag) {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		r.fuzzyCorpus[tag] = append(keys, store.CanonicalNames()...)
	}

	return r
}

// Resolve runs the pipeline for one term.
func (r *TermResolver) Resolve(ctx context.Context, raw string, tag domain.DomainTag) (*domain.ResolutionResult, error) {
	term := domain.NewTerm(raw)
	if term.Normalized == "" {
		return nil, fmt.Errorf("resolving term: %w", domain.ErrEmptyTerm)
	}
	if !tag.IsValid() {
		return nil, fmt.Errorf("resolving term %q: %w", raw, domain.ErrInvalidDomain)
	}

	// Layer 1: dictionary translation. A hit does not return yet; the
	// translated name still has to exist in the reference store.
	name := term.Normalized
	source := domain.SourceExact
	if canonical, ok := r.store.Translate(tag, term.Normalized); ok {
		name = domain.NormalizeTerm(canonical)
		source = domain.SourceDictionary
	}

	// Layer 2: canonical-table exact match.
	if entry, ok := r.store.LookupName(name); ok {
		r.count(source)
		result := &domain.ResolutionResult{
			Status:     domain.StatusResolved,
			Term:       term,
			Domain:     tag,
			Entry:      entry,
			Confidence: 100,
			Source:     source,
		}
		r.log.WithFields(result.LogFields()).Debug("Term resolved locally")
		return result, nil
	}

	// Layer 3: fuzzy typo correction against dictionary keys and
	// canonical names.
	if result := r.autocorrect(term, tag); result != nil {
		r.count(domain.SourceAutocorrect)
		r.log.WithFields(result.LogFields()).Debug("Term resolved by autocorrect")
		return result, nil
	}

	// Layer 4: AI normalization with re-validation.
	return r.normalizeExternally(ctx, term, tag)
}

// GetStats returns a snapshot of per-layer resolution counters.
func (r *TermResolver) GetStats() ResolverStats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

func (r *TermResolver) autocorrect(term domain.Term, tag domain.DomainTag) *domain.ResolutionResult {
	corrected, score := bestMatch(term.Normalized, r.fuzzyCorpus[tag])
	if score < r.threshold {
		return nil
	}

	// The corrected key may be a colloquialism; rerun the translate +
	// lookup steps with it.
	name := corrected
	if canonical, ok := r.store.Translate(tag, corrected); ok {
		name = domain.NormalizeTerm(canonical)
	}
	entry, ok := r.store.LookupName(name)
	if !ok {
		return nil
	}

	return &domain.ResolutionResult{
		Status:     domain.StatusResolved,
		Term:       term,
		Domain:     tag,
		Entry:      entry,
		Confidence: int(score * 100),
		Source:     domain.SourceAutocorrect,
	}
}

func (r *TermResolver) normalizeExternally(ctx context.Context, term domain.Term, tag domain.DomainTag) (*domain.ResolutionResult, error) {
	if r.provider == nil {
		r.count(domain.StatusNotResolved)
		return domain.NotResolved(term, tag), nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.providerTimeout)
	defer cancel()

	reply, err := r.provider.NormalizeTerm(ctx, term.Raw, tag.String())
	if err != nil {
		// Provider trouble is never fatal for the request: it collapses
		// to zero candidates and the typed not-resolved outcome.
		r.log.WithError(err).WithFields(logrus.Fields{
			"term":   term.Normalized,
			"domain": tag.String(),
		}).Warn("Normalization provider failed, degrading to not-resolved")
		r.count(domain.StatusNotResolved)
		return domain.NotResolved(term, tag), nil
	}

	candidates := r.validateCandidates(reply.Candidates, tag)

	switch len(candidates) {
	case 0:
		r.count(domain.StatusNotResolved)
		return domain.NotResolved(term, tag), nil
	case 1:
		r.count(domain.SourceAIValidated)
		only := candidates[0]
		result := &domain.ResolutionResult{
			Status:     domain.StatusResolved,
			Term:       term,
			Domain:     tag,
			Entry:      &only.Entry,
			Confidence: aiAcceptConfidence,
			Source:     domain.SourceAIValidated,
		}
		r.log.WithFields(result.LogFields()).Info("Term resolved by validated AI candidate")
		return result, nil
	default:
		r.count(domain.StatusAmbiguous)
		r.log.WithFields(logrus.Fields{
			"term":       term.Normalized,
			"domain":     tag.String(),
			"candidates": len(candidates),
		}).Info("AI normalization ambiguous, caller must disambiguate")
		return &domain.ResolutionResult{
			Status:     domain.StatusAmbiguous,
			Term:       term,
			Domain:     tag,
			Candidates: candidates,
		}, nil
	}
}

// validateCandidates keeps only provider candidates whose names resolve in
// the reference store. Hallucinated names are dropped here and never
// surface to callers.
func (r *TermResolver) validateCandidates(raw []external.NormalizationCandidate, tag domain.DomainTag) []domain.ResolutionCandidate {
	seen := make(map[string]bool, len(raw))
	var validated []domain.ResolutionCandidate
	for _, cand := range raw {
		entry, ok := r.store.LookupName(cand.Name)
		if !ok || seen[entry.Code] {
			continue
		}
		seen[entry.Code] = true
		validated = append(validated, domain.ResolutionCandidate{
			Entry:      *entry,
			Confidence: int(cand.Likelihood * 100),
			Source:     domain.SourceAIValidated,
			Validated:  true,
		})
	}
	return validated
}

func (r *TermResolver) count(outcome any) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	switch outcome {
	case domain.SourceExact:
		r.stats.Exact++
	case domain.SourceDictionary:
		r.stats.Dictionary++
	case domain.SourceAutocorrect:
		r.stats.Autocorrect++
	case domain.SourceAIValidated:
		r.stats.AIValidated++
	case domain.StatusAmbiguous:
		r.stats.Ambiguous++
	case domain.StatusNotResolved:
		r.stats.NotResolved++
	}
}
