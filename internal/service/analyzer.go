package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/klaimedis/engine/internal/cache"
	"github.com/klaimedis/engine/internal/domain"
)

// defaultAnalyzerConcurrency bounds the resolution fan-out per claim.
const defaultAnalyzerConcurrency = 8

// AnalyzerConfig tunes the composed claim analysis.
type AnalyzerConfig struct {
	Concurrency int
}

// ClaimAnalyzer composes resolution, consistency scoring, formulary
// classification and caching into the one call the routing layer consumes.
// Sub-resolutions fan out concurrently but reassemble by input index, so
// output order never depends on completion order.
type ClaimAnalyzer struct {
	resolver    domain.Resolver
	consistency domain.ConsistencyValidator
	batch       domain.BatchValidator
	cache       domain.AnalysisCache
	log         *logrus.Logger

	concurrency int
	now         func() time.Time
}

// NewClaimAnalyzer creates the composed analyzer. A nil cache disables
// caching; every request then runs the full chain.
func NewClaimAnalyzer(
	resolver domain.Resolver,
	consistency domain.ConsistencyValidator,
	batch domain.BatchValidator,
	analysisCache domain.AnalysisCache,
	config AnalyzerConfig,
	logger *logrus.Logger,
) *ClaimAnalyzer {
	if config.Concurrency <= 0 {
		config.Concurrency = defaultAnalyzerConcurrency
	}
	return &ClaimAnalyzer{
		resolver:    resolver,
		consistency: consistency,
		batch:       batch,
		cache:       analysisCache,
		log:         logger,
		concurrency: config.Concurrency,
		now:         time.Now,
	}
}

// AnalyzeClaim runs the full analysis for one claim.
func (a *ClaimAnalyzer) AnalyzeClaim(ctx context.Context, input domain.ClaimInput) (*domain.ClaimAnalysis, error) {
	start := a.now()
	key := Signature(input)

	if a.cache != nil {
		if cached, ok := a.cache.Get(ctx, key); ok {
			hit := *cached
			hit.Cached = true
			a.log.WithFields(logrus.Fields{
				"request_id": hit.RequestID,
				"signature":  key[:12],
			}).Debug("Claim analysis served from cache")
			return &hit, nil
		}
	}

	// Diagnosis and every claim line resolve in a single bounded fan-out;
	// results land in their input slots so completion order never shows.
	var (
		diagnosis *domain.ResolutionResult
		diagErr   error
	)
	procedures := make([]domain.ResolutionResult, len(input.ProcedureTerms))
	drugs := make([]domain.ResolutionResult, len(input.DrugTerms))

	sem := make(chan struct{}, a.concurrency)
	var wg sync.WaitGroup
	run := func(task func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			task()
		}()
	}

	run(func() {
		diagnosis, diagErr = a.resolver.Resolve(ctx, input.DiagnosisTerm, domain.DomainDiagnosis)
	})
	for i, term := range input.ProcedureTerms {
		run(func() { procedures[i] = a.resolveLine(ctx, term, domain.DomainProcedure) })
	}
	for i, term := range input.DrugTerms {
		run(func() { drugs[i] = a.resolveLine(ctx, term, domain.DomainDrug) })
	}
	wg.Wait()

	if diagErr != nil {
		return nil, fmt.Errorf("resolving claim diagnosis: %w", diagErr)
	}

	analysis := &domain.ClaimAnalysis{
		RequestID:  uuid.New().String(),
		Diagnosis:  *diagnosis,
		Procedures: procedures,
		Drugs:      drugs,
		AnalyzedAt: start,
	}

	procedureCodes := resolvedCodes(procedures)
	drugItems, drugIDs := resolvedDrugs(drugs)

	analysis.Consistency = a.consistency.Validate(diagnosis.Code(), procedureCodes, drugIDs)
	analysis.Formulary = a.batch.ValidateBatch(ctx, drugItems)
	analysis.ProcessingTime = a.now().Sub(start)

	if a.cache != nil {
		a.cache.Put(ctx, key, analysis)
	}

	a.log.WithFields(logrus.Fields{
		"request_id":  analysis.RequestID,
		"diagnosis":   diagnosis.Code(),
		"procedures":  len(procedures),
		"drugs":       len(drugs),
		"consistency": analysis.Consistency.Tier.String(),
		"duration_ms": analysis.ProcessingTime.Milliseconds(),
	}).Info("Claim analysis complete")

	return analysis, nil
}

// Signature builds the cache key for a claim input.
func Signature(input domain.ClaimInput) string {
	return cache.Signature(input.DiagnosisTerm, input.ProcedureTerms, input.DrugTerms)
}

// resolveLine resolves one claim line. Per-line errors collapse to the
// typed not-resolved outcome; one bad line never sinks the claim.
func (a *ClaimAnalyzer) resolveLine(ctx context.Context, raw string, tag domain.DomainTag) domain.ResolutionResult {
	res, err := a.resolver.Resolve(ctx, raw, tag)
	if err != nil {
		a.log.WithError(err).WithFields(logrus.Fields{
			"term":   raw,
			"domain": tag.String(),
		}).Warn("Claim line resolution failed")
		return *domain.NotResolved(domain.NewTerm(raw), tag)
	}
	return *res
}

// resolvedCodes extracts the codes of successfully resolved results.
func resolvedCodes(results []domain.ResolutionResult) []string {
	var codes []string
	for _, r := range results {
		if r.Resolved() {
			codes = append(codes, r.Code())
		}
	}
	return codes
}

// resolvedDrugs extracts both the batch work items and the canonical drug
// identifiers of the resolved drug lines.
func resolvedDrugs(results []domain.ResolutionResult) ([]domain.BatchValidationItem, []string) {
	var items []domain.BatchValidationItem
	var ids []string
	for _, r := range results {
		if !r.Resolved() {
			continue
		}
		items = append(items, domain.BatchValidationItem{
			ID:     r.Entry.Name,
			Name:   r.Entry.Name,
			Domain: domain.DomainDrug,
		})
		ids = append(ids, r.Entry.Name)
	}
	return items, ids
}
