package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/klaimedis/engine/internal/domain"
	"github.com/klaimedis/engine/internal/reference"
	"github.com/klaimedis/engine/pkg/external"
)

// BatchCoordinator classifies a set of claim items against the formulary.
// Items with a local formulary row are answered without leaving the
// process; the rest go to the provider in a single indexed round. Items
// the provider does not answer for degrade to the fallback default, so
// the output always has the same length and order as the input.
type BatchCoordinator struct {
	store    *reference.Store
	provider external.Provider
	log      *logrus.Logger

	providerTimeout time.Duration
}

// BatchConfig tunes the batch validation round.
type BatchConfig struct {
	ProviderTimeout time.Duration
}

// NewBatchCoordinator creates the coordinator. A nil provider means every
// item without a local formulary row degrades to the fallback default.
func NewBatchCoordinator(store *reference.Store, provider external.Provider, config BatchConfig, logger *logrus.Logger) *BatchCoordinator {
	if config.ProviderTimeout <= 0 {
		config.ProviderTimeout = 15 * time.Second
	}
	return &BatchCoordinator{
		store:           store,
		provider:        provider,
		log:             logger,
		providerTimeout: config.ProviderTimeout,
	}
}

// ValidateBatch classifies every item and returns one result per input,
// in input order.
func (c *BatchCoordinator) ValidateBatch(ctx context.Context, items []domain.BatchValidationItem) []domain.BatchValidationResult {
	if len(items) == 0 {
		return nil
	}

	results := make([]domain.BatchValidationResult, len(items))
	var remote []external.BatchItem

	for i, item := range items {
		if item.Domain == domain.DomainDrug {
			if fe, ok := c.store.FormularyLookup(item.ID); ok {
				results[i] = domain.BatchValidationResult{
					Index:          i,
					ID:             item.ID,
					Status:         domain.BatchClassified,
					Classification: fe.Status,
					Restriction:    fe.Restriction,
				}
				continue
			}
		}
		remote = append(remote, external.BatchItem{
			Index:  i,
			ID:     item.ID,
			Name:   item.Name,
			Domain: item.Domain.String(),
		})
	}

	answered := c.classifyRemote(ctx, remote)
	for _, item := range remote {
		res, ok := answered[item.Index]
		if !ok {
			results[item.Index] = domain.FallbackResult(item.Index, items[item.Index])
			continue
		}
		results[item.Index] = domain.BatchValidationResult{
			Index:          item.Index,
			ID:             item.ID,
			Status:         domain.BatchClassified,
			Classification: domain.FormularyStatus(res.Classification),
			Restriction:    res.Restriction,
		}
	}

	c.log.WithFields(logrus.Fields{
		"items":  len(items),
		"local":  len(items) - len(remote),
		"remote": len(remote),
	}).Debug("Batch validation complete")

	return results
}

// classifyRemote runs the single provider round and returns answers keyed
// by the original item index. Any failure collapses to an empty map; the
// caller fills the gaps with fallbacks.
func (c *BatchCoordinator) classifyRemote(ctx context.Context, remote []external.BatchItem) map[int]external.BatchResult {
	if len(remote) == 0 || c.provider == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()

	reply, err := c.provider.ClassifyBatch(ctx, remote)
	if err != nil {
		c.log.WithError(err).WithField("items", len(remote)).Warn("Batch classification failed, degrading to fallback defaults")
		return nil
	}

	requested := make(map[int]bool, len(remote))
	for _, item := range remote {
		requested[item.Index] = true
	}

	answered := make(map[int]external.BatchResult, len(reply.Results))
	for _, res := range reply.Results {
		if !requested[res.Index] {
			continue
		}
		answered[res.Index] = res
	}
	return answered
}
