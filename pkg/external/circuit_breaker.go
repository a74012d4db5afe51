package external

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/klaimedis/engine/internal/domain"
)

// ResilientProvider wraps a Provider with per-operation circuit breakers.
// An open breaker is reported as an ordinary provider error; callers
// already degrade on those, so a flapping provider costs nothing extra.
type ResilientProvider struct {
	inner Provider
	log   *logrus.Logger

	normalizeBreaker *gobreaker.CircuitBreaker
	batchBreaker     *gobreaker.CircuitBreaker
}

// NewResilientProvider wraps the given provider.
func NewResilientProvider(inner Provider, logger *logrus.Logger) *ResilientProvider {
	newBreaker := func(name string) *gobreaker.CircuitBreaker {
		return gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Provider circuit breaker state changed")
			},
		})
	}

	return &ResilientProvider{
		inner:            inner,
		log:              logger,
		normalizeBreaker: newBreaker("normalize"),
		batchBreaker:     newBreaker("classify-batch"),
	}
}

// NormalizeTerm delegates through the normalize breaker.
func (r *ResilientProvider) NormalizeTerm(ctx context.Context, term, termDomain string) (*NormalizationReply, error) {
	result, err := r.normalizeBreaker.Execute(func() (interface{}, error) {
		return r.inner.NormalizeTerm(ctx, term, termDomain)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("normalize circuit open: %w", domain.ErrProviderUnavailable)
		}
		return nil, err
	}
	return result.(*NormalizationReply), nil
}

// ClassifyBatch delegates through the batch breaker.
func (r *ResilientProvider) ClassifyBatch(ctx context.Context, items []BatchItem) (*BatchReply, error) {
	result, err := r.batchBreaker.Execute(func() (interface{}, error) {
		return r.inner.ClassifyBatch(ctx, items)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("classify-batch circuit open: %w", domain.ErrProviderUnavailable)
		}
		return nil, err
	}
	return result.(*BatchReply), nil
}

// BreakerCounts exposes breaker statistics for operational logging.
func (r *ResilientProvider) BreakerCounts() map[string]gobreaker.Counts {
	return map[string]gobreaker.Counts{
		"normalize":      r.normalizeBreaker.Counts(),
		"classify-batch": r.batchBreaker.Counts(),
	}
}
