// Package currency resolves exchange rates for document conversion through
// an ordered provider chain: Redis cache, then the HTTP rate API, then the
// static fallback table. A single conversion uses exactly one provider's
// answer; the chain never blends sources.
package currency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/docledger/internal/application/pipeline"
	"github.com/erp/docledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// oneRate is the identity conversion rate
var oneRate = decimal.NewFromInt(1)

// ErrRateUnavailable is returned when no provider in the chain could resolve
// a rate for the requested date window
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// Chain tries each provider in order and returns the first answer
type Chain struct {
	providers []pipeline.RateProvider
	logger    *zap.Logger
}

// NewChain creates a provider chain. Order matters: earlier providers win.
func NewChain(logger *zap.Logger, providers ...pipeline.RateProvider) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{providers: providers, logger: logger}
}

// Rate resolves an exchange rate, falling through the chain on failure
func (c *Chain) Rate(ctx context.Context, from, to valueobject.Currency, date time.Time) (pipeline.Rate, error) {
	if from == to {
		return pipeline.Rate{Value: oneRate, Source: "identity", Date: date}, nil
	}

	var lastErr error
	for _, provider := range c.providers {
		rate, err := provider.Rate(ctx, from, to, date)
		if err == nil {
			return rate, nil
		}
		lastErr = err
		c.logger.Debug("rate provider failed, falling through",
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(err),
		)
	}
	if lastErr == nil {
		lastErr = ErrRateUnavailable
	}
	return pipeline.Rate{}, fmt.Errorf("%w: %s/%s on %s: %s",
		ErrRateUnavailable, from, to, date.Format("2006-01-02"), lastErr)
}

// Ensure Chain implements pipeline.RateProvider
var _ pipeline.RateProvider = (*Chain)(nil)
