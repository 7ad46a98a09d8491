package currency

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/docledger/internal/application/pipeline"
	"github.com/erp/docledger/internal/domain/shared/valueobject"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CachedProvider fronts another provider with a Redis read-through cache.
// Rates are daily values, so the key includes the value date and the TTL
// only bounds storage, not correctness.
type CachedProvider struct {
	client *redis.Client
	next   pipeline.RateProvider
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProvider creates a read-through rate cache in front of next
func NewCachedProvider(client *redis.Client, next pipeline.RateProvider, ttl time.Duration, logger *zap.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{client: client, next: next, ttl: ttl, logger: logger}
}

func rateKey(from, to valueobject.Currency, date time.Time) string {
	return fmt.Sprintf("fx:%s:%s:%s", from, to, date.Format("2006-01-02"))
}

// Rate returns the cached rate when present, otherwise asks the wrapped
// provider and stores its answer. Cache failures degrade to the wrapped
// provider; they never fail the conversion.
func (p *CachedProvider) Rate(ctx context.Context, from, to valueobject.Currency, date time.Time) (pipeline.Rate, error) {
	key := rateKey(from, to, date)

	cached, err := p.client.Get(ctx, key).Result()
	if err == nil {
		if value, parseErr := decimal.NewFromString(cached); parseErr == nil && value.IsPositive() {
			return pipeline.Rate{Value: value, Source: "cache", Date: date}, nil
		}
	} else if err != redis.Nil {
		p.logger.Warn("rate cache read failed", zap.String("key", key), zap.Error(err))
	}

	rate, err := p.next.Rate(ctx, from, to, date)
	if err != nil {
		return pipeline.Rate{}, err
	}

	if setErr := p.client.Set(ctx, key, rate.Value.String(), p.ttl).Err(); setErr != nil {
		p.logger.Warn("rate cache write failed", zap.String("key", key), zap.Error(setErr))
	}
	return rate, nil
}

// Ensure CachedProvider implements pipeline.RateProvider
var _ pipeline.RateProvider = (*CachedProvider)(nil)
