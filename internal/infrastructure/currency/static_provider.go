package currency

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/docledger/internal/application/pipeline"
	"github.com/erp/docledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// sekPerUnit holds approximate SEK values for the supported currencies.
// These are the last-resort rates when both the cache and the API are
// unreachable; vouchers booked with them carry Source "static" so they can
// be found and re-rated later.
var sekPerUnit = map[valueobject.Currency]decimal.Decimal{
	valueobject.SEK: decimal.NewFromInt(1),
	valueobject.EUR: decimal.RequireFromString("11.30"),
	valueobject.USD: decimal.RequireFromString("10.40"),
	valueobject.GBP: decimal.RequireFromString("13.20"),
	valueobject.NOK: decimal.RequireFromString("0.97"),
	valueobject.DKK: decimal.RequireFromString("1.51"),
}

// StaticProvider resolves rates from a fixed table, crossing through SEK
type StaticProvider struct{}

// NewStaticProvider creates the fallback rate provider
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

// Rate returns the table cross-rate from one currency to another
func (p *StaticProvider) Rate(ctx context.Context, from, to valueobject.Currency, date time.Time) (pipeline.Rate, error) {
	fromSEK, ok := sekPerUnit[from]
	if !ok {
		return pipeline.Rate{}, fmt.Errorf("no static rate for %s", from)
	}
	toSEK, ok := sekPerUnit[to]
	if !ok {
		return pipeline.Rate{}, fmt.Errorf("no static rate for %s", to)
	}

	return pipeline.Rate{
		Value:  fromSEK.DivRound(toSEK, 6),
		Source: "static",
		Date:   date,
	}, nil
}

// Ensure StaticProvider implements pipeline.RateProvider
var _ pipeline.RateProvider = (*StaticProvider)(nil)
