package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/erp/docledger/internal/application/pipeline"
	"github.com/erp/docledger/internal/domain/shared/valueobject"
	infraconfig "github.com/erp/docledger/internal/infrastructure/config"
	"github.com/shopspring/decimal"
)

// maxDateOffsetDays bounds the business-day search around the value date.
// Weekends and bank holidays leave gaps in published rates; the nearest
// published day within a week is close enough for booking purposes.
const maxDateOffsetDays = 7

// HTTPProvider fetches daily reference rates from an ECB-style JSON API:
// GET {base}/{YYYY-MM-DD}?from=EUR&to=SEK => {"date":"...","rates":{"SEK":11.31}}
type HTTPProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPProvider creates a rate provider against the configured API
func NewHTTPProvider(cfg *infraconfig.CurrencyConfig) (*HTTPProvider, error) {
	if cfg == nil || cfg.APIEndpoint == "" {
		return nil, fmt.Errorf("currency API endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		endpoint: cfg.APIEndpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type rateResponse struct {
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Rate resolves the rate for the value date, walking outward day by day to
// the nearest published business day within the search window
func (p *HTTPProvider) Rate(ctx context.Context, from, to valueobject.Currency, date time.Time) (pipeline.Rate, error) {
	var lastErr error
	for _, offset := range searchOffsets() {
		candidate := date.AddDate(0, 0, offset)
		rate, err := p.fetch(ctx, from, to, candidate)
		if err == nil {
			return rate, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return pipeline.Rate{}, ctx.Err()
		}
	}
	return pipeline.Rate{}, fmt.Errorf("no published rate within %d days of %s: %w",
		maxDateOffsetDays, date.Format("2006-01-02"), lastErr)
}

func (p *HTTPProvider) fetch(ctx context.Context, from, to valueobject.Currency, date time.Time) (pipeline.Rate, error) {
	u := fmt.Sprintf("%s/%s?%s", p.endpoint, date.Format("2006-01-02"), url.Values{
		"from": {string(from)},
		"to":   {string(to)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return pipeline.Rate{}, err
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return pipeline.Rate{}, fmt.Errorf("rate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pipeline.Rate{}, fmt.Errorf("rate API returned status %d", resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return pipeline.Rate{}, fmt.Errorf("malformed rate response: %w", err)
	}

	value, ok := body.Rates[string(to)]
	if !ok || !value.IsPositive() {
		return pipeline.Rate{}, fmt.Errorf("rate API has no %s rate for %s", to, date.Format("2006-01-02"))
	}

	published := date
	if body.Date != "" {
		if parsed, err := time.Parse("2006-01-02", body.Date); err == nil {
			published = parsed
		}
	}

	return pipeline.Rate{Value: value, Source: "api", Date: published}, nil
}

// searchOffsets yields day offsets in nearest-first order:
// 0, -1, +1, -2, +2, ... out to the window edge
func searchOffsets() []int {
	offsets := make([]int, 0, 2*maxDateOffsetDays+1)
	offsets = append(offsets, 0)
	for d := 1; d <= maxDateOffsetDays; d++ {
		offsets = append(offsets, -d, d)
	}
	return offsets
}

// Ensure HTTPProvider implements pipeline.RateProvider
var _ pipeline.RateProvider = (*HTTPProvider)(nil)
