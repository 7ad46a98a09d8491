// Package erp talks to the downstream accounting system that receives
// posted vouchers and owns the supplier register.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/erp/docledger/internal/application/pipeline"
	"github.com/erp/docledger/internal/domain/document"
	infraconfig "github.com/erp/docledger/internal/infrastructure/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HTTPClient implements pipeline.ERPClient over a JSON HTTP API
type HTTPClient struct {
	baseURL    string
	apiKey     string
	maxRetries int
	client     *http.Client
	logger     *zap.Logger
}

// HTTPClientOption is a functional option for configuring HTTPClient
type HTTPClientOption func(*HTTPClient)

// WithLogger sets a custom logger for HTTPClient
func WithLogger(logger *zap.Logger) HTTPClientOption {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

// NewHTTPClient creates an ERP client from configuration
func NewHTTPClient(cfg *infraconfig.ERPConfig, opts ...HTTPClientOption) (*HTTPClient, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.New("ERP base URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := &HTTPClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

type supplierRequest struct {
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
}

type supplierResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FindOrCreateSupplier resolves the supplier in the downstream register,
// creating it on first sight. The endpoint is an upsert; retries are safe.
func (c *HTTPClient) FindOrCreateSupplier(ctx context.Context, companyID uuid.UUID, name string) (pipeline.SupplierRef, error) {
	if name == "" {
		return pipeline.SupplierRef{}, errors.New("supplier name is required")
	}

	body, err := json.Marshal(supplierRequest{CompanyID: companyID.String(), Name: name})
	if err != nil {
		return pipeline.SupplierRef{}, err
	}

	var resp supplierResponse
	if err := c.doWithRetry(ctx, http.MethodPut, "/suppliers", body, &resp); err != nil {
		return pipeline.SupplierRef{}, fmt.Errorf("supplier sync failed: %w", err)
	}
	if resp.ID == "" {
		return pipeline.SupplierRef{}, errors.New("ERP returned a supplier without an ID")
	}

	return pipeline.SupplierRef{ID: resp.ID, Name: resp.Name}, nil
}

// PostVoucher exports a posted voucher. The voucher number is the natural
// idempotency key; the ERP treats a re-post of the same number as a no-op.
func (c *HTTPClient) PostVoucher(ctx context.Context, v *document.Voucher) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.doWithRetry(ctx, http.MethodPost, "/vouchers", body, nil); err != nil {
		return fmt.Errorf("voucher export failed: %w", err)
	}
	return nil
}

type reconciliationResponse struct {
	Unmatched int `json:"unmatched"`
}

// UnmatchedCount returns the number of bank transactions in [start, end) not
// yet matched to a ledger entry. The matching itself lives in the ERP; this
// only feeds the pre-close bank reconciliation check.
func (c *HTTPClient) UnmatchedCount(ctx context.Context, companyID uuid.UUID, start, end time.Time) (int, error) {
	path := fmt.Sprintf("/reconciliation/unmatched?company_id=%s&from=%s&to=%s",
		companyID, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))

	var resp reconciliationResponse
	if err := c.doWithRetry(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, fmt.Errorf("reconciliation lookup failed: %w", err)
	}
	return resp.Unmatched, nil
}

// doWithRetry sends the request, retrying transient failures (network errors
// and 5xx) with linear backoff. 4xx responses fail immediately.
func (c *HTTPClient) doWithRetry(ctx context.Context, method, path string, body []byte, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		err := c.do(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var status *statusError
		if errors.As(err, &status) && status.code < 500 {
			return err
		}
		c.logger.Warn("ERP request failed, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return lastErr
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ERP returned status %d: %s", e.code, e.body)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: string(payload)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Ensure HTTPClient implements pipeline.ERPClient
var _ pipeline.ERPClient = (*HTTPClient)(nil)

// Ensure HTTPClient implements document.BankReconciliationSource
var _ document.BankReconciliationSource = (*HTTPClient)(nil)
