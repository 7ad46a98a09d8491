package erp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/docledger/internal/domain/document"
	"github.com/erp/docledger/internal/domain/shared/valueobject"
	infraconfig "github.com/erp/docledger/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVoucher(t *testing.T) *document.Voucher {
	t.Helper()
	v, err := document.NewVoucher(
		uuid.New(), uuid.New(), "A2024-0001", "A", 2024, 1,
		time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
		"Nordic Office AB F-1001", valueobject.SEK,
		[]document.VoucherLine{
			{Account: "4010", Debit: decimal.RequireFromString("1000.00")},
			{Account: "2641", Debit: decimal.RequireFromString("250.00")},
			{Account: "2440", Credit: decimal.RequireFromString("1250.00")},
		},
	)
	require.NoError(t, err)
	return v
}

func TestHTTPClient_FindOrCreateSupplier(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves a supplier", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "/suppliers", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"id":"SUP-17","name":"Nordic Office AB"}`)
		}))
		defer server.Close()

		client, err := NewHTTPClient(&infraconfig.ERPConfig{BaseURL: server.URL, APIKey: "secret"})
		require.NoError(t, err)

		ref, err := client.FindOrCreateSupplier(ctx, uuid.New(), "Nordic Office AB")
		require.NoError(t, err)
		assert.Equal(t, "SUP-17", ref.ID)
		assert.Equal(t, "Nordic Office AB", ref.Name)
	})

	t.Run("requires a name", func(t *testing.T) {
		client, err := NewHTTPClient(&infraconfig.ERPConfig{BaseURL: "http://localhost:1"})
		require.NoError(t, err)

		_, err = client.FindOrCreateSupplier(ctx, uuid.New(), "")
		assert.Error(t, err)
	})

	t.Run("rejects a response without an ID", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"name":"Nordic Office AB"}`)
		}))
		defer server.Close()

		client, err := NewHTTPClient(&infraconfig.ERPConfig{BaseURL: server.URL})
		require.NoError(t, err)

		_, err = client.FindOrCreateSupplier(ctx, uuid.New(), "Nordic Office AB")
		assert.Error(t, err)
	})
}

func TestHTTPClient_PostVoucher(t *testing.T) {
	ctx := context.Background()

	t.Run("posts the voucher JSON", func(t *testing.T) {
		var posted atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/vouchers", r.URL.Path)
			posted.Add(1)
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		client, err := NewHTTPClient(&infraconfig.ERPConfig{BaseURL: server.URL})
		require.NoError(t, err)

		require.NoError(t, client.PostVoucher(ctx, testVoucher(t)))
		assert.Equal(t, int32(1), posted.Load())
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		client, err := NewHTTPClient(&infraconfig.ERPConfig{BaseURL: server.URL, MaxRetries: 2})
		require.NoError(t, err)

		require.NoError(t, client.PostVoucher(ctx, testVoucher(t)))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "bad voucher", http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		client, err := NewHTTPClient(&infraconfig.ERPConfig{BaseURL: server.URL, MaxRetries: 3})
		require.NoError(t, err)

		err = client.PostVoucher(ctx, testVoucher(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "422")
		assert.Equal(t, int32(1), calls.Load())
	})
}
