package duplicate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFingerprints is an in-memory FingerprintRepository
type fakeFingerprints struct {
	mu   sync.Mutex
	rows []Fingerprint
}

func (f *fakeFingerprints) FindByInvoiceKey(_ context.Context, companyID uuid.UUID, key string) (*Fingerprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].CompanyID == companyID && f.rows[i].InvoiceKey == key && key != "" {
			fp := f.rows[i]
			return &fp, nil
		}
	}
	return nil, nil
}

func (f *fakeFingerprints) FindByFileHash(_ context.Context, companyID uuid.UUID, hash string) (*Fingerprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].CompanyID == companyID && f.rows[i].FileHash == hash && hash != "" {
			fp := f.rows[i]
			return &fp, nil
		}
	}
	return nil, nil
}

func (f *fakeFingerprints) FindByCounterparty(_ context.Context, companyID uuid.UUID, name string) ([]Fingerprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Fingerprint
	for i := range f.rows {
		if f.rows[i].CompanyID == companyID && f.rows[i].Counterparty == name {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

func (f *fakeFingerprints) Save(_ context.Context, fp *Fingerprint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		same := f.rows[i].CompanyID == fp.CompanyID &&
			((fp.InvoiceKey != "" && f.rows[i].InvoiceKey == fp.InvoiceKey) ||
				(fp.FileHash != "" && f.rows[i].FileHash == fp.FileHash))
		if same {
			return shared.ErrAlreadyExists
		}
	}
	f.rows = append(f.rows, *fp)
	return nil
}

func (f *fakeFingerprints) DeleteForJob(_ context.Context, companyID, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rows[:0]
	for _, row := range f.rows {
		if !(row.CompanyID == companyID && row.JobID == jobID) {
			kept = append(kept, row)
		}
	}
	f.rows = kept
	return nil
}

// fakeOverrides is an in-memory OverrideRepository
type fakeOverrides struct {
	mu   sync.Mutex
	rows []Override
}

func (f *fakeOverrides) Save(_ context.Context, o *Override) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *o)
	return nil
}

func (f *fakeOverrides) FindByPair(_ context.Context, originalJobID, newJobID uuid.UUID) (*Override, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].OriginalJobID == originalJobID && f.rows[i].NewJobID == newJobID {
			o := f.rows[i]
			return &o, nil
		}
	}
	return nil, nil
}

func (f *fakeOverrides) FindByOriginalJob(_ context.Context, companyID, originalJobID uuid.UUID) ([]Override, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Override
	for i := range f.rows {
		if f.rows[i].CompanyID == companyID && f.rows[i].OriginalJobID == originalJobID {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

// fakeCache is an in-memory shared.ResultCache
type fakeCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: make(map[string][]byte)}
}

func (f *fakeCache) Put(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[key]; ok {
		return false, nil
	}
	f.items[key] = value
	return true, nil
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[key], nil
}

func (f *fakeCache) Close() error { return nil }

func seedFingerprint(t *testing.T, repo *fakeFingerprints, companyID, jobID uuid.UUID) *Fingerprint {
	t.Helper()
	fp, err := NewFingerprint(companyID, jobID, "Acme AB", "INV-100", HashFile([]byte("original bytes")),
		decimal.NewFromInt(1000), time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), fp))
	return fp
}

func TestNormalizeCounterparty(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Acme AB", "acme"},
		{"ACME Aktiebolag", "acme"},
		{"acme", "acme"},
		{"Möller & Söner AB", "moller soner"},
		{"Smith-Jones Ltd.", "smith jones"},
		{"Tele2 AB", "tele2"},
		{"  Spaced   Out  Inc ", "spaced out"},
		{"AB", "ab"}, // a lone legal suffix is the whole name, keep it
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCounterparty(tt.in))
		})
	}
}

func TestCheckExactInvoiceMatch(t *testing.T) {
	fingerprints := &fakeFingerprints{}
	detector := NewDetector(fingerprints, &fakeOverrides{}, nil)
	companyID := uuid.New()
	originalJob := uuid.New()
	seedFingerprint(t, fingerprints, companyID, originalJob)

	result, err := detector.Check(context.Background(), CheckInput{
		CompanyID:     companyID,
		JobID:         uuid.New(),
		Counterparty:  "ACME Aktiebolag", // normalizes to the same key
		InvoiceNumber: "INV-100",
		FileHash:      HashFile([]byte("different bytes")),
		Amount:        decimal.NewFromInt(1000),
		InvoiceDate:   time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
	}, "")
	require.NoError(t, err)

	assert.True(t, result.IsDuplicate)
	assert.Equal(t, ConfidenceExact, result.Confidence)
	assert.Equal(t, MatchInvoiceNumber, result.MatchType)
	assert.True(t, result.CanOverride)
	require.NotNil(t, result.ConflictJobID)
	assert.Equal(t, originalJob, *result.ConflictJobID)
}

func TestCheckFileHashMatchIsNeverOverridable(t *testing.T) {
	fingerprints := &fakeFingerprints{}
	overrides := &fakeOverrides{}
	detector := NewDetector(fingerprints, overrides, nil)
	companyID := uuid.New()
	originalJob := uuid.New()
	newJob := uuid.New()
	seedFingerprint(t, fingerprints, companyID, originalJob)

	hash := HashFile([]byte("original bytes"))

	// Even a registered override does not suppress a bit-identical resubmission
	_, err := detector.RegisterOverride(context.Background(), companyID, originalJob, newJob,
		"second delivery of the same goods", uuid.New(), hash)
	require.NoError(t, err)

	result, err := detector.Check(context.Background(), CheckInput{
		CompanyID:   companyID,
		JobID:       newJob,
		FileHash:    hash,
		Amount:      decimal.NewFromInt(1000),
		InvoiceDate: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
	}, "")
	require.NoError(t, err)

	assert.True(t, result.IsDuplicate)
	assert.Equal(t, ConfidenceExact, result.Confidence)
	assert.Equal(t, MatchFileHash, result.MatchType)
	assert.False(t, result.CanOverride)
}

func TestCheckFuzzyMatch(t *testing.T) {
	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		amount     decimal.Decimal
		date       time.Time
		duplicate  bool
		confidence Confidence
	}{
		{"amount and date close", decimal.NewFromInt(1005), base.Add(24 * time.Hour), true, ConfidenceLikely},
		{"date further out", decimal.NewFromInt(1005), base.Add(5 * 24 * time.Hour), true, ConfidencePossible},
		{"date before original", decimal.NewFromInt(995), base.Add(-24 * time.Hour), true, ConfidenceLikely},
		{"date beyond window", decimal.NewFromInt(1000), base.Add(8 * 24 * time.Hour), false, ConfidenceNone},
		{"amount beyond tolerance", decimal.NewFromInt(1020), base, false, ConfidenceNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fingerprints := &fakeFingerprints{}
			detector := NewDetector(fingerprints, &fakeOverrides{}, nil)
			companyID := uuid.New()
			seedFingerprint(t, fingerprints, companyID, uuid.New())

			result, err := detector.Check(context.Background(), CheckInput{
				CompanyID:     companyID,
				JobID:         uuid.New(),
				Counterparty:  "Acme AB",
				InvoiceNumber: "INV-999", // different invoice, no exact match
				FileHash:      HashFile([]byte("other bytes")),
				Amount:        tt.amount,
				InvoiceDate:   tt.date,
			}, "")
			require.NoError(t, err)

			assert.Equal(t, tt.duplicate, result.IsDuplicate)
			assert.Equal(t, tt.confidence, result.Confidence)
			if tt.duplicate {
				assert.Equal(t, MatchFuzzy, result.MatchType)
				assert.True(t, result.CanOverride)
			}
		})
	}
}

func TestCheckNoMatch(t *testing.T) {
	detector := NewDetector(&fakeFingerprints{}, &fakeOverrides{}, nil)

	result, err := detector.Check(context.Background(), CheckInput{
		CompanyID:     uuid.New(),
		JobID:         uuid.New(),
		Counterparty:  "Fresh Supplier AB",
		InvoiceNumber: "INV-1",
		FileHash:      HashFile([]byte("fresh")),
		Amount:        decimal.NewFromInt(500),
		InvoiceDate:   time.Now(),
	}, "")
	require.NoError(t, err)

	assert.False(t, result.IsDuplicate)
	assert.Equal(t, ConfidenceNone, result.Confidence)
	assert.NotEqual(t, uuid.Nil, result.CheckID)
}

func TestCheckIsIdempotentPerRequestID(t *testing.T) {
	fingerprints := &fakeFingerprints{}
	detector := NewDetector(fingerprints, &fakeOverrides{}, newFakeCache())
	companyID := uuid.New()
	seedFingerprint(t, fingerprints, companyID, uuid.New())

	input := CheckInput{
		CompanyID:     companyID,
		JobID:         uuid.New(),
		Counterparty:  "Acme AB",
		InvoiceNumber: "INV-100",
		Amount:        decimal.NewFromInt(1000),
		InvoiceDate:   time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
	}

	first, err := detector.Check(context.Background(), input, "req-1")
	require.NoError(t, err)
	second, err := detector.Check(context.Background(), input, "req-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.CheckID, second.CheckID)

	// A different request ID produces a fresh check
	third, err := detector.Check(context.Background(), input, "req-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.CheckID, third.CheckID)
}

func TestRegisterOverride(t *testing.T) {
	detector := NewDetector(&fakeFingerprints{}, &fakeOverrides{}, nil)
	companyID := uuid.New()

	t.Run("rejects short reason", func(t *testing.T) {
		_, err := detector.RegisterOverride(context.Background(), companyID, uuid.New(), uuid.New(),
			"too short", uuid.New(), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 10 characters")
	})

	t.Run("rejects whitespace-padded short reason", func(t *testing.T) {
		_, err := detector.RegisterOverride(context.Background(), companyID, uuid.New(), uuid.New(),
			"   short    ", uuid.New(), "")
		require.Error(t, err)
	})

	t.Run("accepts a proper reason", func(t *testing.T) {
		o, err := detector.RegisterOverride(context.Background(), companyID, uuid.New(), uuid.New(),
			"confirmed as a legitimate second invoice", uuid.New(), "")
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, o.ID)
	})
}

func TestOverrideSuppressesOnlyTheExactFile(t *testing.T) {
	fingerprints := &fakeFingerprints{}
	overrides := &fakeOverrides{}
	detector := NewDetector(fingerprints, overrides, nil)
	companyID := uuid.New()
	originalJob := uuid.New()
	newJob := uuid.New()
	seedFingerprint(t, fingerprints, companyID, originalJob)

	approvedHash := HashFile([]byte("approved resubmission"))
	_, err := detector.RegisterOverride(context.Background(), companyID, originalJob, newJob,
		"verified with the supplier by phone", uuid.New(), approvedHash)
	require.NoError(t, err)

	input := CheckInput{
		CompanyID:     companyID,
		JobID:         newJob,
		Counterparty:  "Acme AB",
		InvoiceNumber: "INV-100",
		Amount:        decimal.NewFromInt(1000),
		InvoiceDate:   time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
	}

	t.Run("covered hash is suppressed", func(t *testing.T) {
		covered := input
		covered.FileHash = approvedHash
		result, err := detector.Check(context.Background(), covered, "")
		require.NoError(t, err)
		assert.False(t, result.IsDuplicate)
		assert.True(t, result.Overridden)
	})

	t.Run("different file is still flagged", func(t *testing.T) {
		other := input
		other.FileHash = HashFile([]byte("some other file"))
		result, err := detector.Check(context.Background(), other, "")
		require.NoError(t, err)
		assert.True(t, result.IsDuplicate)
		assert.False(t, result.Overridden)
	})

	t.Run("different new job is still flagged", func(t *testing.T) {
		other := input
		other.JobID = uuid.New()
		other.FileHash = approvedHash
		result, err := detector.Check(context.Background(), other, "")
		require.NoError(t, err)
		assert.True(t, result.IsDuplicate)
	})
}

func TestRegisterFingerprintFirstWriterWins(t *testing.T) {
	fingerprints := &fakeFingerprints{}
	detector := NewDetector(fingerprints, &fakeOverrides{}, nil)
	companyID := uuid.New()

	fp1, err := NewFingerprint(companyID, uuid.New(), "Acme AB", "INV-7", "", decimal.NewFromInt(100), time.Now())
	require.NoError(t, err)
	require.NoError(t, detector.RegisterFingerprint(context.Background(), fp1))

	fp2, err := NewFingerprint(companyID, uuid.New(), "acme", "INV-7", "", decimal.NewFromInt(100), time.Now())
	require.NoError(t, err)
	err = detector.RegisterFingerprint(context.Background(), fp2)
	require.ErrorIs(t, err, shared.ErrAlreadyExists)
}
