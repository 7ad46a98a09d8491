package sequence

import (
	"context"
	"sort"

	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
)

// CounterRepository provides linearizable counters per (company, series, year).
// Implementations must back the counter with an atomic conditional increment
// in the store; the counter value is never authoritative in process memory.
type CounterRepository interface {
	// Increment advances the counter by one and returns the new value.
	// A missing counter is initialized to zero exactly once before the
	// increment; concurrent initializers must not reset an advanced counter.
	Increment(ctx context.Context, companyID uuid.UUID, series string, year int) (int64, error)

	// IncrementBy advances the counter by count in one atomic operation and
	// returns the new value (the upper end of the reserved range).
	IncrementBy(ctx context.Context, companyID uuid.UUID, series string, year int, count int64) (int64, error)

	// Current returns the counter value without advancing it (0 when absent).
	Current(ctx context.Context, companyID uuid.UUID, series string, year int) (int64, error)
}

// MintedNumberSource lists the sequence values actually assigned to vouchers,
// used by gap validation.
type MintedNumberSource interface {
	// ListSequences returns all minted sequence values for the series/year,
	// in ascending order, duplicates included.
	ListSequences(ctx context.Context, companyID uuid.UUID, series string, year int) ([]int64, error)
}

// Service mints gap-free voucher numbers and validates minted series
type Service struct {
	counters CounterRepository
	minted   MintedNumberSource
}

// NewService creates a sequence Service
func NewService(counters CounterRepository, minted MintedNumberSource) *Service {
	return &Service{counters: counters, minted: minted}
}

// Next mints the next voucher number for (company, series, year)
func (s *Service) Next(ctx context.Context, companyID uuid.UUID, series string, year int) (VoucherNumber, error) {
	if err := ValidateSeries(series); err != nil {
		return VoucherNumber{}, err
	}
	if err := ValidateYear(year); err != nil {
		return VoucherNumber{}, err
	}

	seq, err := s.counters.Increment(ctx, companyID, series, year)
	if err != nil {
		return VoucherNumber{}, err
	}
	return NewVoucherNumber(series, year, seq), nil
}

// Reserve atomically claims count contiguous voucher numbers
func (s *Service) Reserve(ctx context.Context, companyID uuid.UUID, series string, year int, count int64) (Range, error) {
	if err := ValidateSeries(series); err != nil {
		return Range{}, err
	}
	if err := ValidateYear(year); err != nil {
		return Range{}, err
	}
	if count < 1 {
		return Range{}, shared.NewDomainError("INVALID_COUNT", "Reservation count must be at least 1")
	}

	to, err := s.counters.IncrementBy(ctx, companyID, series, year, count)
	if err != nil {
		return Range{}, err
	}
	from := to - count + 1

	numbers := make([]VoucherNumber, 0, count)
	for seq := from; seq <= to; seq++ {
		numbers = append(numbers, NewVoucherNumber(series, year, seq))
	}
	return Range{Series: series, Year: year, From: from, To: to, Numbers: numbers}, nil
}

// ValidateSequence walks all minted numbers for the series/year and reports
// missing and repeated sequence values. It never repairs anything: a gap is
// permanent evidence that must be explained, not patched.
func (s *Service) ValidateSequence(ctx context.Context, companyID uuid.UUID, series string, year int) (ValidationResult, error) {
	if err := ValidateSeries(series); err != nil {
		return ValidationResult{}, err
	}
	if err := ValidateYear(year); err != nil {
		return ValidationResult{}, err
	}

	seqs, err := s.minted.ListSequences(ctx, companyID, series, year)
	if err != nil {
		return ValidationResult{}, err
	}

	result := ValidationResult{Series: series, Year: year}
	if len(seqs) == 0 {
		return result, nil
	}

	sorted := make([]int64, len(seqs))
	copy(sorted, seqs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	seen := make(map[int64]int, len(sorted))
	for _, seq := range sorted {
		seen[seq]++
	}

	max := sorted[len(sorted)-1]
	for seq := int64(1); seq <= max; seq++ {
		switch n := seen[seq]; {
		case n == 0:
			result.Gaps = append(result.Gaps, seq)
		case n > 1:
			result.Duplicates = append(result.Duplicates, seq)
		}
	}
	return result, nil
}
