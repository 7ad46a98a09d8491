package sequence

import (
	"fmt"
	"regexp"

	"github.com/erp/docledger/internal/domain/shared"
)

// VoucherNumber is one minted, formatted voucher number
type VoucherNumber struct {
	Series   string `json:"series"`
	Year     int    `json:"year"`
	Sequence int64  `json:"sequence"`
	Number   string `json:"number"`
}

// Range is a contiguous block of reserved voucher numbers
type Range struct {
	Series  string          `json:"series"`
	Year    int             `json:"year"`
	From    int64           `json:"from"`
	To      int64           `json:"to"`
	Numbers []VoucherNumber `json:"numbers"`
}

// ValidationResult reports gaps and duplicates in a minted series
type ValidationResult struct {
	Series     string  `json:"series"`
	Year       int     `json:"year"`
	Gaps       []int64 `json:"gaps"`
	Duplicates []int64 `json:"duplicates"`
}

// Clean reports whether the series has neither gaps nor duplicates
func (r ValidationResult) Clean() bool {
	return len(r.Gaps) == 0 && len(r.Duplicates) == 0
}

// seriesPattern restricts series to a single uppercase letter
var seriesPattern = regexp.MustCompile(`^[A-Z]$`)

// ValidateSeries checks that a series identifier is well-formed
func ValidateSeries(series string) error {
	if !seriesPattern.MatchString(series) {
		return shared.NewDomainError("INVALID_SERIES", fmt.Sprintf("Series must be a single uppercase letter, got %q", series))
	}
	return nil
}

// ValidateYear checks that the year is plausible for voucher numbering
func ValidateYear(year int) error {
	if year < 2000 || year > 2999 {
		return shared.NewDomainError("INVALID_YEAR", fmt.Sprintf("Year %d is outside the supported range", year))
	}
	return nil
}

// Format renders the canonical voucher number: series + year + zero-padded sequence
func Format(series string, year int, seq int64) string {
	return fmt.Sprintf("%s%d-%04d", series, year, seq)
}

// NewVoucherNumber builds a VoucherNumber for a minted sequence value
func NewVoucherNumber(series string, year int, seq int64) VoucherNumber {
	return VoucherNumber{
		Series:   series,
		Year:     year,
		Sequence: seq,
		Number:   Format(series, year, seq),
	}
}
