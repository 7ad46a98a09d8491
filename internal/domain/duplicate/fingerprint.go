package duplicate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fingerprint is the derived lookup record for one posted document.
// It carries every matchable key for the document: the exact invoice key,
// the file hash, and the fuzzy-match fields (normalized counterparty,
// amount, invoice date). Rows are immutable once written and are only
// deleted together with their owning job.
type Fingerprint struct {
	shared.BaseEntity
	CompanyID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_fp_invoice_key,priority:1;index:idx_fp_file_hash,priority:1;index:idx_fp_counterparty,priority:1"`
	JobID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	InvoiceKey    string          `gorm:"type:varchar(300);index:idx_fp_invoice_key,priority:2"`
	FileHash      string          `gorm:"type:varchar(64);index:idx_fp_file_hash,priority:2"`
	Counterparty  string          `gorm:"type:varchar(200);index:idx_fp_counterparty,priority:2"` // normalized
	InvoiceNumber string          `gorm:"type:varchar(100)"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,4)"`
	InvoiceDate   time.Time
}

// TableName returns the table name for GORM
func (Fingerprint) TableName() string {
	return "fingerprints"
}

// NewFingerprint derives the fingerprint record for a posted document
func NewFingerprint(companyID, jobID uuid.UUID, counterparty, invoiceNumber, fileHash string, amount decimal.Decimal, invoiceDate time.Time) (*Fingerprint, error) {
	if jobID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_JOB", "Job ID is required")
	}
	if fileHash == "" && (counterparty == "" || invoiceNumber == "") {
		return nil, shared.NewDomainError("INVALID_FINGERPRINT", "A fingerprint needs a file hash or a counterparty and invoice number")
	}

	normalized := NormalizeCounterparty(counterparty)
	fp := &Fingerprint{
		BaseEntity:    shared.NewBaseEntity(),
		CompanyID:     companyID,
		JobID:         jobID,
		FileHash:      fileHash,
		Counterparty:  normalized,
		InvoiceNumber: invoiceNumber,
		Amount:        amount,
		InvoiceDate:   invoiceDate,
	}
	if normalized != "" && invoiceNumber != "" {
		fp.InvoiceKey = InvoiceKey(counterparty, invoiceNumber)
	}
	return fp, nil
}

// InvoiceKey derives the exact-match key from counterparty and invoice number
func InvoiceKey(counterparty, invoiceNumber string) string {
	return fmt.Sprintf("invoice:%s:%s", NormalizeCounterparty(counterparty), strings.ToLower(strings.TrimSpace(invoiceNumber)))
}

// HashFile returns the hex SHA-256 of the raw file bytes
func HashFile(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// legalSuffixes are company-form suffixes stripped during normalization so
// that "Acme AB" and "ACME Aktiebolag" style variants collide.
var legalSuffixes = map[string]bool{
	"ab": true, "hb": true, "kb": true, "aktiebolag": true,
	"as": true, "asa": true, "oy": true, "oyj": true, "aps": true,
	"gmbh": true, "ag": true, "sa": true, "srl": true, "bv": true, "nv": true,
	"inc": true, "llc": true, "ltd": true, "limited": true, "corp": true, "co": true,
}

// foldTransformer decomposes, strips combining marks, and recomposes, so that
// diacritics do not defeat the match ("Möller" == "Moller").
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var caseFolder = cases.Fold()

// NormalizeCounterparty produces the canonical form of a counterparty name
// used in fingerprint keys: case-folded, diacritic-free, punctuation-free,
// whitespace-collapsed, with trailing legal-form suffixes removed.
func NormalizeCounterparty(name string) string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		folded = name
	}
	folded = caseFolder.String(folded)

	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '.' || r == ',' || r == '&' || r == '/':
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	for len(words) > 1 && legalSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}
