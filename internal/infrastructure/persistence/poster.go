package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/erp/docledger/internal/application/pipeline"
	"github.com/erp/docledger/internal/domain/document"
	"github.com/erp/docledger/internal/domain/duplicate"
	"github.com/erp/docledger/internal/domain/sequence"
	"github.com/erp/docledger/internal/domain/shared"
	"gorm.io/gorm"
)

// GormPoster executes the posting stage as one database transaction: assert
// the accounting period is writable, mint the next voucher number, persist
// the voucher, mark the job posted, register the duplicate fingerprint, and
// fold the invoice into supplier history. If any step fails, the transaction
// rolls back and the counter value is never observed outside it, so the
// number series stays gap-free.
type GormPoster struct {
	db *gorm.DB
}

// NewGormPoster creates a new GormPoster
func NewGormPoster(db *gorm.DB) *GormPoster {
	return &GormPoster{db: db}
}

// Post books an approved job into the ledger and returns the voucher
func (p *GormPoster) Post(ctx context.Context, job *document.Job, series string) (*document.Voucher, error) {
	if job.Posted {
		return nil, shared.ErrAlreadyPosted
	}
	if job.Class == nil {
		return nil, shared.NewDomainError("NOT_CLASSIFIED", "Job has no classification to post")
	}
	if err := sequence.ValidateSeries(series); err != nil {
		return nil, err
	}

	date := time.Now().UTC()
	if job.DocDate != nil {
		date = *job.DocDate
	} else if job.Class.InvoiceDate != nil {
		date = *job.Class.InvoiceDate
	}

	var voucher *document.Voucher
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		period, err := findOrCreatePeriod(tx, job.CompanyID, date.Year(), int(date.Month()))
		if err != nil {
			return err
		}
		if err := period.AssertWritable(); err != nil {
			return err
		}

		seq, err := incrementCounter(tx, job.CompanyID, series, date.Year(), 1)
		if err != nil {
			return err
		}
		number := sequence.Format(series, date.Year(), seq)

		voucher, err = document.NewVoucher(
			job.CompanyID, job.ID, number, series, date.Year(), seq, date,
			voucherText(job.Class), job.Class.Currency, document.PostingLines(job.Class),
		)
		if err != nil {
			return err
		}
		if err := saveVoucher(tx, voucher); err != nil {
			return err
		}

		if err := job.MarkPosted(number); err != nil {
			return err
		}
		if err := saveJob(tx, job); err != nil {
			return err
		}

		if err := registerFingerprint(tx, job, date); err != nil {
			return err
		}
		return recordSupplierInvoice(tx, job, date)
	})
	if err != nil {
		return nil, err
	}
	return voucher, nil
}

// voucherText renders the ledger text line: counterparty plus invoice number
func voucherText(c *document.Classification) string {
	return strings.TrimSpace(strings.Join([]string{c.Counterparty, c.InvoiceNumber}, " "))
}

// registerFingerprint writes the duplicate-detection record. A colliding key
// is tolerated: an overridden duplicate posts anyway, and its keys already
// exist from the original document.
func registerFingerprint(tx *gorm.DB, job *document.Job, date time.Time) error {
	fp, err := duplicate.NewFingerprint(
		job.CompanyID, job.ID,
		job.Class.Counterparty, job.Class.InvoiceNumber, job.FileHash,
		job.Class.TotalAmount, date,
	)
	if err != nil {
		return err
	}
	if err := saveFingerprint(tx, fp); err != nil && !errors.Is(err, shared.ErrAlreadyExists) {
		return err
	}
	return nil
}

// recordSupplierInvoice folds the posted invoice into the supplier's running
// statistics, creating the history row on first sight
func recordSupplierInvoice(tx *gorm.DB, job *document.Job, date time.Time) error {
	name := job.Class.Counterparty
	if name == "" {
		return nil
	}
	normalized := duplicate.NormalizeCounterparty(name)

	history, err := findSupplierHistory(tx, job.CompanyID, normalized)
	if err != nil {
		return err
	}
	if history == nil {
		history = document.NewSupplierHistory(job.CompanyID, normalized, name)
	}

	account := job.Class.SuggestedAccount()
	if account == "" {
		account = document.DefaultExpenseAccount
	}
	history.Record(job.Class.TotalAmount, account, date)
	return saveSupplierHistory(tx, history)
}

// Ensure GormPoster implements pipeline.Poster
var _ pipeline.Poster = (*GormPoster)(nil)
