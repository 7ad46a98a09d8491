package period

// CheckStatus is the outcome of one pre-close check
type CheckStatus string

const (
	CheckPassed  CheckStatus = "PASSED"
	CheckFailed  CheckStatus = "FAILED"
	CheckWarning CheckStatus = "WARNING"
)

// Check names. The first five are blocking; the last two only ever warn.
const (
	CheckUnapprovedDocuments = "unapproved_documents"
	CheckSequenceGaps        = "sequence_gaps"
	CheckVATReconciliation   = "vat_reconciliation"
	CheckBankReconciliation  = "bank_reconciliation"
	CheckDocumentValidation  = "document_validation"
	CheckFutureDated         = "future_dated_documents"
	CheckLargeAmounts        = "large_amounts"
)

// CheckResult is one pre-close check outcome with its detail
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Blocking bool        `json:"blocking"`
	Detail   string      `json:"detail,omitempty"`
}

// Passed reports whether the check did not fail. Warnings count as passed.
func (c CheckResult) Passed() bool {
	return c.Status != CheckFailed
}

// AllBlockingPassed reports whether no blocking check failed
func AllBlockingPassed(checks []CheckResult) bool {
	return len(FailedBlocking(checks)) == 0
}

// FailedBlocking returns the blocking checks that failed
func FailedBlocking(checks []CheckResult) []CheckResult {
	var failed []CheckResult
	for _, c := range checks {
		if c.Blocking && c.Status == CheckFailed {
			failed = append(failed, c)
		}
	}
	return failed
}

// AllPassed reports whether every check passed outright, warnings included
func AllPassed(checks []CheckResult) bool {
	for _, c := range checks {
		if c.Status != CheckPassed {
			return false
		}
	}
	return true
}
