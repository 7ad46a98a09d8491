package period

import (
	"testing"
	"time"

	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenPeriod(t *testing.T) *Period {
	t.Helper()
	p, err := NewPeriod(uuid.New(), 2024, 6)
	require.NoError(t, err)
	return p
}

func testSummary() Summary {
	return Summary{
		DocumentCount: 12,
		TotalAmount:   decimal.NewFromInt(84000),
		TotalVAT:      decimal.NewFromInt(21000),
		Currency:      "SEK",
	}
}

func TestNewPeriod(t *testing.T) {
	t.Run("starts open", func(t *testing.T) {
		p := newOpenPeriod(t)

		assert.Equal(t, StatusOpen, p.Status)
		assert.Equal(t, "2024-06", p.Key())
		assert.NoError(t, p.AssertWritable())
	})

	t.Run("rejects invalid month", func(t *testing.T) {
		_, err := NewPeriod(uuid.New(), 2024, 13)
		assert.Error(t, err)
	})

	t.Run("rejects out of range year", func(t *testing.T) {
		_, err := NewPeriod(uuid.New(), 1999, 1)
		assert.Error(t, err)
	})
}

func TestPeriodWindow(t *testing.T) {
	p := newOpenPeriod(t)

	start, end := p.Window()
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), end)

	assert.True(t, p.Contains(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, p.Contains(time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)))
}

func TestPeriodClose(t *testing.T) {
	t.Run("clean close records summary and history", func(t *testing.T) {
		p := newOpenPeriod(t)
		actor := uuid.New()
		checks := []CheckResult{{Name: CheckUnapprovedDocuments, Status: CheckPassed, Blocking: true}}

		require.NoError(t, p.BeginClose())
		assert.Equal(t, StatusClosing, p.Status)
		assert.Error(t, p.AssertWritable())

		require.NoError(t, p.CompleteClose(actor, testSummary(), checks, false))

		assert.Equal(t, StatusClosed, p.Status)
		require.NotNil(t, p.ClosedBy)
		assert.Equal(t, actor, *p.ClosedBy)
		require.NotNil(t, p.Summary)
		assert.Equal(t, 12, p.Summary.DocumentCount)
		require.Len(t, p.History, 1)
		assert.Equal(t, HistoryClosed, p.History[0].Action)
		assert.Empty(t, p.History[0].FailedChecks)
	})

	t.Run("forced close keeps failing checks in history", func(t *testing.T) {
		p := newOpenPeriod(t)
		checks := []CheckResult{
			{Name: CheckUnapprovedDocuments, Status: CheckFailed, Blocking: true, Detail: "2 documents pending approval"},
			{Name: CheckFutureDated, Status: CheckWarning, Blocking: false},
		}

		require.NoError(t, p.BeginClose())
		require.NoError(t, p.CompleteClose(uuid.New(), testSummary(), checks, true))

		assert.Equal(t, StatusClosed, p.Status)
		require.Len(t, p.History, 1)
		assert.Equal(t, HistoryForceClosed, p.History[0].Action)
		require.Len(t, p.History[0].FailedChecks, 1)
		assert.Equal(t, CheckUnapprovedDocuments, p.History[0].FailedChecks[0].Name)
	})

	t.Run("abort close returns to open with checks visible", func(t *testing.T) {
		p := newOpenPeriod(t)
		checks := []CheckResult{{Name: CheckSequenceGaps, Status: CheckFailed, Blocking: true, Detail: "missing 4, 7"}}

		require.NoError(t, p.BeginClose())
		require.NoError(t, p.AbortClose(checks))

		assert.Equal(t, StatusOpen, p.Status)
		assert.NoError(t, p.AssertWritable())
		assert.Empty(t, p.History)
		require.Len(t, p.Checks, 1)
	})

	t.Run("cannot begin close twice", func(t *testing.T) {
		p := newOpenPeriod(t)
		require.NoError(t, p.BeginClose())
		assert.Error(t, p.BeginClose())
	})

	t.Run("cannot complete close from open", func(t *testing.T) {
		p := newOpenPeriod(t)
		assert.Error(t, p.CompleteClose(uuid.New(), testSummary(), nil, false))
	})
}

func TestPeriodLock(t *testing.T) {
	t.Run("lock only from closed", func(t *testing.T) {
		p := newOpenPeriod(t)
		assert.Error(t, p.Lock(uuid.New()))

		require.NoError(t, p.BeginClose())
		require.NoError(t, p.CompleteClose(uuid.New(), testSummary(), nil, false))
		require.NoError(t, p.Lock(uuid.New()))

		assert.Equal(t, StatusLocked, p.Status)
		assert.NotNil(t, p.LockedAt)
	})

	t.Run("locked period cannot reopen", func(t *testing.T) {
		p := newOpenPeriod(t)
		require.NoError(t, p.BeginClose())
		require.NoError(t, p.CompleteClose(uuid.New(), testSummary(), nil, false))
		require.NoError(t, p.Lock(uuid.New()))

		assert.Error(t, p.Reopen(uuid.New(), "year-end correction"))
		assert.Equal(t, StatusLocked, p.Status)
	})
}

func TestPeriodReopen(t *testing.T) {
	t.Run("reopen clears close fields and records reason", func(t *testing.T) {
		p := newOpenPeriod(t)
		require.NoError(t, p.BeginClose())
		require.NoError(t, p.CompleteClose(uuid.New(), testSummary(), nil, false))

		require.NoError(t, p.Reopen(uuid.New(), "missed supplier invoice"))

		assert.Equal(t, StatusOpen, p.Status)
		assert.Nil(t, p.ClosedAt)
		assert.Nil(t, p.ClosedBy)
		assert.NoError(t, p.AssertWritable())
		require.Len(t, p.History, 2)
		assert.Equal(t, HistoryReopened, p.History[1].Action)
		assert.Equal(t, "missed supplier invoice", p.History[1].Reason)
	})

	t.Run("reopen requires a reason", func(t *testing.T) {
		p := newOpenPeriod(t)
		require.NoError(t, p.BeginClose())
		require.NoError(t, p.CompleteClose(uuid.New(), testSummary(), nil, false))

		assert.Error(t, p.Reopen(uuid.New(), ""))
		assert.Equal(t, StatusClosed, p.Status)
	})

	t.Run("cannot reopen an open period", func(t *testing.T) {
		p := newOpenPeriod(t)
		assert.Error(t, p.Reopen(uuid.New(), "nothing to reopen"))
	})
}

func TestAssertWritable(t *testing.T) {
	p := newOpenPeriod(t)
	require.NoError(t, p.BeginClose())
	require.NoError(t, p.CompleteClose(uuid.New(), testSummary(), nil, false))

	assert.ErrorIs(t, p.AssertWritable(), shared.ErrPeriodNotWritable)
}

func TestCheckHelpers(t *testing.T) {
	checks := []CheckResult{
		{Name: CheckUnapprovedDocuments, Status: CheckPassed, Blocking: true},
		{Name: CheckSequenceGaps, Status: CheckFailed, Blocking: true},
		{Name: CheckLargeAmounts, Status: CheckWarning, Blocking: false},
	}

	assert.False(t, AllBlockingPassed(checks))
	assert.False(t, AllPassed(checks))
	require.Len(t, FailedBlocking(checks), 1)
	assert.Equal(t, CheckSequenceGaps, FailedBlocking(checks)[0].Name)

	checks[1].Status = CheckPassed
	assert.True(t, AllBlockingPassed(checks))
	assert.False(t, AllPassed(checks), "warning still not a clean pass")
	assert.True(t, checks[2].Passed())
}
