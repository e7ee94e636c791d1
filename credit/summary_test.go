package credit_test

import (
	"context"
	"testing"
	"time"

	"github.com/pharmly/credit-ledger/credit"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummary_AggregatesCustomersWithPositiveBalance(t *testing.T) {
	// GIVEN: Three customers, one with a zero balance
	// WHEN: Summarizing the store
	// THEN: Only positive balances (and their limits) count

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	seedCustomer(t, ledger, "1000", "5000")
	seedCustomer(t, ledger, "500", "1000")
	seedCustomer(t, ledger, "0", "20000")

	s, err := ledger.Summary(ctx, testStore, 0)
	require.NoError(t, err)

	assert.Equal(t, credit.DefaultSummaryPeriodDays, s.PeriodDays)
	assert.Equal(t, 2, s.CustomersWithCredit)
	assert.True(t, s.TotalOutstanding.Equal(d("1500")))
	assert.True(t, s.TotalCreditLimit.Equal(d("6000")))
	assert.True(t, s.AvailableCredit.Equal(d("4500")))
	assert.Equal(t, int64(25), s.UtilizationPercentage)
}

func TestSummary_OverLimitClampsAvailableCredit(t *testing.T) {
	ledger, _ := newTestLedger(t)
	seedCustomer(t, ledger, "300", "0")

	s, err := ledger.Summary(context.Background(), testStore, 7)
	require.NoError(t, err)

	assert.True(t, s.AvailableCredit.Equal(decimal.Zero))
	assert.Equal(t, int64(0), s.UtilizationPercentage, "zero total limit")
}

func TestSummary_EmptyStore(t *testing.T) {
	ledger, _ := newTestLedger(t)

	s, err := ledger.Summary(context.Background(), "empty-store", 30)
	require.NoError(t, err)
	assert.Equal(t, 0, s.CustomersWithCredit)
	assert.True(t, s.TotalOutstanding.IsZero())
	assert.Empty(t, s.RecentTransactions)
	assert.Empty(t, s.ByType)
}

func TestSummary_WindowRecentAndByType(t *testing.T) {
	// GIVEN: Sales inside and outside a 7-day window plus a payment
	// WHEN: Summarizing with period 7
	// THEN: Only in-window entries are listed and grouped, in type order

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	c := seedCustomer(t, ledger, "0", "100000")

	old := march15().AddDate(0, 0, -20)
	_, err := ledger.CreateTransaction(ctx, saleInput(c.ID, "999", old))
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		_, err := ledger.CreateTransaction(ctx, saleInput(c.ID, "10.50", march15().Add(-time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	_, err = ledger.CreateTransaction(ctx, paymentInput(c.ID, "20"))
	require.NoError(t, err)

	s, err := ledger.Summary(ctx, testStore, 7)
	require.NoError(t, err)

	assert.Len(t, s.RecentTransactions, 10)
	assert.Equal(t, credit.TxPayment, s.RecentTransactions[0].Type, "newest first")
	for _, tx := range s.RecentTransactions {
		assert.False(t, tx.TransactionDate.Before(s.PeriodStart))
	}

	require.Len(t, s.ByType, 2)
	assert.Equal(t, credit.TxSale, s.ByType[0].Type)
	assert.Equal(t, 12, s.ByType[0].Count)
	assert.True(t, s.ByType[0].TotalAmount.Equal(d("126")))
	assert.Equal(t, credit.TxPayment, s.ByType[1].Type)
	assert.Equal(t, 1, s.ByType[1].Count)
}

func TestSummary_NegativePeriodRejected(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.Summary(context.Background(), testStore, -3)
	assert.ErrorIs(t, err, credit.ErrValidation)
}
