package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pharmly/credit-ledger/credit"
	"github.com/pharmly/credit-ledger/credit/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func customer(id credit.CustomerID, name string) credit.Customer {
	return credit.Customer{
		ID:            id,
		StoreID:       "store-1",
		Name:          name,
		CreditBalance: decimal.Zero,
		CreditLimit:   decimal.NewFromInt(1000),
		CreditStatus:  credit.CreditGood,
	}
}

func entry(id credit.TransactionID, cust credit.CustomerID, change int64, date time.Time) credit.Transaction {
	return credit.Transaction{
		ID:              id,
		StoreID:         "store-1",
		CustomerID:      cust,
		Type:            credit.TxSale,
		Amount:          decimal.NewFromInt(change).Abs(),
		BalanceChange:   decimal.NewFromInt(change),
		TransactionDate: date,
		CreatedAt:       date,
	}
}

func TestTxMemory_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that appends an entry and then fails
	// WHEN: WithTx returns the error
	// THEN: Neither the entry nor the balance change is visible

	mem := store.NewTxMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveCustomer(ctx, customer("c1", "Anil")))

	boom := errors.New("boom")
	err := mem.WithTx(ctx, func(s credit.Store) error {
		require.NoError(t, s.Append(ctx, entry("t1", "c1", 50, time.Now())))
		require.NoError(t, s.UpdateBalance(ctx, credit.BalanceUpdate{
			StoreID: "store-1", CustomerID: "c1", ExpectedVersion: 0, Balance: decimal.NewFromInt(50),
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	c, err := mem.FindCustomer(ctx, "store-1", "c1")
	require.NoError(t, err)
	assert.True(t, c.CreditBalance.IsZero())
	assert.Equal(t, int64(0), c.Version)

	txs, err := mem.History(ctx, "store-1", "c1", credit.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)

	// The id is free again after rollback.
	require.NoError(t, mem.Append(ctx, entry("t1", "c1", 50, time.Now())))
}

func TestMemory_UpdateBalance_VersionMismatch(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveCustomer(ctx, customer("c1", "Anil")))

	update := credit.BalanceUpdate{StoreID: "store-1", CustomerID: "c1", ExpectedVersion: 0, Balance: decimal.NewFromInt(10)}
	require.NoError(t, mem.UpdateBalance(ctx, update))

	// Same expected version again: someone else already wrote.
	err := mem.UpdateBalance(ctx, update)
	assert.ErrorIs(t, err, credit.ErrConcurrentModification)

	err = mem.UpdateCreditLimit(ctx, credit.LimitUpdate{StoreID: "store-1", CustomerID: "c1", ExpectedVersion: 0, Limit: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, credit.ErrConcurrentModification)

	err = mem.UpdateBalance(ctx, credit.BalanceUpdate{StoreID: "store-2", CustomerID: "c1", ExpectedVersion: 1})
	assert.ErrorIs(t, err, credit.ErrCustomerNotFound)
}

func TestMemory_DuplicateIDs(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.SaveCustomer(ctx, customer("c1", "Anil")))
	assert.ErrorIs(t, mem.SaveCustomer(ctx, customer("c1", "Other")), credit.ErrDuplicateID)

	require.NoError(t, mem.Append(ctx, entry("t1", "c1", 5, time.Now())))
	assert.ErrorIs(t, mem.Append(ctx, entry("t1", "c1", 5, time.Now())), credit.ErrDuplicateID)
}

func TestMemory_ListCustomersSortedByName(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveCustomer(ctx, customer("c1", "Zoya")))
	require.NoError(t, mem.SaveCustomer(ctx, customer("c2", "Arjun")))
	other := customer("c3", "Bina")
	other.StoreID = "store-2"
	require.NoError(t, mem.SaveCustomer(ctx, other))

	list, err := mem.ListCustomers(ctx, "store-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Arjun", list[0].Name)
	assert.Equal(t, "Zoya", list[1].Name)
}

func TestMemory_TransactionsSinceAndSums(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, mem.Append(ctx, entry("t1", "c1", 100, base)))
	require.NoError(t, mem.Append(ctx, entry("t2", "c1", -40, base.AddDate(0, 0, 2))))
	require.NoError(t, mem.Append(ctx, entry("t3", "c2", 70, base.AddDate(0, 0, 5))))

	txs, err := mem.TransactionsSince(ctx, "store-1", base.AddDate(0, 0, 1), base.AddDate(0, 0, 5))
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, credit.TransactionID("t3"), txs[0].ID)
	assert.Equal(t, credit.TransactionID("t2"), txs[1].ID)

	sums, err := mem.SumBalanceChanges(ctx, "store-1")
	require.NoError(t, err)
	assert.True(t, sums["c1"].Equal(decimal.NewFromInt(60)))
	assert.True(t, sums["c2"].Equal(decimal.NewFromInt(70)))
}

func TestMemory_StoreIDs(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	b := customer("c1", "Anil")
	b.StoreID = "store-b"
	require.NoError(t, mem.SaveCustomer(ctx, b))
	require.NoError(t, mem.SaveCustomer(ctx, customer("c2", "Zoya")))
	require.NoError(t, mem.SaveCustomer(ctx, customer("c3", "Bina")))

	ids, err := mem.StoreIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []credit.StoreID{"store-1", "store-b"}, ids)
}

func TestMemory_HistoryTiesNewestAppendFirst(t *testing.T) {
	// GIVEN: Three entries sharing TransactionDate and CreatedAt
	// WHEN: Reading history and the store-wide window
	// THEN: The most recently appended entry comes first, and Limit keeps it

	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveCustomer(ctx, customer("c1", "Anil")))
	require.NoError(t, mem.SaveCustomer(ctx, customer("c2", "Bina")))

	at := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, mem.Append(ctx, entry("t-z", "c1", 10, at)))
	require.NoError(t, mem.Append(ctx, entry("t-a", "c1", 20, at)))
	require.NoError(t, mem.Append(ctx, entry("t-m", "c2", 30, at)))

	got, err := mem.History(ctx, "store-1", "c1", credit.HistoryFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, credit.TransactionID("t-a"), got[0].ID)

	all, err := mem.TransactionsSince(ctx, "store-1", at, at)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []credit.TransactionID{"t-m", "t-a", "t-z"},
		[]credit.TransactionID{all[0].ID, all[1].ID, all[2].ID})
}
