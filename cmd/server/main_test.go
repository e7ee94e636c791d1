package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pharmly/credit-ledger/api"
	"github.com/pharmly/credit-ledger/credit"
	"github.com/pharmly/credit-ledger/store/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "credit.db")

	_, err := runCmd(t, "migrate", "--config", filepath.Join(dir, "none.toml"), "--db", db)
	require.NoError(t, err)

	store, err := sqlite.New(db)
	require.NoError(t, err)
	defer store.Close()
	ids, err := store.StoreIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAuditCommand_ExitsWithErrorOnDrift(t *testing.T) {
	// GIVEN: A database with one consistent and one tampered store
	// WHEN: Running creditd audit
	// THEN: Both stores are printed and the command fails with errDiscrepancies

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "credit.db")
	ctx := context.Background()

	store, err := sqlite.New(dbPath)
	require.NoError(t, err)
	ledger := credit.NewLedger(store)
	for _, storeID := range []credit.StoreID{"store-a", "store-b"} {
		c, err := ledger.RegisterCustomer(ctx, credit.CustomerInput{StoreID: storeID, Name: "Neha Gupta", CreditLimit: decimal.NewFromInt(5000)})
		require.NoError(t, err)
		_, err = ledger.CreateTransaction(ctx, credit.TransactionInput{
			StoreID: storeID, CustomerID: c.ID, Type: credit.TxSale,
			Amount: decimal.NewFromInt(1200), BalanceChange: decimal.NewFromInt(1200), ProcessedBy: "staff-1",
		})
		require.NoError(t, err)

		if storeID == "store-b" {
			c, err = store.FindCustomer(ctx, storeID, c.ID)
			require.NoError(t, err)
			require.NoError(t, store.UpdateBalance(ctx, credit.BalanceUpdate{
				StoreID: storeID, CustomerID: c.ID, ExpectedVersion: c.Version,
				Balance: decimal.NewFromInt(1000), Status: c.CreditStatus, At: c.UpdatedAt,
			}))
		}
	}
	require.NoError(t, store.Close())

	out, err := runCmd(t, "audit", "--config", filepath.Join(dir, "none.toml"), "--db", dbPath)
	assert.ErrorIs(t, err, errDiscrepancies)
	assert.Contains(t, out, "store-a\tOK\t1 customers")
	assert.Contains(t, out, "store-b\tDRIFT\t1 of 1 customers")
	assert.Contains(t, out, "stored 1,000.00\tledger 1,200.00\tdiff -200.00")
}

func TestAuditCommand_EmptyDatabaseSucceeds(t *testing.T) {
	dir := t.TempDir()

	out, err := runCmd(t, "audit", "--config", filepath.Join(dir, "none.toml"), "--db", filepath.Join(dir, "credit.db"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPrintAudit_StoreErrorFails(t *testing.T) {
	var out bytes.Buffer
	err := printAudit(&out, credit.NewDescriber("en"), []api.AuditRun{
		{StoreID: "store-a", Report: credit.AuditReport{CustomersChecked: 2}},
		{StoreID: "store-b", Err: errors.New("disk I/O error")},
	})

	require.Error(t, err)
	assert.NotErrorIs(t, err, errDiscrepancies)
	assert.Contains(t, out.String(), "store-b\tERROR\tdisk I/O error")
}

func TestLoadConfig_InvalidPortFlag(t *testing.T) {
	dir := t.TempDir()

	_, err := runCmd(t, "migrate", "--config", filepath.Join(dir, "none.toml"), "--db", filepath.Join(dir, "c.db"), "--port", "70000")
	assert.ErrorContains(t, err, "server.port")
}
