package credit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Discrepancy is a customer whose stored balance disagrees with the ledger.
type Discrepancy struct {
	CustomerID    CustomerID
	CustomerName  string
	StoredBalance decimal.Decimal
	LedgerBalance decimal.Decimal
	Difference    decimal.Decimal // StoredBalance - LedgerBalance
}

type AuditReport struct {
	StoreID          StoreID
	CheckedAt        time.Time
	CustomersChecked int
	Discrepancies    []Discrepancy
}

func (r AuditReport) Consistent() bool { return len(r.Discrepancies) == 0 }

// Audit compares every customer's CreditBalance with the sum of their
// ledger entries. It never repairs anything; discrepancies are reported
// for a human to investigate.
//
// Balances and sums are read in one store transaction so a write landing
// mid-audit cannot show up as drift.
func (l *Ledger) Audit(ctx context.Context, storeID StoreID) (AuditReport, error) {
	var (
		customers []Customer
		sums      map[CustomerID]decimal.Decimal
	)
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		if customers, err = s.ListCustomers(ctx, storeID); err != nil {
			return err
		}
		sums, err = s.SumBalanceChanges(ctx, storeID)
		return err
	})
	if err != nil {
		return AuditReport{}, err
	}

	report := AuditReport{StoreID: storeID, CheckedAt: l.now(), CustomersChecked: len(customers)}
	for _, c := range customers {
		ledgerBalance, ok := sums[c.ID]
		if !ok {
			ledgerBalance = decimal.Zero
		}
		if c.CreditBalance.Equal(ledgerBalance) {
			continue
		}
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			CustomerID:    c.ID,
			CustomerName:  c.Name,
			StoredBalance: c.CreditBalance,
			LedgerBalance: ledgerBalance,
			Difference:    c.CreditBalance.Sub(ledgerBalance),
		})
	}

	l.observer.AuditCompleted(storeID, report)
	if !report.Consistent() {
		for _, d := range report.Discrepancies {
			l.logger.WarnContext(ctx, "credit balance disagrees with ledger",
				"store_id", storeID,
				"customer_id", d.CustomerID,
				"stored_balance", d.StoredBalance.String(),
				"ledger_balance", d.LedgerBalance.String())
		}
	}
	return report, nil
}
