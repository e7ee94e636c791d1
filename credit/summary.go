package credit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSummaryPeriodDays = 30
	recentTransactionsLimit  = 10
)

// TypeStats is the count and summed amount of one transaction type.
type TypeStats struct {
	Type        TransactionType
	Count       int
	TotalAmount decimal.Decimal
}

// Summary is the store-wide credit position.
type Summary struct {
	TotalOutstanding      decimal.Decimal
	TotalCreditLimit      decimal.Decimal
	AvailableCredit       decimal.Decimal
	UtilizationPercentage int64
	CustomersWithCredit   int
	PeriodDays            int
	PeriodStart           time.Time
	PeriodEnd             time.Time
	RecentTransactions    []Transaction
	ByType                []TypeStats
}

// Summary aggregates outstanding credit over customers with a positive
// balance and groups the last periodDays of transactions by type.
func (l *Ledger) Summary(ctx context.Context, storeID StoreID, periodDays int) (Summary, error) {
	if periodDays == 0 {
		periodDays = DefaultSummaryPeriodDays
	}
	if periodDays < 0 {
		return Summary{}, NewValidationError("period", "period must be a positive number of days")
	}

	end := l.now()
	start := end.AddDate(0, 0, -periodDays)

	var (
		customers []Customer
		txs       []Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		customers, err = l.store.ListCustomers(gctx, storeID)
		return err
	})
	g.Go(func() error {
		var err error
		txs, err = l.store.TransactionsSince(gctx, storeID, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	s := Summary{
		TotalOutstanding: decimal.Zero,
		TotalCreditLimit: decimal.Zero,
		PeriodDays:       periodDays,
		PeriodStart:      start,
		PeriodEnd:        end,
	}
	for _, c := range customers {
		if !c.CreditBalance.IsPositive() {
			continue
		}
		s.CustomersWithCredit++
		s.TotalOutstanding = s.TotalOutstanding.Add(c.CreditBalance)
		s.TotalCreditLimit = s.TotalCreditLimit.Add(c.CreditLimit)
	}
	s.AvailableCredit = decimal.Max(decimal.Zero, s.TotalCreditLimit.Sub(s.TotalOutstanding))
	s.UtilizationPercentage = utilization(s.TotalOutstanding, s.TotalCreditLimit)

	recent := txs
	if len(recent) > recentTransactionsLimit {
		recent = recent[:recentTransactionsLimit]
	}
	s.RecentTransactions = recent
	s.ByType = groupByType(txs)
	return s, nil
}

// groupByType keeps TransactionTypes order and skips types with no entries.
func groupByType(txs []Transaction) []TypeStats {
	stats := make(map[TransactionType]*TypeStats)
	for _, tx := range txs {
		st, ok := stats[tx.Type]
		if !ok {
			st = &TypeStats{Type: tx.Type, TotalAmount: decimal.Zero}
			stats[tx.Type] = st
		}
		st.Count++
		st.TotalAmount = st.TotalAmount.Add(tx.Amount)
	}

	out := make([]TypeStats, 0, len(stats))
	for _, t := range TransactionTypes {
		if st, ok := stats[t]; ok {
			out = append(out, *st)
		}
	}
	return out
}
