/*
store.go - Persistence interfaces for the credit ledger

PURPOSE:
  Defines the boundary between ledger logic and the database. The ledger
  receives these capabilities at construction time; it never looks models
  up through a global registry.

KEY INTERFACES:
  CustomerStore:    Customer records and their denormalized balance
  TransactionStore: Append-only ledger entries and queries over them
  StaffStore:       Staff records used to resolve "processed by" names
  TxStore:          Runs a function atomically against all of the above

ATOMIC WRITES:
  CreateTransaction appends an entry AND updates the customer balance.
  Both writes happen inside WithTx, so either both land or neither does.
  UpdateBalance is additionally a compare-and-swap on Customer.Version,
  which closes the read-then-write race across processes.

IMPLEMENTATIONS:
  - credit/store/memory.go: In-memory for tests and demos
  - store/sqlite/sqlite.go: SQLite via sqlx

SEE ALSO:
  - ledger.go: The only writer of balances
*/
package credit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CUSTOMER STORE
// =============================================================================

// BalanceUpdate is a compare-and-swap write of a customer's balance.
type BalanceUpdate struct {
	StoreID         StoreID
	CustomerID      CustomerID
	ExpectedVersion int64
	Balance         decimal.Decimal
	Status          CreditStatus
	At              time.Time
}

// LimitUpdate is a compare-and-swap write of a customer's credit limit.
type LimitUpdate struct {
	StoreID         StoreID
	CustomerID      CustomerID
	ExpectedVersion int64
	Limit           decimal.Decimal
	Status          CreditStatus
	At              time.Time
}

type CustomerStore interface {
	// SaveCustomer inserts a new customer. Returns ErrDuplicateID if the id exists.
	SaveCustomer(ctx context.Context, c Customer) error

	// FindCustomer returns ErrCustomerNotFound when the customer is missing
	// or belongs to another store.
	FindCustomer(ctx context.Context, storeID StoreID, id CustomerID) (Customer, error)

	// ListCustomers returns every customer of a store ordered by name.
	ListCustomers(ctx context.Context, storeID StoreID) ([]Customer, error)

	// StoreIDs returns every store that has at least one customer, sorted.
	StoreIDs(ctx context.Context) ([]StoreID, error)

	// UpdateBalance writes balance and status if the stored version still
	// equals ExpectedVersion, bumping the version. Returns
	// ErrConcurrentModification otherwise.
	UpdateBalance(ctx context.Context, u BalanceUpdate) error

	// UpdateCreditLimit has the same compare-and-swap contract as UpdateBalance.
	UpdateCreditLimit(ctx context.Context, u LimitUpdate) error
}

// =============================================================================
// TRANSACTION STORE (append-only)
// =============================================================================

// HistoryFilter narrows a customer's history. Zero values mean "no bound".
type HistoryFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Type      TransactionType
	Limit     int
}

// TransactionStore persists ledger entries. There is no Update or Delete.
type TransactionStore interface {
	// Append persists a transaction. Returns ErrDuplicateID if the id exists.
	Append(ctx context.Context, tx Transaction) error

	// History returns a customer's transactions matching the filter, newest
	// TransactionDate first, at most filter.Limit entries when Limit > 0.
	History(ctx context.Context, storeID StoreID, customerID CustomerID, filter HistoryFilter) ([]Transaction, error)

	// TransactionsSince returns a store's transactions with
	// TransactionDate in [since, until], newest first.
	TransactionsSince(ctx context.Context, storeID StoreID, since, until time.Time) ([]Transaction, error)

	// SumBalanceChanges totals BalanceChange per customer for a store.
	SumBalanceChanges(ctx context.Context, storeID StoreID) (map[CustomerID]decimal.Decimal, error)
}

// =============================================================================
// STAFF STORE
// =============================================================================

type StaffStore interface {
	SaveStaff(ctx context.Context, s Staff) error

	// StaffNames resolves ids to display names. Unknown ids are omitted.
	StaffNames(ctx context.Context, ids []StaffID) (map[StaffID]string, error)
}

// =============================================================================
// COMBINED / TRANSACTIONAL STORE
// =============================================================================

type Store interface {
	CustomerStore
	TransactionStore
	StaffStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
