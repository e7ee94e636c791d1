/*
ledger.go - The credit ledger service

PURPOSE:
  The Ledger is the only writer of customer credit balances. Every balance
  change is recorded as a Transaction and applied to the customer record in
  the same store transaction.

CRITICAL INVARIANTS:
  1. NON-NEGATIVE: A customer's CreditBalance never drops below zero
  2. CONSISTENT: CreditBalance equals the sum of the customer's BalanceChange
  3. SNAPSHOTS: NewBalance == PreviousBalance + BalanceChange on every entry
  4. IMMUTABLE: Entries are never edited after creation

SERIALIZATION:
  "Read balance, validate, write entry and balance" must not interleave for
  one customer. Two layers enforce it:
  - An in-process per-customer mutex, so requests in this process queue up
  - A version compare-and-swap in the store, so writers in other processes
    sharing the database fail with ErrConcurrentModification instead of
    silently overwriting each other

EXAMPLE FLOW:
  Customer at balance 1000, limit 5000
  1. Payment 1000: previous 1000, change -1000, new 0
  2. Payment 1:    previous 0, change -1 -> NegativeBalanceError, no writes

SEE ALSO:
  - store.go: Persistence interfaces
  - summary.go: Store-wide credit summary
  - audit.go: Balance vs ledger reconciliation
*/
package credit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// Observer receives ledger outcomes. Metrics implement it.
type Observer interface {
	TransactionRecorded(tx Transaction, elapsed time.Duration)
	TransactionRejected(t TransactionType, reason string)
	AuditCompleted(storeID StoreID, report AuditReport)
}

type nopObserver struct{}

func (nopObserver) TransactionRecorded(Transaction, time.Duration) {}
func (nopObserver) TransactionRejected(TransactionType, string)     {}
func (nopObserver) AuditCompleted(StoreID, AuditReport)              {}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store     TxStore
	locks     *customerLocks
	now       func() time.Time
	logger    *slog.Logger
	observer  Observer
	describer *Describer
}

type Option func(*Ledger)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(l *Ledger) {
		if o != nil {
			l.observer = o
		}
	}
}

func WithDescriber(d *Describer) Option {
	return func(l *Ledger) {
		if d != nil {
			l.describer = d
		}
	}
}

func NewLedger(store TxStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		locks:     newCustomerLocks(),
		now:       time.Now,
		logger:    slog.New(slog.DiscardHandler),
		observer:  nopObserver{},
		describer: NewDescriber("en"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store exposes the underlying store for read paths outside the ledger.
func (l *Ledger) Store() TxStore { return l.store }

// Describer returns the formatter used for default descriptions.
func (l *Ledger) Describer() *Describer { return l.describer }

// =============================================================================
// CREATE TRANSACTION
// =============================================================================

// TransactionInput is everything a caller supplies for a new entry.
// TransactionDate defaults to the ledger clock when zero.
type TransactionInput struct {
	StoreID         StoreID
	CustomerID      CustomerID
	Type            TransactionType
	Amount          decimal.Decimal
	BalanceChange   decimal.Decimal
	Reference       Reference
	Details         Details
	Description     string
	Notes           string
	ProcessedBy     StaffID
	TransactionDate time.Time
}

func (in TransactionInput) validate() error {
	v := &ValidationError{}
	if in.StoreID == "" {
		v.Add("store", "store is required")
	}
	if in.CustomerID == "" {
		v.Add("customer", "customer is required")
	}
	if !in.Type.Valid() {
		v.Add("transactionType", "unknown transaction type")
	}
	if in.Amount.IsNegative() {
		v.Add("amount", "amount cannot be negative")
	}
	if in.ProcessedBy == "" {
		v.Add("processedBy", "processedBy is required")
	}
	if in.Reference.Type != "" && !in.Reference.Type.Valid() {
		v.Add("reference.type", "unknown reference type")
	}
	if in.Details != nil && in.Details.Kind() != in.Type {
		v.Add("details", "details do not match transaction type")
	}
	return v.OrNil()
}

// CreateTransaction records a balance change for a customer and applies it
// to the customer's balance atomically.
//
// Fails without writing anything when the customer is missing
// (ErrCustomerNotFound) or the new balance would be negative
// (NegativeBalanceError).
func (l *Ledger) CreateTransaction(ctx context.Context, in TransactionInput) (Transaction, error) {
	started := time.Now()
	if err := in.validate(); err != nil {
		l.observer.TransactionRejected(in.Type, rejectionReason(err))
		return Transaction{}, err
	}

	unlock := l.locks.lock(in.StoreID, in.CustomerID)
	defer unlock()

	var created Transaction
	err := l.store.WithTx(ctx, func(s Store) error {
		customer, err := s.FindCustomer(ctx, in.StoreID, in.CustomerID)
		if err != nil {
			return err
		}
		created, _, err = l.apply(ctx, s, customer, in)
		return err
	})
	if err != nil {
		l.observer.TransactionRejected(in.Type, rejectionReason(err))
		l.logFailure(ctx, "credit transaction rejected", err,
			"customer_id", in.CustomerID, "type", in.Type, "balance_change", in.BalanceChange.String())
		return Transaction{}, err
	}

	l.observer.TransactionRecorded(created, time.Since(started))
	l.logger.DebugContext(ctx, "credit transaction recorded",
		"transaction_id", created.ID,
		"customer_id", created.CustomerID,
		"type", created.Type,
		"previous_balance", created.PreviousBalance.String(),
		"new_balance", created.NewBalance.String())
	return created, nil
}

// apply appends the entry for in and moves customer's balance inside an
// open store transaction. It returns the entry and the updated customer.
func (l *Ledger) apply(ctx context.Context, s Store, customer Customer, in TransactionInput) (Transaction, Customer, error) {
	previous := customer.CreditBalance
	next := previous.Add(in.BalanceChange)
	if next.IsNegative() {
		return Transaction{}, Customer{}, &NegativeBalanceError{
			CustomerID: customer.ID,
			Previous:   previous,
			Change:     in.BalanceChange,
		}
	}

	tx := l.buildTransaction(in, previous, next)
	if err := s.Append(ctx, tx); err != nil {
		return Transaction{}, Customer{}, err
	}

	status := RecomputeStatus(next, customer.CreditLimit)
	err := s.UpdateBalance(ctx, BalanceUpdate{
		StoreID:         customer.StoreID,
		CustomerID:      customer.ID,
		ExpectedVersion: customer.Version,
		Balance:         next,
		Status:          status,
		At:              tx.CreatedAt,
	})
	if err != nil {
		return Transaction{}, Customer{}, err
	}

	customer.CreditBalance = next
	customer.CreditStatus = status
	customer.Version++
	customer.UpdatedAt = tx.CreatedAt
	return tx, customer, nil
}

func (l *Ledger) buildTransaction(in TransactionInput, previous, next decimal.Decimal) Transaction {
	now := l.now()
	date := in.TransactionDate
	if date.IsZero() {
		date = now
	}
	period := FiscalPeriodOf(date)

	description := in.Description
	if description == "" {
		description = l.describer.Describe(in.Type, in.Amount, in.Details)
	}

	return Transaction{
		ID:              TransactionID(uuid.NewString()),
		StoreID:         in.StoreID,
		CustomerID:      in.CustomerID,
		Type:            in.Type,
		Amount:          in.Amount,
		BalanceChange:   in.BalanceChange,
		PreviousBalance: previous,
		NewBalance:      next,
		Reference:       in.Reference,
		Details:         in.Details,
		Description:     description,
		Notes:           in.Notes,
		ProcessedBy:     in.ProcessedBy,
		Status:          StatusCompleted,
		FiscalYear:      period.FiscalYear,
		Quarter:         period.Quarter,
		Month:           period.Month,
		TransactionDate: date,
		CreatedAt:       now,
	}
}

// =============================================================================
// HISTORY
// =============================================================================

// HistoryEntry is a transaction with the processing staff name resolved.
type HistoryEntry struct {
	Transaction
	ProcessedByName string
}

// CustomerHistory returns the customer and their filtered transactions,
// newest first. Read-only.
func (l *Ledger) CustomerHistory(ctx context.Context, storeID StoreID, customerID CustomerID, filter HistoryFilter) (Customer, []HistoryEntry, error) {
	filter, err := normalizeFilter(filter)
	if err != nil {
		return Customer{}, nil, err
	}

	customer, err := l.store.FindCustomer(ctx, storeID, customerID)
	if err != nil {
		return Customer{}, nil, err
	}

	txs, err := l.store.History(ctx, storeID, customerID, filter)
	if err != nil {
		return Customer{}, nil, err
	}

	ids := make([]StaffID, 0, len(txs))
	seen := make(map[StaffID]bool)
	for _, tx := range txs {
		if !seen[tx.ProcessedBy] {
			seen[tx.ProcessedBy] = true
			ids = append(ids, tx.ProcessedBy)
		}
	}
	names, err := l.store.StaffNames(ctx, ids)
	if err != nil {
		return Customer{}, nil, err
	}

	entries := make([]HistoryEntry, len(txs))
	for i, tx := range txs {
		entries[i] = HistoryEntry{Transaction: tx, ProcessedByName: names[tx.ProcessedBy]}
	}
	return customer, entries, nil
}

func normalizeFilter(f HistoryFilter) (HistoryFilter, error) {
	v := &ValidationError{}
	if f.Type != "" && !f.Type.Valid() {
		v.Add("transactionType", "unknown transaction type")
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		v.Add("startDate", "startDate must not be after endDate")
	}
	if f.Limit < 0 {
		v.Add("limit", "limit must be positive")
	}
	if err := v.OrNil(); err != nil {
		return f, err
	}
	if f.Limit == 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}
	return f, nil
}

// =============================================================================
// CREDIT LIMIT
// =============================================================================

// SetCreditLimit changes a customer's limit and recomputes their status.
// The limit may not be negative or below the outstanding balance.
func (l *Ledger) SetCreditLimit(ctx context.Context, storeID StoreID, customerID CustomerID, limit decimal.Decimal) (Customer, error) {
	if limit.IsNegative() {
		return Customer{}, NewValidationError("creditLimit", "credit limit cannot be negative")
	}

	unlock := l.locks.lock(storeID, customerID)
	defer unlock()

	var updated Customer
	err := l.store.WithTx(ctx, func(s Store) error {
		customer, err := s.FindCustomer(ctx, storeID, customerID)
		if err != nil {
			return err
		}
		if limit.LessThan(customer.CreditBalance) {
			return NewValidationError("creditLimit", "credit limit cannot be below the outstanding balance")
		}

		now := l.now()
		status := RecomputeStatus(customer.CreditBalance, limit)
		err = s.UpdateCreditLimit(ctx, LimitUpdate{
			StoreID:         storeID,
			CustomerID:      customerID,
			ExpectedVersion: customer.Version,
			Limit:           limit,
			Status:          status,
			At:              now,
		})
		if err != nil {
			return err
		}

		customer.CreditLimit = limit
		customer.CreditStatus = status
		customer.Version++
		customer.UpdatedAt = now
		updated = customer
		return nil
	})
	if err != nil {
		l.logFailure(ctx, "credit limit update rejected", err, "customer_id", customerID, "limit", limit.String())
		return Customer{}, err
	}

	l.logger.InfoContext(ctx, "credit limit updated",
		"customer_id", customerID, "limit", limit.String(), "status", updated.CreditStatus)
	return updated, nil
}

// =============================================================================
// CUSTOMERS
// =============================================================================

// CustomerInput describes a new customer. A positive OpeningBalance is
// booked as an add adjustment by ProcessedBy.
type CustomerInput struct {
	StoreID        StoreID
	Name           string
	Phone          string
	Email          string
	CreditLimit    decimal.Decimal
	OpeningBalance decimal.Decimal
	ProcessedBy    StaffID
}

// OpeningBalanceReason is the adjustment reason recorded for opening balances.
const OpeningBalanceReason = "Opening balance"

// RegisterCustomer creates a customer. The customer row and any opening
// balance adjustment are written in one store transaction, so a failed
// opening entry leaves no customer behind.
func (l *Ledger) RegisterCustomer(ctx context.Context, in CustomerInput) (Customer, error) {
	started := time.Now()
	v := &ValidationError{}
	if in.StoreID == "" {
		v.Add("store", "store is required")
	}
	if in.Name == "" {
		v.Add("name", "name is required")
	}
	if in.CreditLimit.IsNegative() {
		v.Add("creditLimit", "credit limit cannot be negative")
	}
	if in.OpeningBalance.IsNegative() {
		v.Add("openingBalance", "opening balance cannot be negative")
	}
	if in.OpeningBalance.IsPositive() && in.ProcessedBy == "" {
		v.Add("processedBy", "processedBy is required")
	}
	if err := v.OrNil(); err != nil {
		return Customer{}, err
	}

	now := l.now()
	c := Customer{
		ID:            CustomerID(uuid.NewString()),
		StoreID:       in.StoreID,
		Name:          in.Name,
		Phone:         in.Phone,
		Email:         in.Email,
		CreditBalance: decimal.Zero,
		CreditLimit:   in.CreditLimit,
		CreditStatus:  RecomputeStatus(decimal.Zero, in.CreditLimit),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if !in.OpeningBalance.IsPositive() {
		if err := l.store.SaveCustomer(ctx, c); err != nil {
			return Customer{}, err
		}
		return c, nil
	}

	opening := TransactionInput{
		StoreID:       c.StoreID,
		CustomerID:    c.ID,
		Type:          TxAdjustment,
		Amount:        in.OpeningBalance,
		BalanceChange: in.OpeningBalance,
		Reference:     Reference{Type: RefAdjustment},
		Details:       AdjustmentDetails{Direction: AdjustAdd, Reason: OpeningBalanceReason},
		ProcessedBy:   in.ProcessedBy,
	}
	var entry Transaction
	err := l.store.WithTx(ctx, func(s Store) error {
		if err := s.SaveCustomer(ctx, c); err != nil {
			return err
		}
		var err error
		entry, c, err = l.apply(ctx, s, c, opening)
		return err
	})
	if err != nil {
		l.logFailure(ctx, "customer registration rejected", err, "opening_balance", in.OpeningBalance.String())
		return Customer{}, err
	}
	l.observer.TransactionRecorded(entry, time.Since(started))
	return c, nil
}

// RegisterStaff records a staff member so history can show their name.
func (l *Ledger) RegisterStaff(ctx context.Context, s Staff) (Staff, error) {
	v := &ValidationError{}
	if s.StoreID == "" {
		v.Add("store", "store is required")
	}
	if s.Name == "" {
		v.Add("name", "name is required")
	}
	if err := v.OrNil(); err != nil {
		return Staff{}, err
	}
	if s.ID == "" {
		s.ID = StaffID(uuid.NewString())
	}
	s.CreatedAt = l.now()
	if err := l.store.SaveStaff(ctx, s); err != nil {
		return Staff{}, err
	}
	return s, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrCustomerNotFound):
		return "customer_not_found"
	case errors.Is(err, ErrNegativeBalance):
		return "negative_balance"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	default:
		return "store_error"
	}
}

func (l *Ledger) logFailure(ctx context.Context, msg string, err error, args ...any) {
	args = append(args, "error", err)
	if IsClientError(err) || IsNotFound(err) || IsRetryable(err) {
		l.logger.InfoContext(ctx, msg, args...)
		return
	}
	l.logger.ErrorContext(ctx, msg, args...)
}
