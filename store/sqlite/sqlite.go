/*
Package sqlite provides a SQLite-backed implementation of credit.TxStore.

KEY TABLES:
  customers:           Customer records with the denormalized balance
  credit_transactions: Append-only credit ledger
  staff:               Staff names for history display

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on credit_transactions
  - Customer balance/limit updates are compare-and-swap on version

CONCURRENCY:
  The pool is capped at one open connection and write transactions start
  with BEGIN IMMEDIATE (_txlock=immediate), so SQLite sees one writer at a
  time. The version check on customers still protects against other
  processes writing the same file.

STORAGE FORMATS:
  - Money values are stored as decimal TEXT and summed in Go, never in SQL
  - Timestamps are fixed-width UTC text so ORDER BY and range filters
    compare correctly as strings

USAGE:
  store, err := sqlite.New("./data/credit.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := credit.NewLedger(store)

SEE ALSO:
  - credit/store.go: Interface definitions
  - credit/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pharmly/credit-ledger/credit"
	"github.com/shopspring/decimal"
)

// timeLayout is fixed width so lexical order equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements credit.TxStore using SQLite.
type Store struct {
	queries
	db *sqlx.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would be a different database.
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		store_id TEXT NOT NULL,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		credit_balance TEXT NOT NULL DEFAULT '0',
		credit_limit TEXT NOT NULL DEFAULT '0',
		credit_status TEXT NOT NULL DEFAULT 'good',
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_customers_store_name
		ON customers(store_id, name);

	-- Credit ledger (append-only)
	CREATE TABLE IF NOT EXISTS credit_transactions (
		id TEXT PRIMARY KEY,
		store_id TEXT NOT NULL,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		transaction_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_change TEXT NOT NULL,
		previous_balance TEXT NOT NULL,
		new_balance TEXT NOT NULL,
		reference_type TEXT NOT NULL DEFAULT '',
		reference_id TEXT NOT NULL DEFAULT '',
		reference_number TEXT NOT NULL DEFAULT '',
		details_json TEXT,
		description TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		processed_by TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'completed',
		fiscal_year TEXT NOT NULL,
		quarter INTEGER NOT NULL,
		month TEXT NOT NULL,
		transaction_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- History query (hot path)
	CREATE INDEX IF NOT EXISTS idx_credit_tx_customer_date
		ON credit_transactions(store_id, customer_id, transaction_date DESC);

	-- Summary window
	CREATE INDEX IF NOT EXISTS idx_credit_tx_store_date
		ON credit_transactions(store_id, transaction_date DESC);

	CREATE INDEX IF NOT EXISTS idx_credit_tx_type
		ON credit_transactions(transaction_type);

	CREATE TABLE IF NOT EXISTS staff (
		id TEXT PRIMARY KEY,
		store_id TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (credit.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store credit.Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// queries runs every statement against either the pool or an open
// transaction; both satisfy sqlx.ExtContext.
type queries struct {
	q sqlx.ExtContext
}

// =============================================================================
// CUSTOMER STORE
// =============================================================================

type customerRow struct {
	ID            string          `db:"id"`
	StoreID       string          `db:"store_id"`
	Name          string          `db:"name"`
	Phone         string          `db:"phone"`
	Email         string          `db:"email"`
	CreditBalance decimal.Decimal `db:"credit_balance"`
	CreditLimit   decimal.Decimal `db:"credit_limit"`
	CreditStatus  string          `db:"credit_status"`
	Version       int64           `db:"version"`
	CreatedAt     string          `db:"created_at"`
	UpdatedAt     string          `db:"updated_at"`
}

const customerColumns = `id, store_id, name, phone, email, credit_balance, credit_limit,
	credit_status, version, created_at, updated_at`

func (r customerRow) toDomain() (credit.Customer, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return credit.Customer{}, fmt.Errorf("customer %s: %w", r.ID, err)
	}
	updatedAt, err := parseTime(r.UpdatedAt)
	if err != nil {
		return credit.Customer{}, fmt.Errorf("customer %s: %w", r.ID, err)
	}
	return credit.Customer{
		ID:            credit.CustomerID(r.ID),
		StoreID:       credit.StoreID(r.StoreID),
		Name:          r.Name,
		Phone:         r.Phone,
		Email:         r.Email,
		CreditBalance: r.CreditBalance,
		CreditLimit:   r.CreditLimit,
		CreditStatus:  credit.CreditStatus(r.CreditStatus),
		Version:       r.Version,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, nil
}

// SaveCustomer inserts a customer.
func (s *queries) SaveCustomer(ctx context.Context, c credit.Customer) error {
	row := customerRow{
		ID:            string(c.ID),
		StoreID:       string(c.StoreID),
		Name:          c.Name,
		Phone:         c.Phone,
		Email:         c.Email,
		CreditBalance: c.CreditBalance,
		CreditLimit:   c.CreditLimit,
		CreditStatus:  string(c.CreditStatus),
		Version:       c.Version,
		CreatedAt:     formatTime(c.CreatedAt),
		UpdatedAt:     formatTime(c.UpdatedAt),
	}

	query := `
		INSERT INTO customers (` + customerColumns + `)
		VALUES (:id, :store_id, :name, :phone, :email, :credit_balance, :credit_limit,
		        :credit_status, :version, :created_at, :updated_at)
	`
	if _, err := sqlx.NamedExecContext(ctx, s.q, query, row); err != nil {
		if isUniqueConstraintError(err) {
			return credit.ErrDuplicateID
		}
		return fmt.Errorf("failed to save customer: %w", err)
	}
	return nil
}

// FindCustomer retrieves a customer scoped to a store.
func (s *queries) FindCustomer(ctx context.Context, storeID credit.StoreID, id credit.CustomerID) (credit.Customer, error) {
	var row customerRow
	err := sqlx.GetContext(ctx, s.q, &row,
		`SELECT `+customerColumns+` FROM customers WHERE id = ? AND store_id = ?`,
		id, storeID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return credit.Customer{}, credit.ErrCustomerNotFound
	}
	if err != nil {
		return credit.Customer{}, fmt.Errorf("failed to get customer: %w", err)
	}
	return row.toDomain()
}

// ListCustomers returns a store's customers ordered by name.
func (s *queries) ListCustomers(ctx context.Context, storeID credit.StoreID) ([]credit.Customer, error) {
	var rows []customerRow
	err := sqlx.SelectContext(ctx, s.q, &rows,
		`SELECT `+customerColumns+` FROM customers WHERE store_id = ? ORDER BY name, id`,
		storeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}

	customers := make([]credit.Customer, 0, len(rows))
	for _, r := range rows {
		c, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, nil
}

// StoreIDs returns every store with at least one customer.
func (s *queries) StoreIDs(ctx context.Context) ([]credit.StoreID, error) {
	var ids []string
	if err := sqlx.SelectContext(ctx, s.q, &ids, `SELECT DISTINCT store_id FROM customers ORDER BY store_id`); err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	out := make([]credit.StoreID, len(ids))
	for i, id := range ids {
		out[i] = credit.StoreID(id)
	}
	return out, nil
}

// UpdateBalance writes the balance if nobody else wrote since ExpectedVersion.
func (s *queries) UpdateBalance(ctx context.Context, u credit.BalanceUpdate) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE customers
		SET credit_balance = ?, credit_status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND store_id = ? AND version = ?
	`, u.Balance, string(u.Status), formatTime(u.At), u.CustomerID, u.StoreID, u.ExpectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return s.checkSwapped(ctx, res, u.StoreID, u.CustomerID)
}

// UpdateCreditLimit writes the limit if nobody else wrote since ExpectedVersion.
func (s *queries) UpdateCreditLimit(ctx context.Context, u credit.LimitUpdate) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE customers
		SET credit_limit = ?, credit_status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND store_id = ? AND version = ?
	`, u.Limit, string(u.Status), formatTime(u.At), u.CustomerID, u.StoreID, u.ExpectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update credit limit: %w", err)
	}
	return s.checkSwapped(ctx, res, u.StoreID, u.CustomerID)
}

// checkSwapped tells a lost race apart from a missing customer.
func (s *queries) checkSwapped(ctx context.Context, res sql.Result, storeID credit.StoreID, id credit.CustomerID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.FindCustomer(ctx, storeID, id); err != nil {
		return err
	}
	return credit.ErrConcurrentModification
}

// =============================================================================
// TRANSACTION STORE (append-only)
// =============================================================================

type transactionRow struct {
	ID              string          `db:"id"`
	StoreID         string          `db:"store_id"`
	CustomerID      string          `db:"customer_id"`
	Type            string          `db:"transaction_type"`
	Amount          decimal.Decimal `db:"amount"`
	BalanceChange   decimal.Decimal `db:"balance_change"`
	PreviousBalance decimal.Decimal `db:"previous_balance"`
	NewBalance      decimal.Decimal `db:"new_balance"`
	ReferenceType   string          `db:"reference_type"`
	ReferenceID     string          `db:"reference_id"`
	ReferenceNumber string          `db:"reference_number"`
	DetailsJSON     sql.NullString  `db:"details_json"`
	Description     string          `db:"description"`
	Notes           string          `db:"notes"`
	ProcessedBy     string          `db:"processed_by"`
	Status          string          `db:"status"`
	FiscalYear      string          `db:"fiscal_year"`
	Quarter         int             `db:"quarter"`
	Month           string          `db:"month"`
	TransactionDate string          `db:"transaction_date"`
	CreatedAt       string          `db:"created_at"`
}

const transactionColumns = `id, store_id, customer_id, transaction_type, amount, balance_change,
	previous_balance, new_balance, reference_type, reference_id, reference_number, details_json,
	description, notes, processed_by, status, fiscal_year, quarter, month, transaction_date, created_at`

func (r transactionRow) toDomain() (credit.Transaction, error) {
	details, err := decodeDetails(r.DetailsJSON)
	if err != nil {
		return credit.Transaction{}, fmt.Errorf("transaction %s: %w", r.ID, err)
	}
	txDate, err := parseTime(r.TransactionDate)
	if err != nil {
		return credit.Transaction{}, fmt.Errorf("transaction %s: %w", r.ID, err)
	}
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return credit.Transaction{}, fmt.Errorf("transaction %s: %w", r.ID, err)
	}
	return credit.Transaction{
		ID:              credit.TransactionID(r.ID),
		StoreID:         credit.StoreID(r.StoreID),
		CustomerID:      credit.CustomerID(r.CustomerID),
		Type:            credit.TransactionType(r.Type),
		Amount:          r.Amount,
		BalanceChange:   r.BalanceChange,
		PreviousBalance: r.PreviousBalance,
		NewBalance:      r.NewBalance,
		Reference: credit.Reference{
			Type:   credit.ReferenceType(r.ReferenceType),
			ID:     r.ReferenceID,
			Number: r.ReferenceNumber,
		},
		Details:         details,
		Description:     r.Description,
		Notes:           r.Notes,
		ProcessedBy:     credit.StaffID(r.ProcessedBy),
		Status:          credit.TransactionStatus(r.Status),
		FiscalYear:      r.FiscalYear,
		Quarter:         r.Quarter,
		Month:           r.Month,
		TransactionDate: txDate,
		CreatedAt:       createdAt,
	}, nil
}

// Append adds a transaction to the ledger.
func (s *queries) Append(ctx context.Context, tx credit.Transaction) error {
	details, err := encodeDetails(tx.Details)
	if err != nil {
		return err
	}

	row := transactionRow{
		ID:              string(tx.ID),
		StoreID:         string(tx.StoreID),
		CustomerID:      string(tx.CustomerID),
		Type:            string(tx.Type),
		Amount:          tx.Amount,
		BalanceChange:   tx.BalanceChange,
		PreviousBalance: tx.PreviousBalance,
		NewBalance:      tx.NewBalance,
		ReferenceType:   string(tx.Reference.Type),
		ReferenceID:     tx.Reference.ID,
		ReferenceNumber: tx.Reference.Number,
		DetailsJSON:     details,
		Description:     tx.Description,
		Notes:           tx.Notes,
		ProcessedBy:     string(tx.ProcessedBy),
		Status:          string(tx.Status),
		FiscalYear:      tx.FiscalYear,
		Quarter:         tx.Quarter,
		Month:           tx.Month,
		TransactionDate: formatTime(tx.TransactionDate),
		CreatedAt:       formatTime(tx.CreatedAt),
	}

	query := `
		INSERT INTO credit_transactions (` + transactionColumns + `)
		VALUES (:id, :store_id, :customer_id, :transaction_type, :amount, :balance_change,
		        :previous_balance, :new_balance, :reference_type, :reference_id, :reference_number,
		        :details_json, :description, :notes, :processed_by, :status, :fiscal_year,
		        :quarter, :month, :transaction_date, :created_at)
	`
	if _, err := sqlx.NamedExecContext(ctx, s.q, query, row); err != nil {
		if isUniqueConstraintError(err) {
			return credit.ErrDuplicateID
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// History returns a customer's transactions, newest first.
func (s *queries) History(ctx context.Context, storeID credit.StoreID, customerID credit.CustomerID, filter credit.HistoryFilter) ([]credit.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM credit_transactions
		WHERE store_id = ? AND customer_id = ?`
	args := []any{storeID, customerID}

	if filter.StartDate != nil {
		query += ` AND transaction_date >= ?`
		args = append(args, formatTime(*filter.StartDate))
	}
	if filter.EndDate != nil {
		query += ` AND transaction_date <= ?`
		args = append(args, formatTime(*filter.EndDate))
	}
	if filter.Type != "" {
		query += ` AND transaction_type = ?`
		args = append(args, filter.Type)
	}
	query += ` ORDER BY transaction_date DESC, created_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	return s.queryTransactions(ctx, query, args...)
}

// TransactionsSince returns a store's transactions in [since, until], newest first.
func (s *queries) TransactionsSince(ctx context.Context, storeID credit.StoreID, since, until time.Time) ([]credit.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM credit_transactions
		WHERE store_id = ? AND transaction_date >= ? AND transaction_date <= ?
		ORDER BY transaction_date DESC, created_at DESC, rowid DESC`
	return s.queryTransactions(ctx, query, storeID, formatTime(since), formatTime(until))
}

// SumBalanceChanges totals balance_change per customer in decimal arithmetic.
func (s *queries) SumBalanceChanges(ctx context.Context, storeID credit.StoreID) (map[credit.CustomerID]decimal.Decimal, error) {
	var rows []struct {
		CustomerID    string          `db:"customer_id"`
		BalanceChange decimal.Decimal `db:"balance_change"`
	}
	err := sqlx.SelectContext(ctx, s.q, &rows,
		`SELECT customer_id, balance_change FROM credit_transactions WHERE store_id = ?`,
		storeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load balance changes: %w", err)
	}

	sums := make(map[credit.CustomerID]decimal.Decimal)
	for _, r := range rows {
		id := credit.CustomerID(r.CustomerID)
		sums[id] = sums[id].Add(r.BalanceChange)
	}
	return sums, nil
}

func (s *queries) queryTransactions(ctx context.Context, query string, args ...any) ([]credit.Transaction, error) {
	var rows []transactionRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	txs := make([]credit.Transaction, 0, len(rows))
	for _, r := range rows {
		tx, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// =============================================================================
// STAFF STORE
// =============================================================================

// SaveStaff inserts a staff member.
func (s *queries) SaveStaff(ctx context.Context, st credit.Staff) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO staff (id, store_id, name, email, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, st.ID, st.StoreID, st.Name, st.Email, st.Role, formatTime(st.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return credit.ErrDuplicateID
		}
		return fmt.Errorf("failed to save staff: %w", err)
	}
	return nil
}

// StaffNames resolves staff ids to names.
func (s *queries) StaffNames(ctx context.Context, ids []credit.StaffID) (map[credit.StaffID]string, error) {
	names := make(map[credit.StaffID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	query, args, err := sqlx.In(`SELECT id, name FROM staff WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build staff query: %w", err)
	}
	var rows []struct {
		ID   string `db:"id"`
		Name string `db:"name"`
	}
	if err := sqlx.SelectContext(ctx, s.q, &rows, s.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load staff names: %w", err)
	}
	for _, r := range rows {
		names[credit.StaffID(r.ID)] = r.Name
	}
	return names, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// detailsRecord is the stored form of credit.Details.
type detailsRecord struct {
	Kind           credit.TransactionType     `json:"kind"`
	Method         credit.PaymentMethod       `json:"method,omitempty"`
	TransactionRef string                     `json:"transactionRef,omitempty"`
	Direction      credit.AdjustmentDirection `json:"direction,omitempty"`
	Reason         string                     `json:"reason,omitempty"`
}

func encodeDetails(d credit.Details) (sql.NullString, error) {
	if d == nil {
		return sql.NullString{}, nil
	}

	rec := detailsRecord{Kind: d.Kind()}
	switch v := d.(type) {
	case credit.PaymentDetails:
		rec.Method = v.Method
		rec.TransactionRef = v.TransactionRef
	case credit.AdjustmentDetails:
		rec.Direction = v.Direction
		rec.Reason = v.Reason
	case credit.WriteOffDetails:
		rec.Reason = v.Reason
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode details: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeDetails(raw sql.NullString) (credit.Details, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}

	var rec detailsRecord
	if err := json.Unmarshal([]byte(raw.String), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode details: %w", err)
	}
	switch rec.Kind {
	case credit.TxPayment:
		return credit.PaymentDetails{Method: rec.Method, TransactionRef: rec.TransactionRef}, nil
	case credit.TxAdjustment:
		return credit.AdjustmentDetails{Direction: rec.Direction, Reason: rec.Reason}, nil
	case credit.TxWriteOff:
		return credit.WriteOffDetails{Reason: rec.Reason}, nil
	}
	return nil, fmt.Errorf("unknown details kind %q", rec.Kind)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
