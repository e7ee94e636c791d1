// Package store provides in-memory credit.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pharmly/credit-ledger/credit"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	customers    map[credit.CustomerID]credit.Customer
	transactions map[credit.CustomerID][]credit.Transaction
	txIDs        map[credit.TransactionID]uint64 // append sequence, like a rowid
	lastSeq      uint64
	staff        map[credit.StaffID]credit.Staff
}

func NewMemory() *Memory {
	return &Memory{
		customers:    make(map[credit.CustomerID]credit.Customer),
		transactions: make(map[credit.CustomerID][]credit.Transaction),
		txIDs:        make(map[credit.TransactionID]uint64),
		staff:        make(map[credit.StaffID]credit.Staff),
	}
}

// -----------------------------------------------------------------------------
// Customers
// -----------------------------------------------------------------------------

func (m *Memory) SaveCustomer(_ context.Context, c credit.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCustomerLocked(c)
}

func (m *Memory) saveCustomerLocked(c credit.Customer) error {
	if _, exists := m.customers[c.ID]; exists {
		return credit.ErrDuplicateID
	}
	m.customers[c.ID] = c
	return nil
}

func (m *Memory) FindCustomer(_ context.Context, storeID credit.StoreID, id credit.CustomerID) (credit.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findCustomerLocked(storeID, id)
}

func (m *Memory) findCustomerLocked(storeID credit.StoreID, id credit.CustomerID) (credit.Customer, error) {
	c, ok := m.customers[id]
	if !ok || c.StoreID != storeID {
		return credit.Customer{}, credit.ErrCustomerNotFound
	}
	return c, nil
}

func (m *Memory) ListCustomers(_ context.Context, storeID credit.StoreID) ([]credit.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCustomersLocked(storeID), nil
}

func (m *Memory) listCustomersLocked(storeID credit.StoreID) []credit.Customer {
	var result []credit.Customer
	for _, c := range m.customers {
		if c.StoreID == storeID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (m *Memory) StoreIDs(_ context.Context) ([]credit.StoreID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.storeIDsLocked(), nil
}

func (m *Memory) storeIDsLocked() []credit.StoreID {
	seen := make(map[credit.StoreID]bool)
	var ids []credit.StoreID
	for _, c := range m.customers {
		if !seen[c.StoreID] {
			seen[c.StoreID] = true
			ids = append(ids, c.StoreID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Memory) UpdateBalance(_ context.Context, u credit.BalanceUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateBalanceLocked(u)
}

func (m *Memory) updateBalanceLocked(u credit.BalanceUpdate) error {
	c, err := m.findCustomerLocked(u.StoreID, u.CustomerID)
	if err != nil {
		return err
	}
	if c.Version != u.ExpectedVersion {
		return credit.ErrConcurrentModification
	}
	c.CreditBalance = u.Balance
	c.CreditStatus = u.Status
	c.Version++
	c.UpdatedAt = u.At
	m.customers[c.ID] = c
	return nil
}

func (m *Memory) UpdateCreditLimit(_ context.Context, u credit.LimitUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLimitLocked(u)
}

func (m *Memory) updateLimitLocked(u credit.LimitUpdate) error {
	c, err := m.findCustomerLocked(u.StoreID, u.CustomerID)
	if err != nil {
		return err
	}
	if c.Version != u.ExpectedVersion {
		return credit.ErrConcurrentModification
	}
	c.CreditLimit = u.Limit
	c.CreditStatus = u.Status
	c.Version++
	c.UpdatedAt = u.At
	m.customers[c.ID] = c
	return nil
}

// -----------------------------------------------------------------------------
// Transactions (append-only)
// -----------------------------------------------------------------------------

func (m *Memory) Append(_ context.Context, tx credit.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) appendLocked(tx credit.Transaction) error {
	if _, exists := m.txIDs[tx.ID]; exists {
		return credit.ErrDuplicateID
	}
	m.lastSeq++
	m.transactions[tx.CustomerID] = append(m.transactions[tx.CustomerID], tx)
	m.txIDs[tx.ID] = m.lastSeq
	return nil
}

func (m *Memory) History(_ context.Context, storeID credit.StoreID, customerID credit.CustomerID, filter credit.HistoryFilter) ([]credit.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.historyLocked(storeID, customerID, filter), nil
}

func (m *Memory) historyLocked(storeID credit.StoreID, customerID credit.CustomerID, filter credit.HistoryFilter) []credit.Transaction {
	var result []credit.Transaction
	for _, tx := range m.transactions[customerID] {
		if tx.StoreID != storeID {
			continue
		}
		if filter.StartDate != nil && tx.TransactionDate.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && tx.TransactionDate.After(*filter.EndDate) {
			continue
		}
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		result = append(result, tx)
	}
	m.newestFirst(result)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result
}

func (m *Memory) TransactionsSince(_ context.Context, storeID credit.StoreID, since, until time.Time) ([]credit.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transactionsSinceLocked(storeID, since, until), nil
}

func (m *Memory) transactionsSinceLocked(storeID credit.StoreID, since, until time.Time) []credit.Transaction {
	var result []credit.Transaction
	for _, txs := range m.transactions {
		for _, tx := range txs {
			if tx.StoreID != storeID || tx.TransactionDate.Before(since) || tx.TransactionDate.After(until) {
				continue
			}
			result = append(result, tx)
		}
	}
	m.newestFirst(result)
	return result
}

func (m *Memory) SumBalanceChanges(_ context.Context, storeID credit.StoreID) (map[credit.CustomerID]decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sumLocked(storeID), nil
}

func (m *Memory) sumLocked(storeID credit.StoreID) map[credit.CustomerID]decimal.Decimal {
	sums := make(map[credit.CustomerID]decimal.Decimal)
	for id, txs := range m.transactions {
		for _, tx := range txs {
			if tx.StoreID != storeID {
				continue
			}
			sums[id] = sums[id].Add(tx.BalanceChange)
		}
	}
	return sums
}

// newestFirst orders by TransactionDate desc, then CreatedAt desc, then
// most recently appended first.
func (m *Memory) newestFirst(txs []credit.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].TransactionDate.Equal(txs[j].TransactionDate) {
			return txs[i].TransactionDate.After(txs[j].TransactionDate)
		}
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.After(txs[j].CreatedAt)
		}
		return m.txIDs[txs[i].ID] > m.txIDs[txs[j].ID]
	})
}

// -----------------------------------------------------------------------------
// Staff
// -----------------------------------------------------------------------------

func (m *Memory) SaveStaff(_ context.Context, s credit.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveStaffLocked(s)
}

func (m *Memory) saveStaffLocked(s credit.Staff) error {
	if _, exists := m.staff[s.ID]; exists {
		return credit.ErrDuplicateID
	}
	m.staff[s.ID] = s
	return nil
}

func (m *Memory) StaffNames(_ context.Context, ids []credit.StaffID) (map[credit.StaffID]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.staffNamesLocked(ids), nil
}

func (m *Memory) staffNamesLocked(ids []credit.StaffID) map[credit.StaffID]string {
	names := make(map[credit.StaffID]string, len(ids))
	for _, id := range ids {
		if s, ok := m.staff[id]; ok {
			names[id] = s.Name
		}
	}
	return names
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(credit.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	customers := make(map[credit.CustomerID]credit.Customer, len(tm.customers))
	for k, v := range tm.customers {
		customers[k] = v
	}
	txs := make(map[credit.CustomerID][]credit.Transaction, len(tm.transactions))
	for k, v := range tm.transactions {
		txs[k] = append([]credit.Transaction{}, v...)
	}
	ids := make(map[credit.TransactionID]uint64, len(tm.txIDs))
	for k, v := range tm.txIDs {
		ids[k] = v
	}
	staff := make(map[credit.StaffID]credit.Staff, len(tm.staff))
	for k, v := range tm.staff {
		staff[k] = v
	}
	return memorySnapshot{customers: customers, transactions: txs, txIDs: ids, lastSeq: tm.lastSeq, staff: staff}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.customers = s.customers
	tm.transactions = s.transactions
	tm.txIDs = s.txIDs
	tm.lastSeq = s.lastSeq
	tm.staff = s.staff
}

type memorySnapshot struct {
	customers    map[credit.CustomerID]credit.Customer
	transactions map[credit.CustomerID][]credit.Transaction
	txIDs        map[credit.TransactionID]uint64
	lastSeq      uint64
	staff        map[credit.StaffID]credit.Staff
}

// txMemoryView runs against the parent while WithTx holds its lock.
type txMemoryView struct {
	parent *Memory
}

func (v *txMemoryView) SaveCustomer(_ context.Context, c credit.Customer) error {
	return v.parent.saveCustomerLocked(c)
}

func (v *txMemoryView) FindCustomer(_ context.Context, storeID credit.StoreID, id credit.CustomerID) (credit.Customer, error) {
	return v.parent.findCustomerLocked(storeID, id)
}

func (v *txMemoryView) ListCustomers(_ context.Context, storeID credit.StoreID) ([]credit.Customer, error) {
	return v.parent.listCustomersLocked(storeID), nil
}

func (v *txMemoryView) StoreIDs(_ context.Context) ([]credit.StoreID, error) {
	return v.parent.storeIDsLocked(), nil
}

func (v *txMemoryView) UpdateBalance(_ context.Context, u credit.BalanceUpdate) error {
	return v.parent.updateBalanceLocked(u)
}

func (v *txMemoryView) UpdateCreditLimit(_ context.Context, u credit.LimitUpdate) error {
	return v.parent.updateLimitLocked(u)
}

func (v *txMemoryView) Append(_ context.Context, tx credit.Transaction) error {
	return v.parent.appendLocked(tx)
}

func (v *txMemoryView) History(_ context.Context, storeID credit.StoreID, customerID credit.CustomerID, filter credit.HistoryFilter) ([]credit.Transaction, error) {
	return v.parent.historyLocked(storeID, customerID, filter), nil
}

func (v *txMemoryView) TransactionsSince(_ context.Context, storeID credit.StoreID, since, until time.Time) ([]credit.Transaction, error) {
	return v.parent.transactionsSinceLocked(storeID, since, until), nil
}

func (v *txMemoryView) SumBalanceChanges(_ context.Context, storeID credit.StoreID) (map[credit.CustomerID]decimal.Decimal, error) {
	return v.parent.sumLocked(storeID), nil
}

func (v *txMemoryView) SaveStaff(_ context.Context, s credit.Staff) error {
	return v.parent.saveStaffLocked(s)
}

func (v *txMemoryView) StaffNames(_ context.Context, ids []credit.StaffID) (map[credit.StaffID]string, error) {
	return v.parent.staffNamesLocked(ids), nil
}
