package credit

import "sync"

// customerLocks serializes ledger writes per customer within this process.
// Entries are reference counted and removed when no writer holds them.
type customerLocks struct {
	mu    sync.Mutex
	locks map[lockKey]*refMutex
}

type lockKey struct {
	store    StoreID
	customer CustomerID
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newCustomerLocks() *customerLocks {
	return &customerLocks{locks: make(map[lockKey]*refMutex)}
}

// lock blocks until the caller owns the customer and returns the unlock func.
func (l *customerLocks) lock(storeID StoreID, customerID CustomerID) func() {
	k := lockKey{store: storeID, customer: customerID}

	l.mu.Lock()
	m, ok := l.locks[k]
	if !ok {
		m = &refMutex{}
		l.locks[k] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, k)
		}
		l.mu.Unlock()
	}
}

func (l *customerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
