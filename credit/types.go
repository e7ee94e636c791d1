/*
Package credit provides the customer credit ledger.

PURPOSE:
  A pharmacy store lets trusted customers buy on credit. Every change to
  what a customer owes is recorded as an immutable Transaction, and the
  customer record carries a denormalized CreditBalance that must always
  equal the sum of those transactions.

KEY CONCEPTS IN THIS FILE (types.go):
  - Customer: the debtor, with balance, limit and derived status
  - Transaction: an immutable ledger entry with before/after snapshots
  - Details: the per-type metadata variant (payment, adjustment, write-off)
  - Reference: pointer to the document that caused the entry

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified after creation
  2. Precision: Uses decimal.Decimal for every money value
  3. Type Safety: Strong typing for store, customer and staff IDs
  4. Auditability: Every entry records who processed it and what it points at

SEE ALSO:
  - ledger.go: CreateTransaction, CustomerHistory, SetCreditLimit
  - status.go: Credit status derivation
  - store.go: Persistence interfaces
*/
package credit

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StoreID string
type CustomerID string
type StaffID string
type TransactionID string

// =============================================================================
// CUSTOMER - The debtor side of the ledger
// =============================================================================

// Customer is a store's customer as seen by the ledger.
// CreditBalance is what the customer currently owes; it is never negative.
type Customer struct {
	ID            CustomerID
	StoreID       StoreID
	Name          string
	Phone         string
	Email         string
	CreditBalance decimal.Decimal
	CreditLimit   decimal.Decimal
	CreditStatus  CreditStatus

	// Version increases on every balance or limit write. Writers compare it
	// to detect a concurrent update of the same customer.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

type TransactionType string

const (
	TxSale       TransactionType = "credit_sale"       // Goods sold on credit, balance goes up
	TxPayment    TransactionType = "credit_payment"    // Customer pays down the balance
	TxAdjustment TransactionType = "credit_adjustment" // Manual correction in either direction
	TxRefund     TransactionType = "credit_refund"     // Returned goods bought on credit
	TxWriteOff   TransactionType = "credit_writeoff"   // Uncollectable debt removed
)

// TransactionTypes lists every type in display order.
var TransactionTypes = []TransactionType{TxSale, TxPayment, TxAdjustment, TxRefund, TxWriteOff}

func (t TransactionType) Valid() bool {
	for _, known := range TransactionTypes {
		if t == known {
			return true
		}
	}
	return false
}

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusApproved  TransactionStatus = "approved"
	StatusRejected  TransactionStatus = "rejected"
	StatusCompleted TransactionStatus = "completed"
)

// Transaction is a single credit ledger entry.
//
// INVARIANTS:
//   - NewBalance == PreviousBalance + BalanceChange
//   - PreviousBalance >= 0 and NewBalance >= 0
//   - Details is nil or matches Type (see Details.Kind)
type Transaction struct {
	ID              TransactionID
	StoreID         StoreID
	CustomerID      CustomerID
	Type            TransactionType
	Amount          decimal.Decimal
	BalanceChange   decimal.Decimal
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
	Reference       Reference
	Details         Details
	Description     string
	Notes           string
	ProcessedBy     StaffID
	Status          TransactionStatus

	// Calendar buckets, fixed from TransactionDate when the entry is created.
	FiscalYear string
	Quarter    int
	Month      string

	TransactionDate time.Time
	CreatedAt       time.Time
}

// =============================================================================
// REFERENCE - Pointer to the originating document
// =============================================================================

type ReferenceType string

const (
	RefSale       ReferenceType = "Sale"
	RefPayment    ReferenceType = "Payment"
	RefAdjustment ReferenceType = "Adjustment"
	RefRefund     ReferenceType = "Refund"
	RefReturn     ReferenceType = "Return"
)

func (r ReferenceType) Valid() bool {
	switch r {
	case RefSale, RefPayment, RefAdjustment, RefRefund, RefReturn:
		return true
	}
	return false
}

type Reference struct {
	Type   ReferenceType
	ID     string
	Number string
}

// =============================================================================
// DETAILS - Per-type metadata
// =============================================================================

// Details carries metadata that only makes sense for one transaction type.
// The set of implementations is closed.
type Details interface {
	Kind() TransactionType
	isDetails()
}

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentUPI          PaymentMethod = "upi"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCheque       PaymentMethod = "cheque"
	PaymentOther        PaymentMethod = "other"
)

type PaymentDetails struct {
	Method         PaymentMethod
	TransactionRef string // external payment id (card slip, UPI ref)
}

func (PaymentDetails) Kind() TransactionType { return TxPayment }
func (PaymentDetails) isDetails()            {}

type AdjustmentDirection string

const (
	AdjustAdd    AdjustmentDirection = "add"
	AdjustDeduct AdjustmentDirection = "deduct"
)

type AdjustmentDetails struct {
	Direction AdjustmentDirection
	Reason    string
}

func (AdjustmentDetails) Kind() TransactionType { return TxAdjustment }
func (AdjustmentDetails) isDetails()            {}

type WriteOffDetails struct {
	Reason string
}

func (WriteOffDetails) Kind() TransactionType { return TxWriteOff }
func (WriteOffDetails) isDetails()            {}

// =============================================================================
// STAFF
// =============================================================================

// Staff is the store employee who processes ledger entries.
type Staff struct {
	ID        StaffID
	StoreID   StoreID
	Name      string
	Email     string
	Role      string
	CreatedAt time.Time
}
